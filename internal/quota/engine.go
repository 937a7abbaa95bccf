package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/interviewd-ai/interviewd-backend/internal/billing"
	"github.com/interviewd-ai/interviewd-backend/internal/plans"
	"github.com/interviewd-ai/interviewd-backend/pkg/db"
	"github.com/interviewd-ai/interviewd-backend/pkg/db/models"
	"github.com/interviewd-ai/interviewd-backend/pkg/enums"
	pkgerrors "github.com/interviewd-ai/interviewd-backend/pkg/errors"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
	"github.com/interviewd-ai/interviewd-backend/pkg/metrics"
)

// EngineParams groups dependencies for the quota engine.
type EngineParams struct {
	Repo    Repository
	Logger  *logger.Logger
	Metrics *metrics.QuotaMetrics
	Clock   func() time.Time
}

// Engine is the sole writer of used/reserved seconds on OrgSubscription. It
// reserves time at interview creation, converts or releases it at settlement,
// and rolls elapsed cycles forward lazily.
type Engine struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.QuotaMetrics
	now     func() time.Time
}

// NewEngine builds a quota engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		repo:    params.Repo,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// AssignPlan creates the subscription record on first plan assignment. The
// initial cycle is anchored at the provided anchor (or now when zero).
func (e *Engine) AssignPlan(ctx context.Context, orgID string, planID enums.PlanID, anchor time.Time) (*models.OrgSubscription, error) {
	if orgID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org id is required")
	}
	if !planID.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown plan")
	}

	existing, err := e.repo.Find(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "organization already has a subscription")
	}

	now := e.now().UTC()
	if anchor.IsZero() {
		anchor = now
	}
	start, end := billing.CycleRange(anchor, now)

	sub := &models.OrgSubscription{
		OrgID:           orgID,
		Plan:            planID,
		BillingAnchor:   anchor.UTC(),
		CycleStart:      start,
		CycleEnd:        end,
		RenewOnCycleEnd: true,
	}
	if err := e.repo.Create(ctx, sub); err != nil {
		// Two concurrent assigns race past the existence check; the primary
		// key settles it.
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "organization already has a subscription")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
	}
	return sub, nil
}

// RemoveSubscription drops quota tracking for the organization. Interview
// history is untouched; in-flight reservations are abandoned and later
// settlements against the missing row become no-ops.
func (e *Engine) RemoveSubscription(ctx context.Context, orgID string) error {
	if orgID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "org id is required")
	}
	if err := e.repo.Delete(ctx, orgID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete subscription")
	}
	return nil
}

// Reserve holds durationSec of interview time against the organization's
// current cycle. The capacity check and the increment are a single
// conditional update, so two racing reservations can never both pass a check
// against a stale snapshot. When tx is non-nil the reservation joins the
// caller's transaction.
func (e *Engine) Reserve(ctx context.Context, tx *gorm.DB, orgID string, durationSec int64) (int64, error) {
	if durationSec <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "duration must be positive")
	}
	repo := e.repo.WithTx(tx)

	sub, err := repo.Find(ctx, orgID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		e.metrics.IncReserveRejected(string(pkgerrors.CodeNoSubscription))
		return 0, pkgerrors.New(pkgerrors.CodeNoSubscription, "organization has no subscription")
	}

	sub, err = e.maybeRollCycle(ctx, repo, sub)
	if err != nil {
		return 0, err
	}

	plan := plans.MustLookup(sub.Plan)
	ok, err := repo.ReserveConditional(ctx, orgID, durationSec, plan.CappedSeconds())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserve quota")
	}
	if !ok {
		return 0, e.classifyRejection(ctx, repo, orgID, durationSec, plan)
	}

	e.metrics.IncReserveAccepted(string(plan.ID))
	return durationSec, nil
}

// maybeRollCycle lazily advances an elapsed cycle. Usage never carries over;
// the reset is guarded on the observed cycle_end so concurrent callers roll
// at most once.
func (e *Engine) maybeRollCycle(ctx context.Context, repo Repository, sub *models.OrgSubscription) (*models.OrgSubscription, error) {
	now := e.now().UTC()
	if now.Before(sub.CycleEnd) {
		return sub, nil
	}
	if !sub.RenewOnCycleEnd {
		e.metrics.IncReserveRejected(string(pkgerrors.CodeNoSubscription))
		return nil, pkgerrors.New(pkgerrors.CodeNoSubscription, "subscription lapsed at cycle end")
	}

	start, end := billing.CycleRange(sub.BillingAnchor, now)
	rolled, err := repo.RollCycle(ctx, sub.OrgID, sub.CycleEnd, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "roll billing cycle")
	}
	if rolled {
		e.metrics.IncCycleRollover()
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"org_id":      sub.OrgID,
			"cycle_start": start,
			"cycle_end":   end,
		})
		e.logg.Info(logCtx, "billing cycle rolled forward")
	}

	fresh, err := repo.Find(ctx, sub.OrgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload subscription")
	}
	if fresh == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNoSubscription, "subscription removed during rollover")
	}
	return fresh, nil
}

// classifyRejection re-reads committed totals to pick the error payload. The
// read has no bearing on correctness; the conditional update already decided.
func (e *Engine) classifyRejection(ctx context.Context, repo Repository, orgID string, durationSec int64, plan plans.Plan) error {
	remaining := int64(0)
	if sub, err := repo.Find(ctx, orgID); err == nil && sub != nil {
		remaining = plan.CappedSeconds() - sub.UsedSeconds - sub.ReservedSeconds
		if remaining < 0 {
			remaining = 0
		}
	}

	if remaining <= 0 {
		e.metrics.IncReserveRejected(string(pkgerrors.CodeOverageLocked))
		return pkgerrors.New(pkgerrors.CodeOverageLocked, "monthly interview time is exhausted").
			WithDetails(map[string]int64{"remaining_sec": 0})
	}
	e.metrics.IncReserveRejected(string(pkgerrors.CodeTimeLimitExceeded))
	return pkgerrors.New(pkgerrors.CodeTimeLimitExceeded, "requested duration exceeds the remaining monthly time").
		WithDetails(map[string]int64{"remaining_sec": remaining, "requested_sec": durationSec})
}

// Settle converts a reservation into used time. Callers invoke it inside the
// transaction that also stamps the interview's settlement guard, so a retried
// ending never applies it twice. billedSec is clamped to [0, reservedSec]; a
// missing subscription row is logged and skipped, never an error, because the
// interview-ending flow must not fail over accounting.
func (e *Engine) Settle(ctx context.Context, tx *gorm.DB, orgID string, reservedSec, billedSec int64) error {
	if reservedSec <= 0 {
		return nil
	}
	if billedSec < 0 {
		billedSec = 0
	}
	if billedSec > reservedSec {
		billedSec = reservedSec
	}

	updated, err := e.repo.WithTx(tx).ApplySettlement(ctx, orgID, reservedSec, billedSec)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply settlement")
	}
	if !updated {
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"org_id":       orgID,
			"reserved_sec": reservedSec,
		})
		e.logg.Warn(logCtx, "subscription missing at settlement; reservation abandoned")
		return nil
	}

	e.metrics.ObserveSettlement(billedSec)
	return nil
}

// SetOverageApproved flips the overage approval flag.
func (e *Engine) SetOverageApproved(ctx context.Context, orgID string, approved bool) error {
	updated, err := e.repo.SetOverageApproved(ctx, orgID, approved)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update overage approval")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeNoSubscription, "organization has no subscription")
	}
	return nil
}

// UsageSummary is the read-only projection of the current cycle for display.
type UsageSummary struct {
	OrgID               string          `json:"org_id"`
	PlanID              enums.PlanID    `json:"plan_id"`
	PlanName            string          `json:"plan_name"`
	CycleStart          time.Time       `json:"cycle_start"`
	CycleEnd            time.Time       `json:"cycle_end"`
	IncludedSec         int64           `json:"included_sec"`
	UsedSec             int64           `json:"used_sec"`
	ReservedSec         int64           `json:"reserved_sec"`
	OverageUsedSec      int64           `json:"overage_used_sec"`
	OverageRemainingSec int64           `json:"overage_remaining_sec"`
	OverageLocked       bool            `json:"overage_locked"`
	OverageApproved     bool            `json:"overage_approved"`
	OverageAmount       decimal.Decimal `json:"overage_amount"`
}

// Summary derives the display projection from current subscription fields
// plus the plan catalog. No side effects: an elapsed cycle is presented as
// its fresh successor without being persisted.
func (e *Engine) Summary(ctx context.Context, orgID string) (*UsageSummary, error) {
	sub, err := e.repo.Find(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNoSubscription, "organization has no subscription")
	}

	plan := plans.MustLookup(sub.Plan)
	now := e.now().UTC()

	used, reserved := sub.UsedSeconds, sub.ReservedSeconds
	cycleStart, cycleEnd := sub.CycleStart, sub.CycleEnd
	if !now.Before(sub.CycleEnd) && sub.RenewOnCycleEnd {
		cycleStart, cycleEnd = billing.CycleRange(sub.BillingAnchor, now)
		used, reserved = 0, 0
	}

	overageUsed := used - plan.IncludedSeconds
	if overageUsed < 0 {
		overageUsed = 0
	}
	overageRemaining := plan.OverageLimitSeconds - overageUsed
	if overageRemaining < 0 {
		overageRemaining = 0
	}
	locked := !sub.OverageApproved && used+reserved >= plan.CappedSeconds()

	overageMinutes := decimal.NewFromInt(overageUsed).Div(decimal.NewFromInt(60))
	amount := plan.OverageRatePerMinute.Mul(overageMinutes).Round(2)

	return &UsageSummary{
		OrgID:               sub.OrgID,
		PlanID:              plan.ID,
		PlanName:            plan.Name,
		CycleStart:          cycleStart,
		CycleEnd:            cycleEnd,
		IncludedSec:         plan.IncludedSeconds,
		UsedSec:             used,
		ReservedSec:         reserved,
		OverageUsedSec:      overageUsed,
		OverageRemainingSec: overageRemaining,
		OverageLocked:       locked,
		OverageApproved:     sub.OverageApproved,
		OverageAmount:       amount,
	}, nil
}

// MaxConcurrent resolves the concurrency cap for the subscription, honoring
// the per-org override.
func MaxConcurrent(sub *models.OrgSubscription) int {
	if sub == nil {
		return 0
	}
	if sub.MaxConcurrentOverride != nil && *sub.MaxConcurrentOverride > 0 {
		return *sub.MaxConcurrentOverride
	}
	return plans.MustLookup(sub.Plan).MaxConcurrentSessions
}

// RollElapsed advances every subscription whose cycle has ended. Reserve does
// this lazily for active organizations; the cron sweep keeps idle ones fresh.
func (e *Engine) RollElapsed(ctx context.Context, limit int) (int, error) {
	now := e.now().UTC()
	subs, err := e.repo.ListElapsed(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list elapsed subscriptions")
	}

	rolled := 0
	for _, sub := range subs {
		start, end := billing.CycleRange(sub.BillingAnchor, now)
		ok, err := e.repo.RollCycle(ctx, sub.OrgID, sub.CycleEnd, start, end)
		if err != nil {
			return rolled, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "roll billing cycle")
		}
		if ok {
			rolled++
			e.metrics.IncCycleRollover()
		}
	}
	return rolled, nil
}

// LockSubscription takes the organization's subscription row lock for the
// rest of the transaction and returns the row, or nil when the organization
// has none. Callers deriving state from other tables (active session counts)
// hold this lock so racing transactions serialize per organization.
func (e *Engine) LockSubscription(ctx context.Context, tx *gorm.DB, orgID string) (*models.OrgSubscription, error) {
	repo := e.repo.WithTx(tx)
	locked, err := repo.Lock(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock subscription")
	}
	if !locked {
		return nil, nil
	}
	return repo.Find(ctx, orgID)
}
