package interviews

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/interviewd-ai/interviewd-backend/internal/quota"
	"github.com/interviewd-ai/interviewd-backend/pkg/config"
	"github.com/interviewd-ai/interviewd-backend/pkg/db/models"
	"github.com/interviewd-ai/interviewd-backend/pkg/enums"
	pkgerrors "github.com/interviewd-ai/interviewd-backend/pkg/errors"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
	"github.com/interviewd-ai/interviewd-backend/pkg/rooms"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput describes a new interview link. A nil OrgID is the legacy
// unbilled path: no reservation is taken and no concurrency cap applies.
type CreateInput struct {
	OrgID          *string
	DurationSec    int64
	Prompt         *string
	OpeningMessage *string
}

// JoinResult is what the candidate's browser needs to enter the room.
type JoinResult struct {
	Interview   *models.Interview
	RoomName    string
	AccessToken string
}

// Service drives the interview lifecycle: link creation with a quota hold,
// single-use redemption, recording, and the always-idempotent ending that
// settles the hold.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Interview, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Interview, error)
	List(ctx context.Context, filter ListFilter) ([]models.Interview, int64, error)
	Join(ctx context.Context, id uuid.UUID, participantID string) (*JoinResult, error)
	MarkRecording(ctx context.Context, id uuid.UUID) error
	End(ctx context.Context, id uuid.UUID, reason string) (*models.Interview, error)
	EndAllForOrg(ctx context.Context, orgID string) (int, error)
	ExpireStale(ctx context.Context, limit int) (int, error)
	ReapOverdue(ctx context.Context, limit int) (int, error)
}

// ServiceParams groups the lifecycle service dependencies.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Quota  *quota.Engine
	Rooms  rooms.Service
	Logger *logger.Logger
	Config config.QuotaConfig
	Clock  func() time.Time
}

type service struct {
	repo  Repository
	tx    txRunner
	quota *quota.Engine
	rooms rooms.Service
	logg  *logger.Logger
	cfg   config.QuotaConfig
	now   func() time.Time
}

// NewService builds the interview lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("interviews repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Quota == nil {
		return nil, fmt.Errorf("quota engine required")
	}
	if params.Rooms == nil {
		return nil, fmt.Errorf("rooms service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:  params.Repo,
		tx:    params.Tx,
		quota: params.Quota,
		rooms: params.Rooms,
		logg:  params.Logger,
		cfg:   params.Config,
		now:   now,
	}, nil
}

// Create reserves quota and inserts the interview in one transaction, so a
// row with a hold exists if and only if the hold was taken.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Interview, error) {
	if input.DurationSec <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration must be positive")
	}

	now := s.now().UTC()
	id := uuid.New()
	expiresAt := now.Add(s.cfg.LinkTTL)
	interview := &models.Interview{
		ID:             id,
		OrgID:          input.OrgID,
		Status:         enums.InterviewStatusCreated,
		DurationSec:    input.DurationSec,
		ExpiresAt:      &expiresAt,
		RoomName:       "interview-" + id.String(),
		Prompt:         input.Prompt,
		OpeningMessage: input.OpeningMessage,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if input.OrgID != nil {
			reserved, rerr := s.quota.Reserve(ctx, tx, *input.OrgID, input.DurationSec)
			if rerr != nil {
				return rerr
			}
			interview.QuotaReservedSec = reserved
		}
		return s.repo.WithTx(tx).Create(ctx, interview)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create interview")
	}

	logCtx := s.logg.WithInterviewID(ctx, interview.ID.String())
	s.logg.Info(logCtx, "interview link created")
	return interview, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Interview, error) {
	interview, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load interview")
	}
	if interview == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "interview not found")
	}
	return interview, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Interview, int64, error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list interviews")
	}
	return rows, total, nil
}

// Join redeems the single-use link. The expiry check, the concurrency cap,
// and the created->used transition all happen in one transaction; the
// transition itself is status-guarded, so a second redeemer loses on affected
// rows even if both saw status created.
func (s *service) Join(ctx context.Context, id uuid.UUID, participantID string) (*JoinResult, error) {
	var interview *models.Interview

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, ferr := repo.Find(ctx, id)
		if ferr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, ferr, "load interview")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "interview not found")
		}
		if found.Status != enums.InterviewStatusCreated {
			return pkgerrors.New(pkgerrors.CodeAlreadyUsed, "interview link was already used")
		}
		now := s.now().UTC()
		if found.ExpiresAt != nil && !now.Before(*found.ExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeExpired, "interview link has expired")
		}

		if found.OrgID != nil {
			if cerr := s.checkConcurrency(ctx, tx, repo, *found.OrgID); cerr != nil {
				return cerr
			}
		}

		ok, uerr := repo.UpdateWhereStatus(ctx, id,
			[]enums.InterviewStatus{enums.InterviewStatusCreated},
			map[string]any{
				"status":  enums.InterviewStatusUsed,
				"used_at": now,
			})
		if uerr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, uerr, "redeem interview link")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeAlreadyUsed, "interview link was already used")
		}

		interview = found
		interview.Status = enums.InterviewStatusUsed
		interview.UsedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := s.rooms.Provision(ctx, rooms.ProvisionParams{
		RoomName:       interview.RoomName,
		ParticipantID:  participantID,
		MaxDurationSec: interview.DurationSec,
		Metadata: rooms.AgentMetadata{
			Prompt:         deref(interview.Prompt),
			OpeningMessage: deref(interview.OpeningMessage),
		},
	})
	if err != nil {
		s.failStart(ctx, interview.ID, "room provisioning failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provision interview room")
	}

	logCtx := s.logg.WithInterviewID(ctx, interview.ID.String())
	s.logg.Info(logCtx, "interview link redeemed")
	return &JoinResult{
		Interview:   interview,
		RoomName:    result.RoomName,
		AccessToken: result.AccessToken,
	}, nil
}

func (s *service) checkConcurrency(ctx context.Context, tx *gorm.DB, repo Repository, orgID string) error {
	// Holding the subscription row lock serializes redeemers per
	// organization; without it two joins at cap-1 both count cap-1 and both
	// pass.
	sub, err := s.quota.LockSubscription(ctx, tx, orgID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		return nil
	}
	limit := quota.MaxConcurrent(sub)
	if limit <= 0 {
		return nil
	}
	active, err := repo.CountActive(ctx, orgID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count active interviews")
	}
	if active >= int64(limit) {
		return pkgerrors.New(pkgerrors.CodeConcurrencyLimit, "organization concurrent session limit reached").
			WithDetails(map[string]int64{"active": active, "limit": int64(limit)})
	}
	return nil
}

// MarkRecording starts the recording egress once the candidate is in the
// room. Safe to call repeatedly: only the used->recording transition starts
// an egress, later deliveries see recording and return.
func (s *service) MarkRecording(ctx context.Context, id uuid.UUID) error {
	interview, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if interview.Status != enums.InterviewStatusUsed {
		return nil
	}

	egressID, err := s.rooms.StartEgress(ctx, interview.RoomName)
	if err != nil {
		s.failStart(ctx, id, "recording egress failed to start")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start recording egress")
	}

	now := s.now().UTC()
	ok, err := s.repo.UpdateWhereStatus(ctx, id,
		[]enums.InterviewStatus{enums.InterviewStatusUsed},
		map[string]any{
			"status":              enums.InterviewStatusRecording,
			"egress_id":           egressID,
			"candidate_joined_at": now,
		})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark interview recording")
	}
	if !ok {
		// Lost the race to a concurrent ending; the orphaned egress is
		// stopped rather than left running against a finished room.
		if serr := s.rooms.StopEgress(ctx, egressID); serr != nil {
			logCtx := s.logg.WithInterviewID(ctx, id.String())
			s.logg.Warn(logCtx, "failed to stop orphaned egress")
		}
	}
	return nil
}

// failStart moves a session that never produced billable media to failed and
// releases its hold. Settlement and the terminal transition share the
// transaction, so retries are no-ops. Reports whether this call performed the
// transition.
func (s *service) failStart(ctx context.Context, id uuid.UUID, reason string) bool {
	failed := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		interview, ferr := repo.Find(ctx, id)
		if ferr != nil || interview == nil {
			return ferr
		}
		if interview.Status.IsTerminal() {
			return nil
		}

		now := s.now().UTC()
		claimed, uerr := repo.ClaimSettlement(ctx, id,
			[]enums.InterviewStatus{
				enums.InterviewStatusCreated,
				enums.InterviewStatusUsed,
				enums.InterviewStatusRecording,
				enums.InterviewStatusEnding,
			},
			map[string]any{
				"status":              enums.InterviewStatusFailed,
				"failure_reason":      reason,
				"ended_at":            now,
				"actual_duration_sec": int64(0),
				"quota_settled_at":    now,
			})
		if uerr != nil {
			return uerr
		}
		if !claimed {
			return nil
		}

		if interview.QuotaReservedSec > 0 && interview.OrgID != nil {
			if serr := s.quota.Settle(ctx, tx, *interview.OrgID, interview.QuotaReservedSec, 0); serr != nil {
				return serr
			}
		}
		failed = true
		return nil
	})
	if err != nil {
		logCtx := s.logg.WithInterviewID(ctx, id.String())
		s.logg.Error(logCtx, "failed to mark interview failed", err)
		return false
	}
	return failed
}

// End finishes a session from any state and is safe to call any number of
// times: the ending webhook, an org-wide shutdown, and a manual stop can all
// race. Media teardown is best effort; the settlement transaction re-reads
// the row and only the caller that finds it unsettled applies the charge.
func (s *service) End(ctx context.Context, id uuid.UUID, reason string) (*models.Interview, error) {
	interview, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if interview.Status.IsTerminal() {
		return interview, nil
	}

	// A session that was never redeemed has no media to bill; ending it is a
	// cancellation.
	if interview.Status == enums.InterviewStatusCreated {
		s.failStart(ctx, id, nonEmpty(reason, "cancelled before use"))
		return s.Get(ctx, id)
	}

	if _, err := s.repo.UpdateWhereStatus(ctx, id,
		[]enums.InterviewStatus{enums.InterviewStatusUsed, enums.InterviewStatusRecording},
		map[string]any{"status": enums.InterviewStatusEnding},
	); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark interview ending")
	}

	s.teardownMedia(ctx, interview)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fresh, ferr := repo.Find(ctx, id)
		if ferr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, ferr, "reload interview")
		}
		if fresh == nil || fresh.Status.IsTerminal() {
			return nil
		}

		now := s.now().UTC()
		actual := s.actualDuration(fresh, now)
		billed := s.billableSeconds(actual, fresh.QuotaReservedSec)

		// The claim is the serialization point: concurrent enders block on
		// the row lock, the loser finds quota_settled_at set and must not
		// touch the subscription.
		claimed, uerr := repo.ClaimSettlement(ctx, id,
			[]enums.InterviewStatus{
				enums.InterviewStatusUsed,
				enums.InterviewStatusRecording,
				enums.InterviewStatusEnding,
			}, map[string]any{
				"status":              enums.InterviewStatusCompleted,
				"ended_at":            now,
				"actual_duration_sec": actual,
				"quota_settled_at":    now,
			})
		if uerr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, uerr, "complete interview")
		}
		if !claimed {
			return nil
		}

		if fresh.QuotaReservedSec > 0 && fresh.OrgID != nil {
			if serr := s.quota.Settle(ctx, tx, *fresh.OrgID, fresh.QuotaReservedSec, billed); serr != nil {
				return serr
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithInterviewID(ctx, id.String())
	s.logg.Info(logCtx, "interview ended")
	return s.Get(ctx, id)
}

func (s *service) teardownMedia(ctx context.Context, interview *models.Interview) {
	logCtx := s.logg.WithInterviewID(ctx, interview.ID.String())
	if interview.EgressID != nil {
		if err := s.rooms.StopEgress(ctx, *interview.EgressID); err != nil {
			s.logg.Warn(logCtx, "failed to stop recording egress")
		}
	}
	if interview.RoomName != "" {
		if err := s.rooms.DeleteRoom(ctx, interview.RoomName); err != nil {
			s.logg.Warn(logCtx, "failed to delete interview room")
		}
	}
}

// actualDuration measures candidate-facing time: from the candidate joining,
// or from redemption when recording never started. Never negative.
func (s *service) actualDuration(interview *models.Interview, endedAt time.Time) int64 {
	start := interview.CandidateJoinedAt
	if start == nil {
		start = interview.UsedAt
	}
	if start == nil {
		return 0
	}
	elapsed := int64(endedAt.Sub(*start) / time.Second)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// billableSeconds applies the billing floor to any session with elapsed time
// and caps the charge at the reservation. A true no-show bills nothing.
func (s *service) billableSeconds(actual, reserved int64) int64 {
	if actual <= 0 {
		return 0
	}
	billed := actual
	if billed < s.cfg.MinBillableSeconds {
		billed = s.cfg.MinBillableSeconds
	}
	if billed > reserved {
		billed = reserved
	}
	return billed
}

// EndAllForOrg finishes every session holding one of the organization's
// concurrency slots. Used when a subscription is removed or suspended.
func (s *service) EndAllForOrg(ctx context.Context, orgID string) (int, error) {
	active, err := s.repo.ListActive(ctx, orgID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list active interviews")
	}
	ended := 0
	for _, interview := range active {
		if _, eerr := s.End(ctx, interview.ID, "organization shutdown"); eerr != nil {
			logCtx := s.logg.WithInterviewID(ctx, interview.ID.String())
			s.logg.Error(logCtx, "failed to end interview during org shutdown", eerr)
			continue
		}
		ended++
	}
	return ended, nil
}

// ExpireStale fails unredeemed links past their expiry and releases their
// holds. Runs from the cron worker. Counts only rows actually transitioned,
// so a persistently failing batch cannot keep the sweep looping.
func (s *service) ExpireStale(ctx context.Context, limit int) (int, error) {
	stale, err := s.repo.ListExpiredCreated(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired interviews")
	}
	expired := 0
	for _, interview := range stale {
		if s.failStart(ctx, interview.ID, "link expired") {
			expired++
		}
	}
	return expired, nil
}

// Sessions past their booked duration get this long before the sweep ends
// them. The room server enforces the real limit; the grace absorbs webhook
// delivery lag so the sweep only catches deliveries that were lost.
const overdueGrace = 15 * time.Minute

// ReapOverdue ends sessions still holding a slot after their booked time ran
// out. Covers rooms that died without a finished webhook. Runs from the cron
// worker.
func (s *service) ReapOverdue(ctx context.Context, limit int) (int, error) {
	now := s.now().UTC()
	candidates, err := s.repo.ListActiveStartedBefore(ctx, now.Add(-overdueGrace), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list overdue interviews")
	}
	reaped := 0
	for _, interview := range candidates {
		if interview.UsedAt == nil {
			continue
		}
		deadline := interview.UsedAt.Add(time.Duration(interview.DurationSec)*time.Second + overdueGrace)
		if deadline.After(now) {
			continue
		}
		if _, eerr := s.End(ctx, interview.ID, "session overdue"); eerr != nil {
			logCtx := s.logg.WithInterviewID(ctx, interview.ID.String())
			s.logg.Error(logCtx, "failed to end overdue interview", eerr)
			continue
		}
		reaped++
	}
	return reaped, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func nonEmpty(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
