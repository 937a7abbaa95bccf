package quota

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/interviewd-ai/interviewd-backend/pkg/db/models"
)

// Repository handles org subscription persistence. All mutations of
// used_seconds/reserved_seconds go through the conditional updates here; the
// WHERE clauses re-validate state at commit time so concurrent callers can
// never act on a stale snapshot.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, orgID string) (*models.OrgSubscription, error)
	Create(ctx context.Context, sub *models.OrgSubscription) error
	Delete(ctx context.Context, orgID string) error
	ListElapsed(ctx context.Context, now time.Time, limit int) ([]models.OrgSubscription, error)

	// ReserveConditional atomically increments reserved_seconds by
	// durationSec unless the post-increment commitment would exceed capSec.
	// Overage-approved organizations bypass the cap entirely. Reports
	// whether a row was updated.
	ReserveConditional(ctx context.Context, orgID string, durationSec, capSec int64) (bool, error)

	// ApplySettlement converts a reservation into used time: used_seconds
	// grows by billedSec and reserved_seconds shrinks by reservedSec,
	// floored at zero. Reports whether the subscription row still existed.
	ApplySettlement(ctx context.Context, orgID string, reservedSec, billedSec int64) (bool, error)

	// RollCycle resets an elapsed cycle to the new bounds, zeroing usage.
	// Guarded on the previous cycle_end so a concurrent rollover applies
	// exactly once and never wipes a reservation taken in the new cycle.
	RollCycle(ctx context.Context, orgID string, prevCycleEnd, newStart, newEnd time.Time) (bool, error)

	// SetOverageApproved flips the overage gate. Returns false when the
	// organization has no subscription row.
	SetOverageApproved(ctx context.Context, orgID string, approved bool) (bool, error)

	// Lock takes the subscription row's write lock for the rest of the
	// transaction. Reads derived from the row (active session counts) are
	// only stable while the lock is held. Returns false when the
	// organization has no subscription row.
	Lock(ctx context.Context, orgID string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a quota repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, orgID string) (*models.OrgSubscription, error) {
	var sub models.OrgSubscription
	if err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) Create(ctx context.Context, sub *models.OrgSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) Delete(ctx context.Context, orgID string) error {
	return r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Delete(&models.OrgSubscription{}).Error
}

func (r *repository) ListElapsed(ctx context.Context, now time.Time, limit int) ([]models.OrgSubscription, error) {
	if limit <= 0 {
		limit = 250
	}
	var subs []models.OrgSubscription
	if err := r.db.WithContext(ctx).
		Where("cycle_end <= ?", now.UTC()).
		Where("renew_on_cycle_end").
		Order("cycle_end ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ReserveConditional(ctx context.Context, orgID string, durationSec, capSec int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrgSubscription{}).
		Where("org_id = ?", orgID).
		Where("overage_approved OR used_seconds + reserved_seconds + ? <= ?", durationSec, capSec).
		Updates(map[string]any{
			"reserved_seconds": gorm.Expr("reserved_seconds + ?", durationSec),
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ApplySettlement(ctx context.Context, orgID string, reservedSec, billedSec int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrgSubscription{}).
		Where("org_id = ?", orgID).
		Updates(map[string]any{
			"used_seconds": gorm.Expr("used_seconds + ?", billedSec),
			"reserved_seconds": gorm.Expr(
				"CASE WHEN reserved_seconds > ? THEN reserved_seconds - ? ELSE 0 END",
				reservedSec, reservedSec,
			),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetOverageApproved(ctx context.Context, orgID string, approved bool) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrgSubscription{}).
		Where("org_id = ?", orgID).
		Updates(map[string]any{
			"overage_approved": approved,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Lock(ctx context.Context, orgID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrgSubscription{}).
		Where("org_id = ?", orgID).
		Update("updated_at", time.Now().UTC())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) RollCycle(ctx context.Context, orgID string, prevCycleEnd, newStart, newEnd time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrgSubscription{}).
		Where("org_id = ?", orgID).
		Where("cycle_end = ?", prevCycleEnd).
		Updates(map[string]any{
			"cycle_start":      newStart.UTC(),
			"cycle_end":        newEnd.UTC(),
			"used_seconds":     0,
			"reserved_seconds": 0,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
