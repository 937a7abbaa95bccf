package interviews

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/interviewd-ai/interviewd-backend/pkg/db/models"
	"github.com/interviewd-ai/interviewd-backend/pkg/enums"
)

// ListFilter narrows interview listings.
type ListFilter struct {
	OrgID  *string
	Status *enums.InterviewStatus
	Limit  int
	Offset int
}

// Repository persists interview rows. Status transitions go through
// UpdateWhereStatus so a row can never leave a terminal state and racing
// writers resolve on affected rows, not on reads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, interview *models.Interview) error
	Find(ctx context.Context, id uuid.UUID) (*models.Interview, error)
	List(ctx context.Context, filter ListFilter) ([]models.Interview, int64, error)

	// UpdateWhereStatus applies updates only while the row is in one of the
	// from statuses. Returns false when the guard did not match.
	UpdateWhereStatus(ctx context.Context, id uuid.UUID, from []enums.InterviewStatus, updates map[string]any) (bool, error)

	// ClaimSettlement is UpdateWhereStatus with the extra requirement that
	// quota_settled_at is still unset. The row lock makes it the
	// serialization point for racing enders: exactly one caller gets true
	// and with it the right to settle the hold.
	ClaimSettlement(ctx context.Context, id uuid.UUID, from []enums.InterviewStatus, updates map[string]any) (bool, error)

	// CountActive counts the organization's interviews currently holding a
	// concurrency slot.
	CountActive(ctx context.Context, orgID string) (int64, error)

	// ListActive returns the organization's interviews holding a slot.
	ListActive(ctx context.Context, orgID string) ([]models.Interview, error)

	// ListExpiredCreated returns unredeemed links whose expiry has passed.
	ListExpiredCreated(ctx context.Context, now time.Time, limit int) ([]models.Interview, error)

	// ListActiveStartedBefore returns redeemed interviews still holding a
	// slot whose session began before the cutoff, oldest first.
	ListActiveStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Interview, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed interview repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, interview *models.Interview) error {
	return r.db.WithContext(ctx).Create(interview).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Interview, error) {
	var interview models.Interview
	err := r.db.WithContext(ctx).First(&interview, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &interview, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Interview, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Interview{})
	if filter.OrgID != nil {
		query = query.Where("org_id = ?", *filter.OrgID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Interview
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) UpdateWhereStatus(ctx context.Context, id uuid.UUID, from []enums.InterviewStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	result := r.db.WithContext(ctx).
		Model(&models.Interview{}).
		Where("id = ?", id).
		Where("status IN ?", from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ClaimSettlement(ctx context.Context, id uuid.UUID, from []enums.InterviewStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	result := r.db.WithContext(ctx).
		Model(&models.Interview{}).
		Where("id = ?", id).
		Where("status IN ?", from).
		Where("quota_settled_at IS NULL").
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CountActive(ctx context.Context, orgID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Interview{}).
		Where("org_id = ?", orgID).
		Where("status IN ?", enums.ActiveInterviewStatuses).
		Count(&count).Error
	return count, err
}

func (r *repository) ListActive(ctx context.Context, orgID string) ([]models.Interview, error) {
	var rows []models.Interview
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Where("status IN ?", enums.ActiveInterviewStatuses).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListExpiredCreated(ctx context.Context, now time.Time, limit int) ([]models.Interview, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Interview
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.InterviewStatusCreated).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListActiveStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Interview, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Interview
	err := r.db.WithContext(ctx).
		Where("status IN ?", enums.ActiveInterviewStatuses).
		Where("used_at IS NOT NULL AND used_at <= ?", cutoff).
		Order("used_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
