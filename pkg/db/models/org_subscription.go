package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/interviewd-ai/interviewd-backend/pkg/enums"
)

// OrgSubscription holds the monthly interview-time budget for one
// organization. UsedSeconds and ReservedSeconds are mutated only through the
// quota engine's conditional updates; nothing else writes them.
type OrgSubscription struct {
	OrgID           string       `gorm:"column:org_id;primaryKey"`
	Plan            enums.PlanID `gorm:"column:plan;not null"`
	BillingAnchor   time.Time    `gorm:"column:billing_anchor;not null"`
	CycleStart      time.Time    `gorm:"column:cycle_start;not null"`
	CycleEnd        time.Time    `gorm:"column:cycle_end;not null"`
	UsedSeconds     int64        `gorm:"column:used_seconds;not null;default:0"`
	ReservedSeconds int64        `gorm:"column:reserved_seconds;not null;default:0"`
	OverageApproved bool         `gorm:"column:overage_approved;not null;default:false"`
	RenewOnCycleEnd bool         `gorm:"column:renew_on_cycle_end;not null;default:true"`

	// MaxConcurrentOverride supersedes the plan's concurrency cap when set.
	MaxConcurrentOverride *int           `gorm:"column:max_concurrent_override"`
	Features              pq.StringArray `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
