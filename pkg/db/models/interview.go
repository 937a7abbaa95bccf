package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/interviewd-ai/interviewd-backend/pkg/enums"
)

// Interview is one candidate session. Each row reaches a terminal status
// exactly once; QuotaSettledAt is the settlement idempotency guard.
type Interview struct {
	ID    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID *string   `gorm:"column:org_id;index"`

	Status      enums.InterviewStatus `gorm:"column:status;not null;default:'created';index"`
	DurationSec int64                 `gorm:"column:duration_sec;not null"`

	// QuotaReservedSec is the hold taken against the subscription at
	// creation. Zero means the legacy unbilled path: no subscription row
	// existed, nothing to settle.
	QuotaReservedSec int64      `gorm:"column:quota_reserved_sec;not null;default:0"`
	QuotaSettledAt   *time.Time `gorm:"column:quota_settled_at"`

	UsedAt            *time.Time `gorm:"column:used_at"`
	CandidateJoinedAt *time.Time `gorm:"column:candidate_joined_at"`
	EndedAt           *time.Time `gorm:"column:ended_at"`
	ExpiresAt         *time.Time `gorm:"column:expires_at"`

	// ActualDurationSec is computed once at ending time and then frozen.
	ActualDurationSec *int64 `gorm:"column:actual_duration_sec"`

	RoomName string  `gorm:"column:room_name;not null;default:''"`
	EgressID *string `gorm:"column:egress_id"`

	// Agent dispatch metadata, stored opaque and forwarded to the room
	// collaborator at join time.
	Prompt         *string `gorm:"column:prompt"`
	OpeningMessage *string `gorm:"column:opening_message"`

	FailureReason *string `gorm:"column:failure_reason"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
