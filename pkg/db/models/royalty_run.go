package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
)

// RoyaltyRun is one royalty calculation batch for a fixed accounting period.
// Runs are never hard-deleted; rollback returns them to draft instead.
type RoyaltyRun struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PeriodStart         time.Time       `gorm:"column:period_start;not null"`
	PeriodEnd           time.Time       `gorm:"column:period_end;not null"`
	Status              enums.RunStatus `gorm:"column:status;type:royalty_run_status;not null;default:'draft'"`
	TotalRevenueCents   int64           `gorm:"column:total_revenue_cents;not null;default:0"`
	TotalRoyaltiesCents int64           `gorm:"column:total_royalties_cents;not null;default:0"`
	Notes               string          `gorm:"column:notes"`
	CreatedBy           uuid.UUID       `gorm:"column:created_by;type:uuid;not null"`
	LockedAt            *time.Time      `gorm:"column:locked_at"`
	ProcessedAt         *time.Time      `gorm:"column:processed_at"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
