package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
)

// RoyaltyStatement is one creator's earnings summary within a run. Its
// TotalEarningsCents must equal the sum of its lines' CalculatedRoyaltyCents
// at all times.
type RoyaltyStatement struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RunID              uuid.UUID             `gorm:"column:run_id;type:uuid;not null"`
	CreatorID          uuid.UUID             `gorm:"column:creator_id;type:uuid;not null"`
	Status             enums.StatementStatus `gorm:"column:status;type:royalty_statement_status;not null;default:'pending'"`
	TotalEarningsCents int64                 `gorm:"column:total_earnings_cents;not null;default:0"`
	ReviewedAt         *time.Time            `gorm:"column:reviewed_at"`
	DisputedAt         *time.Time            `gorm:"column:disputed_at"`
	DisputeReason      *string               `gorm:"column:dispute_reason"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
