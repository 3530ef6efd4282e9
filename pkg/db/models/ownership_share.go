package models

import (
	"time"

	"github.com/google/uuid"
)

// OwnershipShare assigns a creator a basis-point share of an IP asset.
// Shares for an asset must sum to exactly 10000 bps; the split engine
// enforces this as a hard calculation failure.
type OwnershipShare struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	IPAssetID   uuid.UUID  `gorm:"column:ip_asset_id;type:uuid;not null;index"`
	CreatorID   uuid.UUID  `gorm:"column:creator_id;type:uuid;not null"`
	ShareBps    int64      `gorm:"column:share_bps;not null"`
	ActiveFrom  time.Time  `gorm:"column:active_from;not null"`
	ActiveUntil *time.Time `gorm:"column:active_until"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}
