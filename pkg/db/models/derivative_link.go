package models

import (
	"time"

	"github.com/google/uuid"
)

// DerivativeLink marks an IP asset as a derivative of another, carrying the
// original creator's share override. A nil OriginalShareBps falls back to the
// configured default share.
type DerivativeLink struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	IPAssetID         uuid.UUID `gorm:"column:ip_asset_id;type:uuid;not null;uniqueIndex"`
	OriginalAssetID   uuid.UUID `gorm:"column:original_asset_id;type:uuid;not null"`
	OriginalCreatorID uuid.UUID `gorm:"column:original_creator_id;type:uuid;not null"`
	OriginalShareBps  *int64    `gorm:"column:original_share_bps"`
	Level             int       `gorm:"column:level;not null;default:1"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}
