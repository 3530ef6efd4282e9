package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
)

// License is the read model the royalty engine consumes. The licensing
// system owns creation, approval, and conflict detection.
type License struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	IPAssetID       uuid.UUID           `gorm:"column:ip_asset_id;type:uuid;not null"`
	LicenseeID      uuid.UUID           `gorm:"column:licensee_id;type:uuid;not null"`
	Status          enums.LicenseStatus `gorm:"column:status;type:license_status;not null"`
	PeriodStart     time.Time           `gorm:"column:period_start;not null"`
	PeriodEnd       time.Time           `gorm:"column:period_end;not null"`
	FeeCents        int64               `gorm:"column:fee_cents;not null;default:0"`
	RevenueShareBps int64               `gorm:"column:revenue_share_bps;not null;default:0"`
	Scope           string              `gorm:"column:scope"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt       gorm.DeletedAt      `gorm:"column:deleted_at;index"`
}
