package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
)

// RoyaltyLine is an append-only ledger entry under a statement. Financial
// corrections never mutate an existing line; they add reversal or adjustment
// lines so history stays reconstructable. Kind is a closed enum with typed
// side columns instead of a free-form metadata blob.
type RoyaltyLine struct {
	ID                     uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StatementID            uuid.UUID               `gorm:"column:statement_id;type:uuid;not null"`
	Kind                   enums.LineKind          `gorm:"column:kind;type:royalty_line_kind;not null"`
	LicenseID              *uuid.UUID              `gorm:"column:license_id;type:uuid"`
	IPAssetID              *uuid.UUID              `gorm:"column:ip_asset_id;type:uuid"`
	RevenueCents           int64                   `gorm:"column:revenue_cents;not null;default:0"`
	ShareBps               int64                   `gorm:"column:share_bps;not null;default:0"`
	CalculatedRoyaltyCents int64                   `gorm:"column:calculated_royalty_cents;not null;default:0"`
	PeriodStart            *time.Time              `gorm:"column:period_start"`
	PeriodEnd              *time.Time              `gorm:"column:period_end"`
	AdjustmentType         *enums.AdjustmentType   `gorm:"column:adjustment_type;type:adjustment_type"`
	AdjustmentStatus       *enums.AdjustmentStatus `gorm:"column:adjustment_status;type:adjustment_status"`
	PendingAmountCents     int64                   `gorm:"column:pending_amount_cents;not null;default:0"`
	OriginalLineID         *uuid.UUID              `gorm:"column:original_line_id;type:uuid"`
	Reason                 *string                 `gorm:"column:reason"`
	RequestedBy            *uuid.UUID              `gorm:"column:requested_by;type:uuid"`
	DecidedBy              *uuid.UUID              `gorm:"column:decided_by;type:uuid"`
	CreatedAt              time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
