package licensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
)

// ActiveLicense is the read model the calculation engine consumes: one active
// license with the ownership shares and derivative standing of its IP asset.
type ActiveLicense struct {
	License    models.License
	Owners     []models.OwnershipShare
	Derivative *models.DerivativeLink
}

// Repository reads licenses and ownership records. Licensing lifecycle lives
// outside this service; only active, period-overlapping rows are surfaced.
type Repository interface {
	ActiveLicensesInPeriod(ctx context.Context, start, end time.Time) ([]ActiveLicense, error)
	// DerivativeChain returns an asset's ancestry, nearest original first.
	// A root asset returns an empty chain.
	DerivativeChain(ctx context.Context, ipAssetID uuid.UUID) ([]models.DerivativeLink, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a licensing read repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ActiveLicensesInPeriod(ctx context.Context, start, end time.Time) ([]ActiveLicense, error) {
	var licenses []models.License
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.LicenseStatusActive).
		Where("period_start <= ? AND period_end >= ?", end, start).
		Order("created_at ASC").
		Find(&licenses).Error
	if err != nil {
		return nil, err
	}
	if len(licenses) == 0 {
		return nil, nil
	}

	assetIDs := make([]uuid.UUID, 0, len(licenses))
	for _, lic := range licenses {
		assetIDs = append(assetIDs, lic.IPAssetID)
	}

	var shares []models.OwnershipShare
	err = r.db.WithContext(ctx).
		Where("ip_asset_id IN ?", assetIDs).
		Where("active_from <= ? AND (active_until IS NULL OR active_until >= ?)", end, start).
		Order("created_at ASC").
		Find(&shares).Error
	if err != nil {
		return nil, err
	}
	sharesByAsset := make(map[uuid.UUID][]models.OwnershipShare, len(assetIDs))
	for _, share := range shares {
		sharesByAsset[share.IPAssetID] = append(sharesByAsset[share.IPAssetID], share)
	}

	var links []models.DerivativeLink
	if err := r.db.WithContext(ctx).Where("ip_asset_id IN ?", assetIDs).Find(&links).Error; err != nil {
		return nil, err
	}
	linksByAsset := make(map[uuid.UUID]models.DerivativeLink, len(links))
	for _, link := range links {
		linksByAsset[link.IPAssetID] = link
	}

	out := make([]ActiveLicense, 0, len(licenses))
	for _, lic := range licenses {
		entry := ActiveLicense{
			License: lic,
			Owners:  sharesByAsset[lic.IPAssetID],
		}
		if link, ok := linksByAsset[lic.IPAssetID]; ok {
			entry.Derivative = &link
		}
		out = append(out, entry)
	}
	return out, nil
}

// maxChainDepth caps the ancestry walk so a mis-linked cycle cannot spin the
// calculation forever.
const maxChainDepth = 16

func (r *repository) DerivativeChain(ctx context.Context, ipAssetID uuid.UUID) ([]models.DerivativeLink, error) {
	var chain []models.DerivativeLink
	current := ipAssetID
	for len(chain) < maxChainDepth {
		var link models.DerivativeLink
		err := r.db.WithContext(ctx).Where("ip_asset_id = ?", current).First(&link).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chain, nil
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, link)
		current = link.OriginalAssetID
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation,
		fmt.Sprintf("derivative ancestry of asset %s exceeds %d links", ipAssetID, maxChainDepth))
}
