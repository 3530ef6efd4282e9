package ownership

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/royaltyworks-backend/pkg/config"
	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/derivatives"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
	"github.com/angelmondragon/royaltyworks-backend/pkg/finmath"
)

// Allocation is one creator's share of a revenue amount, with the exact
// pre-rounding value kept for reconciliation reporting.
type Allocation struct {
	CreatorID   uuid.UUID
	ShareBps    int64
	AmountCents int64
	PreRounded  decimal.Decimal
}

// Engine allocates license revenue across ownership shares, routing derivative
// assets through the cascade split.
type Engine struct {
	derivCfg derivatives.Config
}

// NewEngine builds a split engine from the process calculation config.
func NewEngine(cfg config.CalculationConfig) (*Engine, error) {
	method, err := enums.ParseRoundingMethod(cfg.RoundingMethod)
	if err != nil {
		return nil, err
	}
	if cfg.DerivativeSplitsEnabled &&
		(cfg.DefaultOriginalShareBps < 0 || cfg.DefaultOriginalShareBps > finmath.TotalShareBps) {
		return nil, fmt.Errorf("default original share %d bps out of range", cfg.DefaultOriginalShareBps)
	}
	return &Engine{
		derivCfg: derivatives.Config{
			Enabled:                 cfg.DerivativeSplitsEnabled,
			DefaultOriginalShareBps: cfg.DefaultOriginalShareBps,
			RoundingMethod:          method,
		},
	}, nil
}

// Allocate validates that the shares sum to exactly 10000 bps and splits
// totalCents across the owners. A derivative link sends the amount through the
// cascade: the original creator's share comes off the top and the owners split
// the remainder.
func (e *Engine) Allocate(totalCents int64, shares []models.OwnershipShare, deriv *models.DerivativeLink) ([]Allocation, error) {
	if len(shares) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ip asset has no ownership shares")
	}

	weights := make([]finmath.Weight, len(shares))
	sharesBps := make([]int64, len(shares))
	for i, share := range shares {
		weights[i] = finmath.Weight{ID: share.CreatorID, ShareBps: share.ShareBps}
		sharesBps[i] = share.ShareBps
	}
	if err := finmath.ValidateSplit(sharesBps); err != nil {
		return nil, err
	}

	info := derivatives.Info{}
	if deriv != nil {
		info = derivatives.Info{
			IsDerivative:      true,
			OriginalCreatorID: deriv.OriginalCreatorID,
			OriginalShareBps:  deriv.OriginalShareBps,
		}
	}

	allocations, err := derivatives.Split(totalCents, info, weights, e.derivCfg)
	if err != nil {
		return nil, err
	}

	return e.withPreRounded(totalCents, info, weights, allocations), nil
}

// AllocateChain splits totalCents for an asset whose derivative ancestry runs
// deeper than one link. shares are the asset's own owners; links come from the
// ancestry walk, nearest original first, and each link's creator peels the
// configured share of the remaining pool before the owners take the rest.
// Chains of zero or one link fall back to Allocate so per-link share
// overrides keep applying.
func (e *Engine) AllocateChain(totalCents int64, shares []models.OwnershipShare, links []models.DerivativeLink) ([]Allocation, error) {
	if !e.derivCfg.Enabled || len(links) < 2 {
		var deriv *models.DerivativeLink
		if len(links) > 0 {
			deriv = &links[0]
		}
		return e.Allocate(totalCents, shares, deriv)
	}
	if len(shares) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ip asset has no ownership shares")
	}

	sharesBps := make([]int64, len(shares))
	for i, share := range shares {
		sharesBps[i] = share.ShareBps
	}
	if err := finmath.ValidateSplit(sharesBps); err != nil {
		return nil, err
	}

	chain := make([]derivatives.ChainLink, 0, len(shares)+len(links))
	for _, share := range shares {
		chain = append(chain, derivatives.ChainLink{CreatorID: share.CreatorID, ShareBps: share.ShareBps, Level: 0})
	}
	for i, link := range links {
		if link.OriginalCreatorID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "derivative link has no original creator")
		}
		chain = append(chain, derivatives.ChainLink{
			CreatorID: link.OriginalCreatorID,
			ShareBps:  finmath.TotalShareBps,
			Level:     i + 1,
		})
	}

	allocations, err := derivatives.MultiLevelSplit(totalCents, chain, e.derivCfg)
	if err != nil {
		return nil, err
	}

	// MultiLevelSplit emits ancestor levels ascending, then the owners.
	out := make([]Allocation, len(allocations))
	pool := totalCents
	for i := range links {
		out[i] = Allocation{
			CreatorID:   allocations[i].ID,
			ShareBps:    e.derivCfg.DefaultOriginalShareBps,
			AmountCents: allocations[i].AmountCents,
			PreRounded:  finmath.ApplyBps(pool, e.derivCfg.DefaultOriginalShareBps),
		}
		pool -= allocations[i].AmountCents
	}
	for i, share := range shares {
		idx := len(links) + i
		out[idx] = Allocation{
			CreatorID:   allocations[idx].ID,
			ShareBps:    share.ShareBps,
			AmountCents: allocations[idx].AmountCents,
			PreRounded:  finmath.ApplyBps(pool, share.ShareBps),
		}
	}
	return out, nil
}

// withPreRounded attaches the exact decimal value each allocation was rounded
// from. For a derivative split the owners' pre-rounded values are computed
// against the post-deduction remainder, mirroring the allocation itself.
func (e *Engine) withPreRounded(totalCents int64, info derivatives.Info, weights []finmath.Weight, allocations []finmath.Allocation) []Allocation {
	out := make([]Allocation, len(allocations))

	ownerPool := totalCents
	ownerStart := 0
	if e.derivCfg.Enabled && info.IsDerivative {
		shareBps := e.derivCfg.DefaultOriginalShareBps
		if info.OriginalShareBps != nil {
			shareBps = *info.OriginalShareBps
		}
		out[0] = Allocation{
			CreatorID:   allocations[0].ID,
			ShareBps:    shareBps,
			AmountCents: allocations[0].AmountCents,
			PreRounded:  finmath.ApplyBps(totalCents, shareBps),
		}
		ownerPool = totalCents - allocations[0].AmountCents
		ownerStart = 1
	}

	for i, w := range weights {
		idx := ownerStart + i
		out[idx] = Allocation{
			CreatorID:   allocations[idx].ID,
			ShareBps:    w.ShareBps,
			AmountCents: allocations[idx].AmountCents,
			PreRounded:  finmath.ApplyBps(ownerPool, w.ShareBps),
		}
	}
	return out
}
