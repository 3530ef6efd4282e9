package derivatives

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
	"github.com/angelmondragon/royaltyworks-backend/pkg/finmath"
)

// Config carries the process-wide derivative split settings.
type Config struct {
	Enabled                 bool
	DefaultOriginalShareBps int64
	RoundingMethod          enums.RoundingMethod
}

// Info describes the derivative standing of one IP asset.
type Info struct {
	IsDerivative      bool
	OriginalCreatorID uuid.UUID
	// OriginalShareBps overrides the configured default share when set.
	OriginalShareBps *int64
}

// ChainLink is one creator's position in a multi-level derivative chain.
// Level 0 holds the licensed asset's own owners; ascending levels walk the
// ancestry toward the root original.
type ChainLink struct {
	CreatorID uuid.UUID
	ShareBps  int64
	Level     int
}

// Split allocates totalCents for a possibly-derivative asset. A non-derivative
// asset (or disabled config) splits the full amount among the owners. A
// derivative asset first allocates the original creator's share, rounded with
// the configured method, and splits only the remainder among the derivative
// owners, whose shares must independently sum to 10000 bps.
func Split(totalCents int64, info Info, owners []finmath.Weight, cfg Config) ([]finmath.Allocation, error) {
	if !cfg.Enabled || !info.IsDerivative {
		return finmath.SplitAmount(totalCents, owners)
	}
	if info.OriginalCreatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "derivative asset has no original creator")
	}

	shareBps := cfg.DefaultOriginalShareBps
	if info.OriginalShareBps != nil {
		shareBps = *info.OriginalShareBps
	}
	if shareBps < 0 || shareBps > finmath.TotalShareBps {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("original creator share %d bps out of range", shareBps))
	}

	originalShareCents := finmath.Round(finmath.ApplyBps(totalCents, shareBps), cfg.RoundingMethod)
	if originalShareCents > totalCents {
		originalShareCents = totalCents
	}

	ownerAllocations, err := finmath.SplitAmount(totalCents-originalShareCents, owners)
	if err != nil {
		return nil, err
	}

	out := make([]finmath.Allocation, 0, len(ownerAllocations)+1)
	out = append(out, finmath.Allocation{ID: info.OriginalCreatorID, AmountCents: originalShareCents})
	out = append(out, ownerAllocations...)
	return out, nil
}

// MultiLevelSplit allocates totalCents across a derivative chain. Levels are
// processed ascending; each level above 0 peels the configured derivative
// share of the remaining pool for its creators before passing the residual
// down, and level 0 receives whatever remains.
//
// Rounding cents on the final residual go entirely to the first level-0
// creator rather than through largest remainder. That asymmetry matches the
// shipped statement history; changing it would re-total past statements.
func MultiLevelSplit(totalCents int64, chain []ChainLink, cfg Config) ([]finmath.Allocation, error) {
	if totalCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "split amount must not be negative")
	}
	levels, err := groupChain(chain)
	if err != nil {
		return nil, err
	}

	var out []finmath.Allocation
	pool := totalCents
	for level := 1; level < len(levels); level++ {
		levelCents := finmath.Round(finmath.ApplyBps(pool, cfg.DefaultOriginalShareBps), cfg.RoundingMethod)
		if levelCents > pool {
			levelCents = pool
		}
		allocations, err := finmath.SplitAmount(levelCents, levels[level])
		if err != nil {
			return nil, err
		}
		out = append(out, allocations...)
		pool -= levelCents
	}

	root := levels[0]
	var allocated int64
	rootAllocations := make([]finmath.Allocation, len(root))
	for i, w := range root {
		amount := pool * w.ShareBps / finmath.TotalShareBps
		rootAllocations[i] = finmath.Allocation{ID: w.ID, AmountCents: amount}
		allocated += amount
	}
	rootAllocations[0].AmountCents += pool - allocated
	out = append(out, rootAllocations...)
	return out, nil
}

// groupChain validates the chain and groups weights per level. Levels must be
// contiguous starting at 0 and each level's shares must sum to 10000 bps.
func groupChain(chain []ChainLink) ([][]finmath.Weight, error) {
	if len(chain) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "derivative chain is empty")
	}

	byLevel := map[int][]finmath.Weight{}
	maxLevel := 0
	for _, link := range chain {
		if link.Level < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "derivative chain level must not be negative")
		}
		byLevel[link.Level] = append(byLevel[link.Level], finmath.Weight{ID: link.CreatorID, ShareBps: link.ShareBps})
		if link.Level > maxLevel {
			maxLevel = link.Level
		}
	}

	levels := make([][]finmath.Weight, maxLevel+1)
	for level := 0; level <= maxLevel; level++ {
		weights, ok := byLevel[level]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("derivative chain levels must be contiguous from 0; level %d missing", level))
		}
		shares := make([]int64, len(weights))
		for i, w := range weights {
			shares[i] = w.ShareBps
		}
		if err := validateLevel(level, shares); err != nil {
			return nil, err
		}
		levels[level] = weights
	}
	return levels, nil
}

func validateLevel(level int, sharesBps []int64) error {
	var sum int64
	for _, share := range sharesBps {
		if share < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("derivative chain level %d has a negative share", level))
		}
		sum += share
	}
	if sum != finmath.TotalShareBps {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("derivative chain level %d shares sum to %d bps, expected %d", level, sum, finmath.TotalShareBps))
	}
	return nil
}
