package finmath

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
)

// TotalShareBps is the basis-point total a complete ownership split must sum to.
const TotalShareBps int64 = 10000

// Weight is one party's basis-point share of an amount.
type Weight struct {
	ID       uuid.UUID
	ShareBps int64
}

// Allocation is one party's allocated integer cent amount.
type Allocation struct {
	ID          uuid.UUID
	AmountCents int64
}

// Balance is the result of applying the payout threshold to an accumulated sum.
type Balance struct {
	TotalAccumulatedCents int64
	ShouldPayout          bool
}

// Reconciliation summarizes aggregate rounding drift between the exact
// pre-rounded values and the integer cents actually allocated. Diagnostic
// only; drift beyond tolerance flags a run, never blocks it.
type Reconciliation struct {
	PreRoundedTotal      decimal.Decimal
	PostRoundedTotal     int64
	RoundingDifference   decimal.Decimal
	ItemCount            int
	AverageRoundingError decimal.Decimal
}

// ValidateSplit fails unless the shares sum to exactly 10000 bps. The error
// message reports the actual sum so callers can surface the violated invariant.
func ValidateSplit(sharesBps []int64) error {
	var sum int64
	for _, share := range sharesBps {
		if share < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "ownership share must not be negative")
		}
		sum += share
	}
	if sum != TotalShareBps {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("ownership shares sum to %d bps, expected %d", sum, TotalShareBps))
	}
	return nil
}

// SplitAmount allocates totalCents across the weighted parties using the
// largest remainder method: each party gets floor(total*share/10000), then the
// unallocated cents go one-by-one to the parties with the largest fractional
// remainder, ties broken by input order. The returned amounts always sum to
// totalCents exactly.
func SplitAmount(totalCents int64, weights []Weight) ([]Allocation, error) {
	if totalCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "split amount must not be negative")
	}
	if len(weights) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one weight is required")
	}
	shares := make([]int64, len(weights))
	for i, w := range weights {
		shares[i] = w.ShareBps
	}
	if err := ValidateSplit(shares); err != nil {
		return nil, err
	}

	allocations := make([]Allocation, len(weights))
	remainders := make([]int64, len(weights))
	var allocated int64
	for i, w := range weights {
		product := totalCents * w.ShareBps
		allocations[i] = Allocation{ID: w.ID, AmountCents: product / TotalShareBps}
		remainders[i] = product % TotalShareBps
		allocated += allocations[i].AmountCents
	}

	leftover := totalCents - allocated
	if leftover > 0 {
		order := make([]int, len(weights))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return remainders[order[a]] > remainders[order[b]]
		})
		for i := int64(0); i < leftover; i++ {
			allocations[order[i%int64(len(order))]].AmountCents++
		}
	}
	return allocations, nil
}

// Round converts an exact decimal cent amount to integer cents using the
// process-wide rounding method.
func Round(amount decimal.Decimal, method enums.RoundingMethod) int64 {
	switch method {
	case enums.RoundingMethodBankers:
		return amount.RoundBank(0).IntPart()
	default:
		return amount.Round(0).IntPart()
	}
}

// ApplyBps returns the exact, unrounded decimal result of amount*bps/10000.
func ApplyBps(amountCents int64, bps int64) decimal.Decimal {
	return decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(TotalShareBps))
}

// BpsToPercent converts basis points to a percentage.
func BpsToPercent(bps int64) decimal.Decimal {
	return decimal.NewFromInt(bps).Div(decimal.NewFromInt(100))
}

// PercentToBps converts a percentage to basis points, truncating any
// sub-basis-point precision.
func PercentToBps(percent decimal.Decimal) int64 {
	return percent.Mul(decimal.NewFromInt(100)).IntPart()
}

// CalculateReconciliation reports aggregate drift between pre- and
// post-rounding values. Inputs of unequal length are compared over the
// shorter prefix; item count reflects the post-rounded side.
func CalculateReconciliation(preRounded []decimal.Decimal, postRounded []int64) Reconciliation {
	pre := decimal.Zero
	for _, v := range preRounded {
		pre = pre.Add(v)
	}
	var post int64
	for _, v := range postRounded {
		post += v
	}
	diff := decimal.NewFromInt(post).Sub(pre)
	rec := Reconciliation{
		PreRoundedTotal:    pre,
		PostRoundedTotal:   post,
		RoundingDifference: diff,
		ItemCount:          len(postRounded),
	}
	if rec.ItemCount > 0 {
		rec.AverageRoundingError = diff.Abs().Div(decimal.NewFromInt(int64(rec.ItemCount)))
	}
	return rec
}

// ExceedsTolerance reports whether the absolute rounding drift is beyond the
// configured tolerance in cents.
func (r Reconciliation) ExceedsTolerance(toleranceCents int64) bool {
	return r.RoundingDifference.Abs().GreaterThan(decimal.NewFromInt(toleranceCents))
}

// CalculateAccumulatedBalance adds the current period's royalties to any
// unpaid carryover and applies the payout threshold. Below threshold the full
// accumulated amount carries forward; partial payouts are never made.
func CalculateAccumulatedBalance(unpaidCarryoverCents, currentPeriodCents, thresholdCents int64) Balance {
	total := unpaidCarryoverCents + currentPeriodCents
	return Balance{
		TotalAccumulatedCents: total,
		ShouldPayout:          total >= thresholdCents,
	}
}
