package finmath

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
)

func TestValidateSplit(t *testing.T) {
	cases := []struct {
		name   string
		shares []int64
		wantOK bool
	}{
		{name: "exact total", shares: []int64{6000, 4000}, wantOK: true},
		{name: "single owner", shares: []int64{10000}, wantOK: true},
		{name: "under total", shares: []int64{5000, 4999}, wantOK: false},
		{name: "over total", shares: []int64{5000, 5001}, wantOK: false},
		{name: "negative share", shares: []int64{-1000, 11000}, wantOK: false},
		{name: "empty", shares: nil, wantOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSplit(tc.shares)
			if tc.wantOK && err != nil {
				t.Fatalf("expected valid split, got %v", err)
			}
			if !tc.wantOK && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSplitAmountLargestRemainder(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()

	allocations, err := SplitAmount(100, []Weight{
		{ID: a, ShareBps: 3333},
		{ID: b, ShareBps: 3333},
		{ID: c, ShareBps: 3334},
	})
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	var total int64
	for _, alloc := range allocations {
		total += alloc.AmountCents
	}
	if total != 100 {
		t.Fatalf("allocations sum to %d, want 100", total)
	}

	// 33.33, 33.33, 33.34 floors to 33/33/33; the leftover cent goes to the
	// earliest largest remainder, which is c's 3400.
	if allocations[2].AmountCents != 34 {
		t.Fatalf("expected the largest remainder to take the leftover cent, got %+v", allocations)
	}
}

func TestSplitAmountTiesBreakByInputOrder(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	allocations, err := SplitAmount(101, []Weight{
		{ID: a, ShareBps: 5000},
		{ID: b, ShareBps: 5000},
	})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if allocations[0].AmountCents != 51 || allocations[1].AmountCents != 50 {
		t.Fatalf("expected first party to win the tie, got %+v", allocations)
	}
}

func TestSplitAmountRejectsNegativeTotal(t *testing.T) {
	_, err := SplitAmount(-1, []Weight{{ID: uuid.New(), ShareBps: 10000}})
	var appErr *pkgerrors.Error
	if !errors.As(err, &appErr) || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSplitAmountConservesEveryCent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		parties := rng.Intn(8) + 1
		weights := make([]Weight, parties)
		remaining := TotalShareBps
		for j := 0; j < parties-1; j++ {
			share := rng.Int63n(remaining + 1)
			weights[j] = Weight{ID: uuid.New(), ShareBps: share}
			remaining -= share
		}
		weights[parties-1] = Weight{ID: uuid.New(), ShareBps: remaining}

		total := rng.Int63n(10_000_000)
		allocations, err := SplitAmount(total, weights)
		if err != nil {
			t.Fatalf("iteration %d: split: %v", i, err)
		}
		var sum int64
		for _, alloc := range allocations {
			if alloc.AmountCents < 0 {
				t.Fatalf("iteration %d: negative allocation %+v", i, alloc)
			}
			sum += alloc.AmountCents
		}
		if sum != total {
			t.Fatalf("iteration %d: allocations sum to %d, want %d", i, sum, total)
		}
	}
}

func TestRoundBankers(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{in: "2.5", want: 2},
		{in: "3.5", want: 4},
		{in: "2.4", want: 2},
		{in: "2.6", want: 3},
		{in: "-2.5", want: -2},
	}
	for _, tc := range cases {
		got := Round(decimal.RequireFromString(tc.in), enums.RoundingMethodBankers)
		if got != tc.want {
			t.Errorf("Round(%s, bankers) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRoundStandard(t *testing.T) {
	if got := Round(decimal.RequireFromString("2.5"), enums.RoundingMethodStandard); got != 3 {
		t.Fatalf("Round(2.5, standard) = %d, want 3", got)
	}
}

func TestApplyBps(t *testing.T) {
	got := ApplyBps(10000, 1500)
	if !got.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("ApplyBps(10000, 1500) = %s, want 1500", got)
	}

	exact := ApplyBps(1001, 3333)
	if !exact.Equal(decimal.RequireFromString("333.6333")) {
		t.Fatalf("ApplyBps(1001, 3333) = %s, want 333.6333", exact)
	}
}

func TestBpsPercentRoundTrip(t *testing.T) {
	if got := BpsToPercent(1550); !got.Equal(decimal.RequireFromString("15.5")) {
		t.Fatalf("BpsToPercent(1550) = %s, want 15.5", got)
	}
	if got := PercentToBps(decimal.RequireFromString("15.5")); got != 1550 {
		t.Fatalf("PercentToBps(15.5) = %d, want 1550", got)
	}
	// Sub-basis-point precision truncates.
	if got := PercentToBps(decimal.RequireFromString("15.559")); got != 1555 {
		t.Fatalf("PercentToBps(15.559) = %d, want 1555", got)
	}
}

func TestCalculateReconciliation(t *testing.T) {
	pre := []decimal.Decimal{
		decimal.RequireFromString("33.4"),
		decimal.RequireFromString("33.3"),
		decimal.RequireFromString("33.3"),
	}
	post := []int64{34, 33, 33}

	rec := CalculateReconciliation(pre, post)
	if rec.PostRoundedTotal != 100 {
		t.Fatalf("post total %d, want 100", rec.PostRoundedTotal)
	}
	if !rec.RoundingDifference.Equal(decimal.Zero) {
		t.Fatalf("rounding difference %s, want 0", rec.RoundingDifference)
	}
	if rec.ExceedsTolerance(0) {
		t.Fatalf("zero drift should be within zero tolerance")
	}
}

func TestReconciliationExceedsTolerance(t *testing.T) {
	rec := CalculateReconciliation([]decimal.Decimal{decimal.NewFromInt(100)}, []int64{205})
	if !rec.ExceedsTolerance(100) {
		t.Fatalf("drift of 105 cents should exceed tolerance of 100")
	}
	if rec.ExceedsTolerance(200) {
		t.Fatalf("drift of 105 cents should be within tolerance of 200")
	}
}

func TestCalculateAccumulatedBalance(t *testing.T) {
	below := CalculateAccumulatedBalance(1000, 1000, 2500)
	if below.ShouldPayout || below.TotalAccumulatedCents != 2000 {
		t.Fatalf("unexpected balance %+v", below)
	}

	atThreshold := CalculateAccumulatedBalance(1500, 1000, 2500)
	if !atThreshold.ShouldPayout {
		t.Fatalf("accumulated total equal to threshold should pay out")
	}
}
