package revenue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/royaltyworks-backend/pkg/config"
	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	"github.com/angelmondragon/royaltyworks-backend/pkg/finmath"
	"github.com/angelmondragon/royaltyworks-backend/pkg/logger"
	"github.com/angelmondragon/royaltyworks-backend/pkg/periods"
)

// UsageRoyalty is one creator's usage-based revenue reported by the external
// billing collaborator.
type UsageRoyalty struct {
	CreatorID         uuid.UUID
	UsageRevenueCents int64
	ShareBps          int64
}

// UsageBillingClient is the narrow interface onto the external usage pipeline.
type UsageBillingClient interface {
	UsageBasedRoyalties(ctx context.Context, licenseID uuid.UUID, periodStart, periodEnd time.Time) ([]UsageRoyalty, error)
}

// Aggregation is the chargeable revenue of one license in one period.
type Aggregation struct {
	TotalRevenueCents int64
	FlatFeeCents      int64
	UsageRevenueCents int64
	DaysActive        int
	TotalDays         int
	Prorated          bool
}

// Service computes per-license revenue. A usage-billing failure is logged and
// treated as zero; it never aborts the enclosing run.
type Service struct {
	usage  UsageBillingClient
	logg   *logger.Logger
	cfg    config.CalculationConfig
	method enums.RoundingMethod
}

// NewService builds a revenue aggregator. The usage client may be nil when
// usage revenue is disabled.
func NewService(usage UsageBillingClient, cfg config.CalculationConfig, logg *logger.Logger) (*Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	method, err := enums.ParseRoundingMethod(cfg.RoundingMethod)
	if err != nil {
		return nil, err
	}
	if cfg.UsageRevenueEnabled && usage == nil {
		return nil, fmt.Errorf("usage billing client required when usage revenue is enabled")
	}
	return &Service{usage: usage, logg: logg, cfg: cfg, method: method}, nil
}

// Aggregate returns the total chargeable revenue for a license in the period:
// the flat fee, prorated when the license does not cover the full period, plus
// any usage-based revenue.
func (s *Service) Aggregate(ctx context.Context, lic models.License, periodStart, periodEnd time.Time) (Aggregation, error) {
	totalDays := periods.Days(periodStart, periodEnd)
	daysActive := periods.OverlapDays(lic.PeriodStart, lic.PeriodEnd, periodStart, periodEnd)

	agg := Aggregation{
		DaysActive: daysActive,
		TotalDays:  totalDays,
	}
	if daysActive == 0 || totalDays == 0 {
		return agg, nil
	}

	agg.FlatFeeCents = lic.FeeCents
	if s.cfg.ProrationEnabled && daysActive < totalDays {
		prorated := decimal.NewFromInt(lic.FeeCents).
			Mul(decimal.NewFromInt(int64(daysActive))).
			Div(decimal.NewFromInt(int64(totalDays)))
		agg.FlatFeeCents = finmath.Round(prorated, s.method)
		agg.Prorated = true
	}

	agg.UsageRevenueCents = s.usageRevenue(ctx, lic, periodStart, periodEnd)
	agg.TotalRevenueCents = agg.FlatFeeCents + agg.UsageRevenueCents
	return agg, nil
}

func (s *Service) usageRevenue(ctx context.Context, lic models.License, periodStart, periodEnd time.Time) int64 {
	if !s.cfg.UsageRevenueEnabled || s.usage == nil || lic.RevenueShareBps == 0 {
		return 0
	}

	callCtx := ctx
	if s.cfg.UsageRevenueRequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.UsageRevenueRequestTimeout)
		defer cancel()
	}

	royalties, err := s.usage.UsageBasedRoyalties(callCtx, lic.ID, periodStart, periodEnd)
	if err != nil {
		logCtx := s.logg.WithField(ctx, "license_id", lic.ID.String())
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "usage billing unavailable, counting zero usage revenue")
		return 0
	}

	var total int64
	for _, r := range royalties {
		total += r.UsageRevenueCents
	}
	return total
}
