package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/royaltyworks-backend/internal/audit"
	"github.com/angelmondragon/royaltyworks-backend/internal/licensing"
	"github.com/angelmondragon/royaltyworks-backend/internal/ownership"
	"github.com/angelmondragon/royaltyworks-backend/internal/revenue"
	"github.com/angelmondragon/royaltyworks-backend/pkg/config"
	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
	"github.com/angelmondragon/royaltyworks-backend/pkg/finmath"
	"github.com/angelmondragon/royaltyworks-backend/pkg/logger"
	"github.com/angelmondragon/royaltyworks-backend/pkg/metrics"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/royaltyworks-backend/pkg/pagination"
	"github.com/angelmondragon/royaltyworks-backend/pkg/periods"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Params carries the collaborators of the run service.
type Params struct {
	DB       txRunner
	Repo     Repository
	Licenses licensing.Repository
	Revenue  *revenue.Service
	Splits   *ownership.Engine
	Outbox   outboxEmitter
	Audit    audit.Logger
	Metrics  *metrics.RunMetrics
	Config   config.CalculationConfig
	Logger   *logger.Logger
}

// Service orchestrates the run lifecycle: create, calculate, lock, rollback.
type Service struct {
	db       txRunner
	repo     Repository
	licenses licensing.Repository
	revenue  *revenue.Service
	splits   *ownership.Engine
	outbox   outboxEmitter
	audit    audit.Logger
	metrics  *metrics.RunMetrics
	cfg      config.CalculationConfig
	logg     *logger.Logger
}

// NewService validates collaborators and builds the run service.
func NewService(params Params) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("run repository required")
	}
	if params.Licenses == nil {
		return nil, fmt.Errorf("licensing repository required")
	}
	if params.Revenue == nil {
		return nil, fmt.Errorf("revenue service required")
	}
	if params.Splits == nil {
		return nil, fmt.Errorf("ownership engine required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit logger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		db:       params.DB,
		repo:     params.Repo,
		licenses: params.Licenses,
		revenue:  params.Revenue,
		splits:   params.Splits,
		outbox:   params.Outbox,
		audit:    params.Audit,
		metrics:  params.Metrics,
		cfg:      params.Config,
		logg:     params.Logger,
	}, nil
}

// CreateInput is the payload for opening a new draft run.
type CreateInput struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Notes       string
}

// Create validates the period, rejects overlap with any existing run, and
// persists a draft.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*models.RoyaltyRun, error) {
	if err := periods.Validate(input.PeriodStart, input.PeriodEnd); err != nil {
		return nil, err
	}
	existing, err := s.repo.ListRunPeriods(ctx)
	if err != nil {
		return nil, err
	}
	if err := periods.CheckNoOverlap(existing, input.PeriodStart, input.PeriodEnd, uuid.Nil); err != nil {
		return nil, err
	}

	run := &models.RoyaltyRun{
		ID:          uuid.New(),
		PeriodStart: input.PeriodStart,
		PeriodEnd:   input.PeriodEnd,
		Status:      enums.RunStatusDraft,
		Notes:       input.Notes,
		CreatedBy:   actorID,
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithRunID(ctx, run.ID.String())
	s.logg.Info(logCtx, "royalty run created")
	return run, nil
}

// Get returns a single run by id.
func (s *Service) Get(ctx context.Context, runID uuid.UUID) (*models.RoyaltyRun, error) {
	return s.repo.FindRun(ctx, runID)
}

// ListResult is one page of runs with an opaque continuation cursor.
type ListResult struct {
	Runs       []models.RoyaltyRun
	NextCursor string
}

// List returns runs newest-first with cursor pagination.
func (s *Service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	rows, err := s.repo.ListRuns(ctx, params)
	if err != nil {
		return nil, err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	result := &ListResult{Runs: rows}
	if len(rows) > limit {
		result.Runs = rows[:limit]
		last := result.Runs[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result, nil
}

// creatorTotals accumulates one creator's license lines during a calculation.
type creatorTotals struct {
	creatorID    uuid.UUID
	currentCents int64
	lines        []models.RoyaltyLine
}

// calcOutcome carries the post-commit facts the metrics and log line need.
type calcOutcome struct {
	statementCount int
	driftCents     float64
}

// Calculate runs the full royalty pipeline for a draft run inside one
// transaction bounded by the configured timeout. Any failure rolls back the
// partial writes and marks the run failed in a separate write.
func (s *Service) Calculate(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error) {
	run, err := s.repo.FindRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != enums.RunStatusDraft {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("run is %s, only draft runs can be calculated", run.Status))
	}

	logCtx := s.logg.WithRunID(ctx, run.ID.String())
	calcCtx := logCtx
	cancel := context.CancelFunc(func() {})
	if s.cfg.Timeout > 0 {
		calcCtx, cancel = context.WithTimeout(logCtx, s.cfg.Timeout)
	}
	defer cancel()

	started := time.Now()
	var outcome calcOutcome
	err = s.db.WithTx(calcCtx, func(tx *gorm.DB) error {
		return s.calculateTx(calcCtx, tx, run, actorID, &outcome)
	})
	if err != nil {
		s.metrics.ObserveCalculation("failed", time.Since(started))
		s.metrics.IncFailure(failureReason(err))
		s.markFailed(context.WithoutCancel(logCtx), run, err)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "royalty calculation failed")
	}

	s.metrics.ObserveCalculation("calculated", time.Since(started))
	s.metrics.AddStatements(outcome.statementCount)
	s.metrics.ObserveRoundingDrift(outcome.driftCents)

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"statement_count":       outcome.statementCount,
		"total_revenue_cents":   run.TotalRevenueCents,
		"total_royalties_cents": run.TotalRoyaltiesCents,
	}), "royalty run calculated")
	return run, nil
}

func (s *Service) calculateTx(ctx context.Context, tx *gorm.DB, run *models.RoyaltyRun, actorID uuid.UUID, outcome *calcOutcome) error {
	txRepo := s.repo.WithTx(tx)

	active, err := s.licenses.ActiveLicensesInPeriod(ctx, run.PeriodStart, run.PeriodEnd)
	if err != nil {
		return err
	}

	var totalRevenueCents int64
	var preRounded []decimal.Decimal
	var postRounded []int64
	byCreator := make(map[uuid.UUID]*creatorTotals)
	var creatorOrder []uuid.UUID

	periodStart := run.PeriodStart
	periodEnd := run.PeriodEnd
	for _, entry := range active {
		agg, err := s.revenue.Aggregate(ctx, entry.License, run.PeriodStart, run.PeriodEnd)
		if err != nil {
			return err
		}
		if agg.TotalRevenueCents == 0 {
			continue
		}

		allocations, err := s.allocate(ctx, agg.TotalRevenueCents, entry)
		if err != nil {
			return err
		}
		totalRevenueCents += agg.TotalRevenueCents

		licenseID := entry.License.ID
		assetID := entry.License.IPAssetID
		for _, alloc := range allocations {
			preRounded = append(preRounded, alloc.PreRounded)
			postRounded = append(postRounded, alloc.AmountCents)

			totals, ok := byCreator[alloc.CreatorID]
			if !ok {
				totals = &creatorTotals{creatorID: alloc.CreatorID}
				byCreator[alloc.CreatorID] = totals
				creatorOrder = append(creatorOrder, alloc.CreatorID)
			}
			totals.currentCents += alloc.AmountCents
			totals.lines = append(totals.lines, models.RoyaltyLine{
				ID:                     uuid.New(),
				Kind:                   enums.LineKindLicense,
				LicenseID:              &licenseID,
				IPAssetID:              &assetID,
				RevenueCents:           agg.TotalRevenueCents,
				ShareBps:               alloc.ShareBps,
				CalculatedRoyaltyCents: alloc.AmountCents,
				PeriodStart:            &periodStart,
				PeriodEnd:              &periodEnd,
			})
		}
	}

	var totalRoyaltiesCents int64
	for _, creatorID := range creatorOrder {
		totals := byCreator[creatorID]

		carryover, err := txRepo.CarryoverForCreator(ctx, creatorID, *run)
		if err != nil {
			return err
		}
		balance := finmath.CalculateAccumulatedBalance(carryover, totals.currentCents, s.cfg.MinPayoutThresholdCents)

		status := enums.StatementStatusPending
		if !balance.ShouldPayout {
			status = enums.StatementStatusReviewed
		}
		statement := &models.RoyaltyStatement{
			ID:                 uuid.New(),
			RunID:              run.ID,
			CreatorID:          creatorID,
			Status:             status,
			TotalEarningsCents: balance.TotalAccumulatedCents,
		}
		if err := txRepo.CreateStatement(ctx, statement); err != nil {
			return err
		}

		lines := totals.lines
		if carryover > 0 {
			lines = append(lines, models.RoyaltyLine{
				ID:                     uuid.New(),
				Kind:                   enums.LineKindCarryover,
				CalculatedRoyaltyCents: carryover,
			})
		}
		if !balance.ShouldPayout {
			note := fmt.Sprintf("accumulated %d cents below payout threshold of %d cents, carried forward",
				balance.TotalAccumulatedCents, s.cfg.MinPayoutThresholdCents)
			lines = append(lines, models.RoyaltyLine{
				ID:     uuid.New(),
				Kind:   enums.LineKindThresholdNote,
				Reason: &note,
			})
		}
		for i := range lines {
			lines[i].StatementID = statement.ID
		}
		if err := txRepo.CreateLines(ctx, lines); err != nil {
			return err
		}

		totalRoyaltiesCents += statement.TotalEarningsCents
		outcome.statementCount++
	}

	reconciliation := finmath.CalculateReconciliation(preRounded, postRounded)
	drift, _ := reconciliation.RoundingDifference.Abs().Float64()
	outcome.driftCents = drift
	if reconciliation.ExceedsTolerance(s.cfg.RoundingToleranceCents) {
		run.Notes = appendNote(run.Notes, fmt.Sprintf("rounding drift of %s cents exceeds tolerance of %d cents",
			reconciliation.RoundingDifference.Abs().String(), s.cfg.RoundingToleranceCents))
		s.logg.Warn(s.logg.WithField(ctx, "drift_cents", reconciliation.RoundingDifference.String()),
			"rounding drift beyond tolerance")
	}

	now := time.Now().UTC()
	run.Status = enums.RunStatusCalculated
	run.TotalRevenueCents = totalRevenueCents
	run.TotalRoyaltiesCents = totalRoyaltiesCents
	run.ProcessedAt = &now
	if err := txRepo.UpdateRun(ctx, run); err != nil {
		return err
	}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRunCalculated,
		AggregateType: enums.AggregateRoyaltyRun,
		AggregateID:   run.ID,
		Actor:         &outbox.ActorRef{UserID: actorID},
		Data: payloads.RunCalculatedEvent{
			RunID:               run.ID,
			PeriodStart:         run.PeriodStart,
			PeriodEnd:           run.PeriodEnd,
			StatementCount:      outcome.statementCount,
			TotalRevenueCents:   run.TotalRevenueCents,
			TotalRoyaltiesCents: run.TotalRoyaltiesCents,
		},
		Version: 1,
	})
	if err != nil {
		return err
	}

	return s.audit.Log(ctx, tx, audit.Event{
		EntityType: "royalty_run",
		EntityID:   run.ID,
		Action:     "calculated",
		ActorID:    actorID,
		Detail:     fmt.Sprintf("%d statements, %d cents royalties", outcome.statementCount, totalRoyaltiesCents),
	})
}

// allocate routes a license's revenue through the split engine. Derivative
// assets resolve their full ancestry so chains deeper than one link cascade
// through every level instead of paying only the direct original.
func (s *Service) allocate(ctx context.Context, totalCents int64, entry licensing.ActiveLicense) ([]ownership.Allocation, error) {
	if entry.Derivative == nil {
		return s.splits.Allocate(totalCents, entry.Owners, nil)
	}
	links, err := s.licenses.DerivativeChain(ctx, entry.License.IPAssetID)
	if err != nil {
		return nil, err
	}
	if len(links) < 2 {
		return s.splits.Allocate(totalCents, entry.Owners, entry.Derivative)
	}
	return s.splits.AllocateChain(totalCents, entry.Owners, links)
}

// markFailed records the failure outside the rolled-back transaction so the
// run never stays stuck in draft with no trace of what happened.
func (s *Service) markFailed(ctx context.Context, run *models.RoyaltyRun, cause error) {
	run.Status = enums.RunStatusFailed
	run.TotalRevenueCents = 0
	run.TotalRoyaltiesCents = 0
	run.ProcessedAt = nil
	run.Notes = appendNote(run.Notes, fmt.Sprintf("calculation failed: %v", cause))

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateRun(ctx, run); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRunFailed,
			AggregateType: enums.AggregateRoyaltyRun,
			AggregateID:   run.ID,
			Data: payloads.RunFailedEvent{
				RunID:    run.ID,
				Reason:   cause.Error(),
				FailedAt: time.Now().UTC(),
			},
			Version: 1,
		})
	})
	if err != nil {
		s.logg.Error(ctx, "failed to mark run as failed", err)
		return
	}
	s.logg.Error(ctx, "royalty run failed", cause)
}

// Lock freezes a calculated run. Locked runs reject adjustments and statement
// corrections, and locking is irreversible through normal flow.
func (s *Service) Lock(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error) {
	run, err := s.repo.FindRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != enums.RunStatusCalculated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("run is %s, only calculated runs can be locked", run.Status))
	}
	disputed, err := s.repo.HasStatementWithStatus(ctx, runID, enums.StatementStatusDisputed)
	if err != nil {
		return nil, err
	}
	if disputed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "run has unresolved disputed statements")
	}

	now := time.Now().UTC()
	run.Status = enums.RunStatusLocked
	run.LockedAt = &now

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateRun(ctx, run); err != nil {
			return err
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRunLocked,
			AggregateType: enums.AggregateRoyaltyRun,
			AggregateID:   run.ID,
			Actor:         &outbox.ActorRef{UserID: actorID},
			Data: payloads.RunLockedEvent{
				RunID:    run.ID,
				LockedAt: now,
				LockedBy: actorID,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, audit.Event{
			EntityType: "royalty_run",
			EntityID:   run.ID,
			Action:     "locked",
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithRunID(ctx, run.ID.String()), "royalty run locked")
	return run, nil
}

// Rollback deletes a run's statements and lines and returns it to draft.
// Permitted only before any payout has been processed.
func (s *Service) Rollback(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error) {
	run, err := s.repo.FindRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case enums.RunStatusCalculated, enums.RunStatusLocked, enums.RunStatusFailed:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("run is %s and cannot be rolled back", run.Status))
	}
	paid, err := s.repo.HasStatementWithStatus(ctx, runID, enums.StatementStatusPaid)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "run has paid statements and cannot be rolled back")
	}

	priorStatus := run.Status
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		deleted, err := txRepo.DeleteStatementsByRun(ctx, runID)
		if err != nil {
			return err
		}

		run.Status = enums.RunStatusDraft
		run.TotalRevenueCents = 0
		run.TotalRoyaltiesCents = 0
		run.ProcessedAt = nil
		run.LockedAt = nil
		if err := txRepo.UpdateRun(ctx, run); err != nil {
			return err
		}

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRunRolledBack,
			AggregateType: enums.AggregateRoyaltyRun,
			AggregateID:   run.ID,
			Actor:         &outbox.ActorRef{UserID: actorID},
			Data: payloads.RunRolledBackEvent{
				RunID:                 run.ID,
				DeletedStatementCount: int(deleted),
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, audit.Event{
			EntityType: "royalty_run",
			EntityID:   run.ID,
			Action:     "rolled_back",
			ActorID:    actorID,
			Detail:     fmt.Sprintf("previous status %s, %d statements deleted", priorStatus, deleted),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithRunID(ctx, run.ID.String()), "royalty run rolled back to draft")
	return run, nil
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

func failureReason(err error) string {
	if appErr := pkgerrors.As(err); appErr != nil {
		return string(appErr.Code())
	}
	return "internal"
}
