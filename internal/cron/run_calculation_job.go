package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/logger"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type runCalculator interface {
	Calculate(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error)
}

type dueRunLister interface {
	ListDraftRunsEndedBefore(ctx context.Context, cutoff time.Time) ([]models.RoyaltyRun, error)
}

// RunCalculationJobParams configures the scheduled calculation of due runs.
type RunCalculationJobParams struct {
	Logger *logger.Logger
	Runs   dueRunLister
	Calc   runCalculator
}

// NewRunCalculationJob builds the job that calculates every draft run whose
// accounting period has closed. Failed runs are recorded by the run service
// itself; the job moves on to the next run.
func NewRunCalculationJob(params RunCalculationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Runs == nil {
		return nil, fmt.Errorf("run repository required")
	}
	if params.Calc == nil {
		return nil, fmt.Errorf("run calculator required")
	}
	return &runCalculationJob{
		logg: params.Logger,
		runs: params.Runs,
		calc: params.Calc,
		now:  time.Now,
	}, nil
}

type runCalculationJob struct {
	logg *logger.Logger
	runs dueRunLister
	calc runCalculator
	now  func() time.Time
}

func (j *runCalculationJob) Name() string { return "run-calculation" }

func (j *runCalculationJob) Run(ctx context.Context) error {
	due, err := j.runs.ListDraftRunsEndedBefore(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("query due runs: %w", err)
	}

	var errs []error
	calculated := 0
	for _, run := range due {
		if _, err := j.calc.Calculate(ctx, run.ID, uuid.Nil); err != nil {
			errs = append(errs, fmt.Errorf("calculate run %s: %w", run.ID, err))
			continue
		}
		calculated++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":        len(due),
		"calculated": calculated,
		"failed":     len(errs),
	})
	j.logg.Info(logCtx, "run calculation sweep complete")
	return multierr.Combine(errs...)
}
