package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	"github.com/angelmondragon/royaltyworks-backend/pkg/logger"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox/payloads"
)

const defaultNotificationLookback = 48 * time.Hour

type recentStatementLister interface {
	ListCreatedSince(ctx context.Context, since time.Time) ([]models.RoyaltyStatement, error)
}

// StatementNotificationJobParams configures the statement notification sweep.
type StatementNotificationJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Statements recentStatementLister
	Outbox     outboxExistenceEmitter
	Lookback   time.Duration
}

// NewStatementNotificationJob builds the job that queues a statement_issued
// event for every freshly generated statement. Emission is idempotent per
// statement, so overlapping lookback windows are harmless.
func NewStatementNotificationJob(params StatementNotificationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Statements == nil {
		return nil, fmt.Errorf("statement repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultNotificationLookback
	}
	return &statementNotificationJob{
		logg:       params.Logger,
		db:         params.DB,
		statements: params.Statements,
		outbox:     params.Outbox,
		lookback:   lookback,
		now:        time.Now,
	}, nil
}

type statementNotificationJob struct {
	logg       *logger.Logger
	db         txRunner
	statements recentStatementLister
	outbox     outboxExistenceEmitter
	lookback   time.Duration
	now        func() time.Time
}

func (j *statementNotificationJob) Name() string { return "statement-notification" }

func (j *statementNotificationJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	recent, err := j.statements.ListCreatedSince(ctx, now.Add(-j.lookback))
	if err != nil {
		return fmt.Errorf("query recent statements: %w", err)
	}

	var errs []error
	queued := 0
	for _, statement := range recent {
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventStatementIssued,
				AggregateType: enums.AggregateRoyaltyStatement,
				AggregateID:   statement.ID,
				Data: payloads.StatementIssuedEvent{
					StatementID:        statement.ID,
					RunID:              statement.RunID,
					CreatorID:          statement.CreatorID,
					TotalEarningsCents: statement.TotalEarningsCents,
					Held:               statement.Status == enums.StatementStatusReviewed && statement.ReviewedAt == nil,
				},
				Version:    1,
				OccurredAt: now,
			})
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("queue notification for statement %s: %w", statement.ID, err))
			continue
		}
		queued++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"recent": len(recent),
		"queued": queued,
	})
	j.logg.Info(logCtx, "statement notification sweep complete")
	return multierr.Combine(errs...)
}
