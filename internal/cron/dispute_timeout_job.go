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

const defaultDisputeTimeoutDays = 30

type overdueDisputeLister interface {
	ListDisputedBefore(ctx context.Context, cutoff time.Time) ([]models.RoyaltyStatement, error)
}

type outboxExistenceEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// DisputeTimeoutJobParams configures the dispute escalation sweep.
type DisputeTimeoutJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Statements  overdueDisputeLister
	Outbox      outboxExistenceEmitter
	TimeoutDays int
}

// NewDisputeTimeoutJob builds the job that escalates disputes left unresolved
// past the configured timeout. Escalation is one idempotent outbox event per
// statement; the downstream pipeline owns paging whoever is on the hook.
func NewDisputeTimeoutJob(params DisputeTimeoutJobParams) (Job, error) {
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
	timeoutDays := params.TimeoutDays
	if timeoutDays <= 0 {
		timeoutDays = defaultDisputeTimeoutDays
	}
	return &disputeTimeoutJob{
		logg:        params.Logger,
		db:          params.DB,
		statements:  params.Statements,
		outbox:      params.Outbox,
		timeoutDays: timeoutDays,
		now:         time.Now,
	}, nil
}

type disputeTimeoutJob struct {
	logg        *logger.Logger
	db          txRunner
	statements  overdueDisputeLister
	outbox      outboxExistenceEmitter
	timeoutDays int
	now         func() time.Time
}

func (j *disputeTimeoutJob) Name() string { return "dispute-timeout" }

func (j *disputeTimeoutJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-time.Duration(j.timeoutDays) * 24 * time.Hour)
	overdue, err := j.statements.ListDisputedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query overdue disputes: %w", err)
	}

	var errs []error
	escalated := 0
	for _, statement := range overdue {
		if statement.DisputedAt == nil {
			continue
		}
		overdueDays := int(now.Sub(*statement.DisputedAt).Hours() / 24)
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventDisputeEscalated,
				AggregateType: enums.AggregateRoyaltyStatement,
				AggregateID:   statement.ID,
				Data: payloads.DisputeEscalatedEvent{
					StatementID: statement.ID,
					RunID:       statement.RunID,
					CreatorID:   statement.CreatorID,
					DisputedAt:  *statement.DisputedAt,
					OverdueDays: overdueDays,
				},
				Version:    1,
				OccurredAt: now,
			})
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("escalate dispute %s: %w", statement.ID, err))
			continue
		}
		escalated++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"overdue":      len(overdue),
		"escalated":    escalated,
		"timeout_days": j.timeoutDays,
	})
	j.logg.Info(logCtx, "dispute escalation sweep complete")
	return multierr.Combine(errs...)
}
