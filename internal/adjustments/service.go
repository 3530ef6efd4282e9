package adjustments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/royaltyworks-backend/internal/audit"
	"github.com/angelmondragon/royaltyworks-backend/pkg/config"
	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
	"github.com/angelmondragon/royaltyworks-backend/pkg/logger"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox/payloads"
)

// statementLockTTL bounds how long a crashed request can hold the per-statement
// mutex before it expires on its own.
const statementLockTTL = 30 * time.Second

// Actor identifies the authenticated caller for permission checks.
type Actor struct {
	UserID    uuid.UUID
	Role      enums.ActorRole
	CreatorID *uuid.UUID
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// statementLocker serializes adjustment writes per statement and invalidates
// the cached statement views they touch.
type statementLocker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	AdjustmentLockKey(statementID string) string
	StatementCacheKey(statementID string) string
	CreatorStatementsCacheKey(creatorID string) string
}

// Params carries the collaborators of the adjustment service.
type Params struct {
	DB     txRunner
	Repo   Repository
	Locker statementLocker
	Outbox outboxEmitter
	Audit  audit.Logger
	Config config.CalculationConfig
	Logger *logger.Logger
}

// Service owns the manual adjustment workflow: request, approve, reject,
// reverse. All writes are serialized per statement through a Redis mutex so
// the "sum of lines equals statement total" invariant holds under concurrency.
type Service struct {
	db     txRunner
	repo   Repository
	locker statementLocker
	outbox outboxEmitter
	audit  audit.Logger
	cfg    config.CalculationConfig
	logg   *logger.Logger
}

// NewService validates collaborators and builds the adjustment service.
func NewService(params Params) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("adjustment repository required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("statement locker required")
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
		db:     params.DB,
		repo:   params.Repo,
		locker: params.Locker,
		outbox: params.Outbox,
		audit:  params.Audit,
		cfg:    params.Config,
		logg:   params.Logger,
	}, nil
}

// RequestInput is the payload for a new manual adjustment.
type RequestInput struct {
	StatementID uuid.UUID
	AmountCents int64
	Type        enums.AdjustmentType
	Reason      string
}

// Request creates a manual adjustment line. Amounts below the approval ceiling
// apply immediately; larger ones wait as pending approval with zero effect.
func (s *Service) Request(ctx context.Context, actor Actor, input RequestInput) (*models.RoyaltyLine, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid adjustment type %q", input.Type))
	}
	if input.AmountCents == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must not be zero")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment reason is required")
	}

	unlock, err := s.lockStatement(ctx, input.StatementID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	statement, err := s.repo.FindStatement(ctx, input.StatementID)
	if err != nil {
		return nil, err
	}
	run, err := s.checkRunUnlocked(ctx, statement.RunID)
	if err != nil {
		return nil, err
	}

	autoApply := abs(input.AmountCents) < s.cfg.AdjustmentApprovalCeiling
	reason := input.Reason
	adjType := input.Type
	line := &models.RoyaltyLine{
		ID:             uuid.New(),
		StatementID:    statement.ID,
		Kind:           enums.LineKindManualAdjustment,
		AdjustmentType: &adjType,
		Reason:         &reason,
		RequestedBy:    &actor.UserID,
	}
	status := enums.AdjustmentStatusPendingApproval
	if autoApply {
		status = enums.AdjustmentStatusApplied
		line.CalculatedRoyaltyCents = input.AmountCents
	} else {
		line.PendingAmountCents = input.AmountCents
	}
	line.AdjustmentStatus = &status

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.CreateLine(ctx, line); err != nil {
			return err
		}
		if autoApply {
			statement.TotalEarningsCents += input.AmountCents
			if err := txRepo.UpdateStatement(ctx, statement); err != nil {
				return err
			}
			run.TotalRoyaltiesCents += input.AmountCents
			if err := txRepo.UpdateRun(ctx, run); err != nil {
				return err
			}
		}

		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAdjustmentRequested,
			AggregateType: enums.AggregateRoyaltyLine,
			AggregateID:   line.ID,
			Actor:         s.actorRef(actor),
			Data: payloads.AdjustmentRequestedEvent{
				LineID:       line.ID,
				StatementID:  statement.ID,
				Type:         input.Type,
				AmountCents:  input.AmountCents,
				Status:       status,
				RequestedBy:  actor.UserID,
				AutoApproved: autoApply,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
		if autoApply {
			err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventAdjustmentApplied,
				AggregateType: enums.AggregateRoyaltyLine,
				AggregateID:   line.ID,
				Actor:         s.actorRef(actor),
				Data: payloads.AdjustmentAppliedEvent{
					LineID:            line.ID,
					StatementID:       statement.ID,
					AmountCents:       input.AmountCents,
					NewStatementTotal: statement.TotalEarningsCents,
				},
				Version: 1,
			})
			if err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, audit.Event{
			EntityType: "royalty_line",
			EntityID:   line.ID,
			Action:     "adjustment_requested",
			ActorID:    actor.UserID,
			Detail:     fmt.Sprintf("%s %d cents, auto_applied=%t", input.Type, input.AmountCents, autoApply),
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, statement)
	return line, nil
}

// Approve applies a pending adjustment to the line, statement, and run totals.
func (s *Service) Approve(ctx context.Context, lineID uuid.UUID, actor Actor) (*models.RoyaltyLine, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}

	line, err := s.repo.FindLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockStatement(ctx, line.StatementID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// The pre-lock read only located the statement; a competing decision may
	// have landed before the lock was acquired, so decide on a fresh copy.
	line, err = s.repo.FindLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if line.AdjustmentStatus == nil || *line.AdjustmentStatus != enums.AdjustmentStatusPendingApproval {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending adjustments can be approved")
	}
	statement, err := s.repo.FindStatement(ctx, line.StatementID)
	if err != nil {
		return nil, err
	}
	run, err := s.checkRunUnlocked(ctx, statement.RunID)
	if err != nil {
		return nil, err
	}

	amount := line.PendingAmountCents
	status := enums.AdjustmentStatusApproved
	line.AdjustmentStatus = &status
	line.CalculatedRoyaltyCents = amount
	line.PendingAmountCents = 0
	line.DecidedBy = &actor.UserID

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.UpdateLine(ctx, line); err != nil {
			return err
		}
		statement.TotalEarningsCents += amount
		if err := txRepo.UpdateStatement(ctx, statement); err != nil {
			return err
		}
		run.TotalRoyaltiesCents += amount
		if err := txRepo.UpdateRun(ctx, run); err != nil {
			return err
		}

		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAdjustmentApplied,
			AggregateType: enums.AggregateRoyaltyLine,
			AggregateID:   line.ID,
			Actor:         s.actorRef(actor),
			Data: payloads.AdjustmentAppliedEvent{
				LineID:            line.ID,
				StatementID:       statement.ID,
				AmountCents:       amount,
				NewStatementTotal: statement.TotalEarningsCents,
				DecidedBy:         &actor.UserID,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, audit.Event{
			EntityType: "royalty_line",
			EntityID:   line.ID,
			Action:     "adjustment_approved",
			ActorID:    actor.UserID,
			Detail:     fmt.Sprintf("%d cents applied", amount),
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, statement)
	return line, nil
}

// Reject declines a pending adjustment with no financial effect.
func (s *Service) Reject(ctx context.Context, lineID uuid.UUID, actor Actor, reason string) (*models.RoyaltyLine, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}

	line, err := s.repo.FindLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockStatement(ctx, line.StatementID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	line, err = s.repo.FindLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if line.AdjustmentStatus == nil || *line.AdjustmentStatus != enums.AdjustmentStatusPendingApproval {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending adjustments can be rejected")
	}
	statement, err := s.repo.FindStatement(ctx, line.StatementID)
	if err != nil {
		return nil, err
	}

	status := enums.AdjustmentStatusRejected
	line.AdjustmentStatus = &status
	line.DecidedBy = &actor.UserID

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateLine(ctx, line); err != nil {
			return err
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAdjustmentRejected,
			AggregateType: enums.AggregateRoyaltyLine,
			AggregateID:   line.ID,
			Actor:         s.actorRef(actor),
			Data: payloads.AdjustmentRejectedEvent{
				LineID:      line.ID,
				StatementID: line.StatementID,
				DecidedBy:   actor.UserID,
				Reason:      reason,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, audit.Event{
			EntityType: "royalty_line",
			EntityID:   line.ID,
			Action:     "adjustment_rejected",
			ActorID:    actor.UserID,
			Detail:     reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, statement)
	return line, nil
}

// Reverse creates a new line with the exact negated amount and marks the
// original reversed. The original line's amount is never mutated.
func (s *Service) Reverse(ctx context.Context, lineID uuid.UUID, actor Actor, reason string) (*models.RoyaltyLine, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}

	original, err := s.repo.FindLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockStatement(ctx, original.StatementID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	original, err = s.repo.FindLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if original.AdjustmentStatus == nil || !original.AdjustmentStatus.IsReversible() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only applied or approved adjustments can be reversed")
	}
	statement, err := s.repo.FindStatement(ctx, original.StatementID)
	if err != nil {
		return nil, err
	}
	run, err := s.checkRunUnlocked(ctx, statement.RunID)
	if err != nil {
		return nil, err
	}

	negated := -original.CalculatedRoyaltyCents
	appliedStatus := enums.AdjustmentStatusApplied
	reversal := &models.RoyaltyLine{
		ID:                     uuid.New(),
		StatementID:            statement.ID,
		Kind:                   enums.LineKindAdjustmentReversal,
		AdjustmentStatus:       &appliedStatus,
		CalculatedRoyaltyCents: negated,
		OriginalLineID:         &original.ID,
		RequestedBy:            &actor.UserID,
	}
	if reason != "" {
		reversal.Reason = &reason
	}

	reversedStatus := enums.AdjustmentStatusReversed
	original.AdjustmentStatus = &reversedStatus

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.CreateLine(ctx, reversal); err != nil {
			return err
		}
		if err := txRepo.UpdateLine(ctx, original); err != nil {
			return err
		}
		statement.TotalEarningsCents += negated
		if err := txRepo.UpdateStatement(ctx, statement); err != nil {
			return err
		}
		run.TotalRoyaltiesCents += negated
		if err := txRepo.UpdateRun(ctx, run); err != nil {
			return err
		}

		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAdjustmentReversed,
			AggregateType: enums.AggregateRoyaltyLine,
			AggregateID:   reversal.ID,
			Actor:         s.actorRef(actor),
			Data: payloads.AdjustmentReversedEvent{
				OriginalLineID: original.ID,
				ReversalLineID: reversal.ID,
				StatementID:    statement.ID,
				AmountCents:    negated,
				ReversedBy:     actor.UserID,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, audit.Event{
			EntityType: "royalty_line",
			EntityID:   reversal.ID,
			Action:     "adjustment_reversed",
			ActorID:    actor.UserID,
			Detail:     fmt.Sprintf("reverses %s by %d cents", original.ID, negated),
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, statement)
	return reversal, nil
}

// ListByStatement returns a statement's adjustment lines oldest-first.
func (s *Service) ListByStatement(ctx context.Context, statementID uuid.UUID) ([]models.RoyaltyLine, error) {
	return s.repo.ListAdjustmentsByStatement(ctx, statementID)
}

func (s *Service) authorize(actor Actor) error {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleFinance:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "role cannot manage adjustments")
	}
}

// lockStatement takes the per-statement mutex. A held lock fails fast rather
// than queueing; callers retry at the API layer.
func (s *Service) lockStatement(ctx context.Context, statementID uuid.UUID) (func(), error) {
	key := s.locker.AdjustmentLockKey(statementID.String())
	acquired, err := s.locker.SetNX(ctx, key, "1", statementLockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "statement lock unavailable")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "another adjustment is in progress for this statement")
	}
	return func() {
		if err := s.locker.Del(context.WithoutCancel(ctx), key); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "statement_id", statementID.String()), "failed to release statement lock")
		}
	}, nil
}

func (s *Service) checkRunUnlocked(ctx context.Context, runID uuid.UUID) (*models.RoyaltyRun, error) {
	run, err := s.repo.FindRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case enums.RunStatusLocked, enums.RunStatusProcessing, enums.RunStatusCompleted:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("run is %s, adjustments are closed", run.Status))
	}
	return run, nil
}

func (s *Service) actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:    actor.UserID,
		CreatorID: actor.CreatorID,
		Role:      string(actor.Role),
	}
}

func (s *Service) invalidate(ctx context.Context, statement *models.RoyaltyStatement) {
	err := s.locker.Del(ctx,
		s.locker.StatementCacheKey(statement.ID.String()),
		s.locker.CreatorStatementsCacheKey(statement.CreatorID.String()),
	)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "statement_id", statement.ID.String()), "statement cache invalidation failed")
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
