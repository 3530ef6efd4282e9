package statements

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
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
	"github.com/angelmondragon/royaltyworks-backend/pkg/pagination"
)

const minDisputeReasonLength = 10

// Actor identifies the authenticated caller for ownership checks.
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

type summaryCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	StatementCacheKey(statementID string) string
	CreatorStatementsCacheKey(creatorID string) string
}

// Params carries the collaborators of the statement service.
type Params struct {
	DB     txRunner
	Repo   Repository
	Cache  summaryCache
	Outbox outboxEmitter
	Audit  audit.Logger
	Config config.CalculationConfig
	Logger *logger.Logger
}

// Service owns the statement review, dispute, and resolution lifecycle.
type Service struct {
	db     txRunner
	repo   Repository
	cache  summaryCache
	outbox outboxEmitter
	audit  audit.Logger
	cfg    config.CalculationConfig
	logg   *logger.Logger
}

// NewService validates collaborators and builds the statement service. The
// cache is optional; a nil cache disables summary caching.
func NewService(params Params) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("statement repository required")
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
		cache:  params.Cache,
		outbox: params.Outbox,
		audit:  params.Audit,
		cfg:    params.Config,
		logg:   params.Logger,
	}, nil
}

// Detail is a statement with its full line ledger.
type Detail struct {
	Statement models.RoyaltyStatement `json:"statement"`
	Lines     []models.RoyaltyLine    `json:"lines"`
}

// Get returns a statement and its lines. Creators may only read their own
// statements. Reads go through the summary cache when one is configured.
func (s *Service) Get(ctx context.Context, statementID uuid.UUID, actor Actor) (*Detail, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, s.cache.StatementCacheKey(statementID.String()))
		if err == nil && cached != "" {
			var detail Detail
			if err := json.Unmarshal([]byte(cached), &detail); err == nil {
				if err := s.authorizeRead(detail.Statement, actor); err != nil {
					return nil, err
				}
				return &detail, nil
			}
		}
	}

	statement, err := s.repo.Find(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(*statement, actor); err != nil {
		return nil, err
	}
	lines, err := s.repo.ListLines(ctx, statementID)
	if err != nil {
		return nil, err
	}

	detail := &Detail{Statement: *statement, Lines: lines}
	if s.cache != nil {
		if payload, err := json.Marshal(detail); err == nil {
			if err := s.cache.Set(ctx, s.cache.StatementCacheKey(statementID.String()), string(payload), s.cfg.StatementCacheTTL); err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "statement_id", statementID.String()), "statement cache write failed")
			}
		}
	}
	return detail, nil
}

// ListResult is one page of statements with an opaque continuation cursor.
type ListResult struct {
	Statements []models.RoyaltyStatement
	NextCursor string
}

// ListByRun returns a run's statements newest-first.
func (s *Service) ListByRun(ctx context.Context, runID uuid.UUID, params pagination.Params) (*ListResult, error) {
	rows, err := s.repo.ListByRun(ctx, runID, params)
	if err != nil {
		return nil, err
	}
	return paginate(rows, params), nil
}

// ListByCreator returns a creator's statements newest-first. Creators may only
// list their own.
func (s *Service) ListByCreator(ctx context.Context, creatorID uuid.UUID, params pagination.Params, actor Actor) (*ListResult, error) {
	if actor.Role == enums.ActorRoleCreator && (actor.CreatorID == nil || *actor.CreatorID != creatorID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "statements belong to another creator")
	}
	rows, err := s.repo.ListByCreator(ctx, creatorID, params)
	if err != nil {
		return nil, err
	}
	return paginate(rows, params), nil
}

// Review marks a pending statement as reviewed by its creator.
func (s *Service) Review(ctx context.Context, statementID uuid.UUID, actor Actor) (*models.RoyaltyStatement, error) {
	statement, err := s.repo.Find(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(*statement, actor); err != nil {
		return nil, err
	}
	if statement.Status != enums.StatementStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("statement is %s, only pending statements can be reviewed", statement.Status))
	}

	now := time.Now().UTC()
	statement.Status = enums.StatementStatusReviewed
	statement.ReviewedAt = &now

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, statement); err != nil {
			return err
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStatementReviewed,
			AggregateType: enums.AggregateRoyaltyStatement,
			AggregateID:   statement.ID,
			Actor:         s.actorRef(actor),
			Data: payloads.StatementReviewedEvent{
				StatementID: statement.ID,
				RunID:       statement.RunID,
				CreatorID:   statement.CreatorID,
				ReviewedAt:  now,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, audit.Event{
			EntityType: "royalty_statement",
			EntityID:   statement.ID,
			Action:     "reviewed",
			ActorID:    actor.UserID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, statement)
	return statement, nil
}

// Dispute flags a pending or reviewed statement. The reason is mandatory and
// feeds the resolution workflow and downstream alerting.
func (s *Service) Dispute(ctx context.Context, statementID uuid.UUID, actor Actor, reason string) (*models.RoyaltyStatement, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minDisputeReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("dispute reason must be at least %d characters", minDisputeReasonLength))
	}

	statement, err := s.repo.Find(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(*statement, actor); err != nil {
		return nil, err
	}
	if !statement.Status.CanDispute() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("statement is %s and cannot be disputed", statement.Status))
	}

	now := time.Now().UTC()
	statement.Status = enums.StatementStatusDisputed
	statement.DisputedAt = &now
	statement.DisputeReason = &reason

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, statement); err != nil {
			return err
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStatementDisputed,
			AggregateType: enums.AggregateRoyaltyStatement,
			AggregateID:   statement.ID,
			Actor:         s.actorRef(actor),
			Data: payloads.StatementDisputedEvent{
				StatementID: statement.ID,
				RunID:       statement.RunID,
				CreatorID:   statement.CreatorID,
				Reason:      reason,
				DisputedAt:  now,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, audit.Event{
			EntityType: "royalty_statement",
			EntityID:   statement.ID,
			Action:     "disputed",
			ActorID:    actor.UserID,
			Detail:     reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, statement)
	return statement, nil
}

// ResolveInput is the payload for closing a dispute. AdjustmentCents, when
// set and nonzero, applies a signed correction line to the statement.
type ResolveInput struct {
	AdjustmentCents *int64
	Notes           string
}

// Resolve closes a disputed statement, optionally applying an inline signed
// adjustment line and re-totaling the statement and its run.
func (s *Service) Resolve(ctx context.Context, statementID uuid.UUID, actor Actor, input ResolveInput) (*models.RoyaltyStatement, error) {
	if actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can resolve disputes")
	}

	statement, err := s.repo.Find(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if statement.Status != enums.StatementStatusDisputed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("statement is %s, only disputed statements can be resolved", statement.Status))
	}

	statement.Status = enums.StatementStatusResolved

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		if input.AdjustmentCents != nil && *input.AdjustmentCents != 0 {
			run, err := txRepo.FindRun(ctx, statement.RunID)
			if err != nil {
				return err
			}
			switch run.Status {
			case enums.RunStatusLocked, enums.RunStatusProcessing, enums.RunStatusCompleted:
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("run is %s, resolution adjustments are closed", run.Status))
			}

			amount := *input.AdjustmentCents
			notes := input.Notes
			line := &models.RoyaltyLine{
				ID:                     uuid.New(),
				StatementID:            statement.ID,
				Kind:                   enums.LineKindDisputeResolution,
				CalculatedRoyaltyCents: amount,
				DecidedBy:              &actor.UserID,
			}
			if notes != "" {
				line.Reason = &notes
			}
			if err := txRepo.CreateLine(ctx, line); err != nil {
				return err
			}
			statement.TotalEarningsCents += amount

			run.TotalRoyaltiesCents += amount
			if err := txRepo.UpdateRun(ctx, run); err != nil {
				return err
			}
		}

		if err := txRepo.Update(ctx, statement); err != nil {
			return err
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStatementResolved,
			AggregateType: enums.AggregateRoyaltyStatement,
			AggregateID:   statement.ID,
			Actor:         s.actorRef(actor),
			Data: payloads.StatementResolvedEvent{
				StatementID:          statement.ID,
				RunID:                statement.RunID,
				CreatorID:            statement.CreatorID,
				ResolvedBy:           actor.UserID,
				AdjustmentAmountCent: input.AdjustmentCents,
				Notes:                input.Notes,
			},
			Version: 1,
		})
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, audit.Event{
			EntityType: "royalty_statement",
			EntityID:   statement.ID,
			Action:     "resolved",
			ActorID:    actor.UserID,
			Detail:     input.Notes,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, statement)
	return statement, nil
}

func (s *Service) authorizeRead(statement models.RoyaltyStatement, actor Actor) error {
	if actor.Role == enums.ActorRoleCreator && (actor.CreatorID == nil || *actor.CreatorID != statement.CreatorID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "statement belongs to another creator")
	}
	return nil
}

func (s *Service) authorizeWrite(statement models.RoyaltyStatement, actor Actor) error {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleCreator:
		if actor.CreatorID != nil && *actor.CreatorID == statement.CreatorID {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "statement belongs to another creator")
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "role cannot modify statements")
	}
}

func (s *Service) actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:    actor.UserID,
		CreatorID: actor.CreatorID,
		Role:      string(actor.Role),
	}
}

// invalidate drops the cached views touched by a statement write. Cache
// failures are logged, never surfaced.
func (s *Service) invalidate(ctx context.Context, statement *models.RoyaltyStatement) {
	if s.cache == nil {
		return
	}
	err := s.cache.Del(ctx,
		s.cache.StatementCacheKey(statement.ID.String()),
		s.cache.CreatorStatementsCacheKey(statement.CreatorID.String()),
	)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "statement_id", statement.ID.String()), "statement cache invalidation failed")
	}
}

func paginate(rows []models.RoyaltyStatement, params pagination.Params) *ListResult {
	limit := pagination.NormalizeLimit(params.Limit)
	result := &ListResult{Statements: rows}
	if len(rows) > limit {
		result.Statements = rows[:limit]
		last := result.Statements[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result
}
