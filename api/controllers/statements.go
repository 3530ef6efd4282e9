package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/api/responses"
	"github.com/angelmondragon/royaltyworks-backend/api/validators"
	"github.com/angelmondragon/royaltyworks-backend/internal/statements"
	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
	"github.com/angelmondragon/royaltyworks-backend/pkg/logger"
	"github.com/angelmondragon/royaltyworks-backend/pkg/pagination"
)

// StatementsService is the statement surface the controllers depend on.
type StatementsService interface {
	Get(ctx context.Context, statementID uuid.UUID, actor statements.Actor) (*statements.Detail, error)
	ListByRun(ctx context.Context, runID uuid.UUID, params pagination.Params) (*statements.ListResult, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID, params pagination.Params, actor statements.Actor) (*statements.ListResult, error)
	Review(ctx context.Context, statementID uuid.UUID, actor statements.Actor) (*models.RoyaltyStatement, error)
	Dispute(ctx context.Context, statementID uuid.UUID, actor statements.Actor, reason string) (*models.RoyaltyStatement, error)
	Resolve(ctx context.Context, statementID uuid.UUID, actor statements.Actor, input statements.ResolveInput) (*models.RoyaltyStatement, error)
}

type statementResponse struct {
	ID                 uuid.UUID             `json:"id"`
	RunID              uuid.UUID             `json:"run_id"`
	CreatorID          uuid.UUID             `json:"creator_id"`
	Status             enums.StatementStatus `json:"status"`
	TotalEarningsCents int64                 `json:"total_earnings_cents"`
	ReviewedAt         *time.Time            `json:"reviewed_at,omitempty"`
	DisputedAt         *time.Time            `json:"disputed_at,omitempty"`
	DisputeReason      *string               `json:"dispute_reason,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

func statementResponseFromModel(m *models.RoyaltyStatement) statementResponse {
	return statementResponse{
		ID:                 m.ID,
		RunID:              m.RunID,
		CreatorID:          m.CreatorID,
		Status:             m.Status,
		TotalEarningsCents: m.TotalEarningsCents,
		ReviewedAt:         m.ReviewedAt,
		DisputedAt:         m.DisputedAt,
		DisputeReason:      m.DisputeReason,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

type lineResponse struct {
	ID                     uuid.UUID               `json:"id"`
	StatementID            uuid.UUID               `json:"statement_id"`
	Kind                   enums.LineKind          `json:"kind"`
	LicenseID              *uuid.UUID              `json:"license_id,omitempty"`
	IPAssetID              *uuid.UUID              `json:"ip_asset_id,omitempty"`
	RevenueCents           int64                   `json:"revenue_cents"`
	ShareBps               int64                   `json:"share_bps"`
	CalculatedRoyaltyCents int64                   `json:"calculated_royalty_cents"`
	PeriodStart            *time.Time              `json:"period_start,omitempty"`
	PeriodEnd              *time.Time              `json:"period_end,omitempty"`
	AdjustmentType         *enums.AdjustmentType   `json:"adjustment_type,omitempty"`
	AdjustmentStatus       *enums.AdjustmentStatus `json:"adjustment_status,omitempty"`
	PendingAmountCents     int64                   `json:"pending_amount_cents,omitempty"`
	OriginalLineID         *uuid.UUID              `json:"original_line_id,omitempty"`
	Reason                 *string                 `json:"reason,omitempty"`
	RequestedBy            *uuid.UUID              `json:"requested_by,omitempty"`
	DecidedBy              *uuid.UUID              `json:"decided_by,omitempty"`
	CreatedAt              time.Time               `json:"created_at"`
}

func lineResponseFromModel(m *models.RoyaltyLine) lineResponse {
	return lineResponse{
		ID:                     m.ID,
		StatementID:            m.StatementID,
		Kind:                   m.Kind,
		LicenseID:              m.LicenseID,
		IPAssetID:              m.IPAssetID,
		RevenueCents:           m.RevenueCents,
		ShareBps:               m.ShareBps,
		CalculatedRoyaltyCents: m.CalculatedRoyaltyCents,
		PeriodStart:            m.PeriodStart,
		PeriodEnd:              m.PeriodEnd,
		AdjustmentType:         m.AdjustmentType,
		AdjustmentStatus:       m.AdjustmentStatus,
		PendingAmountCents:     m.PendingAmountCents,
		OriginalLineID:         m.OriginalLineID,
		Reason:                 m.Reason,
		RequestedBy:            m.RequestedBy,
		DecidedBy:              m.DecidedBy,
		CreatedAt:              m.CreatedAt,
	}
}

type statementDetailResponse struct {
	Statement statementResponse `json:"statement"`
	Lines     []lineResponse    `json:"lines"`
}

type statementListResponse struct {
	Statements []statementResponse `json:"statements"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// StatementDetail returns a statement with its full line ledger. Creators can
// only read their own statements.
func StatementDetail(svc StatementsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "statements service unavailable"))
			return
		}

		actor, err := statementActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		statementID, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), statementID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := statementDetailResponse{
			Statement: statementResponseFromModel(&detail.Statement),
			Lines:     make([]lineResponse, 0, len(detail.Lines)),
		}
		for i := range detail.Lines {
			out.Lines = append(out.Lines, lineResponseFromModel(&detail.Lines[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// RunStatements pages a run's statements newest-first.
func RunStatements(svc StatementsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "statements service unavailable"))
			return
		}

		runID, err := parseRunID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := parsePaginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByRun(r.Context(), runID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, statementListFromResult(list))
	}
}

// CreatorStatements pages a creator's statements across runs. Creator callers
// are pinned to their own scope by the service.
func CreatorStatements(svc StatementsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "statements service unavailable"))
			return
		}

		actor, err := statementActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rawCreatorID := strings.TrimSpace(chi.URLParam(r, "creatorId"))
		creatorID, err := uuid.Parse(rawCreatorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid creator id"))
			return
		}

		params, err := parsePaginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByCreator(r.Context(), creatorID, params, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, statementListFromResult(list))
	}
}

// StatementReview acknowledges a pending statement.
func StatementReview(svc StatementsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "statements service unavailable"))
			return
		}

		actor, err := statementActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		statementID, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		statement, err := svc.Review(r.Context(), statementID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, statementResponseFromModel(statement))
	}
}

type statementDisputeRequest struct {
	Reason string `json:"reason" validate:"required,min=10"`
}

// StatementDispute opens a dispute with a substantive reason.
func StatementDispute(svc StatementsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "statements service unavailable"))
			return
		}

		actor, err := statementActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		statementID, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload statementDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		statement, err := svc.Dispute(r.Context(), statementID, actor, validators.SanitizeString(payload.Reason, 1000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, statementResponseFromModel(statement))
	}
}

type statementResolveRequest struct {
	AdjustmentCents *int64 `json:"adjustment_cents"`
	Notes           string `json:"notes"`
}

// StatementResolve closes a disputed statement, optionally with an inline
// signed correction.
func StatementResolve(svc StatementsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "statements service unavailable"))
			return
		}

		actor, err := statementActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		statementID, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload statementResolveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		statement, err := svc.Resolve(r.Context(), statementID, actor, statements.ResolveInput{
			AdjustmentCents: payload.AdjustmentCents,
			Notes:           validators.SanitizeString(payload.Notes, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, statementResponseFromModel(statement))
	}
}

func statementActor(r *http.Request) (statements.Actor, error) {
	c, err := callerFromContext(r.Context())
	if err != nil {
		return statements.Actor{}, err
	}
	return statements.Actor{UserID: c.UserID, Role: c.Role, CreatorID: c.CreatorID}, nil
}

func statementListFromResult(list *statements.ListResult) statementListResponse {
	out := statementListResponse{
		NextCursor: list.NextCursor,
		Statements: make([]statementResponse, 0, len(list.Statements)),
	}
	for i := range list.Statements {
		out.Statements = append(out.Statements, statementResponseFromModel(&list.Statements[i]))
	}
	return out
}

func parsePaginationParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func parseStatementID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "statementId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "statement id is required")
	}
	statementID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid statement id")
	}
	return statementID, nil
}
