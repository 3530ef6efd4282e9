package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/api/responses"
	"github.com/angelmondragon/royaltyworks-backend/api/validators"
	"github.com/angelmondragon/royaltyworks-backend/internal/adjustments"
	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
	"github.com/angelmondragon/royaltyworks-backend/pkg/logger"
)

// AdjustmentsService is the adjustment workflow surface the controllers
// depend on.
type AdjustmentsService interface {
	Request(ctx context.Context, actor adjustments.Actor, input adjustments.RequestInput) (*models.RoyaltyLine, error)
	Approve(ctx context.Context, lineID uuid.UUID, actor adjustments.Actor) (*models.RoyaltyLine, error)
	Reject(ctx context.Context, lineID uuid.UUID, actor adjustments.Actor, reason string) (*models.RoyaltyLine, error)
	Reverse(ctx context.Context, lineID uuid.UUID, actor adjustments.Actor, reason string) (*models.RoyaltyLine, error)
	ListByStatement(ctx context.Context, statementID uuid.UUID) ([]models.RoyaltyLine, error)
}

type adjustmentRequestBody struct {
	StatementID string `json:"statement_id" validate:"required"`
	AmountCents int64  `json:"amount_cents" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Reason      string `json:"reason" validate:"required"`
}

func (b adjustmentRequestBody) toInput() (adjustments.RequestInput, error) {
	statementID, err := uuid.Parse(strings.TrimSpace(b.StatementID))
	if err != nil {
		return adjustments.RequestInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid statement_id")
	}
	adjustmentType, err := enums.ParseAdjustmentType(strings.TrimSpace(b.Type))
	if err != nil {
		return adjustments.RequestInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid adjustment type")
	}
	return adjustments.RequestInput{
		StatementID: statementID,
		AmountCents: b.AmountCents,
		Type:        adjustmentType,
		Reason:      validators.SanitizeString(b.Reason, 1000),
	}, nil
}

// AdjustmentRequest files a manual correction against a statement.
func AdjustmentRequest(svc AdjustmentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "adjustments service unavailable"))
			return
		}

		actor, err := adjustmentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustmentRequestBody
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := svc.Request(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, lineResponseFromModel(line))
	}
}

// AdjustmentApprove applies a pending adjustment to its statement.
func AdjustmentApprove(svc AdjustmentsService, logg *logger.Logger) http.HandlerFunc {
	return adjustmentDecision(svc, logg, func(r *http.Request, svc AdjustmentsService, lineID uuid.UUID, actor adjustments.Actor, _ string) (*models.RoyaltyLine, error) {
		return svc.Approve(r.Context(), lineID, actor)
	})
}

// AdjustmentReject declines a pending adjustment without touching totals.
func AdjustmentReject(svc AdjustmentsService, logg *logger.Logger) http.HandlerFunc {
	return adjustmentDecision(svc, logg, func(r *http.Request, svc AdjustmentsService, lineID uuid.UUID, actor adjustments.Actor, reason string) (*models.RoyaltyLine, error) {
		return svc.Reject(r.Context(), lineID, actor, reason)
	})
}

// AdjustmentReverse negates an applied adjustment with a compensating line.
func AdjustmentReverse(svc AdjustmentsService, logg *logger.Logger) http.HandlerFunc {
	return adjustmentDecision(svc, logg, func(r *http.Request, svc AdjustmentsService, lineID uuid.UUID, actor adjustments.Actor, reason string) (*models.RoyaltyLine, error) {
		return svc.Reverse(r.Context(), lineID, actor, reason)
	})
}

type adjustmentDecisionBody struct {
	Reason string `json:"reason"`
}

func adjustmentDecision(svc AdjustmentsService, logg *logger.Logger, op func(r *http.Request, svc AdjustmentsService, lineID uuid.UUID, actor adjustments.Actor, reason string) (*models.RoyaltyLine, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "adjustments service unavailable"))
			return
		}

		actor, err := adjustmentActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rawLineID := strings.TrimSpace(chi.URLParam(r, "adjustmentId"))
		lineID, err := uuid.Parse(rawLineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid adjustment id"))
			return
		}

		var payload adjustmentDecisionBody
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		line, err := op(r, svc, lineID, actor, validators.SanitizeString(payload.Reason, 1000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, lineResponseFromModel(line))
	}
}

// StatementAdjustments lists a statement's adjustment lines oldest-first.
func StatementAdjustments(svc AdjustmentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "adjustments service unavailable"))
			return
		}

		statementID, err := parseStatementID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines, err := svc.ListByStatement(r.Context(), statementID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]lineResponse, 0, len(lines))
		for i := range lines {
			out = append(out, lineResponseFromModel(&lines[i]))
		}
		responses.WriteSuccess(w, map[string]any{"adjustments": out})
	}
}

func adjustmentActor(r *http.Request) (adjustments.Actor, error) {
	c, err := callerFromContext(r.Context())
	if err != nil {
		return adjustments.Actor{}, err
	}
	return adjustments.Actor{UserID: c.UserID, Role: c.Role, CreatorID: c.CreatorID}, nil
}
