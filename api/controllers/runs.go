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
	"github.com/angelmondragon/royaltyworks-backend/internal/runs"
	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
	"github.com/angelmondragon/royaltyworks-backend/pkg/logger"
	"github.com/angelmondragon/royaltyworks-backend/pkg/pagination"
)

// RunsService is the run lifecycle surface the controllers depend on.
type RunsService interface {
	Create(ctx context.Context, actorID uuid.UUID, input runs.CreateInput) (*models.RoyaltyRun, error)
	Get(ctx context.Context, runID uuid.UUID) (*models.RoyaltyRun, error)
	List(ctx context.Context, params pagination.Params) (*runs.ListResult, error)
	Calculate(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error)
	Lock(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error)
	Rollback(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error)
}

type runCreateRequest struct {
	PeriodStart time.Time `json:"period_start" validate:"required"`
	PeriodEnd   time.Time `json:"period_end" validate:"required"`
	Notes       string    `json:"notes"`
}

type runResponse struct {
	ID                  uuid.UUID       `json:"id"`
	PeriodStart         time.Time       `json:"period_start"`
	PeriodEnd           time.Time       `json:"period_end"`
	Status              enums.RunStatus `json:"status"`
	TotalRevenueCents   int64           `json:"total_revenue_cents"`
	TotalRoyaltiesCents int64           `json:"total_royalties_cents"`
	Notes               string          `json:"notes,omitempty"`
	CreatedBy           uuid.UUID       `json:"created_by"`
	LockedAt            *time.Time      `json:"locked_at,omitempty"`
	ProcessedAt         *time.Time      `json:"processed_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func runResponseFromModel(m *models.RoyaltyRun) runResponse {
	return runResponse{
		ID:                  m.ID,
		PeriodStart:         m.PeriodStart,
		PeriodEnd:           m.PeriodEnd,
		Status:              m.Status,
		TotalRevenueCents:   m.TotalRevenueCents,
		TotalRoyaltiesCents: m.TotalRoyaltiesCents,
		Notes:               m.Notes,
		CreatedBy:           m.CreatedBy,
		LockedAt:            m.LockedAt,
		ProcessedAt:         m.ProcessedAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

type runListResponse struct {
	Runs       []runResponse `json:"runs"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// RunCreate opens a new draft run for a validated accounting period.
func RunCreate(svc RunsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}

		actor, err := callerFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload runCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		run, err := svc.Create(r.Context(), actor.UserID, runs.CreateInput{
			PeriodStart: payload.PeriodStart,
			PeriodEnd:   payload.PeriodEnd,
			Notes:       validators.SanitizeString(payload.Notes, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, runResponseFromModel(run))
	}
}

// RunList pages runs newest-first.
func RunList(svc RunsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := runListResponse{NextCursor: list.NextCursor, Runs: make([]runResponse, 0, len(list.Runs))}
		for i := range list.Runs {
			out.Runs = append(out.Runs, runResponseFromModel(&list.Runs[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// RunDetail returns a single run by id.
func RunDetail(svc RunsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}

		runID, err := parseRunID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		run, err := svc.Get(r.Context(), runID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, runResponseFromModel(run))
	}
}

// RunCalculate executes the calculation pipeline for a draft run.
func RunCalculate(svc RunsService, logg *logger.Logger) http.HandlerFunc {
	return runTransition(svc, logg, func(r *http.Request, svc RunsService, runID, actorID uuid.UUID) (*models.RoyaltyRun, error) {
		return svc.Calculate(r.Context(), runID, actorID)
	})
}

// RunLock freezes a calculated run for payout processing.
func RunLock(svc RunsService, logg *logger.Logger) http.HandlerFunc {
	return runTransition(svc, logg, func(r *http.Request, svc RunsService, runID, actorID uuid.UUID) (*models.RoyaltyRun, error) {
		return svc.Lock(r.Context(), runID, actorID)
	})
}

// RunRollback deletes a run's statements and returns it to draft.
func RunRollback(svc RunsService, logg *logger.Logger) http.HandlerFunc {
	return runTransition(svc, logg, func(r *http.Request, svc RunsService, runID, actorID uuid.UUID) (*models.RoyaltyRun, error) {
		return svc.Rollback(r.Context(), runID, actorID)
	})
}

func runTransition(svc RunsService, logg *logger.Logger, op func(r *http.Request, svc RunsService, runID, actorID uuid.UUID) (*models.RoyaltyRun, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs service unavailable"))
			return
		}

		actor, err := callerFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		runID, err := parseRunID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		run, err := op(r, svc, runID, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, runResponseFromModel(run))
	}
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "runId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "run id is required")
	}
	runID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid run id")
	}
	return runID, nil
}
