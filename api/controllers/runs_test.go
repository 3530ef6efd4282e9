package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/api/middleware"
	"github.com/angelmondragon/royaltyworks-backend/internal/runs"
	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
	"github.com/angelmondragon/royaltyworks-backend/pkg/pagination"
)

type stubRunsService struct {
	create    func(ctx context.Context, actorID uuid.UUID, input runs.CreateInput) (*models.RoyaltyRun, error)
	get       func(ctx context.Context, runID uuid.UUID) (*models.RoyaltyRun, error)
	list      func(ctx context.Context, params pagination.Params) (*runs.ListResult, error)
	calculate func(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error)
	lock      func(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error)
	rollback  func(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error)
}

func (s *stubRunsService) Create(ctx context.Context, actorID uuid.UUID, input runs.CreateInput) (*models.RoyaltyRun, error) {
	if s.create != nil {
		return s.create(ctx, actorID, input)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *stubRunsService) Get(ctx context.Context, runID uuid.UUID) (*models.RoyaltyRun, error) {
	if s.get != nil {
		return s.get(ctx, runID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *stubRunsService) List(ctx context.Context, params pagination.Params) (*runs.ListResult, error) {
	if s.list != nil {
		return s.list(ctx, params)
	}
	return &runs.ListResult{}, nil
}

func (s *stubRunsService) Calculate(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error) {
	if s.calculate != nil {
		return s.calculate(ctx, runID, actorID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *stubRunsService) Lock(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error) {
	if s.lock != nil {
		return s.lock(ctx, runID, actorID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *stubRunsService) Rollback(ctx context.Context, runID, actorID uuid.UUID) (*models.RoyaltyRun, error) {
	if s.rollback != nil {
		return s.rollback(ctx, runID, actorID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func adminContext(ctx context.Context, userID uuid.UUID) context.Context {
	ctx = middleware.WithUserID(ctx, userID.String())
	return middleware.WithRole(ctx, string(enums.ActorRoleAdmin))
}

func withRunParam(req *http.Request, runID uuid.UUID) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("runId", runID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestRunCreateReturns201(t *testing.T) {
	actorID := uuid.New()
	created := &models.RoyaltyRun{
		ID:          uuid.New(),
		PeriodStart: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:      enums.RunStatusDraft,
		CreatedBy:   actorID,
	}
	svc := &stubRunsService{
		create: func(ctx context.Context, gotActor uuid.UUID, input runs.CreateInput) (*models.RoyaltyRun, error) {
			if gotActor != actorID {
				t.Fatalf("unexpected actor %s", gotActor)
			}
			if input.Notes != "february close" {
				t.Fatalf("unexpected notes %q", input.Notes)
			}
			return created, nil
		},
	}

	body := `{"period_start":"2026-02-01T00:00:00Z","period_end":"2026-03-01T00:00:00Z","notes":"february close"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/royalty-runs", strings.NewReader(body))
	req = req.WithContext(adminContext(req.Context(), actorID))

	resp := httptest.NewRecorder()
	RunCreate(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data runResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != created.ID || envelope.Data.Status != enums.RunStatusDraft {
		t.Fatalf("unexpected run payload %+v", envelope.Data)
	}
}

func TestRunCreateRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/royalty-runs", strings.NewReader(`{"bogus":true}`))
	req = req.WithContext(adminContext(req.Context(), uuid.New()))

	resp := httptest.NewRecorder()
	RunCreate(&stubRunsService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestRunCreateRequiresUserContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/royalty-runs", strings.NewReader(`{}`))

	resp := httptest.NewRecorder()
	RunCreate(&stubRunsService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestRunListPassesPagination(t *testing.T) {
	svc := &stubRunsService{
		list: func(ctx context.Context, params pagination.Params) (*runs.ListResult, error) {
			if params.Limit != 5 {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			if params.Cursor != "abc" {
				t.Fatalf("unexpected cursor %q", params.Cursor)
			}
			return &runs.ListResult{
				Runs:       []models.RoyaltyRun{{ID: uuid.New(), Status: enums.RunStatusCalculated}},
				NextCursor: "next",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/royalty-runs?limit=5&cursor=abc", nil)
	resp := httptest.NewRecorder()
	RunList(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var envelope struct {
		Data runListResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Runs) != 1 || envelope.Data.NextCursor != "next" {
		t.Fatalf("unexpected list payload %+v", envelope.Data)
	}
}

func TestRunListRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/royalty-runs?limit=oops", nil)
	resp := httptest.NewRecorder()
	RunList(&stubRunsService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestRunDetailParsesID(t *testing.T) {
	runID := uuid.New()
	svc := &stubRunsService{
		get: func(ctx context.Context, gotID uuid.UUID) (*models.RoyaltyRun, error) {
			if gotID != runID {
				t.Fatalf("unexpected run id %s", gotID)
			}
			return &models.RoyaltyRun{ID: runID, Status: enums.RunStatusLocked}, nil
		},
	}

	req := withRunParam(httptest.NewRequest(http.MethodGet, "/api/v1/royalty-runs/"+runID.String(), nil), runID)
	resp := httptest.NewRecorder()
	RunDetail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestRunDetailRejectsMalformedID(t *testing.T) {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("runId", "not-a-uuid")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/royalty-runs/not-a-uuid", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	resp := httptest.NewRecorder()
	RunDetail(&stubRunsService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestRunCalculateSurfacesStateConflict(t *testing.T) {
	runID := uuid.New()
	svc := &stubRunsService{
		calculate: func(ctx context.Context, gotRun, actorID uuid.UUID) (*models.RoyaltyRun, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "run is not in draft status")
		},
	}

	req := withRunParam(httptest.NewRequest(http.MethodPost, "/api/v1/royalty-runs/"+runID.String()+"/calculate", nil), runID)
	req = req.WithContext(adminContext(req.Context(), uuid.New()))

	resp := httptest.NewRecorder()
	RunCalculate(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestRunLockAndRollbackDelegate(t *testing.T) {
	runID := uuid.New()
	actorID := uuid.New()
	locked := false
	rolledBack := false
	svc := &stubRunsService{
		lock: func(ctx context.Context, gotRun, gotActor uuid.UUID) (*models.RoyaltyRun, error) {
			locked = gotRun == runID && gotActor == actorID
			return &models.RoyaltyRun{ID: runID, Status: enums.RunStatusLocked}, nil
		},
		rollback: func(ctx context.Context, gotRun, gotActor uuid.UUID) (*models.RoyaltyRun, error) {
			rolledBack = gotRun == runID && gotActor == actorID
			return &models.RoyaltyRun{ID: runID, Status: enums.RunStatusDraft}, nil
		},
	}

	for _, handler := range []http.HandlerFunc{RunLock(svc, nil), RunRollback(svc, nil)} {
		req := withRunParam(httptest.NewRequest(http.MethodPost, "/api/v1/royalty-runs/"+runID.String()+"/lock", nil), runID)
		req = req.WithContext(adminContext(req.Context(), actorID))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
	}
	if !locked || !rolledBack {
		t.Fatal("expected both transitions to reach the service")
	}
}
