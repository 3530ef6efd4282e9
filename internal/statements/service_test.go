package statements

import (
	"context"
	"io"
	"testing"
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
	"github.com/angelmondragon/royaltyworks-backend/pkg/pagination"
)

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubRepo struct {
	statements map[uuid.UUID]*models.RoyaltyStatement
	runs       map[uuid.UUID]*models.RoyaltyRun
	lines      []models.RoyaltyLine
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		statements: make(map[uuid.UUID]*models.RoyaltyStatement),
		runs:       make(map[uuid.UUID]*models.RoyaltyRun),
	}
}

func (r *stubRepo) WithTx(tx *gorm.DB) Repository { return r }

// Find methods return copies so uncommitted mutations stay out of the store,
// the way rows fetched through gorm do.
func (r *stubRepo) Find(ctx context.Context, id uuid.UUID) (*models.RoyaltyStatement, error) {
	statement, ok := r.statements[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "royalty statement not found")
	}
	copied := *statement
	return &copied, nil
}

func (r *stubRepo) Update(ctx context.Context, statement *models.RoyaltyStatement) error {
	r.statements[statement.ID] = statement
	return nil
}

func (r *stubRepo) ListByRun(ctx context.Context, runID uuid.UUID, params pagination.Params) ([]models.RoyaltyStatement, error) {
	var out []models.RoyaltyStatement
	for _, st := range r.statements {
		if st.RunID == runID {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (r *stubRepo) ListByCreator(ctx context.Context, creatorID uuid.UUID, params pagination.Params) ([]models.RoyaltyStatement, error) {
	var out []models.RoyaltyStatement
	for _, st := range r.statements {
		if st.CreatorID == creatorID {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (r *stubRepo) ListDisputedBefore(ctx context.Context, cutoff time.Time) ([]models.RoyaltyStatement, error) {
	var out []models.RoyaltyStatement
	for _, st := range r.statements {
		if st.Status == enums.StatementStatusDisputed && st.DisputedAt != nil && st.DisputedAt.Before(cutoff) {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (r *stubRepo) ListCreatedSince(ctx context.Context, since time.Time) ([]models.RoyaltyStatement, error) {
	var out []models.RoyaltyStatement
	for _, st := range r.statements {
		if !st.CreatedAt.Before(since) {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (r *stubRepo) ListLines(ctx context.Context, statementID uuid.UUID) ([]models.RoyaltyLine, error) {
	var out []models.RoyaltyLine
	for _, line := range r.lines {
		if line.StatementID == statementID {
			out = append(out, line)
		}
	}
	return out, nil
}

func (r *stubRepo) CreateLine(ctx context.Context, line *models.RoyaltyLine) error {
	r.lines = append(r.lines, *line)
	return nil
}

func (r *stubRepo) FindRun(ctx context.Context, id uuid.UUID) (*models.RoyaltyRun, error) {
	run, ok := r.runs[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "royalty run not found")
	}
	copied := *run
	return &copied, nil
}

func (r *stubRepo) UpdateRun(ctx context.Context, run *models.RoyaltyRun) error {
	r.runs[run.ID] = run
	return nil
}

type stubEmitter struct {
	events []outbox.DomainEvent
}

func (s *stubEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubAudit struct {
	events []audit.Event
}

func (s *stubAudit) Log(ctx context.Context, tx *gorm.DB, event audit.Event) error {
	s.events = append(s.events, event)
	return nil
}

type stubCache struct {
	values  map[string]string
	deleted []string
}

func newStubCache() *stubCache {
	return &stubCache{values: make(map[string]string)}
}

func (c *stubCache) Get(ctx context.Context, key string) (string, error) {
	return c.values[key], nil
}

func (c *stubCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.values[key] = value.(string)
	return nil
}

func (c *stubCache) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.values, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}

func (c *stubCache) StatementCacheKey(statementID string) string {
	return "cache:statement:" + statementID
}

func (c *stubCache) CreatorStatementsCacheKey(creatorID string) string {
	return "cache:creator_statements:" + creatorID
}

type serviceFixture struct {
	svc     *Service
	repo    *stubRepo
	cache   *stubCache
	emitter *stubEmitter
	audits  *stubAudit
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	repo := newStubRepo()
	cache := newStubCache()
	emitter := &stubEmitter{}
	audits := &stubAudit{}
	svc, err := NewService(Params{
		DB:     &stubTxRunner{},
		Repo:   repo,
		Cache:  cache,
		Outbox: emitter,
		Audit:  audits,
		Config: config.CalculationConfig{StatementCacheTTL: time.Minute},
		Logger: logger.New(logger.Options{ServiceName: "statements-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &serviceFixture{svc: svc, repo: repo, cache: cache, emitter: emitter, audits: audits}
}

func seedStatement(fix *serviceFixture, status enums.StatementStatus, totalCents int64) (*models.RoyaltyStatement, *models.RoyaltyRun) {
	run := &models.RoyaltyRun{
		ID:                  uuid.New(),
		Status:              enums.RunStatusCalculated,
		TotalRoyaltiesCents: totalCents,
	}
	fix.repo.runs[run.ID] = run
	statement := &models.RoyaltyStatement{
		ID:                 uuid.New(),
		RunID:              run.ID,
		CreatorID:          uuid.New(),
		Status:             status,
		TotalEarningsCents: totalCents,
	}
	fix.repo.statements[statement.ID] = statement
	return statement, run
}

func ownerActor(statement *models.RoyaltyStatement) Actor {
	return Actor{UserID: uuid.New(), Role: enums.ActorRoleCreator, CreatorID: &statement.CreatorID}
}

func adminActor() Actor {
	return Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
}

func expectCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestReviewTransitionsPendingStatement(t *testing.T) {
	fix := newServiceFixture(t)
	statement, _ := seedStatement(fix, enums.StatementStatusPending, 5000)

	got, err := fix.svc.Review(context.Background(), statement.ID, ownerActor(statement))
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if got.Status != enums.StatementStatusReviewed || got.ReviewedAt == nil {
		t.Fatalf("expected reviewed statement, got %s", got.Status)
	}
	if len(fix.emitter.events) != 1 || fix.emitter.events[0].EventType != enums.EventStatementReviewed {
		t.Fatalf("unexpected events: %+v", fix.emitter.events)
	}
}

func TestReviewRejectsForeignCreator(t *testing.T) {
	fix := newServiceFixture(t)
	statement, _ := seedStatement(fix, enums.StatementStatusPending, 5000)

	other := uuid.New()
	actor := Actor{UserID: uuid.New(), Role: enums.ActorRoleCreator, CreatorID: &other}
	_, err := fix.svc.Review(context.Background(), statement.ID, actor)
	expectCode(t, err, pkgerrors.CodeForbidden)
}

func TestReviewRequiresPendingStatus(t *testing.T) {
	fix := newServiceFixture(t)
	statement, _ := seedStatement(fix, enums.StatementStatusReviewed, 5000)

	_, err := fix.svc.Review(context.Background(), statement.ID, ownerActor(statement))
	expectCode(t, err, pkgerrors.CodeStateConflict)
}

func TestDisputeRequiresReason(t *testing.T) {
	fix := newServiceFixture(t)
	statement, _ := seedStatement(fix, enums.StatementStatusPending, 5000)

	_, err := fix.svc.Dispute(context.Background(), statement.ID, ownerActor(statement), "too low")
	expectCode(t, err, pkgerrors.CodeValidation)
}

func TestDisputeTransitionsFromPendingAndReviewed(t *testing.T) {
	for _, status := range []enums.StatementStatus{enums.StatementStatusPending, enums.StatementStatusReviewed} {
		fix := newServiceFixture(t)
		statement, _ := seedStatement(fix, status, 5000)

		got, err := fix.svc.Dispute(context.Background(), statement.ID, ownerActor(statement), "missing usage revenue for April")
		if err != nil {
			t.Fatalf("dispute from %s: %v", status, err)
		}
		if got.Status != enums.StatementStatusDisputed || got.DisputedAt == nil || got.DisputeReason == nil {
			t.Fatalf("expected disputed statement, got %+v", got)
		}
	}
}

func TestDisputeRejectsResolvedStatement(t *testing.T) {
	fix := newServiceFixture(t)
	statement, _ := seedStatement(fix, enums.StatementStatusResolved, 5000)

	_, err := fix.svc.Dispute(context.Background(), statement.ID, ownerActor(statement), "missing usage revenue for April")
	expectCode(t, err, pkgerrors.CodeStateConflict)
}

func TestResolveAppliesInlineAdjustment(t *testing.T) {
	fix := newServiceFixture(t)
	statement, run := seedStatement(fix, enums.StatementStatusDisputed, 5000)

	amount := int64(1500)
	got, err := fix.svc.Resolve(context.Background(), statement.ID, adminActor(), ResolveInput{
		AdjustmentCents: &amount,
		Notes:           "credited missing usage revenue",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Status != enums.StatementStatusResolved {
		t.Fatalf("expected resolved, got %s", got.Status)
	}
	if got.TotalEarningsCents != 6500 {
		t.Fatalf("expected statement total 6500, got %d", got.TotalEarningsCents)
	}
	if fix.repo.runs[run.ID].TotalRoyaltiesCents != 6500 {
		t.Fatalf("expected run total 6500, got %d", fix.repo.runs[run.ID].TotalRoyaltiesCents)
	}
	if len(fix.repo.lines) != 1 || fix.repo.lines[0].Kind != enums.LineKindDisputeResolution {
		t.Fatalf("expected one dispute resolution line, got %+v", fix.repo.lines)
	}
	if fix.repo.lines[0].CalculatedRoyaltyCents != 1500 {
		t.Fatalf("unexpected line amount %d", fix.repo.lines[0].CalculatedRoyaltyCents)
	}
}

func TestResolveWithoutAdjustmentKeepsTotals(t *testing.T) {
	fix := newServiceFixture(t)
	statement, run := seedStatement(fix, enums.StatementStatusDisputed, 5000)

	got, err := fix.svc.Resolve(context.Background(), statement.ID, adminActor(), ResolveInput{Notes: "figures confirmed"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.TotalEarningsCents != 5000 || fix.repo.runs[run.ID].TotalRoyaltiesCents != 5000 {
		t.Fatal("expected totals unchanged")
	}
	if len(fix.repo.lines) != 0 {
		t.Fatalf("expected no lines, got %d", len(fix.repo.lines))
	}
}

func TestResolveRejectsAdjustmentOnLockedRun(t *testing.T) {
	for _, status := range []enums.RunStatus{enums.RunStatusLocked, enums.RunStatusProcessing, enums.RunStatusCompleted} {
		fix := newServiceFixture(t)
		statement, run := seedStatement(fix, enums.StatementStatusDisputed, 5000)
		run.Status = status

		amount := int64(7500)
		_, err := fix.svc.Resolve(context.Background(), statement.ID, adminActor(), ResolveInput{
			AdjustmentCents: &amount,
			Notes:           "credited missing usage revenue",
		})
		expectCode(t, err, pkgerrors.CodeStateConflict)

		if fix.repo.runs[run.ID].TotalRoyaltiesCents != 5000 {
			t.Fatalf("run %s total mutated to %d", status, fix.repo.runs[run.ID].TotalRoyaltiesCents)
		}
		if fix.repo.statements[statement.ID].Status != enums.StatementStatusDisputed {
			t.Fatalf("statement resolved under %s run", status)
		}
		if len(fix.repo.lines) != 0 {
			t.Fatalf("expected no lines under %s run, got %d", status, len(fix.repo.lines))
		}
	}
}

func TestResolveWithoutAdjustmentAllowedOnLockedRun(t *testing.T) {
	fix := newServiceFixture(t)
	statement, run := seedStatement(fix, enums.StatementStatusDisputed, 5000)
	run.Status = enums.RunStatusLocked

	got, err := fix.svc.Resolve(context.Background(), statement.ID, adminActor(), ResolveInput{Notes: "figures confirmed"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Status != enums.StatementStatusResolved {
		t.Fatalf("expected resolved, got %s", got.Status)
	}
	if fix.repo.runs[run.ID].TotalRoyaltiesCents != 5000 {
		t.Fatal("expected run total unchanged")
	}
}

func TestResolveRequiresAdmin(t *testing.T) {
	fix := newServiceFixture(t)
	statement, _ := seedStatement(fix, enums.StatementStatusDisputed, 5000)

	_, err := fix.svc.Resolve(context.Background(), statement.ID, ownerActor(statement), ResolveInput{})
	expectCode(t, err, pkgerrors.CodeForbidden)
}

func TestResolveRequiresDisputedStatus(t *testing.T) {
	fix := newServiceFixture(t)
	statement, _ := seedStatement(fix, enums.StatementStatusPending, 5000)

	_, err := fix.svc.Resolve(context.Background(), statement.ID, adminActor(), ResolveInput{})
	expectCode(t, err, pkgerrors.CodeStateConflict)
}

func TestGetCachesAndScopesByCreator(t *testing.T) {
	fix := newServiceFixture(t)
	statement, _ := seedStatement(fix, enums.StatementStatusPending, 5000)
	fix.repo.lines = []models.RoyaltyLine{
		{ID: uuid.New(), StatementID: statement.ID, Kind: enums.LineKindLicense, CalculatedRoyaltyCents: 5000},
	}

	detail, err := fix.svc.Get(context.Background(), statement.ID, ownerActor(statement))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(detail.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(detail.Lines))
	}
	if _, ok := fix.cache.values[fix.cache.StatementCacheKey(statement.ID.String())]; !ok {
		t.Fatal("expected cached statement detail")
	}

	other := uuid.New()
	foreign := Actor{UserID: uuid.New(), Role: enums.ActorRoleCreator, CreatorID: &other}
	_, err = fix.svc.Get(context.Background(), statement.ID, foreign)
	expectCode(t, err, pkgerrors.CodeForbidden)
}

func TestWritesInvalidateCache(t *testing.T) {
	fix := newServiceFixture(t)
	statement, _ := seedStatement(fix, enums.StatementStatusPending, 5000)
	key := fix.cache.StatementCacheKey(statement.ID.String())
	fix.cache.values[key] = "stale"

	if _, err := fix.svc.Review(context.Background(), statement.ID, ownerActor(statement)); err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, ok := fix.cache.values[key]; ok {
		t.Fatal("expected cache entry invalidated")
	}
}

func TestListByCreatorScopesCreators(t *testing.T) {
	fix := newServiceFixture(t)
	statement, _ := seedStatement(fix, enums.StatementStatusPending, 5000)

	result, err := fix.svc.ListByCreator(context.Background(), statement.CreatorID, pagination.Params{}, ownerActor(statement))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(result.Statements))
	}

	other := uuid.New()
	foreign := Actor{UserID: uuid.New(), Role: enums.ActorRoleCreator, CreatorID: &other}
	_, err = fix.svc.ListByCreator(context.Background(), statement.CreatorID, pagination.Params{}, foreign)
	expectCode(t, err, pkgerrors.CodeForbidden)
}
