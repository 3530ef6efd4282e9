package adjustments

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
)

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubRepo struct {
	lines      map[uuid.UUID]*models.RoyaltyLine
	statements map[uuid.UUID]*models.RoyaltyStatement
	runs       map[uuid.UUID]*models.RoyaltyRun
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		lines:      make(map[uuid.UUID]*models.RoyaltyLine),
		statements: make(map[uuid.UUID]*models.RoyaltyStatement),
		runs:       make(map[uuid.UUID]*models.RoyaltyRun),
	}
}

func (r *stubRepo) WithTx(tx *gorm.DB) Repository { return r }

// Find methods return copies so callers holding an earlier read can go stale,
// the way rows fetched through gorm do.
func (r *stubRepo) FindLine(ctx context.Context, id uuid.UUID) (*models.RoyaltyLine, error) {
	line, ok := r.lines[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "adjustment not found")
	}
	copied := *line
	return &copied, nil
}

func (r *stubRepo) CreateLine(ctx context.Context, line *models.RoyaltyLine) error {
	r.lines[line.ID] = line
	return nil
}

func (r *stubRepo) UpdateLine(ctx context.Context, line *models.RoyaltyLine) error {
	r.lines[line.ID] = line
	return nil
}

func (r *stubRepo) ListAdjustmentsByStatement(ctx context.Context, statementID uuid.UUID) ([]models.RoyaltyLine, error) {
	var out []models.RoyaltyLine
	for _, line := range r.lines {
		if line.StatementID == statementID && line.AdjustmentStatus != nil {
			out = append(out, *line)
		}
	}
	return out, nil
}

func (r *stubRepo) FindStatement(ctx context.Context, id uuid.UUID) (*models.RoyaltyStatement, error) {
	statement, ok := r.statements[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "royalty statement not found")
	}
	copied := *statement
	return &copied, nil
}

func (r *stubRepo) UpdateStatement(ctx context.Context, statement *models.RoyaltyStatement) error {
	r.statements[statement.ID] = statement
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

func (s *stubEmitter) eventTypes() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

type stubAudit struct {
	events []audit.Event
}

func (s *stubAudit) Log(ctx context.Context, tx *gorm.DB, event audit.Event) error {
	s.events = append(s.events, event)
	return nil
}

type stubLocker struct {
	held    map[string]bool
	deleted []string
	// onAcquire fires once after the next successful SetNX, standing in for
	// work another process finished while this caller waited on the lock.
	onAcquire func()
}

func newStubLocker() *stubLocker {
	return &stubLocker{held: make(map[string]bool)}
}

func (l *stubLocker) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	if l.onAcquire != nil {
		hook := l.onAcquire
		l.onAcquire = nil
		hook()
	}
	return true, nil
}

func (l *stubLocker) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(l.held, key)
		l.deleted = append(l.deleted, key)
	}
	return nil
}

func (l *stubLocker) AdjustmentLockKey(statementID string) string {
	return "lock:adjustment:" + statementID
}

func (l *stubLocker) StatementCacheKey(statementID string) string {
	return "cache:statement:" + statementID
}

func (l *stubLocker) CreatorStatementsCacheKey(creatorID string) string {
	return "cache:creator_statements:" + creatorID
}

type serviceFixture struct {
	svc     *Service
	repo    *stubRepo
	locker  *stubLocker
	emitter *stubEmitter
	audits  *stubAudit
}

func newServiceFixture(t *testing.T, ceilingCents int64) *serviceFixture {
	t.Helper()
	repo := newStubRepo()
	locker := newStubLocker()
	emitter := &stubEmitter{}
	audits := &stubAudit{}
	svc, err := NewService(Params{
		DB:     &stubTxRunner{},
		Repo:   repo,
		Locker: locker,
		Outbox: emitter,
		Audit:  audits,
		Config: config.CalculationConfig{AdjustmentApprovalCeiling: ceilingCents},
		Logger: logger.New(logger.Options{ServiceName: "adjustments-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &serviceFixture{svc: svc, repo: repo, locker: locker, emitter: emitter, audits: audits}
}

func seedStatement(fix *serviceFixture, runStatus enums.RunStatus, totalCents int64) *models.RoyaltyStatement {
	run := &models.RoyaltyRun{
		ID:                  uuid.New(),
		Status:              runStatus,
		TotalRoyaltiesCents: totalCents,
	}
	fix.repo.runs[run.ID] = run
	statement := &models.RoyaltyStatement{
		ID:                 uuid.New(),
		RunID:              run.ID,
		CreatorID:          uuid.New(),
		Status:             enums.StatementStatusPending,
		TotalEarningsCents: totalCents,
	}
	fix.repo.statements[statement.ID] = statement
	return statement
}

func financeActor() Actor {
	return Actor{UserID: uuid.New(), Role: enums.ActorRoleFinance}
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

func TestRequestAutoAppliesBelowCeiling(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)

	line, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 5000,
		Type:        enums.AdjustmentTypeBonus,
		Reason:      "performance bonus",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if line.AdjustmentStatus == nil || *line.AdjustmentStatus != enums.AdjustmentStatusApplied {
		t.Fatalf("expected applied adjustment, got %+v", line.AdjustmentStatus)
	}
	if line.CalculatedRoyaltyCents != 5000 || line.PendingAmountCents != 0 {
		t.Fatalf("unexpected amounts: applied=%d pending=%d", line.CalculatedRoyaltyCents, line.PendingAmountCents)
	}
	if fix.repo.statements[statement.ID].TotalEarningsCents != 55000 {
		t.Fatalf("expected statement total 55000, got %d", fix.repo.statements[statement.ID].TotalEarningsCents)
	}
	if fix.repo.runs[statement.RunID].TotalRoyaltiesCents != 55000 {
		t.Fatalf("expected run total 55000, got %d", fix.repo.runs[statement.RunID].TotalRoyaltiesCents)
	}

	types := fix.emitter.eventTypes()
	if len(types) != 2 || types[0] != enums.EventAdjustmentRequested || types[1] != enums.EventAdjustmentApplied {
		t.Fatalf("unexpected events: %v", types)
	}
	if len(fix.locker.held) != 0 {
		t.Fatal("expected statement lock released")
	}
}

func TestRequestAboveCeilingWaitsForApproval(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)

	line, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 15000,
		Type:        enums.AdjustmentTypeCredit,
		Reason:      "underpaid usage revenue",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if *line.AdjustmentStatus != enums.AdjustmentStatusPendingApproval {
		t.Fatalf("expected pending approval, got %s", *line.AdjustmentStatus)
	}
	if line.CalculatedRoyaltyCents != 0 || line.PendingAmountCents != 15000 {
		t.Fatalf("unexpected amounts: applied=%d pending=%d", line.CalculatedRoyaltyCents, line.PendingAmountCents)
	}
	if fix.repo.statements[statement.ID].TotalEarningsCents != 50000 {
		t.Fatal("expected statement total unchanged until approval")
	}

	approved, err := fix.svc.Approve(context.Background(), line.ID, financeActor())
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if *approved.AdjustmentStatus != enums.AdjustmentStatusApproved {
		t.Fatalf("expected approved, got %s", *approved.AdjustmentStatus)
	}
	if approved.CalculatedRoyaltyCents != 15000 || approved.PendingAmountCents != 0 {
		t.Fatalf("unexpected amounts after approval: %+v", approved)
	}
	if fix.repo.statements[statement.ID].TotalEarningsCents != 65000 {
		t.Fatalf("expected statement total 65000, got %d", fix.repo.statements[statement.ID].TotalEarningsCents)
	}
	if fix.repo.runs[statement.RunID].TotalRoyaltiesCents != 65000 {
		t.Fatalf("expected run total 65000, got %d", fix.repo.runs[statement.RunID].TotalRoyaltiesCents)
	}
}

func TestRequestRejectsLockedRun(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusLocked, 50000)

	_, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 500,
		Type:        enums.AdjustmentTypeCredit,
		Reason:      "late fee credit",
	})
	expectCode(t, err, pkgerrors.CodeStateConflict)
}

func TestRequestFailsWhenStatementLockHeld(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)
	fix.locker.held[fix.locker.AdjustmentLockKey(statement.ID.String())] = true

	_, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 500,
		Type:        enums.AdjustmentTypeCredit,
		Reason:      "late fee credit",
	})
	expectCode(t, err, pkgerrors.CodeConflict)
}

func TestRequestForbidsCreators(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)

	creatorID := uuid.New()
	actor := Actor{UserID: uuid.New(), Role: enums.ActorRoleCreator, CreatorID: &creatorID}
	_, err := fix.svc.Request(context.Background(), actor, RequestInput{
		StatementID: statement.ID,
		AmountCents: 500,
		Type:        enums.AdjustmentTypeCredit,
		Reason:      "self credit",
	})
	expectCode(t, err, pkgerrors.CodeForbidden)
}

func TestRejectLeavesTotalsUntouched(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)

	line, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 20000,
		Type:        enums.AdjustmentTypeDebit,
		Reason:      "chargeback investigation",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	rejected, err := fix.svc.Reject(context.Background(), line.ID, financeActor(), "not substantiated")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if *rejected.AdjustmentStatus != enums.AdjustmentStatusRejected {
		t.Fatalf("expected rejected, got %s", *rejected.AdjustmentStatus)
	}
	if fix.repo.statements[statement.ID].TotalEarningsCents != 50000 {
		t.Fatal("expected statement total unchanged")
	}

	_, err = fix.svc.Approve(context.Background(), line.ID, financeActor())
	expectCode(t, err, pkgerrors.CodeStateConflict)
}

func TestReverseNegatesAppliedAdjustment(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)

	line, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 5000,
		Type:        enums.AdjustmentTypeBonus,
		Reason:      "performance bonus",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	reversal, err := fix.svc.Reverse(context.Background(), line.ID, financeActor(), "bonus entered twice")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if reversal.Kind != enums.LineKindAdjustmentReversal {
		t.Fatalf("expected reversal line, got %s", reversal.Kind)
	}
	if reversal.CalculatedRoyaltyCents != -5000 {
		t.Fatalf("expected -5000 cents, got %d", reversal.CalculatedRoyaltyCents)
	}
	if reversal.OriginalLineID == nil || *reversal.OriginalLineID != line.ID {
		t.Fatal("reversal missing original line reference")
	}
	if *fix.repo.lines[line.ID].AdjustmentStatus != enums.AdjustmentStatusReversed {
		t.Fatal("expected original marked reversed")
	}
	if fix.repo.lines[line.ID].CalculatedRoyaltyCents != 5000 {
		t.Fatal("original line amount must never be mutated")
	}
	if fix.repo.statements[statement.ID].TotalEarningsCents != 50000 {
		t.Fatalf("expected statement total back to 50000, got %d", fix.repo.statements[statement.ID].TotalEarningsCents)
	}
}

func TestReverseTwiceFails(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)

	line, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 5000,
		Type:        enums.AdjustmentTypeBonus,
		Reason:      "performance bonus",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := fix.svc.Reverse(context.Background(), line.ID, financeActor(), "entered twice"); err != nil {
		t.Fatalf("first reverse: %v", err)
	}

	_, err = fix.svc.Reverse(context.Background(), line.ID, financeActor(), "again")
	expectCode(t, err, pkgerrors.CodeStateConflict)
}

func TestReverseUnapprovedFails(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)

	line, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 20000,
		Type:        enums.AdjustmentTypeCredit,
		Reason:      "underpaid usage revenue",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	_, err = fix.svc.Reverse(context.Background(), line.ID, financeActor(), "wrong")
	expectCode(t, err, pkgerrors.CodeStateConflict)
}

func TestApproveAfterCompetingApprovalFails(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)

	line, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 15000,
		Type:        enums.AdjustmentTypeCredit,
		Reason:      "underpaid usage revenue",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// A second approver finishes between this caller's read of the line and
	// its acquisition of the statement lock.
	fix.locker.onAcquire = func() {
		approved := enums.AdjustmentStatusApproved
		stored := fix.repo.lines[line.ID]
		stored.AdjustmentStatus = &approved
		stored.CalculatedRoyaltyCents = 15000
		stored.PendingAmountCents = 0
		fix.repo.statements[statement.ID].TotalEarningsCents += 15000
		fix.repo.runs[statement.RunID].TotalRoyaltiesCents += 15000
	}

	_, err = fix.svc.Approve(context.Background(), line.ID, financeActor())
	expectCode(t, err, pkgerrors.CodeStateConflict)

	if got := fix.repo.statements[statement.ID].TotalEarningsCents; got != 65000 {
		t.Fatalf("adjustment applied twice: statement total %d, want 65000", got)
	}
	if got := fix.repo.runs[statement.RunID].TotalRoyaltiesCents; got != 65000 {
		t.Fatalf("adjustment applied twice: run total %d, want 65000", got)
	}
}

func TestReverseAfterCompetingReversalFails(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)

	line, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 5000,
		Type:        enums.AdjustmentTypeBonus,
		Reason:      "performance bonus",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	fix.locker.onAcquire = func() {
		reversed := enums.AdjustmentStatusReversed
		fix.repo.lines[line.ID].AdjustmentStatus = &reversed
		fix.repo.statements[statement.ID].TotalEarningsCents -= 5000
		fix.repo.runs[statement.RunID].TotalRoyaltiesCents -= 5000
	}

	_, err = fix.svc.Reverse(context.Background(), line.ID, financeActor(), "entered twice")
	expectCode(t, err, pkgerrors.CodeStateConflict)

	if got := fix.repo.statements[statement.ID].TotalEarningsCents; got != 50000 {
		t.Fatalf("reversal applied twice: statement total %d, want 50000", got)
	}
	if got := fix.repo.runs[statement.RunID].TotalRoyaltiesCents; got != 50000 {
		t.Fatalf("reversal applied twice: run total %d, want 50000", got)
	}
}

func TestRejectAfterCompetingDecisionFails(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)

	line, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 15000,
		Type:        enums.AdjustmentTypeDebit,
		Reason:      "chargeback investigation",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	fix.locker.onAcquire = func() {
		approved := enums.AdjustmentStatusApproved
		stored := fix.repo.lines[line.ID]
		stored.AdjustmentStatus = &approved
		stored.CalculatedRoyaltyCents = 15000
		stored.PendingAmountCents = 0
	}

	_, err = fix.svc.Reject(context.Background(), line.ID, financeActor(), "too late")
	expectCode(t, err, pkgerrors.CodeStateConflict)
	if *fix.repo.lines[line.ID].AdjustmentStatus != enums.AdjustmentStatusApproved {
		t.Fatal("competing decision must not be overwritten")
	}
}

func TestRequestValidatesInput(t *testing.T) {
	fix := newServiceFixture(t, 10000)
	statement := seedStatement(fix, enums.RunStatusCalculated, 50000)

	_, err := fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 0,
		Type:        enums.AdjustmentTypeCredit,
		Reason:      "zero",
	})
	expectCode(t, err, pkgerrors.CodeValidation)

	_, err = fix.svc.Request(context.Background(), financeActor(), RequestInput{
		StatementID: statement.ID,
		AmountCents: 100,
		Type:        enums.AdjustmentType("markup"),
		Reason:      "bad type",
	})
	expectCode(t, err, pkgerrors.CodeValidation)
}
