package runs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
	"github.com/angelmondragon/royaltyworks-backend/pkg/pagination"
	"github.com/angelmondragon/royaltyworks-backend/pkg/periods"
)

// Repository manages persistence for runs, statements, and lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRun(ctx context.Context, run *models.RoyaltyRun) error
	FindRun(ctx context.Context, id uuid.UUID) (*models.RoyaltyRun, error)
	UpdateRun(ctx context.Context, run *models.RoyaltyRun) error
	ListRuns(ctx context.Context, params pagination.Params) ([]models.RoyaltyRun, error)
	ListRunPeriods(ctx context.Context) ([]periods.RunPeriod, error)
	ListDraftRunsEndedBefore(ctx context.Context, cutoff time.Time) ([]models.RoyaltyRun, error)
	CreateStatement(ctx context.Context, statement *models.RoyaltyStatement) error
	CreateLines(ctx context.Context, lines []models.RoyaltyLine) error
	ListStatementsByRun(ctx context.Context, runID uuid.UUID) ([]models.RoyaltyStatement, error)
	HasStatementWithStatus(ctx context.Context, runID uuid.UUID, statuses ...enums.StatementStatus) (bool, error)
	DeleteStatementsByRun(ctx context.Context, runID uuid.UUID) (int64, error)
	CarryoverForCreator(ctx context.Context, creatorID uuid.UUID, before models.RoyaltyRun) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a run repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRun(ctx context.Context, run *models.RoyaltyRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *repository) FindRun(ctx context.Context, id uuid.UUID) (*models.RoyaltyRun, error) {
	var run models.RoyaltyRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "royalty run not found")
		}
		return nil, err
	}
	return &run, nil
}

func (r *repository) UpdateRun(ctx context.Context, run *models.RoyaltyRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *repository) ListRuns(ctx context.Context, params pagination.Params) ([]models.RoyaltyRun, error) {
	query := r.db.WithContext(ctx).Model(&models.RoyaltyRun{})

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.RoyaltyRun
	err = query.
		Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListRunPeriods(ctx context.Context) ([]periods.RunPeriod, error) {
	var rows []models.RoyaltyRun
	if err := r.db.WithContext(ctx).Select("id", "period_start", "period_end").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]periods.RunPeriod, len(rows))
	for i, row := range rows {
		out[i] = periods.RunPeriod{ID: row.ID, Start: row.PeriodStart, End: row.PeriodEnd}
	}
	return out, nil
}

// ListDraftRunsEndedBefore returns draft runs whose accounting period closed
// before the cutoff, oldest first. The calculation job picks these up.
func (r *repository) ListDraftRunsEndedBefore(ctx context.Context, cutoff time.Time) ([]models.RoyaltyRun, error) {
	var rows []models.RoyaltyRun
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.RunStatusDraft).
		Where("period_end < ?", cutoff).
		Order("period_end ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateStatement(ctx context.Context, statement *models.RoyaltyStatement) error {
	return r.db.WithContext(ctx).Create(statement).Error
}

func (r *repository) CreateLines(ctx context.Context, lines []models.RoyaltyLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *repository) ListStatementsByRun(ctx context.Context, runID uuid.UUID) ([]models.RoyaltyStatement, error) {
	var rows []models.RoyaltyStatement
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) HasStatementWithStatus(ctx context.Context, runID uuid.UUID, statuses ...enums.StatementStatus) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RoyaltyStatement{}).
		Where("run_id = ? AND status IN ?", runID, statuses).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteStatementsByRun removes a run's statements and their lines, returning
// the number of statements removed.
func (r *repository) DeleteStatementsByRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	err := r.db.WithContext(ctx).
		Where("statement_id IN (?)", r.db.Model(&models.RoyaltyStatement{}).Select("id").Where("run_id = ?", runID)).
		Delete(&models.RoyaltyLine{}).Error
	if err != nil {
		return 0, err
	}
	result := r.db.WithContext(ctx).Where("run_id = ?", runID).Delete(&models.RoyaltyStatement{})
	return result.RowsAffected, result.Error
}

// CarryoverForCreator sums the creator's unpaid statement totals from runs
// that ended before the given run starts.
func (r *repository) CarryoverForCreator(ctx context.Context, creatorID uuid.UUID, before models.RoyaltyRun) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.RoyaltyStatement{}).
		Joins("JOIN royalty_runs ON royalty_runs.id = royalty_statements.run_id").
		Where("royalty_statements.creator_id = ?", creatorID).
		Where("royalty_statements.status IN ?", []enums.StatementStatus{
			enums.StatementStatusPending,
			enums.StatementStatusReviewed,
		}).
		Where("royalty_runs.period_end < ?", before.PeriodStart).
		Select("COALESCE(SUM(royalty_statements.total_earnings_cents), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
