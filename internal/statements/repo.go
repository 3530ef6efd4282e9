package statements

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
)

// Repository manages statement reads and lifecycle writes. Statement rows are
// created by the run calculation; this repository never inserts them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, id uuid.UUID) (*models.RoyaltyStatement, error)
	Update(ctx context.Context, statement *models.RoyaltyStatement) error
	ListByRun(ctx context.Context, runID uuid.UUID, params pagination.Params) ([]models.RoyaltyStatement, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID, params pagination.Params) ([]models.RoyaltyStatement, error)
	ListDisputedBefore(ctx context.Context, cutoff time.Time) ([]models.RoyaltyStatement, error)
	ListCreatedSince(ctx context.Context, since time.Time) ([]models.RoyaltyStatement, error)
	ListLines(ctx context.Context, statementID uuid.UUID) ([]models.RoyaltyLine, error)
	CreateLine(ctx context.Context, line *models.RoyaltyLine) error
	FindRun(ctx context.Context, id uuid.UUID) (*models.RoyaltyRun, error)
	UpdateRun(ctx context.Context, run *models.RoyaltyRun) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a statement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.RoyaltyStatement, error) {
	var statement models.RoyaltyStatement
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&statement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "royalty statement not found")
		}
		return nil, err
	}
	return &statement, nil
}

func (r *repository) Update(ctx context.Context, statement *models.RoyaltyStatement) error {
	return r.db.WithContext(ctx).Save(statement).Error
}

func (r *repository) ListByRun(ctx context.Context, runID uuid.UUID, params pagination.Params) ([]models.RoyaltyStatement, error) {
	return r.list(ctx, "run_id = ?", runID, params)
}

func (r *repository) ListByCreator(ctx context.Context, creatorID uuid.UUID, params pagination.Params) ([]models.RoyaltyStatement, error) {
	return r.list(ctx, "creator_id = ?", creatorID, params)
}

func (r *repository) list(ctx context.Context, where string, arg any, params pagination.Params) ([]models.RoyaltyStatement, error) {
	query := r.db.WithContext(ctx).Model(&models.RoyaltyStatement{}).Where(where, arg)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.RoyaltyStatement
	err = query.
		Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDisputedBefore returns statements still disputed whose dispute is older
// than the cutoff, oldest first.
func (r *repository) ListDisputedBefore(ctx context.Context, cutoff time.Time) ([]models.RoyaltyStatement, error) {
	var rows []models.RoyaltyStatement
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.StatementStatusDisputed).
		Where("disputed_at < ?", cutoff).
		Order("disputed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListCreatedSince returns statements created at or after the given time.
func (r *repository) ListCreatedSince(ctx context.Context, since time.Time) ([]models.RoyaltyStatement, error) {
	var rows []models.RoyaltyStatement
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListLines(ctx context.Context, statementID uuid.UUID) ([]models.RoyaltyLine, error) {
	var rows []models.RoyaltyLine
	err := r.db.WithContext(ctx).
		Where("statement_id = ?", statementID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateLine(ctx context.Context, line *models.RoyaltyLine) error {
	return r.db.WithContext(ctx).Create(line).Error
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
