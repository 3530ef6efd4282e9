package adjustments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/royaltyworks-backend/pkg/errors"
)

// Repository manages manual adjustment lines and the statement and run rows
// their amounts roll up into.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindLine(ctx context.Context, id uuid.UUID) (*models.RoyaltyLine, error)
	CreateLine(ctx context.Context, line *models.RoyaltyLine) error
	UpdateLine(ctx context.Context, line *models.RoyaltyLine) error
	ListAdjustmentsByStatement(ctx context.Context, statementID uuid.UUID) ([]models.RoyaltyLine, error)
	FindStatement(ctx context.Context, id uuid.UUID) (*models.RoyaltyStatement, error)
	UpdateStatement(ctx context.Context, statement *models.RoyaltyStatement) error
	FindRun(ctx context.Context, id uuid.UUID) (*models.RoyaltyRun, error)
	UpdateRun(ctx context.Context, run *models.RoyaltyRun) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an adjustment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindLine(ctx context.Context, id uuid.UUID) (*models.RoyaltyLine, error) {
	var line models.RoyaltyLine
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "adjustment not found")
		}
		return nil, err
	}
	return &line, nil
}

func (r *repository) CreateLine(ctx context.Context, line *models.RoyaltyLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

func (r *repository) UpdateLine(ctx context.Context, line *models.RoyaltyLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

func (r *repository) ListAdjustmentsByStatement(ctx context.Context, statementID uuid.UUID) ([]models.RoyaltyLine, error) {
	var rows []models.RoyaltyLine
	err := r.db.WithContext(ctx).
		Where("statement_id = ?", statementID).
		Where("adjustment_status IS NOT NULL").
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindStatement(ctx context.Context, id uuid.UUID) (*models.RoyaltyStatement, error) {
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

func (r *repository) UpdateStatement(ctx context.Context, statement *models.RoyaltyStatement) error {
	return r.db.WithContext(ctx).Save(statement).Error
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
