package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/experiment-backend/internal/logger"
	"github.com/yungbote/experiment-backend/internal/types"
)

var ErrExperimentNotFound = errors.New("experiment not found")

type ExperimentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, experiment *types.Experiment) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Experiment, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Experiment, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status types.ExperimentStatus) ([]*types.Experiment, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.ExperimentStatus, startDate, endDate *time.Time) error
}

type experimentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExperimentRepo(db *gorm.DB, baseLog *logger.Logger) ExperimentRepo {
	repoLog := baseLog.With("repo", "ExperimentRepo")
	return &experimentRepo{db: db, log: repoLog}
}

func (r *experimentRepo) Create(ctx context.Context, tx *gorm.DB, experiment *types.Experiment) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if experiment == nil {
		return errors.New("experiment required")
	}

	// Variants ride along through the association so experiment + variants
	// land in one insert batch.
	if err := transaction.WithContext(ctx).Create(experiment).Error; err != nil {
		return err
	}
	return nil
}

func (r *experimentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Experiment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, ErrExperimentNotFound
	}

	var result types.Experiment
	err := transaction.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExperimentNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *experimentRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Experiment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Experiment
	if err := transaction.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *experimentRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status types.ExperimentStatus) ([]*types.Experiment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Experiment
	if err := transaction.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *experimentRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.ExperimentStatus, startDate, endDate *time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	updates := map[string]interface{}{"status": status}
	if startDate != nil {
		updates["start_date"] = *startDate
	}
	if endDate != nil {
		updates["end_date"] = *endDate
	}

	res := transaction.WithContext(ctx).
		Model(&types.Experiment{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrExperimentNotFound
	}
	return nil
}
