package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/experiment-backend/internal/logger"
	"github.com/yungbote/experiment-backend/internal/types"
)

type EventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, event *types.TrackedEvent) error
	// CountConvertersByVariant counts distinct users per variant that fired
	// the named event at least once, so conversion rate stays a proportion.
	CountConvertersByVariant(ctx context.Context, tx *gorm.DB, experimentID uuid.UUID, eventName string) (map[uuid.UUID]int64, error)
	SumValueByVariant(ctx context.Context, tx *gorm.DB, experimentID uuid.UUID, eventName string) (map[uuid.UUID]float64, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	repoLog := baseLog.With("repo", "EventRepo")
	return &eventRepo{db: db, log: repoLog}
}

func (r *eventRepo) Create(ctx context.Context, tx *gorm.DB, event *types.TrackedEvent) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if event == nil {
		return errors.New("event required")
	}

	if err := transaction.WithContext(ctx).Create(event).Error; err != nil {
		return err
	}
	return nil
}

func (r *eventRepo) CountConvertersByVariant(ctx context.Context, tx *gorm.DB, experimentID uuid.UUID, eventName string) (map[uuid.UUID]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []struct {
		VariantID uuid.UUID
		Total     int64
	}
	if err := transaction.WithContext(ctx).
		Model(&types.TrackedEvent{}).
		Select("variant_id, COUNT(DISTINCT user_id) AS total").
		Where("experiment_id = ? AND name = ?", experimentID, eventName).
		Group("variant_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.VariantID] = row.Total
	}
	return counts, nil
}

func (r *eventRepo) SumValueByVariant(ctx context.Context, tx *gorm.DB, experimentID uuid.UUID, eventName string) (map[uuid.UUID]float64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []struct {
		VariantID uuid.UUID
		Total     float64
	}
	if err := transaction.WithContext(ctx).
		Model(&types.TrackedEvent{}).
		Select("variant_id, COALESCE(SUM(value), 0) AS total").
		Where("experiment_id = ? AND name = ?", experimentID, eventName).
		Group("variant_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	sums := make(map[uuid.UUID]float64, len(rows))
	for _, row := range rows {
		sums[row.VariantID] = row.Total
	}
	return sums, nil
}
