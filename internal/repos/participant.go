package repos

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/experiment-backend/internal/logger"
	"github.com/yungbote/experiment-backend/internal/types"
)

// ErrDuplicateAssignment means the (experiment_id, user_id) unique index
// rejected the insert: another call already assigned this user. Callers
// re-read and return the existing assignment.
var ErrDuplicateAssignment = errors.New("participant already assigned")

type ParticipantRepo interface {
	Create(ctx context.Context, tx *gorm.DB, participant *types.Participant) error
	GetByExperimentAndUser(ctx context.Context, tx *gorm.DB, experimentID uuid.UUID, userID string) (*types.Participant, error)
	CountByVariant(ctx context.Context, tx *gorm.DB, experimentID uuid.UUID) (map[uuid.UUID]int64, error)
}

type participantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParticipantRepo(db *gorm.DB, baseLog *logger.Logger) ParticipantRepo {
	repoLog := baseLog.With("repo", "ParticipantRepo")
	return &participantRepo{db: db, log: repoLog}
}

func (r *participantRepo) Create(ctx context.Context, tx *gorm.DB, participant *types.Participant) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if participant == nil {
		return errors.New("participant required")
	}

	if err := transaction.WithContext(ctx).Create(participant).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAssignment
		}
		return err
	}
	return nil
}

func (r *participantRepo) GetByExperimentAndUser(ctx context.Context, tx *gorm.DB, experimentID uuid.UUID, userID string) (*types.Participant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if experimentID == uuid.Nil || userID == "" {
		return nil, nil
	}

	var result types.Participant
	err := transaction.WithContext(ctx).
		Where("experiment_id = ? AND user_id = ?", experimentID, userID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *participantRepo) CountByVariant(ctx context.Context, tx *gorm.DB, experimentID uuid.UUID) (map[uuid.UUID]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []struct {
		VariantID uuid.UUID
		Total     int64
	}
	if err := transaction.WithContext(ctx).
		Model(&types.Participant{}).
		Select("variant_id, COUNT(*) AS total").
		Where("experiment_id = ?", experimentID).
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

// isUniqueViolation covers the gorm error translator plus the raw messages
// from the postgres and sqlite drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
