package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TrackedEvent is an append-only conversion/interaction record. Rows are
// never updated after insert.
type TrackedEvent struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExperimentID uuid.UUID      `gorm:"type:uuid;not null;index:idx_event_experiment_variant" json:"experiment_id"`
	VariantID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_event_experiment_variant" json:"variant_id"`
	UserID       string         `gorm:"type:varchar(255);not null;index" json:"user_id"`
	SessionID    string         `gorm:"type:varchar(255)" json:"session_id,omitempty"`
	Name         string         `gorm:"type:varchar(100);not null;index" json:"name"`
	Value        *float64       `json:"value,omitempty"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	OccurredAt   time.Time      `gorm:"not null;index" json:"occurred_at"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
}

func (TrackedEvent) TableName() string { return "experiment_event" }

func (e *TrackedEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
