package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Variant is one treatment arm of an experiment. Position preserves the order
// variants were configured in; the first variant is the control.
type Variant struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExperimentID uuid.UUID      `gorm:"type:uuid;not null;index" json:"experiment_id"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	Weight       float64        `gorm:"not null" json:"weight"`
	Position     int            `gorm:"not null" json:"position"`
	Content      datatypes.JSON `json:"content,omitempty"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (Variant) TableName() string { return "experiment_variant" }

func (v *Variant) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
