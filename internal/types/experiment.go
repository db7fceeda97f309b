package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ExperimentStatus string

const (
	ExperimentStatusDraft     ExperimentStatus = "draft"
	ExperimentStatusActive    ExperimentStatus = "active"
	ExperimentStatusPaused    ExperimentStatus = "paused"
	ExperimentStatusCompleted ExperimentStatus = "completed"
)

type Experiment struct {
	ID              uuid.UUID                              `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string                                 `gorm:"type:varchar(255);not null" json:"name"`
	Description     string                                 `gorm:"type:text" json:"description,omitempty"`
	Status          ExperimentStatus                       `gorm:"type:varchar(20);not null;index;default:draft" json:"status"`
	Variants        []*Variant                             `gorm:"constraint:OnDelete:CASCADE;foreignKey:ExperimentID;references:ID" json:"variants,omitempty"`
	TargetingRules  datatypes.JSONType[TargetingRules]     `json:"targeting_rules"`
	Metrics         datatypes.JSONType[MetricsConfig]      `json:"metrics"`
	Settings        datatypes.JSONType[ExperimentSettings] `json:"settings"`
	StartDate       *time.Time                             `gorm:"index" json:"start_date,omitempty"`
	EndDate         *time.Time                             `gorm:"index" json:"end_date,omitempty"`
	MinSampleSize   int                                    `gorm:"not null;default:100" json:"min_sample_size"`
	MaxDurationDays int                                    `json:"max_duration_days,omitempty"`
	CreatedAt       time.Time                              `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time                              `gorm:"not null" json:"updated_at"`
	DeletedAt       gorm.DeletedAt                         `gorm:"index" json:"deleted_at,omitempty"`
}

func (Experiment) TableName() string { return "experiment" }

func (e *Experiment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
