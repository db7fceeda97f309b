package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Participant records one user's assignment to one variant within one
// experiment. The composite unique index is what keeps assignment sticky
// under concurrent first-time calls.
type Participant struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExperimentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_participant_experiment_user;index" json:"experiment_id"`
	UserID       string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_participant_experiment_user;index" json:"user_id"`
	SessionID    string    `gorm:"type:varchar(255)" json:"session_id,omitempty"`
	VariantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"variant_id"`
	AssignedAt   time.Time `gorm:"not null;index" json:"assigned_at"`
	UserAgent    string    `gorm:"type:varchar(500)" json:"user_agent,omitempty"`
	IPAddress    string    `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	GeoLocation  string    `gorm:"type:varchar(100)" json:"geo_location,omitempty"`
	DeviceType   string    `gorm:"type:varchar(20)" json:"device_type,omitempty"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

func (Participant) TableName() string { return "experiment_participant" }

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
