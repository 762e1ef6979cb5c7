package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RawEvent is the append-only interaction history. Every event in an
// accepted batch is recorded here, including ones that never become a
// transition. Retention/pruning is an operational concern, not ours.
type RawEvent struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"batch_id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;index:ix_raw_event_user_module,priority:1" json:"user_id"`
	CourseID    string         `gorm:"" json:"course_id,omitempty"`
	ModuleID    string         `gorm:"not null;index:ix_raw_event_user_module,priority:2" json:"module_id"`
	ModuleIndex int            `gorm:"not null" json:"module_index"`
	EventName   string         `gorm:"not null" json:"event_name"`
	ActionLabel string         `gorm:"not null" json:"action_label"`
	OccurredAt  time.Time      `gorm:"not null;index" json:"occurred_at"`
	Progress    *float64       `json:"progress,omitempty"`
	Score       *float64       `json:"score,omitempty"`
	Success     *bool          `json:"success,omitempty"`
	Data        datatypes.JSON `gorm:"type:jsonb" json:"data,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (RawEvent) TableName() string { return "raw_event" }
