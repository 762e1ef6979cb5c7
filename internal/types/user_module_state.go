package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UserModuleState holds the latest encoded behavioral state for one
// (user, module) pair. Overwritten on every detected transition, never
// appended.
type UserModuleState struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:ux_user_module_state,priority:1" json:"user_id"`
	ModuleID    string         `gorm:"not null;uniqueIndex:ux_user_module_state,priority:2" json:"module_id"`
	CohortID    int            `gorm:"not null" json:"cohort_id"`
	ModuleIndex int            `gorm:"not null" json:"module_index"`
	ProgressBin int            `gorm:"not null" json:"progress_bin"`
	ScoreBin    int            `gorm:"not null" json:"score_bin"`
	Phase       string         `gorm:"not null" json:"phase"`
	Engagement  string         `gorm:"not null" json:"engagement"`
	Extra       datatypes.JSON `gorm:"type:jsonb" json:"extra,omitempty"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (UserModuleState) TableName() string { return "user_module_state" }
