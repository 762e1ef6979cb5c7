package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RecommendationRecord is the most recently computed top-k action list for
// one (user, module) pair. Fully replaced on every recomputation.
type RecommendationRecord struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:ux_recommendation_user_module,priority:1" json:"user_id"`
	ModuleID      string         `gorm:"not null;uniqueIndex:ux_recommendation_user_module,priority:2" json:"module_id"`
	Items         datatypes.JSON `gorm:"type:jsonb;not null" json:"items"`
	StateCohort   int            `gorm:"not null" json:"state_cohort"`
	StateModule   int            `gorm:"not null" json:"state_module"`
	StateProgress int            `gorm:"not null" json:"state_progress"`
	StateScore    int            `gorm:"not null" json:"state_score"`
	StatePhase    string         `gorm:"not null" json:"state_phase"`
	StateEngage   string         `gorm:"not null" json:"state_engage"`
	LowConfidence bool           `gorm:"not null;default:false" json:"low_confidence"`
	ComputedAt    time.Time      `gorm:"not null" json:"computed_at"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (RecommendationRecord) TableName() string { return "recommendation_record" }
