package types

import (
	"time"

	"github.com/google/uuid"
)

// QTableSnapshot is a whole-table checkpoint of the learned values.
// Startup loads the highest version; the checkpointer appends new rows.
type QTableSnapshot struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Version    int64     `gorm:"not null;uniqueIndex" json:"version"`
	EntryCount int       `gorm:"not null" json:"entry_count"`
	Payload    []byte    `gorm:"type:bytea;not null" json:"-"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (QTableSnapshot) TableName() string { return "qtable_snapshot" }
