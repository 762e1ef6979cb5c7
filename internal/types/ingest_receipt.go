package types

import (
	"time"

	"github.com/google/uuid"
)

// IngestReceipt records an accepted batch by its caller-supplied
// idempotency token. A second delivery of the same token is dropped
// before it reaches the queue, so reward updates are never double-applied.
type IngestReceipt struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Token      string    `gorm:"not null;uniqueIndex" json:"token"`
	BatchID    uuid.UUID `gorm:"type:uuid;not null" json:"batch_id"`
	EventCount int       `gorm:"not null" json:"event_count"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (IngestReceipt) TableName() string { return "ingest_receipt" }
