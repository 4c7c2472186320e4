package models

import (
	"creditnote/src/types"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncQueueItem is one durable operation submitted by a disconnected POS
// device, replayed against the engine by the drain loop.
type SyncQueueItem struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`

	Shop          string                  `gorm:"index" json:"-"`
	OperationType types.SyncOperationType `gorm:"index" json:"operation_type"`
	Payload       types.JSONB             `gorm:"type:jsonb" json:"payload"`
	Status        types.SyncItemStatus    `gorm:"default:'PENDING';index" json:"status"`

	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `gorm:"default:3" json:"max_retries"`
	NextRetryAt time.Time  `gorm:"index" json:"next_retry_at"`
	Error       *string    `json:"error,omitempty"`
	PosDeviceID *string    `json:"pos_device_id,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	types.Timestamps
}

func (i *SyncQueueItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
