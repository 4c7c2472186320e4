package models

import (
	"creditnote/src/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RedemptionRecord is an append-only audit row. One row per issuance or
// redemption; rows are never updated or deleted.
type RedemptionRecord struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`

	CreditNoteID uuid.UUID            `gorm:"type:uuid;index" json:"credit_note_id"`
	Shop         string               `gorm:"index" json:"-"`
	Type         types.RedemptionType `gorm:"default:'redemption'" json:"type"`
	Amount       decimal.Decimal      `gorm:"type:decimal(18,4)" json:"amount"`

	OrderID     *string `json:"order_id,omitempty"`
	OrderNumber *string `json:"order_number,omitempty"`
	StaffID     *string `json:"staff_id,omitempty"`
	DeviceID    *string `json:"device_id,omitempty"`

	Metadata types.JSONB `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreditNote CreditNote `json:"-"`

	types.Timestamps
}

func (r *RedemptionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
