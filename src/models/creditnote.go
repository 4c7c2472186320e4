package models

import (
	"creditnote/src/types"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreditNote struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`

	Shop       string `gorm:"index;uniqueIndex:idx_shop_note_number,priority:1;uniqueIndex:idx_shop_qr_code,priority:1" json:"-"`
	NoteNumber string `gorm:"uniqueIndex:idx_shop_note_number,priority:2" json:"note_number"`

	CustomerID    string `gorm:"index" json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`

	OriginalAmount  decimal.Decimal `gorm:"type:decimal(18,4)" json:"original_amount"`
	RemainingAmount decimal.Decimal `gorm:"type:decimal(18,4)" json:"remaining_amount"`
	Currency        string          `gorm:"default:'USD'" json:"currency"`

	QRCode      string      `gorm:"uniqueIndex:idx_shop_qr_code,priority:2" json:"qr_code"`
	QRCodeData  types.JSONB `gorm:"type:jsonb" json:"qr_code_data,omitempty"`
	QRCodeImage *string     `json:"qr_code_image,omitempty"`

	Status    types.CreditNoteStatus `gorm:"default:'active'" json:"status"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty"`
	Reason    string                 `json:"reason,omitempty"`

	OriginalOrderID     *string `json:"original_order_id,omitempty"`
	OriginalOrderNumber *string `json:"original_order_number,omitempty"`

	Notes types.JSONB `gorm:"type:jsonb" json:"notes,omitempty"`

	Redemptions []RedemptionRecord `json:"redemptions,omitempty"`

	types.Timestamps
}

func (n *CreditNote) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
