package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.New("type assertion to []byte failed")
		}
		b = []byte(s)
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type CreditNoteStatus string

const (
	CREDIT_NOTE_ACTIVE         CreditNoteStatus = "active"
	CREDIT_NOTE_PARTIALLY_USED CreditNoteStatus = "partially_used"
	CREDIT_NOTE_FULLY_USED     CreditNoteStatus = "fully_used"
	CREDIT_NOTE_EXPIRED        CreditNoteStatus = "expired"
	CREDIT_NOTE_DELETED        CreditNoteStatus = "deleted"
)

type RedemptionType string

const (
	REDEMPTION_ISSUANCE   RedemptionType = "issuance"
	REDEMPTION_REDEMPTION RedemptionType = "redemption"
	REDEMPTION_ADJUSTMENT RedemptionType = "adjustment"
	REDEMPTION_LOG        RedemptionType = "log"
)

type SyncOperationType string

const (
	SYNC_CREDIT_CREATE   SyncOperationType = "CREDIT_CREATE"
	SYNC_CREDIT_REDEEM   SyncOperationType = "CREDIT_REDEEM"
	SYNC_CREDIT_ADJUST   SyncOperationType = "CREDIT_ADJUST"
	SYNC_TRANSACTION_LOG SyncOperationType = "TRANSACTION_LOG"
	SYNC_CUSTOMER_UPDATE SyncOperationType = "CUSTOMER_UPDATE"
)

type SyncItemStatus string

const (
	SYNC_PENDING    SyncItemStatus = "PENDING"
	SYNC_PROCESSING SyncItemStatus = "PROCESSING"
	SYNC_COMPLETED  SyncItemStatus = "COMPLETED"
	SYNC_FAILED     SyncItemStatus = "FAILED"
	SYNC_ABANDONED  SyncItemStatus = "ABANDONED"
)

type CreateCreditNoteRequestBody struct {
	CustomerID          string          `json:"customer_id" binding:"required"`
	Amount              decimal.Decimal `json:"amount" binding:"required"`
	Currency            string          `json:"currency,omitempty"`
	Reason              string          `json:"reason,omitempty"`
	ExpiresAt           *string         `json:"expires_at,omitempty" binding:"omitempty,futuredate" time_format:"2006-01-02 15:04:05 -07:00"`
	OriginalOrderID     *string         `json:"original_order_id,omitempty"`
	OriginalOrderNumber *string         `json:"original_order_number,omitempty"`
	CustomerName        string          `json:"customer_name,omitempty"`
	CustomerEmail       string          `json:"customer_email,omitempty"`
}

type RedeemCreditNoteRequestBody struct {
	NoteID      string           `json:"note_id,omitempty"`
	Code        string           `json:"code,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	OrderID     *string          `json:"order_id,omitempty"`
	OrderNumber *string          `json:"order_number,omitempty"`
	StaffID     *string          `json:"staff_id,omitempty"`
	DeviceID    *string          `json:"device_id,omitempty"`
	Metadata    JSONB            `json:"metadata,omitempty"`
}

type ValidateCreditNoteRequestBody struct {
	Code   string           `json:"code" binding:"required"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type UpdateCreditNoteRequestBody struct {
	Status    *string `json:"status,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty" binding:"omitempty,futuredate" time_format:"2006-01-02 15:04:05 -07:00"`
	Reason    *string `json:"reason,omitempty"`
	Notes     JSONB   `json:"notes,omitempty"`
}

type ListCreditNotesQuery struct {
	CustomerID string `form:"customer_id"`
	Status     string `form:"status"`
	Search     string `form:"search"`
	Offset     int    `form:"offset"`
	Limit      int    `form:"limit"`
}

type EnqueueSyncRequestBody struct {
	OperationType string `json:"operation_type" binding:"required"`
	Payload       JSONB  `json:"payload" binding:"required"`
	DeviceID      string `json:"device_id,omitempty"`
	MaxRetries    *int   `json:"max_retries,omitempty"`
}

type EnqueueSyncBatchRequestBody struct {
	Operations []EnqueueSyncRequestBody `json:"operations" binding:"required,min=1"`
}

type DrainSyncRequestBody struct {
	Limit int `json:"limit,omitempty"`
}

type SimpleRequestParams struct {
	ID string `uri:"id" binding:"required"`
}
