package syncqueue

import (
	"creditnote/src/types"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Typed payload contracts, one per operation type. Shapes are checked at
// enqueue time so malformed operations are refused synchronously instead of
// failing on every drain pass.

type CreditCreatePayload struct {
	CustomerID          string           `json:"customer_id"`
	Amount              decimal.Decimal  `json:"amount"`
	Currency            string           `json:"currency,omitempty"`
	Reason              string           `json:"reason,omitempty"`
	ExpiresAt           *string          `json:"expires_at,omitempty"`
	OriginalOrderID     *string          `json:"original_order_id,omitempty"`
	OriginalOrderNumber *string          `json:"original_order_number,omitempty"`
	CustomerName        string           `json:"customer_name,omitempty"`
	CustomerEmail       string           `json:"customer_email,omitempty"`
}

func (p *CreditCreatePayload) Validate() error {
	if p.CustomerID == "" {
		return fmt.Errorf("customer_id is required")
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	return nil
}

type CreditRedeemPayload struct {
	NoteID      string          `json:"note_id,omitempty"`
	Code        string          `json:"code,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	OrderID     *string         `json:"order_id,omitempty"`
	OrderNumber *string         `json:"order_number,omitempty"`
	StaffID     *string         `json:"staff_id,omitempty"`
	Metadata    types.JSONB     `json:"metadata,omitempty"`
}

func (p *CreditRedeemPayload) Validate() error {
	if p.NoteID == "" && p.Code == "" {
		return fmt.Errorf("note_id or code is required")
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	return nil
}

type CreditAdjustPayload struct {
	NoteID  string          `json:"note_id"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason,omitempty"`
	StaffID *string         `json:"staff_id,omitempty"`
}

func (p *CreditAdjustPayload) Validate() error {
	if p.NoteID == "" {
		return fmt.Errorf("note_id is required")
	}
	if p.Amount.IsZero() {
		return fmt.Errorf("amount must be non-zero")
	}
	return nil
}

type TransactionLogPayload struct {
	NoteID   string          `json:"note_id,omitempty"`
	Code     string          `json:"code,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	OrderID  *string         `json:"order_id,omitempty"`
	StaffID  *string         `json:"staff_id,omitempty"`
	Metadata types.JSONB     `json:"metadata,omitempty"`
}

func (p *TransactionLogPayload) Validate() error {
	if p.NoteID == "" && p.Code == "" {
		return fmt.Errorf("note_id or code is required")
	}
	return nil
}

type CustomerUpdatePayload struct {
	CustomerID string `json:"customer_id"`
}

func (p *CustomerUpdatePayload) Validate() error {
	if p.CustomerID == "" {
		return fmt.Errorf("customer_id is required")
	}
	return nil
}

type validatable interface {
	Validate() error
}

// decodePayload maps an operation type to its typed payload and checks the
// required-field contract.
func decodePayload(op types.SyncOperationType, payload types.JSONB) (validatable, error) {
	var target validatable
	switch op {
	case types.SYNC_CREDIT_CREATE:
		target = &CreditCreatePayload{}
	case types.SYNC_CREDIT_REDEEM:
		target = &CreditRedeemPayload{}
	case types.SYNC_CREDIT_ADJUST:
		target = &CreditAdjustPayload{}
	case types.SYNC_TRANSACTION_LOG:
		target = &TransactionLogPayload{}
	case types.SYNC_CUSTOMER_UPDATE:
		target = &CustomerUpdatePayload{}
	default:
		return nil, fmt.Errorf("unknown operation type: %s", op)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %s", op, err.Error())
	}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %s", op, err.Error())
	}
	return target, nil
}

// ValidatePayload is the enqueue-time gate.
func ValidatePayload(op types.SyncOperationType, payload types.JSONB) error {
	_, err := decodePayload(op, payload)
	return err
}
