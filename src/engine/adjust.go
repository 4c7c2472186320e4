package engine

import (
	"context"
	"creditnote/src/models"
	"creditnote/src/types"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AdjustInput struct {
	NoteID   string
	Delta    decimal.Decimal
	Reason   string
	StaffID  *string
	DeviceID *string
}

// Adjust applies a signed correction to the remaining balance, clamped to
// [0, originalAmount], and appends an adjustment audit record. Used by
// replayed offline CREDIT_ADJUST operations and by merchant corrections.
func (e *Engine) Adjust(ctx context.Context, shop string, input AdjustInput) (*models.CreditNote, error) {
	if input.NoteID == "" {
		return nil, &ValidationError{Field: "note_id", Message: "required"}
	}
	if input.Delta.IsZero() {
		return nil, &ValidationError{Field: "amount", Message: "must be non-zero"}
	}

	noteId, err := uuid.Parse(input.NoteID)
	if err != nil {
		return nil, ErrNotFound
	}

	var note models.CreditNote
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.
			Where("id = ?", noteId).
			Where(&models.CreditNote{Shop: shop}).
			First(&note).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if note.Status == types.CREDIT_NOTE_DELETED {
			return ErrNotFound
		}

		newRemaining := note.RemainingAmount.Add(input.Delta)
		if newRemaining.IsNegative() {
			newRemaining = decimal.Zero
		}
		if newRemaining.GreaterThan(note.OriginalAmount) {
			newRemaining = note.OriginalAmount
		}
		newStatus := statusFor(newRemaining, note.OriginalAmount)

		if err := tx.
			Model(&models.CreditNote{}).
			Where("id = ?", note.ID).
			Updates(map[string]any{
				"remaining_amount": newRemaining,
				"status":           newStatus,
			}).Error; err != nil {
			return err
		}
		note.RemainingAmount = newRemaining
		note.Status = newStatus

		record := models.RedemptionRecord{
			CreditNoteID: note.ID,
			Shop:         shop,
			Type:         types.REDEMPTION_ADJUSTMENT,
			Amount:       input.Delta,
			StaffID:      input.StaffID,
			DeviceID:     input.DeviceID,
			Metadata:     types.JSONB{"reason": input.Reason},
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	go e.refreshBalance(shop, note.CustomerID)

	return &note, nil
}

type LogInput struct {
	NoteID   string
	Code     string
	Amount   decimal.Decimal
	OrderID  *string
	StaffID  *string
	DeviceID *string
	Metadata types.JSONB
}

// LogTransaction appends an audit-only record against a note without touching
// its balance. Offline devices use it to report activity that already settled
// elsewhere.
func (e *Engine) LogTransaction(ctx context.Context, shop string, input LogInput) (*models.RedemptionRecord, error) {
	var note *models.CreditNote
	var err error
	if input.NoteID != "" {
		note, err = e.FindByID(ctx, shop, input.NoteID)
	} else if input.Code != "" {
		note, err = e.FindByCode(ctx, shop, input.Code)
	} else {
		return nil, &ValidationError{Field: "note_id", Message: "note_id or code is required"}
	}
	if err != nil {
		return nil, err
	}

	record := models.RedemptionRecord{
		CreditNoteID: note.ID,
		Shop:         shop,
		Type:         types.REDEMPTION_LOG,
		Amount:       input.Amount,
		OrderID:      input.OrderID,
		StaffID:      input.StaffID,
		DeviceID:     input.DeviceID,
		Metadata:     input.Metadata,
	}
	if err := e.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// RefreshCustomer recomputes the customer's balance and pushes it through the
// gateway synchronously. The queue drain uses this for CUSTOMER_UPDATE items,
// where a gateway failure should count as a failed attempt.
func (e *Engine) RefreshCustomer(ctx context.Context, shop string, customerID string) error {
	if customerID == "" {
		return &ValidationError{Field: "customer_id", Message: "required"}
	}
	if e.gateway == nil {
		return nil
	}
	balance, err := e.Balance(ctx, shop, customerID)
	if err != nil {
		return err
	}
	return e.gateway.RefreshCustomerBalance(ctx, shop, customerID, balance)
}
