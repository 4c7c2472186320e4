package engine

import (
	"context"
	"creditnote/src/models"
	"creditnote/src/types"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gateway pushes committed balance changes out to the Shopify Admin API.
// Calls are best-effort; a failing gateway never fails the triggering
// create or redeem.
type Gateway interface {
	RefreshCustomerBalance(ctx context.Context, shop string, customerID string, balance decimal.Decimal) error
}

// Renderer turns a persisted note into a scannable artifact and returns a
// location for it. Optional; a nil renderer just skips the image.
type Renderer interface {
	Render(note *models.CreditNote) (string, error)
}

type Engine struct {
	db       *gorm.DB
	gateway  Gateway
	renderer Renderer
	alloc    AllocatePolicy
}

type Option func(*Engine)

func WithAllocatePolicy(p AllocatePolicy) Option {
	return func(e *Engine) { e.alloc = p }
}

func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

func New(db *gorm.DB, gateway Gateway, opts ...Option) *Engine {
	e := &Engine{
		db:      db,
		gateway: gateway,
		alloc:   DefaultAllocatePolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type CreateInput struct {
	CustomerID          string
	Amount              decimal.Decimal
	Currency            string
	Reason              string
	ExpiresAt           *time.Time
	OriginalOrderID     *string
	OriginalOrderNumber *string
	CustomerName        string
	CustomerEmail       string
	DeviceID            *string
}

type RedeemInput struct {
	NoteID      string
	Code        string
	Amount      *decimal.Decimal
	OrderID     *string
	OrderNumber *string
	StaffID     *string
	DeviceID    *string
	Metadata    types.JSONB
}

type ListFilters struct {
	CustomerID string
	Statuses   []types.CreditNoteStatus
	Search     string
	Offset     int
	Limit      int
}

type ListResult struct {
	Items      []models.CreditNote `json:"items"`
	TotalCount int64               `json:"total_count"`
	HasMore    bool                `json:"has_more"`
}

// Create issues a new credit note for shop. The note row and its issuance
// audit record commit in one transaction; the balance push to the Admin API
// and the QR image render run after commit and are allowed to fail.
func (e *Engine) Create(ctx context.Context, shop string, input CreateInput) (*models.CreditNote, error) {
	if input.CustomerID == "" {
		return nil, &ValidationError{Field: "customer_id", Message: "required"}
	}
	if !input.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}

	code := newRedemptionCode()
	note := models.CreditNote{
		Shop:                shop,
		CustomerID:          input.CustomerID,
		CustomerName:        input.CustomerName,
		CustomerEmail:       input.CustomerEmail,
		OriginalAmount:      input.Amount,
		RemainingAmount:     input.Amount,
		Currency:            currency,
		QRCode:              code,
		Status:              types.CREDIT_NOTE_ACTIVE,
		ExpiresAt:           input.ExpiresAt,
		Reason:              input.Reason,
		OriginalOrderID:     input.OriginalOrderID,
		OriginalOrderNumber: input.OriginalOrderNumber,
	}
	noteNumber, err := e.allocateNoteNumber(ctx, shop)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		note.NoteNumber = noteNumber
		note.QRCodeData = types.JSONB{
			"type":        "credit_note",
			"version":     1,
			"code":        code,
			"note_number": noteNumber,
			"amount":      input.Amount.StringFixed(2),
			"currency":    currency,
			"customer_id": input.CustomerID,
			"shop":        shop,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		}
		err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&note).Error; err != nil {
				return err
			}
			issuance := models.RedemptionRecord{
				CreditNoteID: note.ID,
				Shop:         shop,
				Type:         types.REDEMPTION_ISSUANCE,
				Amount:       input.Amount,
				OrderID:      input.OriginalOrderID,
				OrderNumber:  input.OriginalOrderNumber,
				DeviceID:     input.DeviceID,
			}
			return tx.Create(&issuance).Error
		})
		if err == nil {
			break
		}
		// Another device grabbed the probed number between the probe and the
		// insert. The fallback format is collision-free in practice.
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < 2 {
			noteNumber = noteNumberFallback(time.Now())
			continue
		}
		return nil, err
	}

	go e.refreshBalance(shop, note.CustomerID)
	if e.renderer != nil {
		go e.renderImage(note)
	}

	return &note, nil
}

// FindByID returns the note only when it belongs to shop and is not soft
// deleted. A note under another shop is reported as not found.
func (e *Engine) FindByID(ctx context.Context, shop string, id string) (*models.CreditNote, error) {
	noteId, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var note models.CreditNote
	err = e.db.WithContext(ctx).
		Where("id = ?", noteId).
		Where(&models.CreditNote{Shop: shop}).
		First(&note).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (e *Engine) FindByCode(ctx context.Context, shop string, code string) (*models.CreditNote, error) {
	var note models.CreditNote
	err := e.db.WithContext(ctx).
		Where(&models.CreditNote{Shop: shop, QRCode: code}).
		First(&note).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// Redeem debits the note atomically. The note row is re-read and re-validated
// under a row lock inside the transaction, so two concurrent redemptions can
// never overdraw the remaining balance. Exactly one RedemptionRecord is
// appended per successful call.
func (e *Engine) Redeem(ctx context.Context, shop string, input RedeemInput) (*models.RedemptionRecord, *models.CreditNote, error) {
	if input.NoteID == "" && input.Code == "" {
		return nil, nil, &ValidationError{Field: "note_id", Message: "note_id or code is required"}
	}
	if input.Amount != nil && !input.Amount.IsPositive() {
		return nil, nil, &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}

	var note models.CreditNote
	var record models.RedemptionRecord
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		// sqlite has no FOR UPDATE; its single writer serializes for us.
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		where := &models.CreditNote{Shop: shop}
		if input.NoteID != "" {
			noteId, err := uuid.Parse(input.NoteID)
			if err != nil {
				return ErrNotFound
			}
			q = q.Where("id = ?", noteId)
		} else {
			where.QRCode = input.Code
		}
		if err := q.Where(where).First(&note).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		// Validate against the state just read, never a caller-cached copy.
		if v := ValidateForRedemptionAt(&note, input.Amount, time.Now()); !v.OK {
			return &RejectionError{Reason: v.Reason, MaxAmount: v.MaxAmount}
		}

		amount := note.RemainingAmount
		if input.Amount != nil {
			amount = *input.Amount
		}
		newRemaining := note.RemainingAmount.Sub(amount)
		if newRemaining.IsNegative() {
			// Unreachable after validation; kept as an invariant check.
			return ErrConflict
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

		record = models.RedemptionRecord{
			CreditNoteID: note.ID,
			Shop:         shop,
			Type:         types.REDEMPTION_REDEMPTION,
			Amount:       amount,
			OrderID:      input.OrderID,
			OrderNumber:  input.OrderNumber,
			StaffID:      input.StaffID,
			DeviceID:     input.DeviceID,
			Metadata:     input.Metadata,
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, nil, err
	}

	go e.refreshBalance(shop, note.CustomerID)

	return &record, &note, nil
}

// Balance sums the remaining amounts of the customer's redeemable notes.
// No rows means zero, never an error.
func (e *Engine) Balance(ctx context.Context, shop string, customerID string) (decimal.Decimal, error) {
	row := e.db.WithContext(ctx).
		Model(&models.CreditNote{}).
		Where(&models.CreditNote{Shop: shop, CustomerID: customerID}).
		Where("status IN ?", []types.CreditNoteStatus{types.CREDIT_NOTE_ACTIVE, types.CREDIT_NOTE_PARTIALLY_USED}).
		Select("SUM(remaining_amount)").
		Row()
	var raw sql.NullString
	if err := row.Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	if !raw.Valid {
		return decimal.Zero, nil
	}
	balance, err := decimal.NewFromString(raw.String)
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// List pages through the shop's notes, newest first.
func (e *Engine) List(ctx context.Context, shop string, filters ListFilters) (*ListResult, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	q := e.db.WithContext(ctx).
		Model(&models.CreditNote{}).
		Where(&models.CreditNote{Shop: shop})
	if filters.CustomerID != "" {
		q = q.Where("customer_id = ?", filters.CustomerID)
	}
	if len(filters.Statuses) > 0 {
		q = q.Where("status IN ?", filters.Statuses)
	}
	if filters.Search != "" {
		needle := "%" + strings.ToLower(filters.Search) + "%"
		q = q.Where(
			"LOWER(note_number) LIKE ? OR LOWER(customer_name) LIKE ? OR LOWER(customer_email) LIKE ? OR LOWER(reason) LIKE ?",
			needle, needle, needle, needle,
		)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.CreditNote
	if err := q.
		Order("created_at desc").
		Offset(filters.Offset).
		Limit(limit).
		Find(&items).
		Error; err != nil {
		return nil, err
	}
	return &ListResult{
		Items:      items,
		TotalCount: total,
		HasMore:    int64(filters.Offset+len(items)) < total,
	}, nil
}

type UpdateInput struct {
	Status    *types.CreditNoteStatus
	ExpiresAt *time.Time
	Reason    *string
	Notes     types.JSONB
}

func (e *Engine) Update(ctx context.Context, shop string, id string, input UpdateInput) (*models.CreditNote, error) {
	note, err := e.FindByID(ctx, shop, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if input.Status != nil {
		updates["status"] = *input.Status
	}
	if input.ExpiresAt != nil {
		updates["expires_at"] = *input.ExpiresAt
	}
	if input.Reason != nil {
		updates["reason"] = *input.Reason
	}
	if input.Notes != nil {
		updates["notes"] = input.Notes
	}
	if len(updates) == 0 {
		return note, nil
	}
	if err := e.db.WithContext(ctx).
		Model(note).
		Updates(updates).
		Error; err != nil {
		return nil, err
	}
	return note, nil
}

// Delete soft-deletes the note. It stays in the table for audit but is
// invisible to find, list and redeem from here on.
func (e *Engine) Delete(ctx context.Context, shop string, id string) error {
	note, err := e.FindByID(ctx, shop, id)
	if err != nil {
		return err
	}
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Model(note).
			Update("status", types.CREDIT_NOTE_DELETED).
			Error; err != nil {
			return err
		}
		return tx.Delete(note).Error
	})
}

// ExpireSweep persists the expired status for notes whose deadline passed, so
// merchants can filter on it. Validation stays authoritative either way; a
// note the sweep has not reached yet is still rejected as expired.
func (e *Engine) ExpireSweep(ctx context.Context) (int64, error) {
	res := e.db.WithContext(ctx).
		Model(&models.CreditNote{}).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Where("status IN ?", []types.CreditNoteStatus{types.CREDIT_NOTE_ACTIVE, types.CREDIT_NOTE_PARTIALLY_USED}).
		Update("status", types.CREDIT_NOTE_EXPIRED)
	return res.RowsAffected, res.Error
}

func (e *Engine) refreshBalance(shop string, customerID string) {
	if e.gateway == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	balance, err := e.Balance(ctx, shop, customerID)
	if err != nil {
		log.Printf("Could not compute balance for customer [%s]: %s\n", customerID, err.Error())
		return
	}
	if err := e.gateway.RefreshCustomerBalance(ctx, shop, customerID, balance); err != nil {
		log.Printf("Error refreshing balance for customer [%s] on %s: %s\n", customerID, shop, err.Error())
	}
}

func (e *Engine) renderImage(note models.CreditNote) {
	url, err := e.renderer.Render(&note)
	if err != nil {
		log.Printf("Could not render code image for note [%s]: %s\n", note.NoteNumber, err.Error())
		return
	}
	if err := e.db.
		Model(&models.CreditNote{}).
		Where("id = ?", note.ID).
		Update("qr_code_image", url).
		Error; err != nil {
		log.Printf("Error saving code image url for note [%s]: %s\n", note.NoteNumber, err.Error())
	}
}

func newRedemptionCode() string {
	return fmt.Sprintf("CN%s", strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")))
}
