package syncqueue

import (
	"context"
	"creditnote/src/engine"
	"creditnote/src/models"
	"creditnote/src/types"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

const (
	DefaultMaxRetries = 3
	DefaultDrainLimit = 100

	// maxErrorLen bounds the persisted error message.
	maxErrorLen = 500

	completedRetention = 24 * time.Hour
	terminalRetention  = 7 * 24 * time.Hour
)

// Queue is the durable offline-operation queue. Replayed operations go
// through the same engine entry points as online requests, so the engine's
// serialization guarantees apply to both paths.
type Queue struct {
	db     *gorm.DB
	engine *engine.Engine
}

func New(db *gorm.DB, eng *engine.Engine) *Queue {
	return &Queue{db: db, engine: eng}
}

// Enqueue validates the payload against the operation's contract and stores
// the item as PENDING, eligible immediately.
func (q *Queue) Enqueue(ctx context.Context, shop string, op types.SyncOperationType, payload types.JSONB, deviceID string, maxRetries int) (*models.SyncQueueItem, error) {
	if err := ValidatePayload(op, payload); err != nil {
		return nil, err
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	item := models.SyncQueueItem{
		Shop:          shop,
		OperationType: op,
		Payload:       payload,
		Status:        types.SYNC_PENDING,
		MaxRetries:    maxRetries,
		NextRetryAt:   time.Now(),
	}
	if deviceID != "" {
		item.PosDeviceID = &deviceID
	}
	if err := q.db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

type DrainResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Remaining int64    `json:"remaining"`
	Errors    []string `json:"errors,omitempty"`
}

// Drain replays up to limit eligible items for shop, oldest first. Item
// failures are absorbed into the result; only a queue-wide store failure
// comes back as an error.
func (q *Queue) Drain(ctx context.Context, shop string, limit int) (*DrainResult, error) {
	if limit <= 0 {
		limit = DefaultDrainLimit
	}
	var items []models.SyncQueueItem
	err := q.db.WithContext(ctx).
		Where(&models.SyncQueueItem{Shop: shop, Status: types.SYNC_PENDING}).
		Where("next_retry_at <= ?", time.Now()).
		Order("created_at asc").
		Limit(limit).
		Find(&items).
		Error
	if err != nil {
		return nil, err
	}

	result := DrainResult{Errors: []string{}}
	for i := range items {
		item := &items[i]
		if err := q.setStatus(ctx, item, types.SYNC_PROCESSING); err != nil {
			return nil, err
		}
		if err := q.dispatch(ctx, shop, item); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s [%s]: %s", item.OperationType, item.ID, err.Error()))
			if err := q.recordFailure(ctx, item, err); err != nil {
				return nil, err
			}
			continue
		}
		result.Processed++
		if err := q.recordSuccess(ctx, item); err != nil {
			return nil, err
		}
	}

	if result.Processed > 0 {
		q.gc(ctx, shop)
	}

	if err := q.db.WithContext(ctx).
		Model(&models.SyncQueueItem{}).
		Where(&models.SyncQueueItem{Shop: shop, Status: types.SYNC_PENDING}).
		Count(&result.Remaining).
		Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// dispatch replays one item through the engine.
func (q *Queue) dispatch(ctx context.Context, shop string, item *models.SyncQueueItem) error {
	decoded, err := decodePayload(item.OperationType, item.Payload)
	if err != nil {
		return err
	}
	switch p := decoded.(type) {
	case *CreditCreatePayload:
		input := engine.CreateInput{
			CustomerID:          p.CustomerID,
			Amount:              p.Amount,
			Currency:            p.Currency,
			Reason:              p.Reason,
			OriginalOrderID:     p.OriginalOrderID,
			OriginalOrderNumber: p.OriginalOrderNumber,
			CustomerName:        p.CustomerName,
			CustomerEmail:       p.CustomerEmail,
			DeviceID:            item.PosDeviceID,
		}
		if p.ExpiresAt != nil {
			expiresAt, err := time.Parse(time.RFC3339, *p.ExpiresAt)
			if err != nil {
				return fmt.Errorf("invalid expires_at: %s", err.Error())
			}
			input.ExpiresAt = &expiresAt
		}
		_, err := q.engine.Create(ctx, shop, input)
		return err
	case *CreditRedeemPayload:
		amount := p.Amount
		_, _, err := q.engine.Redeem(ctx, shop, engine.RedeemInput{
			NoteID:      p.NoteID,
			Code:        p.Code,
			Amount:      &amount,
			OrderID:     p.OrderID,
			OrderNumber: p.OrderNumber,
			StaffID:     p.StaffID,
			DeviceID:    item.PosDeviceID,
			Metadata:    withProvenance(p.Metadata, item),
		})
		return err
	case *CreditAdjustPayload:
		_, err := q.engine.Adjust(ctx, shop, engine.AdjustInput{
			NoteID:   p.NoteID,
			Delta:    p.Amount,
			Reason:   p.Reason,
			StaffID:  p.StaffID,
			DeviceID: item.PosDeviceID,
		})
		return err
	case *TransactionLogPayload:
		_, err := q.engine.LogTransaction(ctx, shop, engine.LogInput{
			NoteID:   p.NoteID,
			Code:     p.Code,
			Amount:   p.Amount,
			OrderID:  p.OrderID,
			StaffID:  p.StaffID,
			DeviceID: item.PosDeviceID,
			Metadata: withProvenance(p.Metadata, item),
		})
		return err
	case *CustomerUpdatePayload:
		return q.engine.RefreshCustomer(ctx, shop, p.CustomerID)
	default:
		return fmt.Errorf("unhandled operation type: %s", item.OperationType)
	}
}

func withProvenance(metadata types.JSONB, item *models.SyncQueueItem) types.JSONB {
	if metadata == nil {
		metadata = types.JSONB{}
	}
	metadata["sync_item_id"] = item.ID.String()
	metadata["offline_sync"] = true
	return metadata
}

func (q *Queue) setStatus(ctx context.Context, item *models.SyncQueueItem, status types.SyncItemStatus) error {
	item.Status = status
	return q.db.WithContext(ctx).
		Model(&models.SyncQueueItem{}).
		Where("id = ?", item.ID).
		Update("status", status).
		Error
}

func (q *Queue) recordSuccess(ctx context.Context, item *models.SyncQueueItem) error {
	now := time.Now()
	item.Status = types.SYNC_COMPLETED
	item.ProcessedAt = &now
	return q.db.WithContext(ctx).
		Model(&models.SyncQueueItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"status":       types.SYNC_COMPLETED,
			"processed_at": now,
		}).Error
}

func (q *Queue) recordFailure(ctx context.Context, item *models.SyncQueueItem, cause error) error {
	item.RetryCount++
	msg := truncateError(cause)
	updates := map[string]any{
		"retry_count": item.RetryCount,
		"error":       msg,
	}
	if item.RetryCount >= item.MaxRetries {
		// Out of attempts; the item is never touched again.
		item.Status = types.SYNC_ABANDONED
		updates["status"] = types.SYNC_ABANDONED
	} else {
		item.Status = types.SYNC_PENDING
		item.NextRetryAt = NextRetryAt(item.RetryCount, time.Now())
		updates["status"] = types.SYNC_PENDING
		updates["next_retry_at"] = item.NextRetryAt
	}
	return q.db.WithContext(ctx).
		Model(&models.SyncQueueItem{}).
		Where("id = ?", item.ID).
		Updates(updates).
		Error
}

// gc drops COMPLETED items past the 24h retention window and every terminal
// item past the 7d hard cap. Best effort; failures are only logged.
func (q *Queue) gc(ctx context.Context, shop string) {
	if err := q.db.WithContext(ctx).
		Unscoped().
		Where(&models.SyncQueueItem{Shop: shop, Status: types.SYNC_COMPLETED}).
		Where("processed_at < ?", time.Now().Add(-completedRetention)).
		Delete(&models.SyncQueueItem{}).
		Error; err != nil {
		log.Printf("Error collecting completed sync items: %s\n", err.Error())
	}
	if err := q.db.WithContext(ctx).
		Unscoped().
		Where("shop = ? AND status IN ?", shop, []types.SyncItemStatus{types.SYNC_COMPLETED, types.SYNC_ABANDONED}).
		Where("created_at < ?", time.Now().Add(-terminalRetention)).
		Delete(&models.SyncQueueItem{}).
		Error; err != nil {
		log.Printf("Error collecting terminal sync items: %s\n", err.Error())
	}
}

// Stats reports per-status item counts for shop.
func (q *Queue) Stats(ctx context.Context, shop string) (map[types.SyncItemStatus]int64, error) {
	type row struct {
		Status types.SyncItemStatus
		Count  int64
	}
	var rows []row
	err := q.db.WithContext(ctx).
		Model(&models.SyncQueueItem{}).
		Where(&models.SyncQueueItem{Shop: shop}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	stats := map[types.SyncItemStatus]int64{}
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}
