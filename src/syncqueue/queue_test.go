package syncqueue

import (
	"context"
	"creditnote/src/engine"
	"creditnote/src/models"
	"creditnote/src/types"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testShop = "teststore.myshopify.com"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	d, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("error opening test database: %s", err.Error())
	}
	inner, err := d.DB()
	if err != nil {
		log.Fatalf("error accessing inner db instance: %s", err.Error())
	}
	inner.SetMaxOpenConns(1)
	if err := d.AutoMigrate(
		&models.CreditNote{},
		&models.RedemptionRecord{},
		&models.SyncQueueItem{},
	); err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}
	t.Cleanup(func() { inner.Close() })
	return d
}

type flakyGateway struct {
	err error
}

func (g *flakyGateway) RefreshCustomerBalance(ctx context.Context, shop string, customerID string, balance decimal.Decimal) error {
	return g.err
}

func newTestQueue(t *testing.T, gateway engine.Gateway) (*Queue, *engine.Engine, *gorm.DB) {
	t.Helper()
	d := newTestDB(t)
	eng := engine.New(d, gateway)
	return New(d, eng), eng, d
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestEnqueueValidatesPayload(t *testing.T) {
	q, _, _ := newTestQueue(t, nil)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, testShop, types.SYNC_CREDIT_CREATE, types.JSONB{
		"customer_id": "gid://shopify/Customer/100",
		"amount":      "25.00",
	}, "pos-7", 0)
	assert.Nil(t, err)
	assert.Equal(t, types.SYNC_PENDING, item.Status)
	assert.Equal(t, DefaultMaxRetries, item.MaxRetries)
	assert.Equal(t, "pos-7", *item.PosDeviceID)
	assert.False(t, item.NextRetryAt.After(time.Now()))

	_, err = q.Enqueue(ctx, testShop, "CREDIT_TELEPORT", types.JSONB{}, "", 0)
	assert.NotNil(t, err)

	_, err = q.Enqueue(ctx, testShop, types.SYNC_CREDIT_CREATE, types.JSONB{
		"amount": "25.00",
	}, "", 0)
	assert.NotNil(t, err)

	_, err = q.Enqueue(ctx, testShop, types.SYNC_CREDIT_REDEEM, types.JSONB{
		"code": "CNABC",
	}, "", 0)
	assert.NotNil(t, err)
}

func TestDrainReplaysOperations(t *testing.T) {
	q, eng, d := newTestQueue(t, nil)
	ctx := context.Background()

	note, err := eng.Create(ctx, testShop, engine.CreateInput{
		CustomerID: "gid://shopify/Customer/100",
		Amount:     dec("50.00"),
	})
	assert.Nil(t, err)

	_, err = q.Enqueue(ctx, testShop, types.SYNC_CREDIT_CREATE, types.JSONB{
		"customer_id": "gid://shopify/Customer/200",
		"amount":      "25.00",
	}, "pos-7", 0)
	assert.Nil(t, err)
	redeemItem, err := q.Enqueue(ctx, testShop, types.SYNC_CREDIT_REDEEM, types.JSONB{
		"code":   note.QRCode,
		"amount": "20.00",
	}, "pos-7", 0)
	assert.Nil(t, err)

	result, err := q.Drain(ctx, testShop, 0)
	assert.Nil(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, int64(0), result.Remaining)

	// The replayed create landed as a real note.
	list, err := eng.List(ctx, testShop, engine.ListFilters{CustomerID: "gid://shopify/Customer/200"})
	assert.Nil(t, err)
	assert.Equal(t, int64(1), list.TotalCount)

	// The replayed redemption debited the note and carries provenance.
	fresh, err := eng.FindByID(ctx, testShop, note.ID.String())
	assert.Nil(t, err)
	assert.True(t, fresh.RemainingAmount.Equal(dec("30.00")))
	var record models.RedemptionRecord
	assert.Nil(t, d.
		Where(&models.RedemptionRecord{CreditNoteID: note.ID, Type: types.REDEMPTION_REDEMPTION}).
		First(&record).Error)
	assert.Equal(t, redeemItem.ID.String(), record.Metadata["sync_item_id"])
	assert.Equal(t, true, record.Metadata["offline_sync"])
	assert.Equal(t, "pos-7", *record.DeviceID)

	var item models.SyncQueueItem
	assert.Nil(t, d.Where("id = ?", redeemItem.ID).First(&item).Error)
	assert.Equal(t, types.SYNC_COMPLETED, item.Status)
	assert.NotNil(t, item.ProcessedAt)
}

func TestDrainProcessesOldestFirst(t *testing.T) {
	q, eng, d := newTestQueue(t, nil)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, testShop, types.SYNC_CREDIT_CREATE, types.JSONB{
		"customer_id": "gid://shopify/Customer/100",
		"amount":      "10.00",
	}, "", 0)
	assert.Nil(t, err)
	second, err := q.Enqueue(ctx, testShop, types.SYNC_CREDIT_CREATE, types.JSONB{
		"customer_id": "gid://shopify/Customer/100",
		"amount":      "20.00",
	}, "", 0)
	assert.Nil(t, err)
	// Make the ordering unambiguous for same-instant inserts.
	assert.Nil(t, d.Model(&models.SyncQueueItem{}).
		Where("id = ?", first.ID).
		Update("created_at", time.Now().Add(-time.Minute)).Error)

	result, err := q.Drain(ctx, testShop, 1)
	assert.Nil(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, int64(1), result.Remaining)

	var drained, waiting models.SyncQueueItem
	assert.Nil(t, d.Where("id = ?", first.ID).First(&drained).Error)
	assert.Equal(t, types.SYNC_COMPLETED, drained.Status)
	assert.Nil(t, d.Where("id = ?", second.ID).First(&waiting).Error)
	assert.Equal(t, types.SYNC_PENDING, waiting.Status)

	list, err := eng.List(ctx, testShop, engine.ListFilters{})
	assert.Nil(t, err)
	assert.Equal(t, int64(1), list.TotalCount)
}

func TestDrainSchedulesRetryWithBackoff(t *testing.T) {
	q, _, d := newTestQueue(t, nil)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, testShop, types.SYNC_CREDIT_REDEEM, types.JSONB{
		"code":   "CNDOESNOTEXIST",
		"amount": "10.00",
	}, "", 0)
	assert.Nil(t, err)

	start := time.Now()
	result, err := q.Drain(ctx, testShop, 0)
	assert.Nil(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Errors, 1)

	var stored models.SyncQueueItem
	assert.Nil(t, d.Where("id = ?", item.ID).First(&stored).Error)
	assert.Equal(t, types.SYNC_PENDING, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.NotNil(t, stored.Error)
	// First retry is due two minutes out.
	assert.True(t, stored.NextRetryAt.After(start.Add(time.Minute)))

	// Not eligible again until the deadline passes.
	result, err = q.Drain(ctx, testShop, 0)
	assert.Nil(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, int64(1), result.Remaining)
}

func TestDrainAbandonsAfterMaxRetries(t *testing.T) {
	q, _, d := newTestQueue(t, &flakyGateway{err: errors.New("admin api unavailable")})
	ctx := context.Background()

	item, err := q.Enqueue(ctx, testShop, types.SYNC_CUSTOMER_UPDATE, types.JSONB{
		"customer_id": "gid://shopify/Customer/100",
	}, "", 0)
	assert.Nil(t, err)

	for attempt := 1; attempt <= DefaultMaxRetries; attempt++ {
		result, err := q.Drain(ctx, testShop, 0)
		assert.Nil(t, err)
		assert.Equal(t, 1, result.Failed)

		var stored models.SyncQueueItem
		assert.Nil(t, d.Where("id = ?", item.ID).First(&stored).Error)
		assert.Equal(t, attempt, stored.RetryCount)
		if attempt < DefaultMaxRetries {
			assert.Equal(t, types.SYNC_PENDING, stored.Status)
			// Pull the deadline back so the next pass picks it up.
			assert.Nil(t, d.Model(&models.SyncQueueItem{}).
				Where("id = ?", item.ID).
				Update("next_retry_at", time.Now().Add(-time.Second)).Error)
		} else {
			assert.Equal(t, types.SYNC_ABANDONED, stored.Status)
		}
	}

	// Abandoned items are never picked up again.
	result, err := q.Drain(ctx, testShop, 0)
	assert.Nil(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, int64(0), result.Remaining)
}

func TestDrainIsShopScoped(t *testing.T) {
	q, _, d := newTestQueue(t, nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "store-a.myshopify.com", types.SYNC_CREDIT_CREATE, types.JSONB{
		"customer_id": "gid://shopify/Customer/100",
		"amount":      "10.00",
	}, "", 0)
	assert.Nil(t, err)

	result, err := q.Drain(ctx, "store-b.myshopify.com", 0)
	assert.Nil(t, err)
	assert.Equal(t, 0, result.Processed)

	var count int64
	assert.Nil(t, d.Model(&models.SyncQueueItem{}).
		Where(&models.SyncQueueItem{Shop: "store-a.myshopify.com", Status: types.SYNC_PENDING}).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGCRespectsRetention(t *testing.T) {
	q, _, d := newTestQueue(t, nil)
	ctx := context.Background()

	oldProcessed := time.Now().Add(-2 * completedRetention)
	freshProcessed := time.Now()
	veryOld := time.Now().Add(-2 * terminalRetention)

	collectable := models.SyncQueueItem{
		Shop:          testShop,
		OperationType: types.SYNC_CUSTOMER_UPDATE,
		Payload:       types.JSONB{"customer_id": "c1"},
		Status:        types.SYNC_COMPLETED,
		ProcessedAt:   &oldProcessed,
	}
	recent := models.SyncQueueItem{
		Shop:          testShop,
		OperationType: types.SYNC_CUSTOMER_UPDATE,
		Payload:       types.JSONB{"customer_id": "c2"},
		Status:        types.SYNC_COMPLETED,
		ProcessedAt:   &freshProcessed,
	}
	abandoned := models.SyncQueueItem{
		Shop:          testShop,
		OperationType: types.SYNC_CUSTOMER_UPDATE,
		Payload:       types.JSONB{"customer_id": "c3"},
		Status:        types.SYNC_ABANDONED,
	}
	assert.Nil(t, d.Create(&collectable).Error)
	assert.Nil(t, d.Create(&recent).Error)
	assert.Nil(t, d.Create(&abandoned).Error)
	assert.Nil(t, d.Model(&models.SyncQueueItem{}).
		Where("id = ?", abandoned.ID).
		Update("created_at", veryOld).Error)

	q.gc(ctx, testShop)

	var count int64
	assert.Nil(t, d.Model(&models.SyncQueueItem{}).Where("id = ?", collectable.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	assert.Nil(t, d.Model(&models.SyncQueueItem{}).Where("id = ?", recent.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Nil(t, d.Model(&models.SyncQueueItem{}).Where("id = ?", abandoned.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestStatsGroupsByStatus(t *testing.T) {
	q, _, d := newTestQueue(t, nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testShop, types.SYNC_CUSTOMER_UPDATE, types.JSONB{
		"customer_id": "gid://shopify/Customer/100",
	}, "", 0)
	assert.Nil(t, err)
	done := models.SyncQueueItem{
		Shop:          testShop,
		OperationType: types.SYNC_CUSTOMER_UPDATE,
		Payload:       types.JSONB{"customer_id": "c2"},
		Status:        types.SYNC_COMPLETED,
	}
	assert.Nil(t, d.Create(&done).Error)

	stats, err := q.Stats(ctx, testShop)
	assert.Nil(t, err)
	assert.Equal(t, int64(1), stats[types.SYNC_PENDING])
	assert.Equal(t, int64(1), stats[types.SYNC_COMPLETED])
}

func TestTruncateError(t *testing.T) {
	short := errors.New("boom")
	assert.Equal(t, "boom", truncateError(short))

	long := errors.New(strings.Repeat("x", maxErrorLen+50))
	assert.Len(t, truncateError(long), maxErrorLen)
}
