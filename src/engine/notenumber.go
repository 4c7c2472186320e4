package engine

import (
	"context"
	"creditnote/src/models"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"
)

// AllocatePolicy bounds the note-number collision probe. Collisions happen
// when several POS devices issue notes in the same instant; they are detected
// and retried rather than locked out.
type AllocatePolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultAllocatePolicy retries up to 10 times with exponential backoff,
// 100ms base and a 1s cap.
func DefaultAllocatePolicy() AllocatePolicy {
	return AllocatePolicy{
		MaxAttempts: 10,
		Backoff: func(attempt int) time.Duration {
			d := 100 * time.Millisecond << attempt
			if d > time.Second {
				return time.Second
			}
			return d
		},
	}
}

func noteNumberCandidate(now time.Time) string {
	// Sub-second timestamp plus a random tail keeps candidates distinct for
	// devices issuing within the same millisecond.
	return fmt.Sprintf("CN-%d-%06d%03d", now.Year(), now.UnixMilli()%1_000_000, rand.Intn(1000))
}

func noteNumberFallback(now time.Time) string {
	return fmt.Sprintf("CN-%d-%d%04d", now.Year(), now.UnixNano(), rand.Intn(10000))
}

// allocateNoteNumber probes the store for an unused note number under shop.
// After the policy is exhausted it falls back to a nanosecond-timestamped
// value instead of surfacing the conflict. It runs before the create
// transaction opens so the backoff sleeps never hold a connection; the
// unique index on (shop, note_number) still catches the residual race.
func (e *Engine) allocateNoteNumber(ctx context.Context, shop string) (string, error) {
	for attempt := 0; attempt < e.alloc.MaxAttempts; attempt++ {
		candidate := noteNumberCandidate(time.Now())
		var existing models.CreditNote
		err := e.db.WithContext(ctx).
			Unscoped().
			Where(&models.CreditNote{Shop: shop, NoteNumber: candidate}).
			First(&existing).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		time.Sleep(e.alloc.Backoff(attempt))
	}
	return noteNumberFallback(time.Now()), nil
}
