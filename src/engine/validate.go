package engine

import (
	"creditnote/src/models"
	"creditnote/src/types"
	"time"

	"github.com/shopspring/decimal"
)

// Rejection reasons reported by ValidateForRedemption. These strings cross
// the API boundary and are matched by POS clients; do not reword casually.
const (
	ReasonExpired       = "expired"
	ReasonExhausted     = "No remaining credit amount"
	ReasonInvalidAmount = "Invalid redemption amount"
	ReasonExceeds       = "exceeds available credit"
)

// Validation is the result of a redemption pre-check.
type Validation struct {
	OK        bool             `json:"ok"`
	Reason    string           `json:"reason,omitempty"`
	MaxAmount *decimal.Decimal `json:"max_amount,omitempty"`
}

func rejected(reason string) Validation {
	return Validation{Reason: reason}
}

// ValidateForRedemption checks whether requested (nil means "whatever is
// left") can be debited from note right now. Pure; no store access.
func ValidateForRedemption(note *models.CreditNote, requested *decimal.Decimal) Validation {
	return ValidateForRedemptionAt(note, requested, time.Now())
}

// ValidateForRedemptionAt is the clock-injected variant used by Redeem and
// by tests. Rules run in order; the first failing rule wins.
func ValidateForRedemptionAt(note *models.CreditNote, requested *decimal.Decimal, now time.Time) Validation {
	if note.Status != types.CREDIT_NOTE_ACTIVE && note.Status != types.CREDIT_NOTE_PARTIALLY_USED {
		// A spent note reads better as "exhausted" than as its raw status.
		if note.Status == types.CREDIT_NOTE_FULLY_USED {
			return rejected(ReasonExhausted)
		}
		return rejected(string(note.Status))
	}
	if note.ExpiresAt != nil && note.ExpiresAt.Before(now) {
		return rejected(ReasonExpired)
	}
	if !note.RemainingAmount.IsPositive() {
		return rejected(ReasonExhausted)
	}
	if requested != nil {
		if !requested.IsPositive() {
			return rejected(ReasonInvalidAmount)
		}
		if requested.GreaterThan(note.RemainingAmount) {
			max := note.RemainingAmount
			v := rejected(ReasonExceeds)
			v.MaxAmount = &max
			return v
		}
	}
	return Validation{OK: true}
}

// statusFor derives the lifecycle status from the remaining balance. Expired
// and deleted are excluded here; they are time- or caller-driven.
func statusFor(remaining, original decimal.Decimal) types.CreditNoteStatus {
	switch {
	case !remaining.IsPositive():
		return types.CREDIT_NOTE_FULLY_USED
	case remaining.LessThan(original):
		return types.CREDIT_NOTE_PARTIALLY_USED
	default:
		return types.CREDIT_NOTE_ACTIVE
	}
}
