package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound covers a missing note and a note belonging to another
	// shop. Callers must not be able to tell the two apart.
	ErrNotFound = errors.New("credit note not found")

	// ErrRejected is the base of every business-rule refusal.
	ErrRejected = errors.New("redemption rejected")

	// ErrConflict is returned when a concurrent mutation was detected and
	// internal retries were exhausted.
	ErrConflict = errors.New("concurrent modification detected")
)

// ValidationError reports malformed input. It is raised before any store
// access, so a failing call never leaves partial state behind.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// RejectionError carries the machine-checkable refusal reason and, when the
// requested amount exceeds the remaining balance, the maximum amount the
// caller could retry with.
type RejectionError struct {
	Reason    string
	MaxAmount *decimal.Decimal
}

func (e *RejectionError) Error() string {
	if e.MaxAmount != nil {
		return fmt.Sprintf("%s (max %s)", e.Reason, e.MaxAmount.StringFixed(2))
	}
	return e.Reason
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
