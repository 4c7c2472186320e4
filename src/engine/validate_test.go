package engine

import (
	"creditnote/src/models"
	"creditnote/src/types"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func activeNote(remaining, original string) *models.CreditNote {
	return &models.CreditNote{
		Status:          types.CREDIT_NOTE_ACTIVE,
		RemainingAmount: dec(remaining),
		OriginalAmount:  dec(original),
	}
}

func TestValidateAcceptsRedeemableNote(t *testing.T) {
	now := time.Now()

	v := ValidateForRedemptionAt(activeNote("50", "50"), nil, now)
	assert.True(t, v.OK)

	v = ValidateForRedemptionAt(activeNote("50", "50"), decp("50"), now)
	assert.True(t, v.OK)

	partial := activeNote("20", "50")
	partial.Status = types.CREDIT_NOTE_PARTIALLY_USED
	v = ValidateForRedemptionAt(partial, decp("20"), now)
	assert.True(t, v.OK)
}

func TestValidateRejectsByStatus(t *testing.T) {
	now := time.Now()
	for _, status := range []types.CreditNoteStatus{
		types.CREDIT_NOTE_EXPIRED,
		types.CREDIT_NOTE_DELETED,
	} {
		note := activeNote("50", "50")
		note.Status = status
		v := ValidateForRedemptionAt(note, nil, now)
		assert.False(t, v.OK)
		assert.Equal(t, string(status), v.Reason)
	}

	// A spent note rejects as exhausted, not with its raw status.
	spent := activeNote("0", "50")
	spent.Status = types.CREDIT_NOTE_FULLY_USED
	v := ValidateForRedemptionAt(spent, nil, now)
	assert.False(t, v.OK)
	assert.Equal(t, ReasonExhausted, v.Reason)
}

func TestValidateRejectsExpired(t *testing.T) {
	now := time.Now()
	note := activeNote("50", "50")
	expired := now.Add(-time.Minute)
	note.ExpiresAt = &expired

	v := ValidateForRedemptionAt(note, nil, now)
	assert.False(t, v.OK)
	assert.Equal(t, ReasonExpired, v.Reason)

	// The same note is fine when checked before the deadline.
	v = ValidateForRedemptionAt(note, nil, now.Add(-time.Hour))
	assert.True(t, v.OK)
}

func TestValidateRejectsExhausted(t *testing.T) {
	note := activeNote("0", "50")
	v := ValidateForRedemptionAt(note, nil, time.Now())
	assert.False(t, v.OK)
	assert.Equal(t, ReasonExhausted, v.Reason)
}

func TestValidateRejectsBadAmounts(t *testing.T) {
	now := time.Now()
	note := activeNote("30", "50")

	v := ValidateForRedemptionAt(note, decp("0"), now)
	assert.False(t, v.OK)
	assert.Equal(t, ReasonInvalidAmount, v.Reason)

	v = ValidateForRedemptionAt(note, decp("-5"), now)
	assert.False(t, v.OK)
	assert.Equal(t, ReasonInvalidAmount, v.Reason)

	v = ValidateForRedemptionAt(note, decp("30.01"), now)
	assert.False(t, v.OK)
	assert.Equal(t, ReasonExceeds, v.Reason)
	assert.NotNil(t, v.MaxAmount)
	assert.True(t, v.MaxAmount.Equal(dec("30")))
}

func TestValidateDoesNotMutate(t *testing.T) {
	note := activeNote("30", "50")
	before := *note
	requested := dec("100")

	ValidateForRedemptionAt(note, &requested, time.Now())

	assert.Equal(t, before.Status, note.Status)
	assert.True(t, before.RemainingAmount.Equal(note.RemainingAmount))
	assert.True(t, requested.Equal(dec("100")))
}

func TestStatusForDerivation(t *testing.T) {
	assert.Equal(t, types.CREDIT_NOTE_ACTIVE, statusFor(dec("50"), dec("50")))
	assert.Equal(t, types.CREDIT_NOTE_PARTIALLY_USED, statusFor(dec("20"), dec("50")))
	assert.Equal(t, types.CREDIT_NOTE_FULLY_USED, statusFor(dec("0"), dec("50")))
	assert.Equal(t, types.CREDIT_NOTE_FULLY_USED, statusFor(dec("-1"), dec("50")))
}
