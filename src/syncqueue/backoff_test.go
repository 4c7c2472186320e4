package syncqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextRetryAtDoubles(t *testing.T) {
	now := time.Now()

	assert.Equal(t, now.Add(1*time.Minute), NextRetryAt(0, now))
	assert.Equal(t, now.Add(2*time.Minute), NextRetryAt(1, now))
	assert.Equal(t, now.Add(4*time.Minute), NextRetryAt(2, now))
	assert.Equal(t, now.Add(8*time.Minute), NextRetryAt(3, now))
}

func TestNextRetryAtIsPure(t *testing.T) {
	now := time.Now()
	assert.Equal(t, NextRetryAt(2, now), NextRetryAt(2, now))
}
