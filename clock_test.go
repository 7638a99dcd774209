package loamkv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aalhour/loamkv/internal/base"
)

func TestClockStrictlyIncreasing(t *testing.T) {
	c := newClock()
	prev := c.Next()
	for i := 0; i < 1000; i++ {
		ts := c.Next()
		assert.Greater(t, ts, prev)
		prev = ts
	}
}

func TestClockBumpsOnCollision(t *testing.T) {
	frozen := time.UnixMilli(1_000_000)
	c := &tsClock{now: func() time.Time { return frozen }}

	first := c.Next()
	assert.Equal(t, base.Timestamp(1_000_000), first)
	assert.Equal(t, first+1, c.Next())
	assert.Equal(t, first+2, c.Next())
}

func TestClockBumpsOnRegression(t *testing.T) {
	now := time.UnixMilli(5000)
	c := &tsClock{now: func() time.Time { return now }}

	first := c.Next()
	now = time.UnixMilli(1000)
	assert.Equal(t, first+1, c.Next())
}

func TestClockObserveRaisesFloor(t *testing.T) {
	now := time.UnixMilli(1000)
	c := &tsClock{now: func() time.Time { return now }}

	c.Observe(9999)
	assert.Equal(t, base.Timestamp(10000), c.Next())

	// Observing something older changes nothing.
	c.Observe(5)
	assert.Equal(t, base.Timestamp(10001), c.Next())
}
