// clock.go implements the monotonic write timestamp source.
package loamkv

import (
	"sync"
	"time"

	"github.com/aalhour/loamkv/internal/base"
)

// tsClock hands out strictly increasing millisecond timestamps. Wall-clock
// collisions and regressions bump to previous+1, so two writes never share a
// timestamp from the same store.
type tsClock struct {
	mu   sync.Mutex
	last base.Timestamp
	now  func() time.Time
}

func newClock() *tsClock {
	return &tsClock{now: time.Now}
}

// Next returns the next write timestamp.
func (c *tsClock) Next() base.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := base.Timestamp(c.now().UnixMilli())
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// Observe raises the floor so replayed timestamps are never reissued.
func (c *tsClock) Observe(ts base.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.last {
		c.last = ts
	}
}
