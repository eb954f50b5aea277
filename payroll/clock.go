package payroll

import (
	"sync"
	"time"
)

// Clock supplies "today" at day granularity.
type Clock interface {
	Today() Date
}

// SystemClock reads the wall clock in Location (UTC when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Today() Date {
	t := time.Now()
	if c.Location != nil {
		t = t.In(c.Location)
	} else {
		t = t.UTC()
	}
	return DateOf(t)
}

// FixedClock is a settable clock for tests and backfills.
type FixedClock struct {
	mu    sync.RWMutex
	today Date
}

func NewFixedClock(today Date) *FixedClock {
	return &FixedClock{today: today}
}

func (c *FixedClock) Today() Date {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.today
}

func (c *FixedClock) Set(today Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.today = today
}
