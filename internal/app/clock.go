package app

import (
	"context"
	"sync"
	"time"
)

// QuestClock time-boxes the quest. A zero deadline never closes.
type QuestClock struct {
	deadline time.Time
	now      func() time.Time
	once     sync.Once
}

func NewQuestClock(deadline time.Time) *QuestClock {
	return NewQuestClockWithNow(deadline, time.Now)
}

// NewQuestClockWithNow allows deterministic clocks in tests.
func NewQuestClockWithNow(deadline time.Time, now func() time.Time) *QuestClock {
	return &QuestClock{deadline: deadline, now: now}
}

func (c *QuestClock) Deadline() time.Time {
	return c.deadline
}

// IsActive reports whether now is before the deadline.
func (c *QuestClock) IsActive() bool {
	return c.deadline.IsZero() || c.now().Before(c.deadline)
}

// Run blocks until the deadline and then calls fire exactly once. An already elapsed
// deadline fires immediately. Cancelling ctx returns without firing.
func (c *QuestClock) Run(ctx context.Context, fire func(context.Context)) {
	if c.deadline.IsZero() {
		<-ctx.Done()
		return
	}

	if wait := c.deadline.Sub(c.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
	if ctx.Err() != nil {
		return
	}
	c.once.Do(func() { fire(ctx) })
}
