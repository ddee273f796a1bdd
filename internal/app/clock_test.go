package app_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrquest/internal/app"
)

func TestQuestClockIsActive(t *testing.T) {
	ft := &fakeTime{now: time.Date(2025, 5, 21, 18, 0, 0, 0, time.UTC)}
	clock := app.NewQuestClockWithNow(ft.Now().Add(time.Minute), ft.Now)

	assert.True(t, clock.IsActive())
	ft.Advance(time.Minute)
	assert.False(t, clock.IsActive())

	assert.True(t, app.NewQuestClock(time.Time{}).IsActive())
}

func TestQuestClockFiresOnce(t *testing.T) {
	clock := app.NewQuestClock(time.Now().Add(20 * time.Millisecond))

	var fired int32
	fire := func(context.Context) { atomic.AddInt32(&fired, 1) }

	done := make(chan struct{})
	go func() {
		clock.Run(context.Background(), fire)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "clock did not fire")
	}
	clock.Run(context.Background(), fire)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestQuestClockElapsedDeadlineFiresImmediately(t *testing.T) {
	clock := app.NewQuestClock(time.Now().Add(-time.Hour))

	fired := false
	clock.Run(context.Background(), func(context.Context) { fired = true })
	assert.True(t, fired)
}

func TestQuestClockCancelDoesNotFire(t *testing.T) {
	clock := app.NewQuestClock(time.Now().Add(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	fired := int32(0)
	go func() {
		clock.Run(ctx, func(context.Context) { atomic.StoreInt32(&fired, 1) })
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "clock did not stop on cancel")
	}
	require.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestRunClockBroadcastsResults(t *testing.T) {
	f := newFixture(t, catalogOf(1))
	f.join(t, "u1", "alice", "q1")
	f.time.Advance(2 * time.Hour)

	f.engine.RunClock(context.Background())

	require.Len(t, f.notifier.closed, 1)
	assert.Len(t, f.notifier.closed[0], 1)
}
