package crawl_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/sitecrawl/crawl"
	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock. Sleeping advances it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func TestRateBudget_Reserve(t *testing.T) {
	t.Parallel()

	t.Run("admits the first start immediately", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		b := crawl.NewRateBudget(1, 3*time.Second, crawl.WithClock(clock.Now))

		assert.Zero(t, b.Reserve())
	})

	t.Run("returns the time until the window resets when exhausted", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		b := crawl.NewRateBudget(1, 3*time.Second, crawl.WithClock(clock.Now))
		b.Reserve()

		assert.Equal(t, 3*time.Second, b.Reserve())
		clock.Advance(time.Second)
		assert.Equal(t, 2*time.Second, b.Reserve())
	})

	t.Run("resets after the gap elapses", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		b := crawl.NewRateBudget(1, 3*time.Second, crawl.WithClock(clock.Now))
		b.Reserve()

		clock.Advance(3 * time.Second)

		assert.Zero(t, b.Reserve())
		assert.Equal(t, 3*time.Second, b.Reserve())
	})

	t.Run("admits up to the limit within one window", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		b := crawl.NewRateBudget(3, time.Second, crawl.WithClock(clock.Now))

		assert.Zero(t, b.Reserve())
		clock.Advance(100 * time.Millisecond)
		assert.Zero(t, b.Reserve())
		assert.Zero(t, b.Reserve())
		assert.Equal(t, 900*time.Millisecond, b.Reserve())
	})

	t.Run("never throttles when disabled", func(t *testing.T) {
		t.Parallel()

		b := crawl.NewRateBudget(0, time.Second)
		for i := 0; i < 10; i++ {
			assert.Zero(t, b.Reserve())
		}
	})
}

func TestRateBudget_Sleep(t *testing.T) {
	t.Parallel()

	t.Run("returns early when the context is cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		b := crawl.NewRateBudget(1, time.Hour)

		start := time.Now()
		err := b.Sleep(ctx, time.Hour)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("uses the injected sleeper", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		b := crawl.NewRateBudget(1, time.Second, crawl.WithSleeper(clock.Sleep))

		assert.NoError(t, b.Sleep(context.Background(), 2*time.Second))
		assert.Equal(t, []time.Duration{2 * time.Second}, clock.Sleeps())
	})
}
