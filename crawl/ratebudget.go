package crawl

import (
	"context"
	"sync"
	"time"
)

// RateBudget admits at most Limit starts per Gap window. The window opens at
// the first admitted start and resets once Gap has elapsed.
// It is safe for concurrent use by multiple goroutines.
type RateBudget struct {
	limit int
	gap   time.Duration
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	start time.Time
	count int
}

// RateBudgetOption configures a RateBudget.
type RateBudgetOption func(*RateBudget)

// WithClock sets the time source.
func WithClock(now func() time.Time) RateBudgetOption {
	return func(b *RateBudget) { b.now = now }
}

// WithSleeper sets the function used by Sleep.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) RateBudgetOption {
	return func(b *RateBudget) { b.sleep = sleep }
}

// NewRateBudget creates a budget of limit starts per gap. A non-positive
// limit or gap disables throttling.
func NewRateBudget(limit int, gap time.Duration, opts ...RateBudgetOption) *RateBudget {
	b := &RateBudget{
		limit: limit,
		gap:   gap,
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Reserve counts a start and returns 0 when the budget allows it. Otherwise
// nothing is counted and the time until the window resets is returned.
func (b *RateBudget) Reserve() time.Duration {
	if b.limit <= 0 || b.gap <= 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.count == 0 || !now.Before(b.start.Add(b.gap)) {
		b.start = now
		b.count = 1
		return 0
	}
	if b.count < b.limit {
		b.count++
		return 0
	}
	return b.start.Add(b.gap).Sub(now)
}

// Sleep waits for d or until ctx is done.
func (b *RateBudget) Sleep(ctx context.Context, d time.Duration) error {
	return b.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
