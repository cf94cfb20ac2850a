package crawl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fwojciec/sitecrawl"
	"golang.org/x/time/rate"
)

// Scheduler defaults.
const (
	DefaultRunLimit    = 4
	DefaultPollTimeout = time.Second
)

// throttleLogInterval limits how often the rate window line is logged while
// transfers are in flight.
const throttleLogInterval = 5 * time.Second

// Scheduler owns the pending queue and the in-flight set. It admits transfers
// to the transport within the run limit and the rate budget, and hands each
// completed transfer to its completion callback.
//
// Run executes on a single goroutine; completion callbacks run on that
// goroutine. Enqueue and Interrupt may be called from any goroutine.
type Scheduler struct {
	transport   sitecrawl.Transport
	store       sitecrawl.QueueStore
	budget      *RateBudget
	logger      *slog.Logger
	runLimit    int
	pollTimeout time.Duration

	pending  PendingQueue
	inFlight map[*sitecrawl.Transfer]struct{}
	frozen   atomic.Bool
	running  atomic.Bool
	throttle rate.Sometimes
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRunLimit sets the maximum number of concurrently running transfers.
func WithRunLimit(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.runLimit = n
		}
	}
}

// WithRateBudget sets the start rate budget.
func WithRateBudget(b *RateBudget) SchedulerOption {
	return func(s *Scheduler) { s.budget = b }
}

// WithQueueStore sets where the pending queue is persisted.
func WithQueueStore(store sitecrawl.QueueStore) SchedulerOption {
	return func(s *Scheduler) { s.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPollTimeout sets how long a single transport poll may wait.
func WithPollTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollTimeout = d
		}
	}
}

// NewScheduler creates a Scheduler that starts transfers on transport.
func NewScheduler(transport sitecrawl.Transport, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		transport:   transport,
		budget:      NewRateBudget(0, 0),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		runLimit:    DefaultRunLimit,
		pollTimeout: DefaultPollTimeout,
		inFlight:    make(map[*sitecrawl.Transfer]struct{}),
		throttle:    rate.Sometimes{Interval: throttleLogInterval},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue adds a pending transfer. Priority transfers go to the head of the
// queue. Enqueue never blocks on the network.
func (s *Scheduler) Enqueue(t *sitecrawl.Transfer, priority bool) {
	if priority {
		s.pending.PushFront(t)
	} else {
		s.pending.PushBack(t)
	}
	s.logger.Log(context.Background(), sitecrawl.LevelTrace, "queued",
		"url", t.URL,
		"priority", priority,
	)
}

// Interrupt stops admission. Run returns once in-flight transfers drain,
// after persisting the pending queue.
func (s *Scheduler) Interrupt() {
	s.frozen.Store(true)
}

// Interrupted reports whether Interrupt has been called.
func (s *Scheduler) Interrupted() bool {
	return s.frozen.Load()
}

// Pending returns the durable form of the pending queue, head first.
func (s *Scheduler) Pending() []sitecrawl.QueuedRequest {
	return s.pending.Requests()
}

// Restore loads the persisted queue and rebuilds its transfers in stored
// order. Each transfer is enqueued only if accept returns true for it; a nil
// accept takes every transfer. Returns the enqueued transfers.
func (s *Scheduler) Restore(ctx context.Context, accept func(*sitecrawl.Transfer) bool) ([]*sitecrawl.Transfer, error) {
	if s.store == nil {
		return nil, nil
	}
	reqs, err := s.store.LoadQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore queue: %w", err)
	}

	transfers := make([]*sitecrawl.Transfer, 0, len(reqs))
	for _, req := range reqs {
		t := sitecrawl.NewTransferFromRequest(req)
		if accept != nil && !accept(t) {
			continue
		}
		s.pending.PushBack(t)
		transfers = append(transfers, t)
	}
	s.logger.Info("state restored", "pending", len(transfers), "skipped", len(reqs)-len(transfers))
	return transfers, nil
}

// Run drives transfers until the queue drains or the scheduler is
// interrupted. A cancelled ctx interrupts the scheduler; in-flight transfers
// are always allowed to complete. Returns an error only if the queue state
// cannot be persisted.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return sitecrawl.Errorf(sitecrawl.ECONFLICT, "scheduler is already running")
	}
	defer s.running.Store(false)

	var throttled time.Duration
	for {
		if ctx.Err() != nil {
			s.Interrupt()
		}

		if len(s.inFlight) > 0 {
			timeout := s.pollTimeout
			if throttled > 0 && throttled < timeout {
				timeout = throttled
			}
			for _, t := range s.transport.Poll(timeout) {
				s.complete(t)
			}
		}

		throttled = 0
		if !s.frozen.Load() {
			throttled = s.admit(ctx)
		}

		if len(s.inFlight) == 0 {
			if s.frozen.Load() {
				return s.save(context.WithoutCancel(ctx))
			}
			if s.pending.Len() == 0 {
				return s.clear(context.WithoutCancel(ctx))
			}
		}
	}
}

// admit starts pending transfers while capacity and budget allow. It returns
// the time until the budget resets when admission stopped on the budget with
// transfers still in flight.
func (s *Scheduler) admit(ctx context.Context) time.Duration {
	for len(s.inFlight) < s.runLimit && s.pending.Len() > 0 {
		if wait := s.budget.Reserve(); wait > 0 {
			if len(s.inFlight) > 0 {
				s.throttle.Do(func() {
					s.logger.Log(ctx, sitecrawl.LevelTrace, "rate window exhausted",
						"wait", wait,
						"inFlight", len(s.inFlight),
					)
				})
				return wait
			}
			s.logger.Log(ctx, sitecrawl.LevelTrace, "rate window exhausted", "wait", wait)
			if err := s.budget.Sleep(ctx, wait); err != nil {
				s.Interrupt()
				return 0
			}
			continue
		}

		t, ok := s.pending.PopFront()
		if !ok {
			return 0
		}
		s.start(t)
	}
	return 0
}

func (s *Scheduler) start(t *sitecrawl.Transfer) {
	s.inFlight[t] = struct{}{}
	s.logger.Debug("started", "url", t.URL)

	if err := s.transport.Start(t); err != nil {
		t.Complete(0, "", nil, err)
		s.complete(t)
	}
}

func (s *Scheduler) complete(t *sitecrawl.Transfer) {
	if _, ok := s.inFlight[t]; !ok {
		return
	}
	delete(s.inFlight, t)

	t.Finish()
	t.Close()

	s.logger.Info("finished",
		"url", t.URL,
		"status", t.StatusCode,
		"bytes", len(t.Body),
		"duration", t.Duration,
	)
}

func (s *Scheduler) save(ctx context.Context) error {
	reqs := s.pending.Requests()
	if s.store != nil {
		if err := s.store.SaveQueue(ctx, reqs); err != nil {
			return fmt.Errorf("save queue: %w", err)
		}
	}
	s.logger.Info("state saved", "pending", len(reqs))
	return nil
}

func (s *Scheduler) clear(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveQueue(ctx, nil); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}
