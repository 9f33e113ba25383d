// Package alarm implements spec.md §5's per-aggregate alarm: a single
// scheduled wakeup per aggregate that drives async projection catch-up,
// queued effect delivery, and retry of failed effects. Setting an alarm
// is idempotent — the earliest pending fire time for an aggregate always
// wins, matching a re-armed timer rather than a queue of timers.
package alarm

import (
	"context"
	"sync"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/process"
	"github.com/kieran-gray/fern-labour-sub001/pkg/runner"
)

// Handler is invoked when an aggregate's alarm fires. A non-nil error
// causes the alarm to be rescheduled using Scheduler's backoff policy;
// a nil error clears the aggregate's retry count.
type Handler func(ctx context.Context, aggregateID string) error

// Scheduler fires Handler once per aggregate no earlier than its
// scheduled time. It implements runner.Service so it can be started and
// stopped alongside the rest of the process.
type Scheduler struct {
	mu       sync.Mutex
	pending  map[string]time.Time
	attempts map[string]int
	backoff  process.BackoffConfig
	handler  Handler
	logger   runner.Logger

	timer  *time.Timer
	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	// pollInterval bounds how long the run loop ever sleeps without a
	// scheduled alarm, so a Schedule call racing the loop's timer setup
	// is never lost for longer than this.
	pollInterval time.Duration
}

type Option func(*Scheduler)

func WithBackoff(b process.BackoffConfig) Option {
	return func(s *Scheduler) { s.backoff = b }
}

func WithLogger(l runner.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

func NewScheduler(handler Handler, opts ...Option) *Scheduler {
	s := &Scheduler{
		pending:      make(map[string]time.Time),
		attempts:     make(map[string]int),
		backoff:      process.DefaultBackoff(),
		logger:       runner.NewNoopLogger(),
		handler:      handler,
		wake:         make(chan struct{}, 1),
		pollInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Name() string { return "alarm-scheduler" }

// Schedule arms the aggregate's alarm for `at`, unless an earlier fire
// time is already pending — the earliest time always wins.
func (s *Scheduler) Schedule(aggregateID string, at time.Time) {
	s.mu.Lock()
	existing, ok := s.pending[aggregateID]
	if !ok || at.Before(existing) {
		s.pending[aggregateID] = at
	}
	s.mu.Unlock()
	s.nudge()
}

// Cancel clears any pending alarm for the aggregate.
func (s *Scheduler) Cancel(aggregateID string) {
	s.mu.Lock()
	delete(s.pending, aggregateID)
	delete(s.attempts, aggregateID)
	s.mu.Unlock()
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.stopCh)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.timer = time.NewTimer(s.pollInterval)
	defer s.timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-s.wake:
			s.resetTimer()
		case <-s.timer.C:
			s.fireDue(ctx)
			s.resetTimer()
		}
	}
}

// resetTimer reprograms the timer to fire at the earliest pending alarm,
// or after pollInterval if nothing is scheduled.
func (s *Scheduler) resetTimer() {
	s.mu.Lock()
	var earliest time.Time
	for _, at := range s.pending {
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
	}
	s.mu.Unlock()

	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}

	d := s.pollInterval
	if !earliest.IsZero() {
		if until := time.Until(earliest); until < d {
			d = until
		}
	}
	if d < 0 {
		d = 0
	}
	s.timer.Reset(d)
}

func (s *Scheduler) fireDue(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []string
	for id, at := range s.pending {
		if !at.After(now) {
			due = append(due, id)
		}
	}
	for _, id := range due {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	for _, id := range due {
		if err := s.handler(ctx, id); err != nil {
			s.logger.Error("alarm handler failed", "aggregate_id", id, "error", err)
			s.retry(id)
			continue
		}
		s.mu.Lock()
		delete(s.attempts, id)
		s.mu.Unlock()
	}
}

func (s *Scheduler) retry(aggregateID string) {
	s.mu.Lock()
	s.attempts[aggregateID]++
	attempt := s.attempts[aggregateID]
	s.mu.Unlock()

	if attempt > s.backoff.MaxRetries {
		s.logger.Error("alarm retries exhausted", "aggregate_id", aggregateID, "attempts", attempt)
		return
	}
	s.Schedule(aggregateID, time.Now().Add(s.backoff.Delay(attempt)))
}
