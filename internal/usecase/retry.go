package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"GoPredict/internal/domain/models"
	"GoPredict/internal/domain/repository"
	applogger "GoPredict/pkg/logger"
	"GoPredict/pkg/metrics"

	"github.com/jonboulle/clockwork"
)

// ErrSuperseded ends a retry chain because a newer cycle already refreshed
// the dataset.
var ErrSuperseded = errors.New("superseded by a newer cycle")

// AttemptFunc runs one attempt. attempt is 0 for the initial call.
type AttemptFunc func(ctx context.Context, attempt int) error

// RetryCoordinator runs an attempt once and, on failure, schedules delayed
// retries on timers so the caller never waits for them.
type RetryCoordinator struct {
	clock      clockwork.Clock
	delay      time.Duration
	maxRetries int
	metrics    repository.Metrics
	logger     *applogger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timers  map[uint64]clockwork.Timer
	nextID  uint64
	stopped bool
	wg      sync.WaitGroup
}

type RetryOption func(*RetryCoordinator)

func WithRetryClock(c clockwork.Clock) RetryOption {
	return func(r *RetryCoordinator) { r.clock = c }
}

func WithRetryMetrics(m repository.Metrics) RetryOption {
	return func(r *RetryCoordinator) { r.metrics = m }
}

func WithRetryLogger(l *applogger.Logger) RetryOption {
	return func(r *RetryCoordinator) { r.logger = l }
}

// NewRetryCoordinator allows up to maxRetries retries after the initial
// attempt, each delay after the previous failure.
func NewRetryCoordinator(delay time.Duration, maxRetries int, opts ...RetryOption) *RetryCoordinator {
	r := &RetryCoordinator{
		clock:      clockwork.NewRealClock(),
		delay:      delay,
		maxRetries: maxRetries,
		metrics:    metrics.Nop{},
		logger:     applogger.Nop(),
		timers:     make(map[uint64]clockwork.Timer),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Run calls fn synchronously and returns its error. Retries run on the
// coordinator's own context, so they outlive ctx and end at Stop.
func (r *RetryCoordinator) Run(ctx context.Context, name string, fn AttemptFunc) error {
	err := fn(ctx, 0)
	if err == nil || !retryable(err) {
		return err
	}
	if r.maxRetries > 0 {
		r.schedule(name, fn, 1)
	} else {
		r.metrics.RecordRetry(name, "exhausted")
	}
	return err
}

// Pending returns the number of scheduled retries that have not fired.
func (r *RetryCoordinator) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels pending retries and waits for running ones.
func (r *RetryCoordinator) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.cancel()
	for id, t := range r.timers {
		if t.Stop() {
			r.wg.Done()
		}
		delete(r.timers, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *RetryCoordinator) schedule(name string, fn AttemptFunc, attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	id := r.nextID
	r.nextID++
	r.wg.Add(1)
	r.timers[id] = r.clock.AfterFunc(r.delay, func() {
		defer r.wg.Done()
		r.mu.Lock()
		delete(r.timers, id)
		r.mu.Unlock()
		r.fire(name, fn, attempt)
	})
	r.metrics.RecordRetry(name, "scheduled")
	r.logger.Info("retry scheduled",
		applogger.String("name", name),
		applogger.Int("attempt", attempt),
		applogger.Duration("delay", r.delay),
	)
}

func (r *RetryCoordinator) fire(name string, fn AttemptFunc, attempt int) {
	if r.ctx.Err() != nil {
		return
	}

	err := fn(r.ctx, attempt)
	switch {
	case err == nil:
		r.metrics.RecordRetry(name, "success")
		r.logger.Info("retry succeeded", applogger.String("name", name), applogger.Int("attempt", attempt))
	case errors.Is(err, ErrSuperseded):
		r.metrics.RecordRetry(name, "superseded")
		r.logger.Info("retry superseded", applogger.String("name", name), applogger.Int("attempt", attempt))
	case !retryable(err):
		r.metrics.RecordRetry(name, "abandoned")
		r.logger.Warn("retry abandoned", applogger.String("name", name), applogger.Error(err))
	case attempt < r.maxRetries:
		r.metrics.RecordRetry(name, "failed")
		r.schedule(name, fn, attempt+1)
	default:
		r.metrics.RecordRetry(name, "exhausted")
		r.logger.Error("retries exhausted",
			applogger.String("name", name),
			applogger.Int("attempts", attempt+1),
			applogger.Error(err),
		)
	}
}

// retryable reports whether another attempt could change the outcome.
func retryable(err error) bool {
	return !errors.Is(err, ErrSuperseded) &&
		!errors.Is(err, models.ErrStaleWrite) &&
		!errors.Is(err, models.ErrUnknownDataset) &&
		!errors.Is(err, context.Canceled)
}
