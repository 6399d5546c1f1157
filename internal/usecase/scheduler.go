package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"GoPredict/internal/domain/models"
	applogger "GoPredict/pkg/logger"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// CycleRunner is the part of the engine the scheduler drives.
type CycleRunner interface {
	RunCycle(ctx context.Context, trigger models.Trigger) map[models.DatasetKey]models.RefreshResult
	RenewLease(ctx context.Context) error
}

// SchedulerConfig describes when cycles and lease renewals run.
type SchedulerConfig struct {
	CycleMinutes []int
	// RenewEvery is zero when the fetch strategy has no lease.
	RenewEvery   time.Duration
	StartupDelay time.Duration
	Location     *time.Location
}

// Scheduler triggers data cycles on fixed minutes of each hour and renews
// the lease on its own interval. A startup cycle runs once after a delay.
type Scheduler struct {
	runner CycleRunner
	cfg    SchedulerConfig
	cron   *cron.Cron
	clock  clockwork.Clock
	logger *applogger.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	startup clockwork.Timer
	jobs    sync.WaitGroup
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(c clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

func WithSchedulerLogger(l *applogger.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler registers the cycle and renewal jobs.
func NewScheduler(runner CycleRunner, cfg SchedulerConfig, opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{
		runner: runner,
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		logger: applogger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Location == nil {
		s.cfg.Location = time.UTC
	}

	cl := cronLogger{l: s.logger}
	s.cron = cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)

	spec, err := CycleSpec(cfg.CycleMinutes)
	if err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(spec, func() { s.runCycle(models.TriggerScheduled) }); err != nil {
		return nil, fmt.Errorf("add cycle job: %w", err)
	}
	if cfg.RenewEvery > 0 {
		if _, err := s.cron.AddFunc("@every "+cfg.RenewEvery.String(), s.renewLease); err != nil {
			return nil, fmt.Errorf("add lease job: %w", err)
		}
	}
	return s, nil
}

// CycleSpec builds a cron spec running at the given minutes of every hour.
func CycleSpec(minutes []int) (string, error) {
	if len(minutes) == 0 {
		return "", fmt.Errorf("no cycle minutes")
	}
	parts := make([]string, 0, len(minutes))
	for _, m := range minutes {
		if m < 0 || m > 59 {
			return "", fmt.Errorf("cycle minute %d out of range", m)
		}
		parts = append(parts, strconv.Itoa(m))
	}
	return strings.Join(parts, ",") + " * * * *", nil
}

// Start begins scheduling. Jobs run with ctx until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startup = s.clock.AfterFunc(s.cfg.StartupDelay, func() {
		s.runCycle(models.TriggerStartup)
	})
	s.cron.Start()
	s.logger.Info("scheduler started",
		applogger.Strings("cycle_minutes", intsToStrings(s.cfg.CycleMinutes)),
		applogger.Duration("lease_renew_every", s.cfg.RenewEvery),
		applogger.Duration("startup_delay", s.cfg.StartupDelay),
	)
}

// Stop cancels running jobs and waits for them, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	s.startup.Stop()
	s.cancel()
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Serve runs the scheduler until ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Stop(stopCtx)
}

func (s *Scheduler) String() string { return "scheduler" }

// Entries returns the number of registered cron jobs.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func (s *Scheduler) jobContext() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || s.ctx.Err() != nil {
		return nil, false
	}
	s.jobs.Add(1)
	return s.ctx, true
}

func (s *Scheduler) runCycle(trigger models.Trigger) {
	ctx, ok := s.jobContext()
	if !ok {
		return
	}
	defer s.jobs.Done()

	results := s.runner.RunCycle(ctx, trigger)
	failed := 0
	for _, r := range results {
		if r.Outcome == models.OutcomeFailed {
			failed++
		}
	}
	s.logger.Info("sync cycle finished",
		applogger.String("trigger", string(trigger)),
		applogger.Int("datasets", len(results)),
		applogger.Int("failed", failed),
	)
}

func (s *Scheduler) renewLease() {
	ctx, ok := s.jobContext()
	if !ok {
		return
	}
	defer s.jobs.Done()

	if err := s.runner.RenewLease(ctx); err != nil {
		s.logger.Warn("scheduled lease renewal failed", applogger.Error(err))
	}
}

func intsToStrings(in []int) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strconv.Itoa(v)
	}
	return out
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	l *applogger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(keysAndValues), applogger.Error(err))...)
}

func kvFields(kv []interface{}) []applogger.Field {
	fields := make([]applogger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		fields = append(fields, applogger.Any(k, kv[i+1]))
	}
	return fields
}
