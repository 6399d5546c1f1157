package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"GoPredict/internal/domain/models"
	"GoPredict/internal/domain/repository"
	"GoPredict/internal/service/cache"
	"GoPredict/internal/service/notify"
	"GoPredict/internal/service/upstream"
	applogger "GoPredict/pkg/logger"
	"GoPredict/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrPassthroughKey is returned for upstream keys that may not be proxied.
var ErrPassthroughKey = errors.New("upstream key not allowed")

// Engine runs dataset pipelines into the cache store and serves reads from it.
type Engine struct {
	store     *cache.Store
	retry     *RetryCoordinator
	pipelines map[models.DatasetKey]*Pipeline

	enabled     bool
	strategy    string
	leases      *upstream.LeaseManager
	failures    *upstream.FailureCounter
	fetcher     Fetcher
	passthrough []string
	sinks       []repository.SnapshotSink
	sinkTimeout time.Duration
	audit       repository.AttemptRecorder
	metrics     repository.Metrics
	clock       clockwork.Clock
	logger      *applogger.Logger
}

type EngineOption func(*Engine)

func WithEngineClock(c clockwork.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

func WithEngineLogger(l *applogger.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func WithEngineMetrics(m repository.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithPolling reports whether scheduled polling is enabled.
func WithPolling(enabled bool) EngineOption {
	return func(e *Engine) { e.enabled = enabled }
}

// WithStrategy sets the fetch strategy name reported in status. leases is
// nil for strategies that do not use a lease.
func WithStrategy(name string, leases *upstream.LeaseManager) EngineOption {
	return func(e *Engine) {
		e.strategy = name
		e.leases = leases
	}
}

func WithFailureCounter(c *upstream.FailureCounter) EngineOption {
	return func(e *Engine) { e.failures = c }
}

// WithPassthrough allows keys to be fetched raw through f.
func WithPassthrough(f Fetcher, keys ...string) EngineOption {
	return func(e *Engine) {
		e.fetcher = f
		e.passthrough = keys
	}
}

// WithSinks adds observers of accepted snapshots. Nil sinks are skipped.
func WithSinks(sinks ...repository.SnapshotSink) EngineOption {
	return func(e *Engine) {
		for _, s := range sinks {
			if s != nil {
				e.sinks = append(e.sinks, s)
			}
		}
	}
}

func WithSinkTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.sinkTimeout = d }
}

// WithAuditRecorder stores one row per attempt. A nil recorder disables auditing.
func WithAuditRecorder(r repository.AttemptRecorder) EngineOption {
	return func(e *Engine) { e.audit = r }
}

// NewEngine wires pipelines to store. Every pipeline dataset must be a store key.
func NewEngine(store *cache.Store, retry *RetryCoordinator, pipelines []*Pipeline, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       store,
		retry:       retry,
		pipelines:   make(map[models.DatasetKey]*Pipeline, len(pipelines)),
		enabled:     true,
		sinkTimeout: 5 * time.Second,
		metrics:     metrics.Nop{},
		clock:       clockwork.NewRealClock(),
		logger:      applogger.Nop(),
	}
	for _, p := range pipelines {
		e.pipelines[p.Dataset] = p
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.failures == nil {
		e.failures = upstream.NewFailureCounter(0, nil)
	}
	return e
}

// RunCycle runs every pipeline in parallel for one cycle and returns the
// outcome of each first attempt.
func (e *Engine) RunCycle(ctx context.Context, trigger models.Trigger) map[models.DatasetKey]models.RefreshResult {
	return e.run(ctx, trigger, e.store.Keys())
}

// ForceRefresh runs the pipelines selected by target ("all" or a dataset
// key or alias) immediately, through the same retry path as scheduled cycles.
// The cycle is detached from ctx cancellation; fetch timeouts bound it.
func (e *Engine) ForceRefresh(ctx context.Context, target string) (map[models.DatasetKey]models.RefreshResult, error) {
	keys, err := models.ParseRefreshTarget(target)
	if err != nil {
		return nil, err
	}
	e.logger.Info("manual refresh", applogger.String("target", target))
	return e.run(context.WithoutCancel(ctx), models.TriggerManual, keys), nil
}

// GetCachedData returns the last accepted snapshot of key.
func (e *Engine) GetCachedData(key models.DatasetKey) (*models.CachedData, error) {
	snap, err := e.store.Read(key)
	if err != nil {
		return nil, err
	}
	return &models.CachedData{
		Data:          snap.Records,
		LastUpdate:    snap.LastUpdated,
		Notifications: snap.Notifications,
	}, nil
}

// Snapshot returns the raw snapshot of key.
func (e *Engine) Snapshot(key models.DatasetKey) (*models.Snapshot, error) {
	return e.store.Read(key)
}

// ClearNotifications drops pending notifications of key only.
func (e *Engine) ClearNotifications(key models.DatasetKey) error {
	if err := e.store.ClearNotifications(key); err != nil {
		return err
	}
	e.logger.Info("notifications cleared", applogger.String("dataset", key.String()))
	return nil
}

// GetStatus reports the engine's operational state.
func (e *Engine) GetStatus() models.Status {
	st := models.Status{
		Enabled:             e.enabled,
		Strategy:            e.strategy,
		ConsecutiveFailures: e.failures.Load(),
		LastUpdates:         make(map[models.DatasetKey]*time.Time),
		CacheStatus:         make(map[models.DatasetKey]bool),
		Versions:            make(map[models.DatasetKey]uint64),
	}
	for _, k := range e.store.Keys() {
		snap, err := e.store.Read(k)
		if err != nil {
			continue
		}
		st.LastUpdates[k] = snap.LastUpdated
		st.CacheStatus[k] = snap.HasData()
		st.Versions[k] = snap.Version
	}
	if e.leases != nil {
		st.LeaseValid = e.leases.Valid()
		if l := e.leases.Current(); l != nil {
			expiry := l.ExpiresAt
			st.LeaseExpiry = &expiry
			st.LicenseID = l.LicenseID
		}
	}
	return st
}

// RenewLease forces a lease renewal. It is a no-op without a lease.
func (e *Engine) RenewLease(ctx context.Context) error {
	if e.leases == nil {
		return nil
	}
	return e.leases.Renew(ctx)
}

// FetchUpstream returns the raw body of an allowed upstream key.
func (e *Engine) FetchUpstream(ctx context.Context, key string) ([]byte, error) {
	if e.fetcher == nil || !slices.Contains(e.passthrough, key) {
		return nil, fmt.Errorf("%w: %q", ErrPassthroughKey, key)
	}
	p, err := e.fetcher.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return p.Body, nil
}

// Shutdown cancels pending retries.
func (e *Engine) Shutdown() {
	e.retry.Stop()
}

func (e *Engine) run(ctx context.Context, trigger models.Trigger, keys []models.DatasetKey) map[models.DatasetKey]models.RefreshResult {
	cycle := &models.Cycle{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: e.clock.Now(),
	}
	e.logger.Info("sync cycle started",
		applogger.String("cycle_id", cycle.ID),
		applogger.String("trigger", string(trigger)),
		applogger.Int("datasets", len(keys)),
	)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[models.DatasetKey]models.RefreshResult, len(keys))
	)
	for _, k := range keys {
		p, ok := e.pipelines[k]
		if !ok {
			results[k] = models.RefreshResult{Dataset: k, Outcome: models.OutcomeFailed, Error: "no pipeline"}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.sync(ctx, cycle, p)
			mu.Lock()
			results[k] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// sync runs p under the retry coordinator and returns the first attempt.
func (e *Engine) sync(ctx context.Context, cycle *models.Cycle, p *Pipeline) models.RefreshResult {
	var first models.RefreshResult
	_ = e.retry.Run(ctx, p.Dataset.String(), func(ctx context.Context, attempt int) error {
		res, err := e.attempt(ctx, cycle, p, attempt)
		if attempt == 0 {
			first = res
		}
		return err
	})
	return first
}

func (e *Engine) attempt(ctx context.Context, cycle *models.Cycle, p *Pipeline, attempt int) (res models.RefreshResult, err error) {
	start := e.clock.Now()
	res.Dataset = p.Dataset
	log := e.logger.With(
		applogger.String("dataset", p.Dataset.String()),
		applogger.String("cycle_id", cycle.ID),
		applogger.Int("attempt", attempt),
	)

	var (
		snap  *models.Snapshot
		notes []models.Notification
	)
	defer func() {
		if err != nil {
			res.Error = err.Error()
		}
		e.finish(ctx, cycle, attempt, start, &res, len(notes))
	}()

	if attempt > 0 && e.store.UpdatedAfter(p.Dataset, cycle.StartedAt) {
		res.Outcome = models.OutcomeSuperseded
		err = ErrSuperseded
		return res, err
	}

	records, err := p.Load(ctx)
	if err != nil {
		res.Outcome = models.OutcomeFailed
		log.Warn("dataset sync failed, keeping cached data", applogger.Error(err))
		return res, err
	}

	if p.NotifyKind != "" {
		notes = notify.Scan(records, p.NotifyKind)
	}

	snap, err = e.store.Replace(p.Dataset, records, notes, cycle.StartedAt)
	if err != nil {
		res.Outcome = models.OutcomeStale
		log.Warn("dataset write rejected", applogger.Error(err))
		return res, err
	}

	res.Records = len(records)
	if len(records) == 0 {
		res.Outcome = models.OutcomeNoData
		log.Warn("upstream returned no records")
	} else {
		res.Outcome = models.OutcomeSuccess
		log.Info("dataset synced",
			applogger.Int("records", len(records)),
			applogger.Int("notifications", len(notes)),
			applogger.Uint64("version", snap.Version),
		)
	}
	e.metrics.RecordDataset(p.Dataset.String(), len(records), len(notes))
	e.publish(ctx, snap)
	return res, nil
}

func (e *Engine) finish(ctx context.Context, cycle *models.Cycle, attempt int, start time.Time, res *models.RefreshResult, notifications int) {
	elapsed := e.clock.Since(start)
	e.metrics.RecordSync(res.Dataset.String(), res.Outcome, elapsed.Seconds())
	if e.audit == nil {
		return
	}
	a := &models.SyncAttempt{
		CycleID:       cycle.ID,
		Dataset:       res.Dataset,
		Trigger:       cycle.Trigger,
		Attempt:       attempt,
		StartedAt:     start,
		Duration:      elapsed,
		Outcome:       res.Outcome,
		Records:       res.Records,
		Notifications: notifications,
		Error:         res.Error,
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sinkTimeout)
	defer cancel()
	if err := e.audit.RecordAttempt(actx, a); err != nil {
		e.metrics.RecordError("audit")
		e.logger.Warn("audit write failed", applogger.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, snap *models.Snapshot) {
	for _, s := range e.sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sinkTimeout)
		if err := s.PublishSnapshot(sctx, snap); err != nil {
			e.metrics.RecordError("sink_" + s.Name())
			e.logger.Warn("snapshot sink failed",
				applogger.String("sink", s.Name()),
				applogger.String("dataset", snap.Dataset.String()),
				applogger.Error(err),
			)
		}
		cancel()
	}
}

// FailureAlert returns a callback that logs an alert when upstream failures
// reach the configured threshold.
func FailureAlert(l *applogger.Logger) func(n int64) {
	return func(n int64) {
		l.Error("upstream failing repeatedly", applogger.Int64("consecutive_failures", n))
	}
}
