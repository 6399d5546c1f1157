package usecase

import (
	"context"
	"testing"
	"time"

	"GoPredict/internal/domain/models"
	"GoPredict/internal/service/cache"
	"GoPredict/internal/service/upstream"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keyPredictions   = "predictions_daily"
	keyOpportunities = "opportunities_daily"
	keyIntraday      = "predictions_15min"
	keyTradebook     = "tradebook_daily"
)

var engineEpoch = time.Date(2025, 3, 3, 9, 1, 0, 0, time.UTC)

type engineFixture struct {
	engine  *Engine
	store   *cache.Store
	retry   *RetryCoordinator
	fetcher *fakeFetcher
	clock   *clockwork.FakeClock
	metrics *recordingMetrics
	sink    *fakeSink
	audit   *fakeAudit
}

func newEngineFixture(t *testing.T, opts ...EngineOption) *engineFixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(engineEpoch)
	m := &recordingMetrics{}
	f := newFakeFetcher()
	f.body(keyPredictions, `{"records":[{"symbol":"AAPL","target_date":"2025-03-04","predicted_close":181.2}]}`)
	f.body(keyOpportunities, `{"records":[{"symbol":"AAPL","target_date":"2025-03-04","hit_high":true,"status":true}]}`)
	f.body(keyIntraday, `{"records":[{"symbol":"ES","touched":true}]}`)
	f.body(keyTradebook, `{"records":[{"symbol":"AAPL","side":"buy","active":true}]}`)

	store := cache.NewStore(models.AllDatasets, cache.WithClock(clock))
	retry := NewRetryCoordinator(60*time.Second, 3, WithRetryClock(clock), WithRetryMetrics(m))
	sink := &fakeSink{name: "test"}
	audit := &fakeAudit{}

	pipelines := []*Pipeline{
		DailyPipeline(f, keyPredictions, keyOpportunities),
		IntradayPipeline(f, keyIntraday),
		TradebookPipeline(f, keyTradebook),
	}
	base := []EngineOption{
		WithEngineClock(clock),
		WithEngineMetrics(m),
		WithSinks(sink),
		WithAuditRecorder(audit),
		WithStrategy(upstream.StrategyDirectEndpoint, nil),
		WithPassthrough(f, "symbols"),
	}
	e := NewEngine(store, retry, pipelines, append(base, opts...)...)
	t.Cleanup(e.Shutdown)

	return &engineFixture{engine: e, store: store, retry: retry, fetcher: f, clock: clock, metrics: m, sink: sink, audit: audit}
}

func TestRunCycleFillsEveryDataset(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	results := fx.engine.RunCycle(context.Background(), models.TriggerStartup)

	require.Len(t, results, 3)
	for _, k := range models.AllDatasets {
		assert.Equal(t, models.OutcomeSuccess, results[k].Outcome, k)
		assert.Equal(t, 1, results[k].Records, k)
	}

	daily, err := fx.engine.GetCachedData(models.DatasetDailyPredictions)
	require.NoError(t, err)
	require.Len(t, daily.Data, 1)
	assert.Equal(t, 181.2, daily.Data[0]["predicted_close"])
	assert.Equal(t, true, daily.Data[0]["hit_high"])
	assert.Equal(t, engineEpoch, *daily.LastUpdate)
	require.Len(t, daily.Notifications, 1, "status is excluded")
	assert.Equal(t, models.Notification{Dataset: "daily", Identity: "AAPL", Field: "hit_high", Record: daily.Data[0]}, daily.Notifications[0])

	intraday, _ := fx.engine.GetCachedData(models.DatasetIntradayPredictions)
	assert.Len(t, intraday.Notifications, 1)

	tradebook, _ := fx.engine.GetCachedData(models.DatasetTradebook)
	assert.Len(t, tradebook.Data, 1)
	assert.Empty(t, tradebook.Notifications)

	assert.Len(t, fx.sink.published(), 3)
	rows := fx.audit.rows()
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, models.TriggerStartup, r.Trigger)
		assert.Equal(t, 0, r.Attempt)
		assert.Equal(t, models.OutcomeSuccess, r.Outcome)
	}
	assert.Zero(t, fx.retry.Pending())
}

func TestCompanionFailureKeepsCacheAndRetriesOnce(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fx := newEngineFixture(t)
	fx.engine.RunCycle(ctx, models.TriggerStartup)
	before, _ := fx.engine.Snapshot(models.DatasetDailyPredictions)
	require.Equal(t, uint64(1), before.Version)

	fx.clock.Advance(15 * time.Minute)
	fx.fetcher.fail(keyOpportunities, 503)
	oppCalls := fx.fetcher.count(keyOpportunities)

	results := fx.engine.RunCycle(ctx, models.TriggerScheduled)
	daily := results[models.DatasetDailyPredictions]
	assert.Equal(t, models.OutcomeFailed, daily.Outcome)
	assert.Contains(t, daily.Error, models.ErrMergeIncomplete.Error())
	assert.Equal(t, models.OutcomeSuccess, results[models.DatasetTradebook].Outcome, "other datasets are unaffected")

	after, _ := fx.engine.Snapshot(models.DatasetDailyPredictions)
	assert.Same(t, before, after, "cached daily data is untouched")
	assert.Equal(t, 1, fx.retry.Pending(), "exactly one retry is scheduled")

	fx.fetcher.body(keyOpportunities, `{"records":[{"symbol":"AAPL","target_date":"2025-03-04","hit_low":true}]}`)

	fx.clock.Advance(59 * time.Second)
	assert.Equal(t, oppCalls+1, fx.fetcher.count(keyOpportunities), "no retry before the delay")

	dailyRows := func() []models.SyncAttempt {
		var out []models.SyncAttempt
		for _, r := range fx.audit.rows() {
			if r.Dataset == models.DatasetDailyPredictions {
				out = append(out, r)
			}
		}
		return out
	}

	fx.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		s, _ := fx.engine.Snapshot(models.DatasetDailyPredictions)
		return s.Version == 2 && len(dailyRows()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, oppCalls+2, fx.fetcher.count(keyOpportunities))
	assert.Zero(t, fx.retry.Pending())

	final, _ := fx.engine.GetCachedData(models.DatasetDailyPredictions)
	assert.Equal(t, true, final.Data[0]["hit_low"])
	assert.Equal(t, engineEpoch.Add(15*time.Minute+time.Minute), *final.LastUpdate)

	rows := dailyRows()
	assert.Equal(t, models.OutcomeFailed, rows[1].Outcome)
	assert.Equal(t, models.OutcomeSuccess, rows[2].Outcome)
	assert.Equal(t, 1, rows[2].Attempt)
	assert.Equal(t, rows[1].CycleID, rows[2].CycleID)
}

func TestRetrySupersededByNewerCycle(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	ctx := context.Background()

	fx.fetcher.fail(keyTradebook, 500)
	res, err := fx.engine.ForceRefresh(ctx, "tradebook")
	require.NoError(t, err)
	require.Equal(t, models.OutcomeFailed, res[models.DatasetTradebook].Outcome)
	require.Equal(t, 1, fx.retry.Pending())

	fx.clock.Advance(30 * time.Second)
	fx.fetcher.body(keyTradebook, `{"records":[{"symbol":"MSFT"}]}`)
	res, err = fx.engine.ForceRefresh(ctx, "tradebook")
	require.NoError(t, err)
	require.Equal(t, models.OutcomeSuccess, res[models.DatasetTradebook].Outcome)
	calls := fx.fetcher.count(keyTradebook)

	fx.clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return fx.metrics.hasRetry("tradebook:superseded") }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, calls, fx.fetcher.count(keyTradebook), "superseded retry does not fetch")

	snap, _ := fx.engine.Snapshot(models.DatasetTradebook)
	assert.Equal(t, uint64(1), snap.Version)
}

func TestNoDataStillReplaces(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	ctx := context.Background()
	fx.engine.RunCycle(ctx, models.TriggerStartup)

	fx.clock.Advance(15 * time.Minute)
	fx.fetcher.body(keyTradebook, `{"records":[]}`)
	res, err := fx.engine.ForceRefresh(ctx, "tradebook")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoData, res[models.DatasetTradebook].Outcome)

	data, _ := fx.engine.GetCachedData(models.DatasetTradebook)
	assert.NotNil(t, data.Data)
	assert.Empty(t, data.Data)
	assert.Equal(t, engineEpoch.Add(15*time.Minute), *data.LastUpdate)
	assert.Zero(t, fx.retry.Pending())
}

func TestReadsBeforeFirstSync(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	data, err := fx.engine.GetCachedData(models.DatasetIntradayPredictions)
	require.NoError(t, err)
	assert.Empty(t, data.Data)
	assert.Nil(t, data.LastUpdate)

	_, err = fx.engine.GetCachedData("weekly")
	assert.ErrorIs(t, err, models.ErrUnknownDataset)
}

func TestClearNotificationsOnlyTouchesOneDataset(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.engine.RunCycle(context.Background(), models.TriggerStartup)

	require.NoError(t, fx.engine.ClearNotifications(models.DatasetDailyPredictions))

	daily, _ := fx.engine.GetCachedData(models.DatasetDailyPredictions)
	assert.Empty(t, daily.Notifications)
	assert.Len(t, daily.Data, 1)

	intraday, _ := fx.engine.GetCachedData(models.DatasetIntradayPredictions)
	assert.Len(t, intraday.Notifications, 1)
}

func TestForceRefreshTargets(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	ctx := context.Background()

	res, err := fx.engine.ForceRefresh(ctx, "intraday")
	require.NoError(t, err)
	assert.Len(t, res, 1)
	assert.Contains(t, res, models.DatasetIntradayPredictions)

	fx.clock.Advance(time.Minute)
	res, err = fx.engine.ForceRefresh(ctx, "all")
	require.NoError(t, err)
	assert.Len(t, res, 3)

	_, err = fx.engine.ForceRefresh(ctx, "weekly")
	assert.ErrorIs(t, err, models.ErrUnknownDataset)
}

func TestForceRefreshReportsFailureCause(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.fetcher.fail(keyTradebook, 503)

	res, err := fx.engine.ForceRefresh(context.Background(), "tradebook")
	require.NoError(t, err)
	got := res[models.DatasetTradebook]
	assert.Equal(t, models.OutcomeFailed, got.Outcome)
	assert.Contains(t, got.Error, "status 503")

	rows := fx.audit.rows()
	require.Len(t, rows, 1)
	assert.Equal(t, got.Error, rows[0].Error)
}

func TestForceRefreshOutlivesCallerCancellation(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.fetcher.fail(keyTradebook, 503)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := fx.engine.ForceRefresh(ctx, "tradebook")
	require.NoError(t, err)
	got := res[models.DatasetTradebook]
	assert.Equal(t, models.OutcomeFailed, got.Outcome)
	assert.NotContains(t, got.Error, context.Canceled.Error())
	assert.Equal(t, 1, fx.retry.Pending(), "a retry is scheduled despite the caller leaving")

	fx.fetcher.body(keyTradebook, `{"records":[{"symbol":"MSFT","side":"sell","active":false}]}`)
	fx.clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		data, err := fx.engine.GetCachedData(models.DatasetTradebook)
		return err == nil && data.LastUpdate != nil
	}, time.Second, 5*time.Millisecond)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	counter := upstream.NewFailureCounter(0, nil)
	fx := newEngineFixture(t, WithFailureCounter(counter), WithPolling(false))
	counter.Inc()
	counter.Inc()
	fx.engine.RunCycle(context.Background(), models.TriggerStartup)

	st := fx.engine.GetStatus()
	assert.False(t, st.Enabled)
	assert.Equal(t, upstream.StrategyDirectEndpoint, st.Strategy)
	assert.Equal(t, int64(2), st.ConsecutiveFailures)
	assert.False(t, st.LeaseValid)
	assert.Nil(t, st.LeaseExpiry)
	for _, k := range models.AllDatasets {
		assert.True(t, st.CacheStatus[k])
		assert.Equal(t, uint64(1), st.Versions[k])
		require.NotNil(t, st.LastUpdates[k])
	}
}

func TestSinkFailureDoesNotFailPipeline(t *testing.T) {
	t.Parallel()

	broken := &fakeSink{name: "broken", err: errBoom}
	fx := newEngineFixture(t, WithSinks(broken))

	res := fx.engine.RunCycle(context.Background(), models.TriggerStartup)
	for _, k := range models.AllDatasets {
		assert.Equal(t, models.OutcomeSuccess, res[k].Outcome)
	}
	assert.Len(t, broken.published(), 3)
	assert.Len(t, fx.sink.published(), 3)
	assert.Contains(t, fx.metrics.errors(), "sink_broken")
}

func TestFetchUpstreamAllowList(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.fetcher.body("symbols", `{"symbols":["AAPL"]}`)

	b, err := fx.engine.FetchUpstream(context.Background(), "symbols")
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbols":["AAPL"]}`, string(b))

	_, err = fx.engine.FetchUpstream(context.Background(), keyPredictions)
	assert.ErrorIs(t, err, ErrPassthroughKey)
}
