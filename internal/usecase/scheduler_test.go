package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"GoPredict/internal/domain/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu       sync.Mutex
	triggers []models.Trigger
	renewals int
}

func (r *fakeRunner) RunCycle(_ context.Context, trigger models.Trigger) map[models.DatasetKey]models.RefreshResult {
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()
	return map[models.DatasetKey]models.RefreshResult{
		models.DatasetTradebook: {Dataset: models.DatasetTradebook, Outcome: models.OutcomeSuccess},
	}
}

func (r *fakeRunner) RenewLease(context.Context) error {
	r.mu.Lock()
	r.renewals++
	r.mu.Unlock()
	return nil
}

func (r *fakeRunner) snapshot() ([]models.Trigger, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Trigger(nil), r.triggers...), r.renewals
}

func TestCycleSpec(t *testing.T) {
	t.Parallel()

	spec, err := CycleSpec([]int{1, 16, 31, 46})
	require.NoError(t, err)
	assert.Equal(t, "1,16,31,46 * * * *", spec)

	_, err = CycleSpec(nil)
	assert.Error(t, err)
	_, err = CycleSpec([]int{60})
	assert.Error(t, err)
}

func TestSchedulerRegistersJobs(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(&fakeRunner{}, SchedulerConfig{CycleMinutes: []int{1, 16, 31, 46}, RenewEvery: 55 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	s, err = NewScheduler(&fakeRunner{}, SchedulerConfig{CycleMinutes: []int{5}})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries(), "no renewal job without a lease")
}

func TestSchedulerStartupCycleAfterDelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	runner := &fakeRunner{}
	s, err := NewScheduler(runner, SchedulerConfig{
		CycleMinutes: []int{1, 16, 31, 46},
		RenewEvery:   55 * time.Minute,
		StartupDelay: 5 * time.Second,
	}, WithSchedulerClock(clock))
	require.NoError(t, err)

	s.Start(ctx)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(4 * time.Second)
	triggers, _ := runner.snapshot()
	assert.Empty(t, triggers)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		triggers, _ := runner.snapshot()
		return len(triggers) == 1
	}, time.Second, 5*time.Millisecond)
	triggers, _ = runner.snapshot()
	assert.Equal(t, models.TriggerStartup, triggers[0])

	s.renewLease()
	_, renewals := runner.snapshot()
	assert.Equal(t, 1, renewals)

	require.NoError(t, s.Stop(ctx))

	s.runCycle(models.TriggerScheduled)
	triggers, _ = runner.snapshot()
	assert.Len(t, triggers, 1, "jobs do not run after stop")
}

func TestSchedulerStopBeforeStartupDelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	runner := &fakeRunner{}
	s, err := NewScheduler(runner, SchedulerConfig{CycleMinutes: []int{1}, StartupDelay: 5 * time.Second}, WithSchedulerClock(clock))
	require.NoError(t, err)

	s.Start(ctx)
	require.NoError(t, s.Stop(ctx))

	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	triggers, _ := runner.snapshot()
	assert.Empty(t, triggers)
}

func TestSchedulerServeReturnsOnCancel(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(&fakeRunner{}, SchedulerConfig{CycleMinutes: []int{1}, StartupDelay: time.Hour},
		WithSchedulerClock(clockwork.NewFakeClock()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}
