package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batch struct {
	topic string
	logs  []AggregatedLogEntry
}

type chanPublisher struct {
	out chan batch
	err error
}

func (p *chanPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.out <- batch{topic: topic, logs: payload.([]AggregatedLogEntry)}
	return p.err
}

func waitBatch(t *testing.T, p *chanPublisher) batch {
	t.Helper()
	select {
	case b := <-p.out:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("no batch published")
		return batch{}
	}
}

func TestCollectorAggregatesRepeatedErrors(t *testing.T) {
	clock := clockwork.NewFakeClock()
	pub := &chanPublisher{out: make(chan batch, 4)}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Minute,
		CountThreshold: 10,
		Topic:          "gopredict.logs",
		Service:        "gopredict",
		Publisher:      pub,
		Clock:          clock,
	})
	defer c.Close()

	fields := map[string]interface{}{"consecutive_failures": int64(3)}
	c.AddLog("error", "upstream failing", fields, "engine.go:10")
	clock.Advance(10 * time.Second)
	c.AddLog("error", "upstream failing", map[string]interface{}{"consecutive_failures": int64(3)}, "engine.go:10")
	c.AddLog("error", "other", nil, "engine.go:20")
	assert.Equal(t, 2, c.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	b := waitBatch(t, pub)
	assert.Equal(t, "gopredict.logs", b.topic)
	require.Len(t, b.logs, 2)
	first := b.logs[0]
	assert.Equal(t, "upstream failing", first.Message)
	assert.Equal(t, 2, first.Count)
	assert.Equal(t, "gopredict", first.Service)
	assert.Equal(t, 10*time.Second, first.LastSeen.Sub(first.FirstSeen))
	assert.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCollectorFlushesAtCountThreshold(t *testing.T) {
	pub := &chanPublisher{out: make(chan batch, 4), err: errors.New("broker down")}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "logs",
		Publisher:      pub,
		Clock:          clockwork.NewFakeClock(),
	})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")

	b := waitBatch(t, pub)
	assert.Len(t, b.logs, 2)
	assert.Equal(t, 0, c.Pending())
}

func TestCollectorCloseFlushesRemainder(t *testing.T) {
	pub := &chanPublisher{out: make(chan batch, 4)}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 10,
		Topic:          "logs",
		Publisher:      pub,
		Clock:          clockwork.NewFakeClock(),
	})

	c.AddLog("error", "pending", nil, "x.go:1")
	c.Close()

	b := waitBatch(t, pub)
	require.Len(t, b.logs, 1)
	assert.Equal(t, "pending", b.logs[0].Message)
}

func TestLoggerForwardsErrorsOnly(t *testing.T) {
	pub := &chanPublisher{out: make(chan batch, 4)}
	l := Nop()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 10,
		Topic:          "logs",
		Publisher:      pub,
		Clock:          clockwork.NewFakeClock(),
	})

	l.Info("info is local")
	l.Warn("warn is local")
	l.Error("lease renewal failed", String("license", "LIC-1"))
	l.RemoveCollector()

	b := waitBatch(t, pub)
	require.Len(t, b.logs, 1)
	assert.Equal(t, "lease renewal failed", b.logs[0].Message)
	assert.Equal(t, "LIC-1", b.logs[0].Fields["license"])
	assert.Contains(t, b.logs[0].Caller, "collector_test.go")
}
