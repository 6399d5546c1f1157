package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"GoPredict/internal/domain/models"
	pkgkafka "GoPredict/pkg/kafka"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2025, 3, 3, 9, 1, 0, 0, time.UTC)

func snapshot() *models.Snapshot {
	rec := models.Record{"symbol": "AAPL", "hit_high": true}
	return &models.Snapshot{
		Dataset:     models.DatasetDailyPredictions,
		Records:     []models.Record{rec},
		LastUpdated: &ts,
		Version:     4,
		Notifications: []models.Notification{
			{Dataset: "daily", Identity: "AAPL", Field: "hit_high", Record: rec},
		},
	}
}

type fakeBatch struct {
	topic string
	msgs  []pkgkafka.Message
	err   error
}

func (f *fakeBatch) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func TestKafkaNotificationPublisher(t *testing.T) {
	fb := &fakeBatch{}
	p := NewKafkaNotificationPublisher(fb, "gopredict.notifications")

	require.NoError(t, p.PublishSnapshot(context.Background(), snapshot()))
	assert.Equal(t, "gopredict.notifications", fb.topic)
	require.Len(t, fb.msgs, 1)
	assert.Equal(t, "dailyPredictions:AAPL", string(fb.msgs[0].Key))

	ev, ok := fb.msgs[0].Value.(NotificationEvent)
	require.True(t, ok)
	assert.Equal(t, "hit_high", ev.Field)
	assert.Equal(t, "daily", ev.Kind)
	assert.Equal(t, uint64(4), ev.Version)

	empty := snapshot()
	empty.Notifications = nil
	fb.msgs = nil
	require.NoError(t, p.PublishSnapshot(context.Background(), empty))
	assert.Empty(t, fb.msgs, "nothing to publish")
}

type fakeSetter struct {
	key   string
	value []byte
	ttl   time.Duration
	err   error
}

func (f *fakeSetter) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	f.key, f.ttl = key, ttl
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.value = b
	return f.err
}

func TestRedisSnapshotMirror(t *testing.T) {
	fs := &fakeSetter{}
	m := NewRedisSnapshotMirror(fs, 2*time.Hour)

	require.NoError(t, m.PublishSnapshot(context.Background(), snapshot()))
	assert.Equal(t, "snapshot:dailyPredictions", fs.key)
	assert.Equal(t, 2*time.Hour, fs.ttl)

	var got models.Snapshot
	require.NoError(t, json.Unmarshal(fs.value, &got))
	assert.Equal(t, uint64(4), got.Version)
	assert.Len(t, got.Records, 1)

	fs.err = errors.New("READONLY")
	err := m.PublishSnapshot(context.Background(), snapshot())
	assert.ErrorContains(t, err, "READONLY")
}

type fakeExec struct {
	query string
	args  []any
	err   error
}

func (f *fakeExec) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.query, f.args = query, args
	return nil, f.err
}

func TestClickHouseSyncAudit(t *testing.T) {
	fe := &fakeExec{}
	a := newSyncAudit(fe, "gopredict.sync_attempts", nil)

	err := a.RecordAttempt(context.Background(), &models.SyncAttempt{
		CycleID:       "c-1",
		Dataset:       models.DatasetTradebook,
		Trigger:       models.TriggerScheduled,
		Attempt:       2,
		StartedAt:     ts,
		Duration:      1500 * time.Millisecond,
		Outcome:       models.OutcomeFailed,
		Notifications: 0,
		Error:         "fetch tradebook_daily: status 503",
	})
	require.NoError(t, err)
	assert.Contains(t, fe.query, "INSERT INTO gopredict.sync_attempts")
	require.Len(t, fe.args, 10)
	assert.Equal(t, "tradebook", fe.args[2])
	assert.Equal(t, uint8(2), fe.args[4])
	assert.Equal(t, uint32(1500), fe.args[5])
	assert.Equal(t, "failed", fe.args[6])

	assert.Contains(t, a.SchemaStatements()[0], "CREATE TABLE IF NOT EXISTS gopredict.sync_attempts")

	fe.err = errors.New("table missing")
	assert.Error(t, a.RecordAttempt(context.Background(), &models.SyncAttempt{}))
}
