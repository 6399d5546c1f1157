package repository

import (
	"context"

	"GoPredict/internal/domain/models"
)

type Metrics interface {
	RecordSync(dataset, outcome string, seconds float64)
	RecordFetch(urlKey, result string, seconds float64)
	RecordLeaseRenewal(result string)
	RecordDataset(dataset string, records, notifications int)
	RecordConsecutiveFailures(n int64)
	RecordRetry(dataset, result string)
	RecordError(kind string)
}

// SnapshotSink observes snapshots accepted by the cache store. A sink error
// never affects the cached data.
type SnapshotSink interface {
	Name() string
	PublishSnapshot(ctx context.Context, snap *models.Snapshot) error
}

// AttemptRecorder stores one row per pipeline attempt.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a *models.SyncAttempt) error
	Close() error
}
