package repository

import (
	"context"
	"fmt"
	"time"

	"GoPredict/internal/domain/models"
	pkgcache "GoPredict/pkg/cache"
)

// snapshotWriter is satisfied by *pkgcache.RedisCache.
type snapshotWriter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// RedisSnapshotMirror copies every accepted snapshot to Redis so other
// readers can serve it. Only the latest snapshot per dataset is kept.
type RedisSnapshotMirror struct {
	cache snapshotWriter
	ttl   time.Duration
}

// NewRedisSnapshotMirror creates the mirror; entries expire after ttl.
func NewRedisSnapshotMirror(c snapshotWriter, ttl time.Duration) *RedisSnapshotMirror {
	return &RedisSnapshotMirror{cache: c, ttl: ttl}
}

// SnapshotKey is the Redis key (before prefixing) holding a dataset snapshot.
func SnapshotKey(dataset models.DatasetKey) string {
	return pkgcache.GenerateKeyWithParams("snapshot", dataset)
}

func (m *RedisSnapshotMirror) Name() string { return "redis" }

func (m *RedisSnapshotMirror) PublishSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if err := m.cache.Set(ctx, SnapshotKey(snap.Dataset), snap, m.ttl); err != nil {
		return fmt.Errorf("mirror %s: %w", snap.Dataset, err)
	}
	return nil
}
