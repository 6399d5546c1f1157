package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"GoPredict/internal/domain/models"

	"github.com/jonboulle/clockwork"
)

// Store holds the latest accepted snapshot of every dataset. Snapshots are
// immutable once published; every write swaps in a new one so readers never
// see a partially replaced dataset.
type Store struct {
	clock   clockwork.Clock
	keys    []models.DatasetKey
	entries map[models.DatasetKey]*atomic.Pointer[models.Snapshot]
}

// Option configures Store.
type Option func(*Store)

// WithClock sets the clock that stamps last-updated times.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// NewStore creates an empty store. The key set is fixed for its lifetime.
func NewStore(keys []models.DatasetKey, opts ...Option) *Store {
	s := &Store{
		clock:   clockwork.NewRealClock(),
		keys:    append([]models.DatasetKey(nil), keys...),
		entries: make(map[models.DatasetKey]*atomic.Pointer[models.Snapshot], len(keys)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, k := range keys {
		p := &atomic.Pointer[models.Snapshot]{}
		p.Store(&models.Snapshot{
			Dataset:       k,
			Records:       []models.Record{},
			Notifications: []models.Notification{},
		})
		s.entries[k] = p
	}
	return s
}

// Keys returns the datasets held by the store.
func (s *Store) Keys() []models.DatasetKey {
	return append([]models.DatasetKey(nil), s.keys...)
}

// Read returns the current snapshot without blocking. The result is shared
// and must not be modified.
func (s *Store) Read(key models.DatasetKey) (*models.Snapshot, error) {
	p, err := s.entry(key)
	if err != nil {
		return nil, err
	}
	return p.Load(), nil
}

// Replace publishes records and notifications as the new snapshot of key and
// takes ownership of both slices. A write from a cycle that started at or
// before the current last-updated time is rejected with ErrStaleWrite and
// the current snapshot is returned.
func (s *Store) Replace(key models.DatasetKey, records []models.Record, notifications []models.Notification, cycleStartedAt time.Time) (*models.Snapshot, error) {
	p, err := s.entry(key)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.Record{}
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	for {
		cur := p.Load()
		if cur.LastUpdated != nil && !cur.LastUpdated.Before(cycleStartedAt) {
			return cur, fmt.Errorf("%w: %s updated at %s, cycle started at %s",
				models.ErrStaleWrite, key,
				cur.LastUpdated.Format(time.RFC3339Nano), cycleStartedAt.Format(time.RFC3339Nano))
		}

		now := s.clock.Now()
		next := &models.Snapshot{
			Dataset:        key,
			Records:        records,
			LastUpdated:    &now,
			Notifications:  notifications,
			Version:        cur.Version + 1,
			CycleStartedAt: cycleStartedAt,
		}
		if p.CompareAndSwap(cur, next) {
			return next, nil
		}
	}
}

// ClearNotifications drops the pending notifications of key. Records, the
// last-updated time and the version are left as they are.
func (s *Store) ClearNotifications(key models.DatasetKey) error {
	p, err := s.entry(key)
	if err != nil {
		return err
	}
	for {
		cur := p.Load()
		if len(cur.Notifications) == 0 {
			return nil
		}
		next := *cur
		next.Notifications = []models.Notification{}
		if p.CompareAndSwap(cur, &next) {
			return nil
		}
	}
}

// UpdatedAfter reports whether key was replaced after t.
func (s *Store) UpdatedAfter(key models.DatasetKey, t time.Time) bool {
	snap, err := s.Read(key)
	if err != nil || snap.LastUpdated == nil {
		return false
	}
	return snap.LastUpdated.After(t)
}

func (s *Store) entry(key models.DatasetKey) (*atomic.Pointer[models.Snapshot], error) {
	p, ok := s.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownDataset, key)
	}
	return p, nil
}
