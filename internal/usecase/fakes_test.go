package usecase

import (
	"context"
	"errors"
	"sync"

	"GoPredict/internal/domain/models"
	"GoPredict/internal/service/upstream"
)

type fetchFunc func(call int) (string, error)

// fakeFetcher answers url keys from per-key handlers and counts calls.
type fakeFetcher struct {
	mu       sync.Mutex
	handlers map[string]fetchFunc
	calls    map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{handlers: map[string]fetchFunc{}, calls: map[string]int{}}
}

func (f *fakeFetcher) set(key string, h fetchFunc) {
	f.mu.Lock()
	f.handlers[key] = h
	f.mu.Unlock()
}

func (f *fakeFetcher) body(key, body string) {
	f.set(key, func(int) (string, error) { return body, nil })
}

func (f *fakeFetcher) fail(key string, code int) {
	f.set(key, func(int) (string, error) {
		return "", &models.FetchError{Key: key, StatusCode: code, Cause: "upstream unavailable"}
	})
}

func (f *fakeFetcher) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeFetcher) Fetch(ctx context.Context, key string) (*upstream.Payload, error) {
	f.mu.Lock()
	f.calls[key]++
	n := f.calls[key]
	h, ok := f.handlers[key]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, &models.FetchError{Key: key, StatusCode: 404, Cause: "no handler"}
	}
	body, err := h(n)
	if err != nil {
		return nil, err
	}
	return &upstream.Payload{Key: key, Body: []byte(body)}, nil
}

// recordingMetrics keeps retry and sync results.
type recordingMetrics struct {
	mu      sync.Mutex
	retries []string
	syncs   []string
	errs    []string
}

func (m *recordingMetrics) RecordSync(dataset, outcome string, _ float64) {
	m.mu.Lock()
	m.syncs = append(m.syncs, dataset+":"+outcome)
	m.mu.Unlock()
}
func (m *recordingMetrics) RecordFetch(string, string, float64) {}
func (m *recordingMetrics) RecordLeaseRenewal(string) {}
func (m *recordingMetrics) RecordDataset(string, int, int) {}
func (m *recordingMetrics) RecordConsecutiveFailures(int64) {}
func (m *recordingMetrics) RecordRetry(dataset, result string) {
	m.mu.Lock()
	m.retries = append(m.retries, dataset+":"+result)
	m.mu.Unlock()
}
func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errs = append(m.errs, kind)
	m.mu.Unlock()
}

func (m *recordingMetrics) hasRetry(v string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.retries {
		if r == v {
			return true
		}
	}
	return false
}

func (m *recordingMetrics) errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errs...)
}

type fakeSink struct {
	name string
	err  error

	mu    sync.Mutex
	snaps []*models.Snapshot
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) PublishSnapshot(_ context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
	return s.err
}

func (s *fakeSink) published() []*models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Snapshot(nil), s.snaps...)
}

type fakeAudit struct {
	mu       sync.Mutex
	attempts []models.SyncAttempt
}

func (a *fakeAudit) RecordAttempt(_ context.Context, at *models.SyncAttempt) error {
	a.mu.Lock()
	a.attempts = append(a.attempts, *at)
	a.mu.Unlock()
	return nil
}

func (a *fakeAudit) Close() error { return nil }

func (a *fakeAudit) rows() []models.SyncAttempt {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.SyncAttempt(nil), a.attempts...)
}

var errBoom = errors.New("boom")
