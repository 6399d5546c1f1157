package upstream

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"GoPredict/internal/domain/models"
	"GoPredict/internal/domain/repository"
	applogger "GoPredict/pkg/logger"
	"GoPredict/pkg/metrics"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const renewKey = "renew"

// LeaseOption configures LeaseManager.
type LeaseOption func(*LeaseManager)

// WithLeaseClock injects the clock used for expiry decisions.
func WithLeaseClock(c clockwork.Clock) LeaseOption {
	return func(m *LeaseManager) { m.clock = c }
}

// WithSafetyMargin sets how far before the advertised expiry a lease stops
// being valid. Renewal starts one further margin earlier.
func WithSafetyMargin(d time.Duration) LeaseOption {
	return func(m *LeaseManager) { m.margin = d }
}

// WithDefaultDuration is used when the registry does not advertise a lifetime.
func WithDefaultDuration(d time.Duration) LeaseOption {
	return func(m *LeaseManager) { m.defaultDuration = d }
}

func WithLeaseMetrics(r repository.Metrics) LeaseOption {
	return func(m *LeaseManager) { m.metrics = r }
}

func WithLeaseLogger(l *applogger.Logger) LeaseOption {
	return func(m *LeaseManager) { m.logger = l }
}

func WithLeaseFailureCounter(c *FailureCounter) LeaseOption {
	return func(m *LeaseManager) { m.failures = c }
}

// LeaseManager owns the current set of signed URLs. The lease is swapped as
// a whole; fetches holding the previous lease are unaffected.
type LeaseManager struct {
	registry        Registry
	clock           clockwork.Clock
	margin          time.Duration
	defaultDuration time.Duration
	failures        *FailureCounter
	metrics         repository.Metrics
	logger          *applogger.Logger

	lease atomic.Pointer[models.Lease]
	group singleflight.Group
}

// NewLeaseManager creates a manager that renews through registry.
func NewLeaseManager(registry Registry, opts ...LeaseOption) *LeaseManager {
	m := &LeaseManager{
		registry:        registry,
		clock:           clockwork.NewRealClock(),
		margin:          5 * time.Minute,
		defaultDuration: 60 * time.Minute,
		metrics:         metrics.Nop{},
		logger:          applogger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.failures == nil {
		m.failures = NewFailureCounter(0, nil)
	}
	return m
}

// Current returns the active lease, or nil before the first renewal.
func (m *LeaseManager) Current() *models.Lease {
	return m.lease.Load()
}

// Valid reports whether the current lease is inside its effective window.
func (m *LeaseManager) Valid() bool {
	return m.Current().Valid(m.clock.Now())
}

// EnsureValid renews the lease when it is missing or inside its renewal
// window. Concurrent callers share a single registry call. On failure the
// previous lease stays in place and an error wrapping ErrLeaseUnavailable
// is returned.
func (m *LeaseManager) EnsureValid(ctx context.Context) error {
	if !m.Current().NeedsRenewal(m.clock.Now()) {
		return nil
	}
	_, err, _ := m.group.Do(renewKey, func() (interface{}, error) {
		if !m.Current().NeedsRenewal(m.clock.Now()) {
			return nil, nil
		}
		return nil, m.renew(ctx)
	})
	return err
}

// Renew unconditionally replaces the lease.
func (m *LeaseManager) Renew(ctx context.Context) error {
	_, err, _ := m.group.Do(renewKey, func() (interface{}, error) {
		return nil, m.renew(ctx)
	})
	return err
}

// Resolve returns the signed URL for key from the current lease. A lease past
// its effective expiry but before the advertised one is still served so
// fetches can proceed while renewal is failing.
func (m *LeaseManager) Resolve(key string) (string, error) {
	l := m.Current()
	if l == nil {
		return "", fmt.Errorf("%w: %s", models.ErrNoLease, key)
	}
	u, ok := l.URL(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", models.ErrNoLease, key)
	}
	if !l.Usable(m.clock.Now()) {
		return "", fmt.Errorf("%w: %s", models.ErrLeaseExpired, key)
	}
	return u, nil
}

func (m *LeaseManager) renew(ctx context.Context) error {
	now := m.clock.Now()
	grant, err := m.registry.Fetch(ctx)
	if err != nil {
		n := m.failures.Inc()
		m.metrics.RecordLeaseRenewal("failure")
		m.metrics.RecordConsecutiveFailures(n)
		m.logger.Error("lease renewal failed",
			applogger.Error(err),
			applogger.Int64("consecutive_failures", n),
			applogger.Bool("has_previous", m.Current() != nil),
		)
		if !errors.Is(err, models.ErrLeaseUnavailable) {
			err = fmt.Errorf("%w: %w", models.ErrLeaseUnavailable, err)
		}
		return err
	}

	lease := m.leaseFrom(grant, now)
	m.lease.Store(lease)
	m.failures.Reset()
	m.metrics.RecordLeaseRenewal("success")
	m.metrics.RecordConsecutiveFailures(0)
	m.logger.Info("lease renewed",
		applogger.Int("endpoints", len(lease.URLs)),
		applogger.String("license_id", lease.LicenseID),
		applogger.Time("expires_at", lease.ExpiresAt),
		applogger.Time("renew_at", lease.RenewAt),
	)
	return nil
}

func (m *LeaseManager) leaseFrom(g *Grant, now time.Time) *models.Lease {
	d := g.Duration
	if d <= 0 && !g.ExpiresAt.IsZero() {
		d = g.ExpiresAt.Sub(now)
	}
	if d <= 0 {
		d = m.defaultDuration
	}
	margin := m.margin
	if margin*2 >= d {
		// short lease: keep both windows inside its lifetime
		margin = d / 4
	}

	hard := now.Add(d)
	expires := hard.Add(-margin)
	return &models.Lease{
		URLs:       maps.Clone(g.URLs),
		LicenseID:  g.LicenseID,
		IssuedAt:   now,
		RenewAt:    expires.Add(-margin),
		ExpiresAt:  expires,
		HardExpiry: hard,
	}
}
