package upstream

import (
	"context"
	"strings"

	applogger "GoPredict/pkg/logger"
)

const (
	StrategyRegistryLeased = "RegistryLeasedFetch"
	StrategyDirectEndpoint = "DirectEndpointFetch"
)

// Target is a resolved request for one url key.
type Target struct {
	URL     string
	Headers map[string]string
}

// Strategy resolves url keys to request targets.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, key string) (*Target, error)
}

// RegistryLeasedFetch resolves keys through signed URLs from the lease manager.
type RegistryLeasedFetch struct {
	leases *LeaseManager
	logger *applogger.Logger
}

func NewRegistryLeasedFetch(leases *LeaseManager, l *applogger.Logger) *RegistryLeasedFetch {
	if l == nil {
		l = applogger.Nop()
	}
	return &RegistryLeasedFetch{leases: leases, logger: l}
}

func (s *RegistryLeasedFetch) Name() string { return StrategyRegistryLeased }

// Leases exposes the underlying lease manager.
func (s *RegistryLeasedFetch) Leases() *LeaseManager { return s.leases }

// Resolve renews the lease if due. A failed renewal does not stop the fetch;
// the current lease is used as long as it has not passed its hard expiry.
func (s *RegistryLeasedFetch) Resolve(ctx context.Context, key string) (*Target, error) {
	if err := s.leases.EnsureValid(ctx); err != nil {
		s.logger.Warn("lease renewal failed, using current lease",
			applogger.String("url_key", key),
			applogger.Error(err),
		)
	}
	u, err := s.leases.Resolve(key)
	if err != nil {
		return nil, err
	}
	return &Target{URL: u}, nil
}

// DirectEndpointFetch resolves keys against a fixed base URL.
type DirectEndpointFetch struct {
	baseURL string
	paths   map[string]string
	apiKey  string
}

// NewDirectEndpointFetch maps keys to base/paths[key], defaulting to base/key.
func NewDirectEndpointFetch(baseURL string, paths map[string]string, apiKey string) *DirectEndpointFetch {
	return &DirectEndpointFetch{
		baseURL: strings.TrimRight(baseURL, "/"),
		paths:   paths,
		apiKey:  apiKey,
	}
}

func (s *DirectEndpointFetch) Name() string { return StrategyDirectEndpoint }

func (s *DirectEndpointFetch) Resolve(_ context.Context, key string) (*Target, error) {
	p, ok := s.paths[key]
	if !ok || p == "" {
		p = key
	}
	t := &Target{URL: s.baseURL + "/" + strings.TrimLeft(p, "/")}
	if s.apiKey != "" {
		t.Headers = map[string]string{"X-API-Key": s.apiKey}
	}
	return t, nil
}
