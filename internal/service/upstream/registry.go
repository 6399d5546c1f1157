package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"GoPredict/internal/domain/models"
	xhttp "GoPredict/pkg/http"
	applogger "GoPredict/pkg/logger"
	"GoPredict/pkg/util"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Grant is a decoded registry response.
type Grant struct {
	URLs      map[string]string
	LicenseID string
	// Duration is the advertised lifetime, zero when not advertised.
	Duration time.Duration
	// ExpiresAt is the advertised absolute expiry, zero when not advertised.
	ExpiresAt time.Time
}

// Registry issues signed endpoint sets.
type Registry interface {
	Fetch(ctx context.Context) (*Grant, error)
}

type registryResponse struct {
	Status              string            `json:"status"`
	Message             string            `json:"message"`
	Endpoints           map[string]string `json:"endpoints"`
	URLExpiresInMinutes float64           `json:"url_expires_in_minutes"`
	ExpiresAt           json.RawMessage   `json:"expires_at"`
	Client              struct {
		LicenseID string `json:"license_id"`
	} `json:"client"`
}

// RegistryOption configures RegistryClient.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	maxRequests      uint32
	interval         time.Duration
	timeout          time.Duration
	failureThreshold uint32
	logger           *applogger.Logger
}

// WithBreaker sets circuit breaker parameters for registry calls.
func WithBreaker(maxRequests uint32, interval, timeout time.Duration, failureThreshold uint32) RegistryOption {
	return func(c *registryConfig) {
		c.maxRequests = maxRequests
		c.interval = interval
		c.timeout = timeout
		c.failureThreshold = failureThreshold
	}
}

// WithRegistryLogger sets the logger for breaker transitions.
func WithRegistryLogger(l *applogger.Logger) RegistryOption {
	return func(c *registryConfig) {
		c.logger = l
	}
}

// RegistryClient calls the upstream endpoint registry behind a circuit breaker.
type RegistryClient struct {
	client   *xhttp.Client
	endpoint string
	cb       *gobreaker.CircuitBreaker[*Grant]
}

// NewRegistryClient builds a client for {baseURL}/api/v1/client/{licenseID}/endpoints.
func NewRegistryClient(client *xhttp.Client, baseURL, licenseID string, opts ...RegistryOption) *RegistryClient {
	cfg := &registryConfig{
		maxRequests:      1,
		interval:         time.Minute,
		timeout:          2 * time.Minute,
		failureThreshold: 5,
		logger:           applogger.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	endpoint := fmt.Sprintf("%s/api/v1/client/%s/endpoints",
		strings.TrimRight(baseURL, "/"), url.PathEscape(licenseID))

	l := cfg.logger
	cb := gobreaker.NewCircuitBreaker[*Grant](gobreaker.Settings{
		Name:        "upstream-registry",
		MaxRequests: cfg.maxRequests,
		Interval:    cfg.interval,
		Timeout:     cfg.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state change",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
	})

	return &RegistryClient{client: client, endpoint: endpoint, cb: cb}
}

// Fetch requests a fresh endpoint set. Every error wraps models.ErrLeaseUnavailable.
func (r *RegistryClient) Fetch(ctx context.Context) (*Grant, error) {
	g, err := r.cb.Execute(func() (*Grant, error) {
		return r.fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: registry circuit: %w", models.ErrLeaseUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %w", models.ErrLeaseUnavailable, err)
	}
	return g, nil
}

func (r *RegistryClient) fetch(ctx context.Context) (*Grant, error) {
	var body []byte
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     r.endpoint,
		Headers: map[string]string{"Accept": "application/json"},
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("registry request: %s", sanitizeError(err))
	}

	var resp registryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("registry status %q: %s", resp.Status, resp.Message)
	}
	if len(resp.Endpoints) == 0 {
		return nil, errors.New("registry returned no endpoints")
	}

	g := &Grant{
		URLs:      resp.Endpoints,
		LicenseID: resp.Client.LicenseID,
	}
	if resp.URLExpiresInMinutes > 0 {
		g.Duration = time.Duration(resp.URLExpiresInMinutes * float64(time.Minute))
	}
	if raw := strings.Trim(string(resp.ExpiresAt), `"`); raw != "" && raw != "null" {
		if t, ok := util.ParseTime(raw); ok {
			g.ExpiresAt = t
		}
	}
	return g, nil
}

// sanitizeError drops the request URL from transport errors; signed URLs
// carry credentials and must not reach logs.
func sanitizeError(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		if ue.Timeout() {
			return "timeout"
		}
		return ue.Err.Error()
	}
	return err.Error()
}
