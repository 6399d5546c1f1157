package upstream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"GoPredict/internal/domain/models"
	"GoPredict/internal/domain/repository"
	xhttp "GoPredict/pkg/http"
	applogger "GoPredict/pkg/logger"
	"GoPredict/pkg/metrics"

	json "github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
)

// Payload is a successful upstream response body. Body is a JSON object.
type Payload struct {
	Key       string
	Body      []byte
	FetchedAt time.Time
}

// FetcherOption configures Fetcher.
type FetcherOption func(*Fetcher)

func WithFetcherClock(c clockwork.Clock) FetcherOption {
	return func(f *Fetcher) { f.clock = c }
}

func WithFetcherMetrics(r repository.Metrics) FetcherOption {
	return func(f *Fetcher) { f.metrics = r }
}

func WithFetcherLogger(l *applogger.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// WithFetcherFailureCounter shares the counter with the lease manager.
func WithFetcherFailureCounter(c *FailureCounter) FetcherOption {
	return func(f *Fetcher) { f.failures = c }
}

// Fetcher performs single bounded GETs for url keys.
type Fetcher struct {
	client   *xhttp.Client
	strategy Strategy
	failures *FailureCounter
	metrics  repository.Metrics
	clock    clockwork.Clock
	logger   *applogger.Logger
}

// NewFetcher creates a fetcher; the request timeout is the client's timeout.
func NewFetcher(client *xhttp.Client, strategy Strategy, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   client,
		strategy: strategy,
		metrics:  metrics.Nop{},
		clock:    clockwork.NewRealClock(),
		logger:   applogger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.failures == nil {
		f.failures = NewFailureCounter(0, nil)
	}
	return f
}

// Strategy returns the configured fetch strategy.
func (f *Fetcher) Strategy() Strategy { return f.strategy }

// Failures returns the shared consecutive failure counter.
func (f *Fetcher) Failures() *FailureCounter { return f.failures }

// Fetch resolves key and issues one GET. Transport errors, non-2xx statuses
// and bodies that are not JSON objects are returned as *models.FetchError.
// Resolution errors (models.ErrNoLease, models.ErrLeaseExpired) are
// returned unchanged.
func (f *Fetcher) Fetch(ctx context.Context, key string) (*Payload, error) {
	start := f.clock.Now()
	p, err := f.fetch(ctx, key)
	elapsed := f.clock.Since(start).Seconds()

	if err != nil {
		n := f.failures.Inc()
		f.metrics.RecordFetch(key, "failure", elapsed)
		f.metrics.RecordConsecutiveFailures(n)
		f.logger.Warn("fetch failed",
			applogger.String("url_key", key),
			applogger.String("strategy", f.strategy.Name()),
			applogger.Int64("consecutive_failures", n),
			applogger.Error(err),
		)
		return nil, err
	}

	f.failures.Reset()
	f.metrics.RecordFetch(key, "success", elapsed)
	f.metrics.RecordConsecutiveFailures(0)
	f.logger.Debug("fetch ok",
		applogger.String("url_key", key),
		applogger.Int("bytes", len(p.Body)),
	)
	return p, nil
}

func (f *Fetcher) fetch(ctx context.Context, key string) (*Payload, error) {
	target, err := f.strategy.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Accept": "application/json"}
	for k, v := range target.Headers {
		headers[k] = v
	}

	var body []byte
	err = f.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     target.URL,
		Headers: headers,
	}, &body)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) {
			cause := se.Body
			if cause == "" {
				cause = http.StatusText(se.Code)
			}
			return nil, &models.FetchError{Key: key, StatusCode: se.Code, Cause: cause, Err: err}
		}
		return nil, &models.FetchError{Key: key, Cause: sanitizeError(err), Err: err}
	}

	if !isJSONObject(body) {
		return nil, &models.FetchError{Key: key, Cause: "malformed body: expected a JSON object"}
	}

	return &Payload{Key: key, Body: body, FetchedAt: f.clock.Now()}, nil
}

func isJSONObject(b []byte) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal(b, &m) == nil && m != nil
}
