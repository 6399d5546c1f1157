package di

import (
	"context"
	"fmt"
	"time"

	"GoPredict/internal/domain/models"
	"GoPredict/internal/domain/repository"
	"GoPredict/internal/handler/api"
	internalrepo "GoPredict/internal/repository"
	"GoPredict/internal/service/cache"
	"GoPredict/internal/service/ratelimit"
	"GoPredict/internal/service/upstream"
	"GoPredict/internal/usecase"
	pkgcache "GoPredict/pkg/cache"
	pkgch "GoPredict/pkg/clickhouse"
	"GoPredict/pkg/config"
	xhttp "GoPredict/pkg/http"
	pkgkafka "GoPredict/pkg/kafka"
	applogger "GoPredict/pkg/logger"
	"GoPredict/pkg/metrics"
	"GoPredict/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "gopredict"

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	pkgkafka.SetProducerMetricsRegisterer(reg)
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger creates the application logger. With Kafka enabled, error
// logs are aggregated and shipped to the log topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(applogger.String("service", serviceName), applogger.String("env", cfg.Environment))
	if producer == nil {
		return l, func() {}, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.LogTopic,
		Service:        serviceName,
		Publisher:      producer,
	})
	return l, l.RemoveCollector, nil
}

// ProvideHTTPClient creates the upstream HTTP client with the fetch timeout.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(cfg.Polling.FetchTimeout))
}

// ProvideFailureCounter creates the consecutive failure counter shared by
// lease renewal and fetches.
func ProvideFailureCounter(cfg *config.Config, l *applogger.Logger) *upstream.FailureCounter {
	return upstream.NewFailureCounter(cfg.Polling.FailureAlertThreshold, usecase.FailureAlert(l))
}

// ProvideLeaseManager creates the lease manager in registry mode and
// returns nil in direct mode.
func ProvideLeaseManager(
	cfg *config.Config,
	client *xhttp.Client,
	m repository.Metrics,
	l *applogger.Logger,
	failures *upstream.FailureCounter,
) *upstream.LeaseManager {
	if cfg.Upstream.Mode != config.ModeRegistry {
		return nil
	}
	b := cfg.Upstream.Breaker
	registry := upstream.NewRegistryClient(client, cfg.Upstream.RegistryURL, cfg.Upstream.LicenseID,
		upstream.WithBreaker(b.MaxRequests, b.Interval, b.Timeout, b.FailureThreshold),
		upstream.WithRegistryLogger(l),
	)
	return upstream.NewLeaseManager(registry,
		upstream.WithSafetyMargin(cfg.Polling.LeaseSafetyMargin),
		upstream.WithDefaultDuration(cfg.Polling.DefaultLeaseDuration),
		upstream.WithLeaseMetrics(m),
		upstream.WithLeaseLogger(l),
		upstream.WithLeaseFailureCounter(failures),
	)
}

// ProvideStrategy selects how upstream URLs are resolved.
func ProvideStrategy(cfg *config.Config, leases *upstream.LeaseManager, l *applogger.Logger) upstream.Strategy {
	if leases != nil {
		return upstream.NewRegistryLeasedFetch(leases, l)
	}
	return upstream.NewDirectEndpointFetch(cfg.Upstream.BaseURL, cfg.Upstream.Paths, cfg.Upstream.APIKey)
}

// ProvideFetcher creates the remote fetcher.
func ProvideFetcher(
	client *xhttp.Client,
	strategy upstream.Strategy,
	m repository.Metrics,
	l *applogger.Logger,
	failures *upstream.FailureCounter,
) *upstream.Fetcher {
	return upstream.NewFetcher(client, strategy,
		upstream.WithFetcherMetrics(m),
		upstream.WithFetcherLogger(l),
		upstream.WithFetcherFailureCounter(failures),
	)
}

// ProvideStore creates the in-memory snapshot store.
func ProvideStore() *cache.Store {
	return cache.NewStore(models.AllDatasets)
}

// ProvideRetryCoordinator creates the delayed retry scheduler.
func ProvideRetryCoordinator(cfg *config.Config, m repository.Metrics, l *applogger.Logger) *usecase.RetryCoordinator {
	return usecase.NewRetryCoordinator(cfg.Polling.RetryDelay, cfg.Polling.MaxRetryAttempts,
		usecase.WithRetryMetrics(m),
		usecase.WithRetryLogger(l),
	)
}

// ProvidePipelines builds one pipeline per cached dataset.
func ProvidePipelines(cfg *config.Config, f *upstream.Fetcher) []*usecase.Pipeline {
	d := cfg.Upstream.Datasets
	return []*usecase.Pipeline{
		usecase.DailyPipeline(f, d.DailyPredictions, d.DailyOpportunities),
		usecase.IntradayPipeline(f, d.Intraday),
		usecase.TradebookPipeline(f, d.Tradebook),
	}
}

// ProvideStreamHub creates the websocket hub for live snapshot updates.
func ProvideStreamHub(l *applogger.Logger) *api.StreamHub {
	return api.NewStreamHub(l)
}

// ProvideRedisCache creates a Redis client, or nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return c, func() { _ = c.Close() }, nil
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when
// ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(4, 2),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideSyncAudit creates the per-attempt audit table writer and its
// schema. It returns nil when ClickHouse is disabled.
func ProvideSyncAudit(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.AttemptRecorder, error) {
	if ch == nil {
		return nil, nil
	}
	audit := internalrepo.NewClickHouseSyncAudit(ch, ch.Qualify(cfg.ClickHouse.Table), l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stmts := append([]string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database}, audit.SchemaStatements()...)
	if err := ch.InitSchema(ctx, stmts); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return audit, nil
}

// ProvideSinks collects the enabled snapshot observers.
func ProvideSinks(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	redis *pkgcache.RedisCache,
	hub *api.StreamHub,
) []repository.SnapshotSink {
	sinks := []repository.SnapshotSink{hub}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaNotificationPublisher(producer, cfg.Kafka.NotificationTopic))
	}
	if redis != nil {
		sinks = append(sinks, internalrepo.NewRedisSnapshotMirror(redis, cfg.Redis.SnapshotTTL))
	}
	return sinks
}

// ProvideEngine wires pipelines, store and retries into the sync engine.
func ProvideEngine(
	cfg *config.Config,
	store *cache.Store,
	retry *usecase.RetryCoordinator,
	pipelines []*usecase.Pipeline,
	fetcher *upstream.Fetcher,
	leases *upstream.LeaseManager,
	failures *upstream.FailureCounter,
	sinks []repository.SnapshotSink,
	audit repository.AttemptRecorder,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Engine {
	return usecase.NewEngine(store, retry, pipelines,
		usecase.WithEngineLogger(l),
		usecase.WithEngineMetrics(m),
		usecase.WithPolling(cfg.Polling.Enabled),
		usecase.WithStrategy(fetcher.Strategy().Name(), leases),
		usecase.WithFailureCounter(failures),
		usecase.WithPassthrough(fetcher, cfg.Upstream.Passthrough...),
		usecase.WithSinks(sinks...),
		usecase.WithAuditRecorder(audit),
	)
}

// ProvideScheduler creates the polling scheduler, or nil when polling is
// disabled.
func ProvideScheduler(cfg *config.Config, engine *usecase.Engine, leases *upstream.LeaseManager, l *applogger.Logger) (*usecase.Scheduler, error) {
	if !cfg.Polling.Enabled {
		l.Info("polling disabled, manual refresh only")
		return nil, nil
	}
	loc, err := time.LoadLocation(cfg.Polling.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	sc := usecase.SchedulerConfig{
		CycleMinutes: cfg.Polling.CycleMinutes,
		StartupDelay: cfg.Polling.StartupDelay,
		Location:     loc,
	}
	if leases != nil {
		sc.RenewEvery = cfg.Polling.LeaseRenewInterval
	}
	return usecase.NewScheduler(engine, sc, usecase.WithSchedulerLogger(l))
}

// ProvideRateLimiter creates the per-client limiter for manual refreshes.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.API.RefreshRatePerSec, cfg.API.RefreshBurst)
}

// ProvideDataHandler creates the /api/data routes.
func ProvideDataHandler(l *applogger.Logger, engine *usecase.Engine, limiter *ratelimit.Limiter, hub *api.StreamHub) *api.DataEchoHandler {
	return api.NewDataEchoHandler(l, engine, limiter, hub)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.DataEchoHandler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(reg, cfg.Metrics.Path))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	scheduler *usecase.Scheduler,
	engine *usecase.Engine,
	hub *api.StreamHub,
	audit repository.AttemptRecorder,
) *server.App {
	opts := []server.Option{
		server.WithService(srv),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}
	if scheduler != nil {
		opts = append(opts, server.WithService(scheduler))
	}
	if audit != nil {
		opts = append(opts, server.WithCloser("audit", audit.Close))
	}
	opts = append(opts,
		server.WithCloser("stream", func() error { hub.Close(); return nil }),
		server.WithCloser("engine", func() error { engine.Shutdown(); return nil }),
	)
	return server.New(serviceName, l, opts...)
}
