//go:build wireinject
// +build wireinject

package di

import (
	"GoPredict/pkg/config"
	"GoPredict/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideRegistry,
		ProvideMetrics,
		ProvideLogger,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideRedisCache,
		ProvideClickHouseClient,
		ProvideHTTPClient,

		// Upstream access
		ProvideFailureCounter,
		ProvideLeaseManager,
		ProvideStrategy,
		ProvideFetcher,

		// Repositories
		ProvideSyncAudit,
		ProvideStreamHub,
		ProvideSinks,

		// Use cases
		ProvideStore,
		ProvideRetryCoordinator,
		ProvidePipelines,
		ProvideEngine,
		ProvideScheduler,

		// HTTP
		ProvideRateLimiter,
		ProvideDataHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
