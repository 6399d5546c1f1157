package di

import (
	"testing"

	"GoPredict/internal/domain/models"
	"GoPredict/internal/service/upstream"
	"GoPredict/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
log:
  level: error
upstream:
  mode: direct
  base_url: http://upstream.invalid
  api_key: secret
polling:
  enabled: false
`))
	require.NoError(t, err)
	return cfg
}

func TestInitializeAppInDirectModeWithoutInfrastructure(t *testing.T) {
	app, cleanup, err := InitializeApp(directConfig(t))
	require.NoError(t, err)
	require.NotNil(t, app)
	cleanup()
}

func TestProvidersSelectStrategyByMode(t *testing.T) {
	cfg := directConfig(t)
	reg := ProvideRegistry()
	m := ProvideMetrics(reg)
	l, cleanup, err := ProvideLogger(cfg, nil)
	require.NoError(t, err)
	defer cleanup()

	client := ProvideHTTPClient(cfg)
	assert.Equal(t, cfg.Polling.FetchTimeout, client.Timeout())

	fc := ProvideFailureCounter(cfg, l)
	assert.Nil(t, ProvideLeaseManager(cfg, client, m, l, fc))
	assert.Equal(t, upstream.StrategyDirectEndpoint, ProvideStrategy(cfg, nil, l).Name())

	cfg.Upstream.Mode = config.ModeRegistry
	cfg.Upstream.RegistryURL = "http://registry.invalid"
	cfg.Upstream.LicenseID = "LIC-1"
	leases := ProvideLeaseManager(cfg, client, m, l, fc)
	require.NotNil(t, leases)
	assert.Equal(t, upstream.StrategyRegistryLeased, ProvideStrategy(cfg, leases, l).Name())
}

func TestSinksOnlyIncludeEnabledBackends(t *testing.T) {
	cfg := directConfig(t)
	hub := ProvideStreamHub(nil)

	sinks := ProvideSinks(cfg, nil, nil, hub)
	require.Len(t, sinks, 1)
	assert.Equal(t, "websocket", sinks[0].Name())
}

func TestSchedulerDisabledWithoutPolling(t *testing.T) {
	cfg := directConfig(t)
	l, cleanup, err := ProvideLogger(cfg, nil)
	require.NoError(t, err)
	defer cleanup()

	s, err := ProvideScheduler(cfg, nil, nil, l)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestEngineReportsStrategyAndPassthrough(t *testing.T) {
	cfg := directConfig(t)
	reg := ProvideRegistry()
	m := ProvideMetrics(reg)
	l, cleanup, err := ProvideLogger(cfg, nil)
	require.NoError(t, err)
	defer cleanup()

	client := ProvideHTTPClient(cfg)
	fc := ProvideFailureCounter(cfg, l)
	f := ProvideFetcher(client, ProvideStrategy(cfg, nil, l), m, l, fc)
	e := ProvideEngine(cfg, ProvideStore(), ProvideRetryCoordinator(cfg, m, l), ProvidePipelines(cfg, f),
		f, nil, fc, nil, nil, m, l)
	defer e.Shutdown()

	st := e.GetStatus()
	assert.False(t, st.Enabled)
	assert.Equal(t, upstream.StrategyDirectEndpoint, st.Strategy)
	assert.Len(t, st.CacheStatus, len(models.AllDatasets))
}
