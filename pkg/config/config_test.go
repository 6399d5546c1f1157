package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryYAML = `
environment: test
upstream:
  mode: registry
  registry_url: https://registry.example.com
  license_id: LIC-1
`

func TestParseAppliesDefaults(t *testing.T) {
	t.Parallel()

	c, err := Parse([]byte(registryYAML))
	require.NoError(t, err)

	assert.True(t, c.Polling.Enabled)
	assert.Equal(t, 30*time.Second, c.Polling.FetchTimeout)
	assert.Equal(t, 3, c.Polling.MaxRetryAttempts)
	assert.Equal(t, 60*time.Second, c.Polling.RetryDelay)
	assert.Equal(t, 5*time.Second, c.Polling.StartupDelay)
	assert.Equal(t, []int{1, 16, 31, 46}, c.Polling.CycleMinutes)
	assert.Equal(t, 55*time.Minute, c.Polling.LeaseRenewInterval)
	assert.Equal(t, 5*time.Minute, c.Polling.LeaseSafetyMargin)
	assert.Equal(t, "predictions_daily", c.Upstream.Datasets.DailyPredictions)
	assert.Equal(t, "opportunities_daily", c.Upstream.Datasets.DailyOpportunities)
	assert.Equal(t, "predictions_15min", c.Upstream.Datasets.Intraday)
	assert.Equal(t, "tradebook_daily", c.Upstream.Datasets.Tradebook)
	assert.False(t, c.Kafka.Enabled)
}

func TestParseKeepsExplicitFalse(t *testing.T) {
	t.Parallel()

	c, err := Parse([]byte(registryYAML + `
polling:
  enabled: false
  cycle_minutes: [0, 30]
  retry_delay: 10s
`))
	require.NoError(t, err)

	assert.False(t, c.Polling.Enabled)
	assert.Equal(t, []int{0, 30}, c.Polling.CycleMinutes)
	assert.Equal(t, 10*time.Second, c.Polling.RetryDelay)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "registry mode without url",
			yaml: "environment: test\nupstream:\n  mode: registry\n  license_id: x\n",
		},
		{
			name: "direct mode without base url",
			yaml: "environment: test\nupstream:\n  mode: direct\n",
		},
		{
			name: "unknown mode",
			yaml: "environment: test\nupstream:\n  mode: carrier-pigeon\n",
		},
		{
			name: "minute out of range",
			yaml: registryYAML + "polling:\n  cycle_minutes: [1, 60]\n",
		},
		{
			name: "margin too large",
			yaml: registryYAML + "polling:\n  lease_safety_margin: 40m\n",
		},
		{
			name: "kafka enabled without brokers",
			yaml: registryYAML + "kafka:\n  enabled: true\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	c, err := Parse([]byte(registryYAML))
	require.NoError(t, err)

	env := map[string]string{
		"POLLING_ENABLED":    "false",
		"DATA_API_TIMEOUT":   "45000",
		"MAX_RETRY_ATTEMPTS": "5",
		"KAFKA_BROKERS":      "k1:9092, k2:9092",
		"REDIS_HOST":         "cache.internal",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.False(t, c.Polling.Enabled)
	assert.Equal(t, 45*time.Second, c.Polling.FetchTimeout)
	assert.Equal(t, 5, c.Polling.MaxRetryAttempts)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "cache.internal", c.Redis.Host)
	require.NoError(t, c.Validate())
}
