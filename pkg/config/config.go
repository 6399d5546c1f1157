package config

import (
	"fmt"
	"os"
	"time"

	"GoPredict/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	ModeRegistry = "registry"
	ModeDirect   = "direct"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout" validate:"required"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Polling struct {
		Enabled              bool          `yaml:"enabled" default:"true"`
		FetchTimeout         time.Duration `yaml:"fetch_timeout" default:"30s" validate:"gt=0"`
		MaxRetryAttempts     int           `yaml:"max_retry_attempts" default:"3" validate:"gte=0,lte=20"`
		RetryDelay           time.Duration `yaml:"retry_delay" default:"60s" validate:"gt=0"`
		StartupDelay         time.Duration `yaml:"startup_delay" default:"5s" validate:"gte=0"`
		CycleMinutes         []int         `yaml:"cycle_minutes" default:"[1,16,31,46]" validate:"min=1,dive,gte=0,lte=59"`
		LeaseRenewInterval   time.Duration `yaml:"lease_renew_interval" default:"55m" validate:"gte=1m"`
		LeaseSafetyMargin    time.Duration `yaml:"lease_safety_margin" default:"5m" validate:"gte=0"`
		DefaultLeaseDuration time.Duration `yaml:"default_lease_duration" default:"60m" validate:"gt=0"`
		Timezone             string        `yaml:"timezone" default:"UTC"`

		// FailureAlertThreshold raises an error-level alert once this many
		// consecutive upstream failures have been seen.
		FailureAlertThreshold int64 `yaml:"failure_alert_threshold" default:"3" validate:"gte=1"`
	} `yaml:"polling"`
	Upstream struct {
		Mode        string `yaml:"mode" default:"registry" validate:"oneof=registry direct"`
		RegistryURL string `yaml:"registry_url"`
		LicenseID   string `yaml:"license_id"`
		BaseURL     string `yaml:"base_url"`
		APIKey      string `yaml:"api_key"`
		Datasets    struct {
			DailyPredictions   string `yaml:"daily_predictions" default:"predictions_daily"`
			DailyOpportunities string `yaml:"daily_opportunities" default:"opportunities_daily"`
			Intraday           string `yaml:"intraday" default:"predictions_15min"`
			Tradebook          string `yaml:"tradebook" default:"tradebook_daily"`
		} `yaml:"datasets"`
		// Paths maps url keys to paths under base_url in direct mode.
		Paths       map[string]string `yaml:"paths"`
		// Passthrough lists url keys served raw by GET /api/data/upstream/:key.
		Passthrough []string          `yaml:"passthrough" default:"[\"symbols\",\"manifest\"]"`
		Breaker     struct {
			MaxRequests      uint32        `yaml:"max_requests" default:"1"`
			Interval         time.Duration `yaml:"interval" default:"60s"`
			Timeout          time.Duration `yaml:"timeout" default:"2m"`
			FailureThreshold uint32        `yaml:"failure_threshold" default:"5" validate:"gte=1"`
		} `yaml:"breaker"`
	} `yaml:"upstream"`
	API struct {
		RefreshRatePerSec float64 `yaml:"refresh_rate_per_sec" default:"0.2" validate:"gt=0"`
		RefreshBurst      int     `yaml:"refresh_burst" default:"3" validate:"gte=1"`
	} `yaml:"api"`
	Kafka struct {
		Enabled           bool     `yaml:"enabled"`
		Brokers           []string `yaml:"brokers"`
		NotificationTopic string   `yaml:"notification_topic" default:"gopredict.notifications"`
		LogTopic          string   `yaml:"log_topic" default:"gopredict.logs"`
		RequiredAcks      int      `yaml:"required_acks" default:"-1"`
		Compression       string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer          struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"gopredict"`
		Table            string        `yaml:"table" default:"sync_attempts"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"6379"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		Prefix      string        `yaml:"prefix" default:"gopredict"`
		SnapshotTTL time.Duration `yaml:"snapshot_ttl" default:"2h"`
	} `yaml:"redis"`
}

var validate = validator.New()

// Default returns a configuration populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("POLLING_ENABLED"); v != "" {
		c.Polling.Enabled = util.ParseBoolDefault(v, c.Polling.Enabled)
	}
	if v := getenv("DATA_API_TIMEOUT"); v != "" {
		c.Polling.FetchTimeout = util.ParseDurationDefault(v, c.Polling.FetchTimeout)
	}
	if v := getenv("MAX_RETRY_ATTEMPTS"); v != "" {
		c.Polling.MaxRetryAttempts = util.ParseIntDefault(v, c.Polling.MaxRetryAttempts)
	}
	if v := getenv("RETRY_DELAY"); v != "" {
		c.Polling.RetryDelay = util.ParseDurationDefault(v, c.Polling.RetryDelay)
	}
	if v := getenv("UPSTREAM_MODE"); v != "" {
		c.Upstream.Mode = v
	}
	if v := getenv("UPSTREAM_REGISTRY_URL"); v != "" {
		c.Upstream.RegistryURL = v
	}
	if v := getenv("LICENSE_ID"); v != "" {
		c.Upstream.LicenseID = v
	}
	if v := getenv("UPSTREAM_BASE_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := getenv("UPSTREAM_API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
		c.Kafka.Enabled = len(c.Kafka.Brokers) > 0
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.Upstream.Mode {
	case ModeRegistry:
		if c.Upstream.RegistryURL == "" {
			return fmt.Errorf("upstream.registry_url is required in registry mode")
		}
		if c.Upstream.LicenseID == "" {
			return fmt.Errorf("upstream.license_id is required in registry mode")
		}
	case ModeDirect:
		if c.Upstream.BaseURL == "" {
			return fmt.Errorf("upstream.base_url is required in direct mode")
		}
	}
	if c.Polling.LeaseSafetyMargin*2 >= c.Polling.DefaultLeaseDuration {
		return fmt.Errorf("polling.lease_safety_margin must be less than half of default_lease_duration")
	}
	if _, err := time.LoadLocation(c.Polling.Timezone); err != nil {
		return fmt.Errorf("polling.timezone: %w", err)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

// DatasetURLKeys returns every upstream url key the pipelines read.
func (c *Config) DatasetURLKeys() []string {
	d := c.Upstream.Datasets
	return []string{d.DailyPredictions, d.DailyOpportunities, d.Intraday, d.Tradebook}
}
