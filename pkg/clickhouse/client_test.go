package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{
		Host:        "ch",
		Port:        9000,
		Database:    "gopredict",
		User:        "default",
		Password:    "pw",
		DialTimeout: 5 * time.Second,
		ReadTimeout: 10 * time.Second,
		MaxExecTime: 30 * time.Second,
		AsyncInsert: true,
	}
	assert.Equal(t,
		"clickhouse://default:pw@ch:9000/gopredict?dial_timeout=5s&read_timeout=10s&max_execution_time=30&async_insert=1",
		buildDSN(cfg))

	cfg.UseHTTP = true
	cfg.WaitForAsync = true
	cfg.DialTimeout, cfg.ReadTimeout, cfg.MaxExecTime = 0, 0, 0
	assert.Equal(t,
		"clickhouse+http://default:pw@ch:9000/gopredict?async_insert=1&wait_for_async_insert=1",
		buildDSN(cfg))
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "gopredict.sync_attempts", (&Client{database: "gopredict"}).Qualify("sync_attempts"))
	assert.Equal(t, "sync_attempts", (&Client{}).Qualify("sync_attempts"))
}
