package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/sessionctx/persistence"
)

// --- 默认配置测试 ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultStoreConfig(), cfg.Store)
	assert.Equal(t, DefaultRedisConfig(), cfg.Redis)
	assert.Equal(t, DefaultDatabaseConfig(), cfg.Database)
	assert.Equal(t, DefaultMongoConfig(), cfg.Mongo)
	assert.Equal(t, DefaultCacheConfig(), cfg.Cache)
	assert.Equal(t, DefaultBudgetConfig(), cfg.Budget)
	assert.Equal(t, DefaultLogConfig(), cfg.Log)
	assert.Equal(t, DefaultTelemetryConfig(), cfg.Telemetry)
	assert.Equal(t, DefaultMetricsConfig(), cfg.Metrics)
}

func TestDefaultStoreConfig(t *testing.T) {
	sc := DefaultStoreConfig()
	assert.Equal(t, "memory", sc.Type)
	assert.Equal(t, "domain", sc.MergePolicy)
	assert.Equal(t, 16384, sc.MaxPayloadBytes)
	assert.True(t, sc.CompactOnOverflow)
	assert.Equal(t, persistence.DefaultMaxRetries, sc.MaxRetries)
}

func TestDefaultRedisConfig(t *testing.T) {
	rc := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", rc.Addr)
	assert.Equal(t, 0, rc.DB)
	assert.Equal(t, 10, rc.PoolSize)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	dc := DefaultDatabaseConfig()
	assert.Equal(t, "postgres", dc.Driver)
	assert.Equal(t, "localhost", dc.Host)
	assert.Equal(t, 5432, dc.Port)
	assert.Equal(t, 25, dc.MaxOpenConns)
	assert.Equal(t, 5, dc.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, dc.ConnMaxLifetime)
	assert.False(t, dc.AutoMigrate)
}

func TestDefaultMongoConfig(t *testing.T) {
	mc := DefaultMongoConfig()
	assert.Equal(t, "mongodb://localhost:27017", mc.URI)
	assert.Equal(t, "session_memory", mc.Collection)
	assert.Equal(t, 5*time.Second, mc.Timeout)
}

func TestDefaultBudgetConfig(t *testing.T) {
	bc := DefaultBudgetConfig()
	assert.Equal(t, 4096, bc.CtxMax)
	assert.Equal(t, 384, bc.ReserveOutput)
	assert.Equal(t, 3, bc.StreakTurns)
	assert.Equal(t, 12, bc.MaxAgeTurns)
	assert.Equal(t, 0.8, bc.PressureThreshold)
	assert.Empty(t, bc.TokenizerModel)
}

func TestDefaultLogConfig(t *testing.T) {
	lc := DefaultLogConfig()
	assert.Equal(t, "info", lc.Level)
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, []string{"stdout"}, lc.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	tc := DefaultTelemetryConfig()
	assert.False(t, tc.Enabled)
	assert.Equal(t, "sessionctx", tc.ServiceName)
	assert.Equal(t, 0.1, tc.SampleRate)
}

func TestDefaultMetricsConfig(t *testing.T) {
	mc := DefaultMetricsConfig()
	assert.True(t, mc.Enabled)
	assert.Equal(t, "sessionctx", mc.Namespace)
}
