// =============================================================================
// 📦 sessionctx 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/sessionctx/assembler"
	"github.com/BaSui01/sessionctx/persistence"
	"github.com/BaSui01/sessionctx/refresh"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Store:     DefaultStoreConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Mongo:     DefaultMongoConfig(),
		Cache:     DefaultCacheConfig(),
		Budget:    DefaultBudgetConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:              "memory",
		MergePolicy:       "domain",
		MaxPayloadBytes:   persistence.MaxPayloadBytes,
		CompactOnOverflow: true,
		BaseDir:           "./data/sessions",
		KeyPrefix:         "sessionctx:",
		TTL:               0,
		MaxRetries:        persistence.DefaultMaxRetries,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "sessionctx",
		Password:        "",
		Name:            "sessionctx",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     false,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "sessionctx",
		Collection: "session_memory",
		Timeout:    5 * time.Second,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: false,
		TTL:     5 * time.Minute,
	}
}

// DefaultBudgetConfig 返回默认预算配置
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		CtxMax:            assembler.DefaultCtxMax,
		ReserveOutput:     assembler.DefaultReserveOutput,
		StreakTurns:       refresh.DefaultStreakTurns,
		MaxAgeTurns:       refresh.DefaultMaxAgeTurns,
		PressureThreshold: refresh.DefaultPressureThreshold,
		TokenizerModel:    "",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "sessionctx",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "sessionctx",
	}
}
