package config

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 sessionctx 的完整配置结构
type Config struct {
	// Store 会话存储配置
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Redis 配置（redis 存储与读穿透缓存共用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置（sql 存储）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Mongo 配置（mongo 存储）
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`

	// Cache 读穿透缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Budget 提示词预算与刷新策略
	Budget BudgetConfig `yaml:"budget" env:"BUDGET"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// StoreConfig 会话存储配置
type StoreConfig struct {
	// 后端类型: memory, file, redis, sql, mongo
	Type string `yaml:"type" env:"TYPE"`
	// 合并策略: domain, shallow
	MergePolicy string `yaml:"merge_policy" env:"MERGE_POLICY"`
	// 单个会话文档的字节上限
	MaxPayloadBytes int `yaml:"max_payload_bytes" env:"MAX_PAYLOAD_BYTES"`
	// 超限时先压缩再拒绝
	CompactOnOverflow bool `yaml:"compact_on_overflow" env:"COMPACT_ON_OVERFLOW"`
	// file 后端根目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// redis 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// redis 会话过期时间，0 表示不过期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 乐观锁 / 事务重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时通过 GORM 自动建表（生产环境建议使用 migrate 命令）
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	// 连接 URI
	URI string `yaml:"uri" env:"URI"`
	// 数据库名
	Database string `yaml:"database" env:"DATABASE"`
	// 集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 连接超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// CacheConfig 读穿透缓存配置
type CacheConfig struct {
	// 是否启用（使用 Redis 配置连接）
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 缓存过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// BudgetConfig 提示词预算与刷新策略
type BudgetConfig struct {
	// 模型上下文 token 数
	CtxMax int `yaml:"ctx_max" env:"CTX_MAX"`
	// 为回复预留的 token 数
	ReserveOutput int `yaml:"reserve_output" env:"RESERVE_OUTPUT"`
	// 连续高压轮数阈值 N
	StreakTurns int `yaml:"streak_turns" env:"STREAK_TURNS"`
	// 距上次刷新的最大轮数 M
	MaxAgeTurns int `yaml:"max_age_turns" env:"MAX_AGE_TURNS"`
	// 高压 usage share 阈值
	PressureThreshold float64 `yaml:"pressure_threshold" env:"PRESSURE_THRESHOLD"`
	// 分词模型，空则使用 4 字节估算
	TokenizerModel string `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// ✅ 校验
// =============================================================================

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Type {
	case "memory", "file", "redis", "sql", "mongo":
	default:
		errs = append(errs, fmt.Sprintf("unknown store type %q", c.Store.Type))
	}
	switch c.Store.MergePolicy {
	case "", "domain", "shallow":
	default:
		errs = append(errs, fmt.Sprintf("unknown merge policy %q", c.Store.MergePolicy))
	}
	if c.Store.MaxPayloadBytes < 0 {
		errs = append(errs, "max_payload_bytes must not be negative")
	}
	if c.Store.Type == "sql" && c.Database.DSN() == "" {
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}

	if c.Budget.CtxMax <= c.Budget.ReserveOutput {
		errs = append(errs, "ctx_max must exceed reserve_output")
	}
	if c.Budget.PressureThreshold <= 0 || c.Budget.PressureThreshold > 1 {
		errs = append(errs, "pressure_threshold must be in (0, 1]")
	}
	if c.Budget.StreakTurns <= 0 || c.Budget.MaxAgeTurns <= 0 {
		errs = append(errs, "streak_turns and max_age_turns must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
