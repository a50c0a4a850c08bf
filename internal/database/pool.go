package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/sessionctx/types"
)

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = types.NewError(types.ErrStoreClosed, "database pool is closed")

// =============================================================================
// 🗄️ 会话表连接池
// =============================================================================

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// 0 表示不做后台探活
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultPoolConfig 默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Validate 校验连接池配置
func (c PoolConfig) Validate() error {
	switch {
	case c.MaxOpenConns <= 0:
		return fmt.Errorf("max_open_conns must be positive")
	case c.MaxIdleConns <= 0:
		return fmt.Errorf("max_idle_conns must be positive")
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// StatsReporter 接收探活时采集的连接数（例如写入 Prometheus）
type StatsReporter func(open, idle int)

// TxFunc 在事务内执行的读-合并-写
type TxFunc func(tx *gorm.DB) error

// PoolManager 持有 session_memory 所在库的 GORM 实例
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	reportMu sync.RWMutex
	reporter StatsReporter

	closed atomic.Bool
	stop   chan struct{}
}

// NewPoolManager 按 config 设置连接池并在配置了间隔时启动后台探活
func NewPoolManager(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "db_pool")),
		stop:   make(chan struct{}),
	}
	if config.HealthCheckInterval > 0 {
		go pm.watch(config.HealthCheckInterval)
	}

	pm.logger.Info("database pool ready",
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns),
	)
	return pm, nil
}

// SetStatsReporter 设置探活时的连接数上报函数
func (pm *PoolManager) SetStatsReporter(r StatsReporter) {
	pm.reportMu.Lock()
	defer pm.reportMu.Unlock()
	pm.reporter = r
}

// DB 返回 GORM 实例
func (pm *PoolManager) DB() *gorm.DB {
	return pm.db
}

// Closed 连接池是否已关闭
func (pm *PoolManager) Closed() bool {
	return pm.closed.Load()
}

// Ping 检查数据库连接
func (pm *PoolManager) Ping(ctx context.Context) error {
	if pm.closed.Load() {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Close 关闭连接池，可重复调用
func (pm *PoolManager) Close() error {
	if !pm.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(pm.stop)
	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

// =============================================================================
// 🔄 事务重试
// =============================================================================

// txBackoff 第 attempt 次失败后的等待，SQLite 忙时通常几十毫秒即可
func txBackoff(attempt int) time.Duration {
	d := 10 * time.Millisecond << uint(attempt)
	if d > 200*time.Millisecond {
		d = 200 * time.Millisecond
	}
	return d
}

// WithTransactionRetry 在事务中执行 fn，死锁、序列化失败与 SQLite 忙时最多尝试 attempts 次
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, attempts int, fn TxFunc) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if pm.closed.Load() {
			return ErrPoolClosed
		}
		if err = pm.db.WithContext(ctx).Transaction(fn); err == nil {
			return nil
		}
		if !IsRetryableError(err) {
			return err
		}
		pm.logger.Debug("transaction conflict, retrying",
			zap.Int("attempt", i+1),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(txBackoff(i)):
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", attempts, err)
}

// retryableMarkers 出现在驱动错误信息中、表示换个时机重做即可成功的片段
var retryableMarkers = []string{
	"deadlock",
	"serialization failure",
	"40001",
	"lock timeout",
	"lock wait timeout",
	"database is locked",
	"sqlite_busy",
	"connection reset",
	"connection refused",
	"broken pipe",
	"bad connection",
}

// IsRetryableError 判断事务错误是否值得重试
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range retryableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// =============================================================================
// 🏥 探活
// =============================================================================

func (pm *PoolManager) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
			pm.check()
		}
	}
}

func (pm *PoolManager) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pm.Ping(ctx); err != nil {
		if !pm.closed.Load() {
			pm.logger.Warn("database health check failed", zap.Error(err))
		}
		return
	}

	stats := pm.sqlDB.Stats()
	pm.reportMu.RLock()
	report := pm.reporter
	pm.reportMu.RUnlock()
	if report != nil {
		report(stats.OpenConnections, stats.Idle)
	}
}
