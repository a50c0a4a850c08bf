package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 文档缓存
// =============================================================================

// KeyPrefix 所有缓存键的前缀
const KeyPrefix = "sessionctx:cache:"

// Key 拼接缓存键，第一段作为指标里的 cache_type，例如 Key("session", sid)
func Key(parts ...string) string {
	return KeyPrefix + strings.Join(parts, ":")
}

// kindOf 取出键的 cache_type 段
func kindOf(key string) string {
	kind := strings.TrimPrefix(key, KeyPrefix)
	if i := strings.IndexByte(kind, ':'); i >= 0 {
		kind = kind[:i]
	}
	return kind
}

// HitRecorder 记录命中与未命中（metrics.Collector 实现该接口）
type HitRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

var (
	// ErrCacheMiss 键不存在或已过期
	ErrCacheMiss = errors.New("cache miss")
	// ErrManagerClosed 缓存已关闭
	ErrManagerClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为未命中
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config 缓存配置
type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	// Put 未指定 ttl 时使用
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	MaxRetries   int `yaml:"max_retries" json:"max_retries"`
	PoolSize     int `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 0 表示不做后台探活
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		DefaultTTL:          5 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Manager 以 JSON 形式缓存会话文档
type Manager struct {
	rdb        *redis.Client
	defaultTTL time.Duration
	logger     *zap.Logger

	recMu    sync.RWMutex
	recorder HitRecorder

	closed atomic.Bool
	stop   chan struct{}
}

// NewManager 连接 Redis 并在配置了间隔时启动后台探活
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		rdb:        rdb,
		defaultTTL: config.DefaultTTL,
		logger:     logger.With(zap.String("component", "cache")),
		stop:       make(chan struct{}),
	}
	if config.HealthCheckInterval > 0 {
		go m.watch(config.HealthCheckInterval)
	}

	m.logger.Info("document cache ready",
		zap.String("addr", config.Addr),
		zap.Duration("default_ttl", config.DefaultTTL),
	)
	return m, nil
}

// SetRecorder 设置命中率记录器
func (m *Manager) SetRecorder(r HitRecorder) {
	m.recMu.Lock()
	defer m.recMu.Unlock()
	m.recorder = r
}

func (m *Manager) observe(key string, hit bool) {
	m.recMu.RLock()
	r := m.recorder
	m.recMu.RUnlock()
	if r == nil {
		return
	}
	if hit {
		r.RecordCacheHit(kindOf(key))
	} else {
		r.RecordCacheMiss(kindOf(key))
	}
}

// Fetch 读取 key 并解码进 dest，未命中返回 ErrCacheMiss
func (m *Manager) Fetch(ctx context.Context, key string, dest any) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	data, err := m.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		m.observe(key, false)
		return ErrCacheMiss
	}
	if err != nil {
		return m.fail("get", err, zap.String("key", key))
	}
	m.observe(key, true)

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode cached %s: %w", key, err)
	}
	return nil
}

// Put 以 JSON 写入 value，ttl 为 0 时使用 DefaultTTL
func (m *Manager) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	if err := m.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return m.fail("set", err, zap.String("key", key))
	}
	return nil
}

// Invalidate 删除 keys
func (m *Manager) Invalidate(ctx context.Context, keys ...string) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.rdb.Del(ctx, keys...).Err(); err != nil {
		return m.fail("del", err, zap.Strings("keys", keys))
	}
	return nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if err := m.rdb.Ping(ctx).Err(); err != nil {
		return m.fail("ping", err)
	}
	return nil
}

// Close 关闭缓存，可重复调用
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.stop)
	m.logger.Info("closing document cache")
	return m.rdb.Close()
}

// fail 与 Close 竞争时 go-redis 返回 ErrClosed，统一成 ErrManagerClosed
func (m *Manager) fail(op string, err error, fields ...zap.Field) error {
	if errors.Is(err, redis.ErrClosed) {
		return ErrManagerClosed
	}
	m.logger.Warn("cache "+op+" failed", append(fields, zap.Error(err))...)
	return fmt.Errorf("cache %s failed: %w", op, err)
}

// watch 后台探活，只记日志
func (m *Manager) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.Ping(ctx); err != nil && !errors.Is(err, ErrManagerClosed) {
				m.logger.Warn("cache health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}
