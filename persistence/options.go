package persistence

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sessionctx/internal/cache"
	"github.com/BaSui01/sessionctx/internal/database"
)

// Option 存储构造选项
type Option func(*options)

type options struct {
	logger    *zap.Logger
	compactor Compactor
	observer  Observer
	cache     *cache.Manager
	cacheTTL  time.Duration
	poolStats database.StatsReporter
	now       func() time.Time
}

func buildOptions(opts []Option) *options {
	o := &options{
		logger:   zap.NewNop(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithLogger 设置存储日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCompactor 替换 DefaultCompactor，仅在开启 CompactOnOverflow 时执行
func WithCompactor(c Compactor) Option {
	return func(o *options) { o.compactor = c }
}

// WithObserver 接收每次操作的耗时与压缩结果
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithCache 在 NewStore 构建的存储前放一层读穿文档缓存
func WithCache(m *cache.Manager, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = m
		o.cacheTTL = ttl
	}
}

// WithPoolStatsReporter 接收 NewStore 为 sql 后端打开的连接池的连接数
func WithPoolStatsReporter(r database.StatsReporter) Option {
	return func(o *options) { o.poolStats = r }
}

// WithClock 覆盖 ts_updated 使用的时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
