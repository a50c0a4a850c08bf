package persistence

import (
	"context"
	"fmt"

	"github.com/BaSui01/sessionctx/internal/database"
)

// NewStore 按配置创建 Store
// 返回值带追踪并上报给配置的 Observer，给定 WithCache 时再包一层文档缓存
func NewStore(ctx context.Context, config StoreConfig, opts ...Option) (Store, error) {
	o := buildOptions(opts)

	var (
		store Store
		err   error
	)
	switch config.Type {
	case StoreTypeMemory, "":
		config.Type = StoreTypeMemory
		store = NewMemoryStore(config, opts...)
	case StoreTypeFile:
		store, err = newFileStore(config, opts)
	case StoreTypeRedis:
		store, err = newRedisStore(config, opts)
	case StoreTypeSQL:
		store, err = newSQLStore(config, o, opts)
	case StoreTypeMongo:
		store, err = newMongoStoreFromConfig(ctx, config, opts)
	default:
		return nil, fmt.Errorf("unsupported session store type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		store = NewCachedStore(store, o.cache, o.cacheTTL, o.logger)
	}
	return Instrument(store, string(config.Type), o.observer), nil
}

// MustNewStore 创建 Store，出错时 panic
//
// 警告：只应在应用初始化阶段使用，运行期请使用 NewStore
func MustNewStore(ctx context.Context, config StoreConfig, opts ...Option) Store {
	store, err := NewStore(ctx, config, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create session store: %v", err))
	}
	return store
}

func newFileStore(config StoreConfig, opts []Option) (Store, error) {
	s, err := NewFileStore(config, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newRedisStore(config StoreConfig, opts []Option) (Store, error) {
	s, err := NewRedisStore(config, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newSQLStore(config StoreConfig, o *options, opts []Option) (Store, error) {
	pool, err := database.Open(database.Config{
		Driver: config.SQL.Driver,
		DSN:    config.SQL.DSN,
		Pool:   config.SQL.Pool,
	}, o.logger)
	if err != nil {
		return nil, err
	}
	if o.poolStats != nil {
		pool.SetStatsReporter(o.poolStats)
	}
	s, err := NewSQLStore(pool, config, opts...)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	return s, nil
}

func newMongoStoreFromConfig(ctx context.Context, config StoreConfig, opts []Option) (Store, error) {
	s, err := NewMongoStore(ctx, config, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}
