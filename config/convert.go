package config

import (
	"github.com/BaSui01/sessionctx/internal/cache"
	"github.com/BaSui01/sessionctx/internal/database"
	"github.com/BaSui01/sessionctx/persistence"
	"github.com/BaSui01/sessionctx/refresh"
)

// =============================================================================
// 🔁 转换为各组件配置
// =============================================================================

// StoreConfig 组装 persistence.NewStore 所需的配置
func (c *Config) StoreConfig() persistence.StoreConfig {
	pool := database.DefaultPoolConfig()
	if c.Database.MaxOpenConns > 0 {
		pool.MaxOpenConns = c.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns > 0 {
		pool.MaxIdleConns = c.Database.MaxIdleConns
	}
	if pool.MaxIdleConns > pool.MaxOpenConns {
		pool.MaxIdleConns = pool.MaxOpenConns
	}
	if c.Database.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = c.Database.ConnMaxLifetime
	}

	return persistence.StoreConfig{
		Type:              persistence.StoreType(c.Store.Type),
		BaseDir:           c.Store.BaseDir,
		MergePolicy:       persistence.MergePolicy(c.Store.MergePolicy),
		MaxPayloadBytes:   c.Store.MaxPayloadBytes,
		CompactOnOverflow: c.Store.CompactOnOverflow,
		MaxRetries:        c.Store.MaxRetries,
		Redis: persistence.RedisStoreConfig{
			Addr:      c.Redis.Addr,
			Password:  c.Redis.Password,
			DB:        c.Redis.DB,
			PoolSize:  c.Redis.PoolSize,
			KeyPrefix: c.Store.KeyPrefix,
			TTL:       c.Store.TTL,
		},
		SQL: persistence.SQLStoreConfig{
			Driver:      c.Database.Driver,
			DSN:         c.Database.DSN(),
			AutoMigrate: c.Database.AutoMigrate,
			Pool:        pool,
		},
		Mongo: persistence.MongoStoreConfig{
			URI:        c.Mongo.URI,
			Database:   c.Mongo.Database,
			Collection: c.Mongo.Collection,
			Timeout:    c.Mongo.Timeout,
		},
	}
}

// CacheConfig 组装读穿透缓存配置，连接信息复用 Redis 段
func (c *Config) CacheConfig() cache.Config {
	cc := cache.DefaultConfig()
	cc.Addr = c.Redis.Addr
	cc.Password = c.Redis.Password
	cc.DB = c.Redis.DB
	if c.Redis.PoolSize > 0 {
		cc.PoolSize = c.Redis.PoolSize
	}
	cc.MinIdleConns = c.Redis.MinIdleConns
	if c.Cache.TTL > 0 {
		cc.DefaultTTL = c.Cache.TTL
	}
	return cc
}

// Policy 返回刷新策略，卡片上限沿用默认值
func (b BudgetConfig) Policy() refresh.Policy {
	p := refresh.DefaultPolicy()
	if b.StreakTurns > 0 {
		p.StreakTurns = b.StreakTurns
	}
	if b.MaxAgeTurns > 0 {
		p.MaxAgeTurns = b.MaxAgeTurns
	}
	if b.PressureThreshold > 0 {
		p.PressureThreshold = b.PressureThreshold
	}
	return p
}
