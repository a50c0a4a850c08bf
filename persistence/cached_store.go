package persistence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sessionctx/internal/cache"
	"github.com/BaSui01/sessionctx/types"
)

// CachedStore 在较慢的存储（SQL、Mongo）前放一层 Redis 读穿缓存
// 写入先落内层存储再删除缓存副本，缓存故障降级为直读，只记日志
type CachedStore struct {
	inner  Store
	cache  *cache.Manager
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStore 包装 inner，缓存管理器随存储一起关闭
func NewCachedStore(inner Store, m *cache.Manager, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{
		inner:  inner,
		cache:  m,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "session_cache")),
	}
}

func (s *CachedStore) key(sid string) string {
	return cache.Key("session", sid)
}

// Load 优先从缓存读取
func (s *CachedStore) Load(ctx context.Context, sid string) (types.Document, error) {
	if err := validateSID(sid); err != nil {
		return nil, err
	}

	var doc types.Document
	err := s.cache.Fetch(ctx, s.key(sid), &doc)
	if err == nil {
		return doc, nil
	}
	if !cache.IsCacheMiss(err) {
		s.logger.Warn("session cache read failed", zap.String("sid", sid), zap.Error(err))
	}

	doc, err = s.inner.Load(ctx, sid)
	if err != nil || doc == nil {
		return doc, err
	}
	if err := s.cache.Put(ctx, s.key(sid), doc, s.ttl); err != nil {
		s.logger.Warn("session cache fill failed", zap.String("sid", sid), zap.Error(err))
	}
	return doc, nil
}

// SavePatch 写穿并使缓存文档失效
func (s *CachedStore) SavePatch(ctx context.Context, sid string, patch types.Patch, opts ...SaveOption) error {
	if err := s.inner.SavePatch(ctx, sid, patch, opts...); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, s.key(sid)); err != nil {
		s.logger.Warn("session cache invalidation failed", zap.String("sid", sid), zap.Error(err))
	}
	return nil
}

// Ping 只检查内层存储，缓存是可选的
func (s *CachedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close 关闭内层存储与缓存
func (s *CachedStore) Close() error {
	err := s.inner.Close()
	if cerr := s.cache.Close(); err == nil {
		err = cerr
	}
	return err
}
