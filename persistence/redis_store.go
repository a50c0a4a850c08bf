package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/sessionctx/types"
)

// RedisStore 基于 Redis 的 Store 实现，适合分布式生产部署
// 每个会话一个 JSON 字符串键，同一键上的并发 SavePatch 用 WATCH/MULTI 乐观锁串行化
type RedisStore struct {
	client     *redis.Client
	keyPrefix  string
	ttl        time.Duration
	maxRetries int
	core       mergeCore
	logger     *zap.Logger
}

// NewRedisStore 创建 Redis 会话存储
func NewRedisStore(config StoreConfig, opts ...Option) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, config, opts...), nil
}

// NewRedisStoreWithClient 在已有客户端上构建存储，Close 时由存储关闭客户端
func NewRedisStoreWithClient(client *redis.Client, config StoreConfig, opts ...Option) *RedisStore {
	o := buildOptions(opts)

	keyPrefix := config.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "sessionctx:"
	}
	return &RedisStore{
		client:     client,
		keyPrefix:  keyPrefix + "session:",
		ttl:        config.Redis.TTL,
		maxRetries: retryBudget(config),
		core:       newMergeCore(string(StoreTypeRedis), config, o),
		logger:     o.logger.With(zap.String("component", "redis_session_store")),
	}
}

// Close 关闭存储
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping 健康检查
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionKey 会话对应的 Redis 键
func (s *RedisStore) sessionKey(sid string) string {
	return s.keyPrefix + sid
}

// Load 读取 sid 对应的文档
func (s *RedisStore) Load(ctx context.Context, sid string) (types.Document, error) {
	if err := validateSID(sid); err != nil {
		return nil, err
	}
	r, err := s.read(ctx, s.client, sid)
	if err != nil || r == nil {
		return nil, err
	}
	return DecodeDocument(r.Payload)
}

func (s *RedisStore) read(ctx context.Context, c stringGetter, sid string) (*record, error) {
	data, err := c.Get(ctx, s.sessionKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrStoreClosed
		}
		return nil, types.NewError(types.ErrStoreUnavailable, "redis get").WithCause(err).WithSession(sid).WithRetryable(true)
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, types.NewError(types.ErrSerialization, "decode session record").WithCause(err).WithSession(sid)
	}
	return &r, nil
}

// stringGetter *redis.Client 与 *redis.Tx 都满足
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// SavePatch 在 WATCH 下合并补丁，并发写者会使事务失败，随后基于新数据重新合并
func (s *RedisStore) SavePatch(ctx context.Context, sid string, patch types.Patch, opts ...SaveOption) error {
	if err := validateSID(sid); err != nil {
		return err
	}
	so := applySaveOptions(opts)
	key := s.sessionKey(sid)

	txf := func(tx *redis.Tx) error {
		prev, err := s.read(ctx, tx, sid)
		if err != nil {
			return err
		}
		var current types.Document
		if prev != nil {
			if current, err = DecodeDocument(prev.Payload); err != nil {
				return err
			}
		}

		data, err := s.core.apply(ctx, sid, current, patch)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(nextRecord(prev, data, so, s.core.now()))
		if err != nil {
			return types.NewError(types.ErrSerialization, "encode session record").WithCause(err).WithSession(sid)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			if errors.Is(err, redis.ErrClosed) {
				return ErrStoreClosed
			}
			return err
		}
		s.logger.Debug("optimistic lock conflict, retrying",
			zap.String("sid", sid),
			zap.Int("attempt", attempt+1),
		)
	}

	return types.NewError(types.ErrConcurrentUpdate,
		fmt.Sprintf("session changed concurrently %d times", s.maxRetries)).
		WithSession(sid).
		WithRetryable(true)
}
