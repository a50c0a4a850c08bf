package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/sessionctx/internal/database"
	"github.com/BaSui01/sessionctx/types"
)

// MaxPayloadBytes 整个会话文档紧凑 JSON 序列化后的字节上限
const MaxPayloadBytes = 16384

// DefaultMaxRetries 乐观锁默认重试次数
// 每次冲突都意味着另一个写者已提交，N 个并发写者中任何一个最多失败 N-1 次
const DefaultMaxRetries = 10

// 通用错误
var (
	ErrStoreClosed      = errors.New("store is closed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrCapacityExceeded = errors.New("session payload exceeds capacity")
)

// StoreType 存储后端类型
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
	StoreTypeMongo  StoreType = "mongo"
)

// Store 每个会话 id 持久化一份 JSON 文档
type Store interface {
	// Load 返回已存文档，会话不存在时返回 nil 且无错误
	Load(ctx context.Context, sid string) (types.Document, error)

	// SavePatch 将补丁合并进已存文档（不存在时原样保存），结果不超过字节上限才提交
	// 超限时先对当前领域载荷执行压缩，仍超限则返回 *CapacityExceededError 且不提交
	SavePatch(ctx context.Context, sid string, patch types.Patch, opts ...SaveOption) error

	// Close 关闭存储并释放资源
	Close() error

	// Ping 健康检查
	Ping(ctx context.Context) error
}

// SaveOption 单次 SavePatch 的选项
type SaveOption func(*saveOptions)

type saveOptions struct {
	characterID string
}

// WithCharacterID 记录会话所属角色
func WithCharacterID(id string) SaveOption {
	return func(o *saveOptions) { o.characterID = id }
}

func applySaveOptions(opts []SaveOption) saveOptions {
	var o saveOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// CapacityExceededError 合并后的文档压缩后仍超过上限，此时不提交任何内容
type CapacityExceededError struct {
	SessionID string
	Size      int
	Limit     int
	Compacted bool
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("session %s: payload %d bytes exceeds limit %d (compacted=%t)",
		e.SessionID, e.Size, e.Limit, e.Compacted)
}

// Is 使 errors.Is(err, ErrCapacityExceeded) 成立
func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// Unwrap 暴露结构化错误，供 types.IsErrorCode 沿错误链判断
func (e *CapacityExceededError) Unwrap() error {
	return types.NewError(types.ErrCapacityExceeded, "payload exceeds capacity").WithSession(e.SessionID)
}

// StoreConfig 所有存储实现共用的配置
type StoreConfig struct {
	// 存储后端类型
	Type StoreType `json:"type" yaml:"type"`

	// 文件存储根目录
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// 补丁与已存文档的合并方式
	MergePolicy MergePolicy `json:"merge_policy" yaml:"merge_policy"`

	// 覆盖字节上限，0 表示使用 MaxPayloadBytes
	MaxPayloadBytes int `json:"max_payload_bytes" yaml:"max_payload_bytes"`

	// 超限时先压缩再决定是否拒绝
	CompactOnOverflow bool `json:"compact_on_overflow" yaml:"compact_on_overflow"`

	// 乐观锁（redis、mongo）与事务（sql）的重试上限，0 表示 DefaultMaxRetries
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Type 为 redis 时使用
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`

	// Type 为 sql 时使用
	SQL SQLStoreConfig `json:"sql" yaml:"sql"`

	// Type 为 mongo 时使用
	Mongo MongoStoreConfig `json:"mongo" yaml:"mongo"`
}

// RedisStoreConfig Redis 专用配置
type RedisStoreConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`

	// 所有 Redis 键的前缀
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// 空闲会话过期时间，0 表示永不过期
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// SQLStoreConfig 基于 GORM 的存储配置
type SQLStoreConfig struct {
	// postgres / mysql / sqlite
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`

	// 用 GORM AutoMigrate 建 session_memory 表，不走迁移文件
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate"`

	Pool database.PoolConfig `json:"pool" yaml:"pool"`
}

// MongoStoreConfig MongoDB 专用配置
type MongoStoreConfig struct {
	URI        string        `json:"uri" yaml:"uri"`
	Database   string        `json:"database" yaml:"database"`
	Collection string        `json:"collection" yaml:"collection"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultStoreConfig 默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:              StoreTypeMemory,
		BaseDir:           "./data/sessions",
		MergePolicy:       MergeDomain,
		MaxPayloadBytes:   MaxPayloadBytes,
		CompactOnOverflow: true,
		MaxRetries:        DefaultMaxRetries,
		Redis: RedisStoreConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "sessionctx:",
		},
		SQL: SQLStoreConfig{
			Driver: "sqlite",
			DSN:    "sessionctx.db",
			Pool:   database.DefaultPoolConfig(),
		},
		Mongo: MongoStoreConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "sessionctx",
			Collection: "session_memory",
			Timeout:    5 * time.Second,
		},
	}
}

func validateSID(sid string) error {
	if sid == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidInput)
	}
	return nil
}

func retryBudget(config StoreConfig) int {
	if config.MaxRetries > 0 {
		return config.MaxRetries
	}
	return DefaultMaxRetries
}
