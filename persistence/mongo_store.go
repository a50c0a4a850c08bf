package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/sessionctx/types"
)

// mongoRecord 一个会话一条文档，载荷按紧凑 JSON 字符串保存，字节上限量的就是落库内容
type mongoRecord struct {
	SID         string    `bson:"_id"`
	Payload     string    `bson:"payload"`
	CharacterID string    `bson:"character_id,omitempty"`
	UpdatedAt   time.Time `bson:"ts_updated"`
	Version     int64     `bson:"version"`
}

// sessionCollection MongoStore 用到的集合操作
type sessionCollection interface {
	// findOne 未找到时返回 mongo.ErrNoDocuments
	findOne(ctx context.Context, sid string) (*mongoRecord, error)
	insert(ctx context.Context, rec mongoRecord) error
	// replace 仅当存储版本等于 version 时替换，返回是否命中
	replace(ctx context.Context, version int64, rec mongoRecord) (bool, error)
}

type driverCollection struct {
	coll *mongo.Collection
}

func (c driverCollection) findOne(ctx context.Context, sid string) (*mongoRecord, error) {
	var rec mongoRecord
	if err := c.coll.FindOne(ctx, bson.D{{Key: "_id", Value: sid}}).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c driverCollection) insert(ctx context.Context, rec mongoRecord) error {
	_, err := c.coll.InsertOne(ctx, rec)
	return err
}

func (c driverCollection) replace(ctx context.Context, version int64, rec mongoRecord) (bool, error) {
	filter := bson.D{
		{Key: "_id", Value: rec.SID},
		{Key: "version", Value: version},
	}
	res, err := c.coll.ReplaceOne(ctx, filter, rec)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// MongoStore 基于 MongoDB 的 Store 实现
// 写者在 version 字段上竞争：新会话走 insert，已有会话按读到的版本条件替换，被抢先则重试
type MongoStore struct {
	client     *mongo.Client
	coll       sessionCollection
	timeout    time.Duration
	maxRetries int
	core       mergeCore
	logger     *zap.Logger
}

// NewMongoStore 连接 MongoDB 并返回配置集合上的存储
func NewMongoStore(ctx context.Context, config StoreConfig, opts ...Option) (*MongoStore, error) {
	client, err := mongo.Connect(mongoopts.Client().ApplyURI(config.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	timeout := mongoTimeout(config)
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	return NewMongoStoreWithClient(client, config, opts...), nil
}

// NewMongoStoreWithClient 在已有客户端上构建存储，Close 时由存储断开客户端
func NewMongoStoreWithClient(client *mongo.Client, config StoreConfig, opts ...Option) *MongoStore {
	dbName := config.Mongo.Database
	if dbName == "" {
		dbName = "sessionctx"
	}
	collName := config.Mongo.Collection
	if collName == "" {
		collName = "session_memory"
	}
	coll := driverCollection{coll: client.Database(dbName).Collection(collName)}
	return newMongoStore(client, coll, config, opts...)
}

func newMongoStore(client *mongo.Client, coll sessionCollection, config StoreConfig, opts ...Option) *MongoStore {
	o := buildOptions(opts)
	return &MongoStore{
		client:     client,
		coll:       coll,
		timeout:    mongoTimeout(config),
		maxRetries: retryBudget(config),
		core:       newMergeCore(string(StoreTypeMongo), config, o),
		logger:     o.logger.With(zap.String("component", "mongo_session_store")),
	}
}

func mongoTimeout(config StoreConfig) time.Duration {
	if config.Mongo.Timeout > 0 {
		return config.Mongo.Timeout
	}
	return 5 * time.Second
}

// Close 断开客户端
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping 健康检查
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return ErrStoreClosed
	}
	return s.mapErr(s.client.Ping(ctx, nil), "")
}

// Load 读取 sid 对应的文档
func (s *MongoStore) Load(ctx context.Context, sid string) (types.Document, error) {
	if err := validateSID(sid); err != nil {
		return nil, err
	}
	rec, err := s.find(ctx, sid)
	if err != nil || rec == nil {
		return nil, err
	}
	return DecodeDocument([]byte(rec.Payload))
}

func (s *MongoStore) find(ctx context.Context, sid string) (*mongoRecord, error) {
	rec, err := s.coll.findOne(ctx, sid)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, s.mapErr(err, sid)
	}
	return rec, nil
}

// SavePatch 将补丁合并进 sid 的文档
func (s *MongoStore) SavePatch(ctx context.Context, sid string, patch types.Patch, opts ...SaveOption) error {
	if err := validateSID(sid); err != nil {
		return err
	}
	so := applySaveOptions(opts)

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		prev, err := s.find(ctx, sid)
		if err != nil {
			return err
		}

		var current types.Document
		if prev != nil {
			if current, err = DecodeDocument([]byte(prev.Payload)); err != nil {
				return err
			}
		}

		data, err := s.core.apply(ctx, sid, current, patch)
		if err != nil {
			return err
		}

		next := mongoRecord{
			SID:       sid,
			Payload:   string(data),
			UpdatedAt: s.core.now().UTC(),
			Version:   1,
		}
		if prev != nil {
			next.CharacterID = prev.CharacterID
			next.Version = prev.Version + 1
		}
		if so.characterID != "" {
			next.CharacterID = so.characterID
		}

		committed, err := s.write(ctx, prev, next)
		if err != nil {
			return err
		}
		if committed {
			return nil
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

// write 别的写者先改了文档时返回 false
func (s *MongoStore) write(ctx context.Context, prev *mongoRecord, next mongoRecord) (bool, error) {
	if prev == nil {
		err := s.coll.insert(ctx, next)
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		if err != nil {
			return false, s.mapErr(err, next.SID)
		}
		return true, nil
	}

	matched, err := s.coll.replace(ctx, prev.Version, next)
	if err != nil {
		return false, s.mapErr(err, next.SID)
	}
	return matched, nil
}

func (s *MongoStore) mapErr(err error, sid string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return ErrStoreClosed
	}
	return types.NewError(types.ErrStoreUnavailable, "mongo operation failed").
		WithCause(err).
		WithSession(sid).
		WithRetryable(mongo.IsNetworkError(err) || mongo.IsTimeout(err))
}
