package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/sessionctx/types"
)

// fakeCollection 内存版 sessionCollection，可注入写冲突与驱动错误
type fakeCollection struct {
	mu   sync.Mutex
	docs map[string]mongoRecord

	// beforeWrite 在每次 insert/replace 生效前调用，可模拟其他写者抢先提交
	beforeWrite func(c *fakeCollection)
	findErr     error
	writeErr    error
	writes      int
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: make(map[string]mongoRecord)}
}

func (c *fakeCollection) findOne(_ context.Context, sid string) (*mongoRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.findErr != nil {
		return nil, c.findErr
	}
	rec, ok := c.docs[sid]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return &rec, nil
}

func (c *fakeCollection) insert(_ context.Context, rec mongoRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if c.beforeWrite != nil {
		c.beforeWrite(c)
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	if _, ok := c.docs[rec.SID]; ok {
		return mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}
	}
	c.docs[rec.SID] = rec
	return nil
}

func (c *fakeCollection) replace(_ context.Context, version int64, rec mongoRecord) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if c.beforeWrite != nil {
		c.beforeWrite(c)
	}
	if c.writeErr != nil {
		return false, c.writeErr
	}
	cur, ok := c.docs[rec.SID]
	if !ok || cur.Version != version {
		return false, nil
	}
	c.docs[rec.SID] = rec
	return true, nil
}

// bump 模拟另一个写者提交了新版本
func (c *fakeCollection) bump(sid, payload string) {
	cur := c.docs[sid]
	cur.SID = sid
	cur.Payload = payload
	cur.Version++
	c.docs[sid] = cur
}

func newFakeMongoStore(t *testing.T, coll *fakeCollection, cfg StoreConfig) *MongoStore {
	return newMongoStore(nil, coll, cfg, WithLogger(zaptest.NewLogger(t)))
}

func TestMongoStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection()
	s := newFakeMongoStore(t, coll, DefaultStoreConfig())

	require.NoError(t, s.SavePatch(ctx, "therapy_1", types.Patch{"therapy": map[string]any{"intent": "grief"}}, WithCharacterID("char-1")))
	require.NoError(t, s.SavePatch(ctx, "therapy_1", types.Patch{"therapy": map[string]any{"scene_digest": "lost a parent"}}))

	doc, err := s.Load(ctx, "therapy_1")
	require.NoError(t, err)
	therapy := doc.Object("therapy")
	assert.Equal(t, "grief", therapy["intent"])
	assert.Equal(t, "lost a parent", therapy["scene_digest"])

	rec := coll.docs["therapy_1"]
	assert.Equal(t, int64(2), rec.Version)
	assert.Equal(t, "char-1", rec.CharacterID)

	missing, err := s.Load(ctx, "therapy_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMongoStore_DuplicateInsertRetriesOnFreshData(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection()
	s := newFakeMongoStore(t, coll, DefaultStoreConfig())

	// 第一次 insert 前另一个写者已建好文档
	raced := false
	coll.beforeWrite = func(c *fakeCollection) {
		if !raced {
			raced = true
			c.bump("generic_1", `{"other":1}`)
		}
	}

	require.NoError(t, s.SavePatch(ctx, "generic_1", types.Patch{"mine": 2}))

	doc, err := s.Load(ctx, "generic_1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, doc["other"])
	assert.EqualValues(t, 2, doc["mine"])
	assert.Equal(t, 2, coll.writes)
	assert.Equal(t, int64(2), coll.docs["generic_1"].Version)
}

func TestMongoStore_VersionConflictRetries(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection()
	s := newFakeMongoStore(t, coll, DefaultStoreConfig())
	require.NoError(t, s.SavePatch(ctx, "generic_2", types.Patch{"a": 1}))

	conflicts := 0
	coll.beforeWrite = func(c *fakeCollection) {
		if conflicts < 2 {
			conflicts++
			c.bump("generic_2", `{"a":1,"b":2}`)
		}
	}

	require.NoError(t, s.SavePatch(ctx, "generic_2", types.Patch{"c": 3}))

	doc, err := s.Load(ctx, "generic_2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, doc["b"])
	assert.EqualValues(t, 3, doc["c"])
	assert.Equal(t, 2, conflicts)
}

func TestMongoStore_ConflictExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection()
	cfg := DefaultStoreConfig()
	cfg.MaxRetries = 3
	s := newFakeMongoStore(t, coll, cfg)
	require.NoError(t, s.SavePatch(ctx, "generic_3", types.Patch{"a": 1}))

	coll.writes = 0
	coll.beforeWrite = func(c *fakeCollection) { c.bump("generic_3", `{"a":1}`) }

	err := s.SavePatch(ctx, "generic_3", types.Patch{"b": 2})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrConcurrentUpdate))
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, 3, coll.writes)
}

func TestMongoStore_WriteErrorIsNotAConflict(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection()
	coll.writeErr = errors.New("socket closed")
	s := newFakeMongoStore(t, coll, DefaultStoreConfig())

	err := s.SavePatch(ctx, "generic_4", types.Patch{"a": 1})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrStoreUnavailable))
	assert.Equal(t, 1, coll.writes)
}

func TestMongoStore_LoadMapsDriverErrors(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection()
	coll.findErr = mongo.ErrClientDisconnected
	s := newFakeMongoStore(t, coll, DefaultStoreConfig())

	_, err := s.Load(ctx, "generic_5")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestMongoStore_MapErr(t *testing.T) {
	s := newFakeMongoStore(t, newFakeCollection(), DefaultStoreConfig())

	tests := []struct {
		name      string
		err       error
		closed    bool
		retryable bool
	}{
		{name: "disconnected", err: mongo.ErrClientDisconnected, closed: true},
		{name: "wrapped disconnected", err: errors.Join(errors.New("find"), mongo.ErrClientDisconnected), closed: true},
		{name: "deadline", err: context.DeadlineExceeded, retryable: true},
		{name: "network label", err: mongo.CommandError{Code: 6, Labels: []string{"NetworkError"}}, retryable: true},
		{name: "duplicate key", err: mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}},
		{name: "plain", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.mapErr(tt.err, "generic_6")
			if tt.closed {
				assert.ErrorIs(t, got, ErrStoreClosed)
				return
			}
			assert.True(t, types.IsErrorCode(got, types.ErrStoreUnavailable))
			assert.Equal(t, tt.retryable, types.IsRetryable(got))
			var typed *types.Error
			require.ErrorAs(t, got, &typed)
			assert.Equal(t, tt.err, typed.Cause)
		})
	}

	assert.NoError(t, s.mapErr(nil, "generic_6"))
}

func TestMongoStore_NilClient(t *testing.T) {
	s := newFakeMongoStore(t, newFakeCollection(), DefaultStoreConfig())
	assert.ErrorIs(t, s.Ping(context.Background()), ErrStoreClosed)
	assert.NoError(t, s.Close())
}
