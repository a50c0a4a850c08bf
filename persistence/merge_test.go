package persistence

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sessionctx/internal/cache"
	"github.com/BaSui01/sessionctx/types"
)

func mongoURI() string {
	return os.Getenv("SESSIONCTX_TEST_MONGO_URI")
}

func TestMerge_Policies(t *testing.T) {
	current := types.Document{
		"financial": map[string]any{"goals": []any{"retirement"}, "risk": "low"},
		"stats":     map[string]any{"turn_idx": 3.0},
		"note":      "keep",
	}
	patch := types.Patch{
		"financial": map[string]any{"risk": "high", "fresh": []any{"x"}},
		"stats":     "replaced",
		"extra":     map[string]any{"a": 1.0},
	}

	domain := Merge(current, patch, MergeDomain)
	assert.Equal(t, map[string]any{
		"goals": []any{"retirement"},
		"risk":  "high",
		"fresh": []any{"x"},
	}, domain["financial"])
	assert.Equal(t, "replaced", domain["stats"])
	assert.Equal(t, "keep", domain["note"])
	assert.Equal(t, map[string]any{"a": 1.0}, domain["extra"])

	shallow := Merge(current, patch, MergeShallow)
	assert.Equal(t, map[string]any{"risk": "high", "fresh": []any{"x"}}, shallow["financial"])
	assert.Equal(t, "keep", shallow["note"])

	// 输入未被修改
	assert.Equal(t, "low", current.Object("financial")["risk"])
	assert.Nil(t, current["extra"])
}

func TestMerge_NilCurrentIsPatch(t *testing.T) {
	got := Merge(nil, types.Patch{"generic": map[string]any{"fresh": []any{}}}, MergeDomain)
	assert.Equal(t, types.Document{"generic": map[string]any{"fresh": []any{}}}, got)
}

func TestEncodeDocument_CompactNoHTMLEscape(t *testing.T) {
	data, err := EncodeDocument(types.Document{"a": "<b>&"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<b>&"}`, string(data))
}

type recordingObserver struct {
	ops         []string
	compactions []bool
}

func (r *recordingObserver) ObserveStoreOp(backend, op, status string, d time.Duration) {
	r.ops = append(r.ops, backend+"/"+op+"/"+status)
}

func (r *recordingObserver) ObserveCompaction(backend string, rescued bool) {
	r.compactions = append(r.compactions, rescued)
}

func TestNewStore_InstrumentsOperations(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}

	s, err := NewStore(ctx, DefaultStoreConfig(), WithObserver(obs), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SavePatch(ctx, "generic_obs", types.Patch{"a": 1}))
	_, err = s.Load(ctx, "generic_obs")
	require.NoError(t, err)
	err = s.SavePatch(ctx, "generic_obs", types.Patch{"a": strings.Repeat("z", MaxPayloadBytes)})
	require.ErrorIs(t, err, ErrCapacityExceeded)

	assert.Equal(t, []string{
		"memory/save_patch/ok",
		"memory/load/ok",
		"memory/save_patch/capacity_exceeded",
	}, obs.ops)
	assert.Equal(t, []bool{false}, obs.compactions)
}

func TestNewStore_UnsupportedType(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.Type = "etcd"
	_, err := NewStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewStore_SQLBackend(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.Type = StoreTypeSQL
	cfg.SQL.DSN = "file:factory_sql?mode=memory&cache=shared"
	cfg.SQL.AutoMigrate = true
	cfg.SQL.Pool.MaxOpenConns = 1
	cfg.SQL.Pool.MaxIdleConns = 1
	cfg.SQL.Pool.HealthCheckInterval = 0

	ctx := context.Background()
	s, err := NewStore(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SavePatch(ctx, "therapy_f", types.Patch{"therapy": map[string]any{"intent": "grief"}}))
	doc, err := s.Load(ctx, "therapy_f")
	require.NoError(t, err)
	assert.Equal(t, "grief", doc.Object("therapy")["intent"])
}

func TestCachedStore_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	m, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)

	inner := NewMemoryStore(DefaultStoreConfig())
	cached := NewCachedStore(inner, m, time.Minute, nil)
	defer cached.Close()

	require.NoError(t, cached.SavePatch(ctx, "financial_c", types.Patch{"financial": map[string]any{"risk": "low"}}))
	assert.False(t, mr.Exists(cache.Key("session", "financial_c")))

	doc, err := cached.Load(ctx, "financial_c")
	require.NoError(t, err)
	assert.Equal(t, "low", doc.Object("financial")["risk"])
	assert.True(t, mr.Exists(cache.Key("session", "financial_c")), "miss fills the cache")

	// 绕过缓存的写入在失效前不可见
	require.NoError(t, inner.SavePatch(ctx, "financial_c", types.Patch{"financial": map[string]any{"risk": "medium"}}))
	doc, err = cached.Load(ctx, "financial_c")
	require.NoError(t, err)
	assert.Equal(t, "low", doc.Object("financial")["risk"])

	require.NoError(t, cached.SavePatch(ctx, "financial_c", types.Patch{"financial": map[string]any{"risk": "high"}}))
	assert.False(t, mr.Exists(cache.Key("session", "financial_c")))
	doc, err = cached.Load(ctx, "financial_c")
	require.NoError(t, err)
	assert.Equal(t, "high", doc.Object("financial")["risk"])

	missing, err := cached.Load(ctx, "financial_none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNewStore_WithCacheWraps(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	m, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, nil)
	require.NoError(t, err)

	s, err := NewStore(ctx, DefaultStoreConfig(), WithCache(m, time.Minute))
	require.NoError(t, err)

	inner, ok := s.(interface{ Unwrap() Store })
	require.True(t, ok)
	_, isCached := inner.Unwrap().(*CachedStore)
	assert.True(t, isCached)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, m.Ping(ctx), cache.ErrManagerClosed)
}

func TestCapacityExceededError_Chain(t *testing.T) {
	err := error(&CapacityExceededError{SessionID: "s", Size: 20000, Limit: MaxPayloadBytes, Compacted: true})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, types.ErrCapacityExceeded, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "20000")
}
