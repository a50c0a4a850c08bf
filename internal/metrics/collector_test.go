package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("sessionctx", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	c, _ := newTestCollector(t)

	assert.NotNil(t, c.turnsTotal)
	assert.NotNil(t, c.refreshDecisions)
	assert.NotNil(t, c.storeOpsTotal)
	assert.NotNil(t, c.cacheHits)
	assert.NotNil(t, c.dbConnectionsOpen)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector("sessionctx", prometheus.NewRegistry(), nil)
	})
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector("dup", reg, zap.NewNop())
	assert.Panics(t, func() {
		NewCollector("dup", reg, zap.NewNop())
	})
}

func TestCollector_RecordTurn(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordTurn("financial", 0.42, 900)
	c.RecordTurn("financial", 0.91, 1800)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("financial")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.usageShare))
	assert.Equal(t, 1, testutil.CollectAndCount(c.sessionBlockBytes))
}

func TestCollector_RecordRefreshDecision(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordRefreshDecision("therapy", "")
	c.RecordRefreshDecision("therapy", "age")
	c.RecordRefreshDecision("therapy", "age")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshDecisions.WithLabelValues("therapy", "none")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.refreshDecisions.WithLabelValues("therapy", "age")))
}

func TestCollector_RecordRebalance(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordRebalance("financial", 3, 1, 2, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.rebalanceEvicted.WithLabelValues("financial", "fresh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rebalanceEvicted.WithLabelValues("financial", "pins_truncated")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rebalanceEvicted.WithLabelValues("financial", "pins_popped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.rebalanceEvicted.WithLabelValues("financial", "digest_dropped")))
}

func TestCollector_RecordPatch(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordPatch("financial", "written")
	c.RecordPatch("financial", "no_signal")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.patchesTotal.WithLabelValues("financial", "written")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.patchesTotal))
}

func TestCollector_StoreObserver(t *testing.T) {
	c, reg := newTestCollector(t)

	c.ObserveStoreOp("redis", "save_patch", "ok", 3*time.Millisecond)
	c.ObserveStoreOp("redis", "save_patch", "capacity_exceeded", time.Millisecond)
	c.ObserveCompaction("redis", true)
	c.ObserveCompaction("redis", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOpsTotal.WithLabelValues("redis", "save_patch", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.capacityRejection.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeCompactions.WithLabelValues("redis", "rescued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeCompactions.WithLabelValues("redis", "failed")))

	expected := `
# HELP sessionctx_capacity_rejections_total Saves rejected for exceeding the payload byte cap
# TYPE sessionctx_capacity_rejections_total counter
sessionctx_capacity_rejections_total{backend="redis"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "sessionctx_capacity_rejections_total"))
}

func TestCollector_Cache(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordCacheHit("session")
	c.RecordCacheHit("session")
	c.RecordCacheMiss("session")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("session")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("session")))
}

func TestCollector_DBStatsReporter(t *testing.T) {
	c, _ := newTestCollector(t)

	report := c.DBStatsReporter("sqlite")
	report(4, 2)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("sqlite")))
}
