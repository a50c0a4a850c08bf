package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 会话轮次指标
	turnsTotal        *prometheus.CounterVec
	usageShare        *prometheus.HistogramVec
	sessionBlockBytes *prometheus.HistogramVec
	refreshDecisions  *prometheus.CounterVec
	rebalanceEvicted  *prometheus.CounterVec
	patchesTotal      *prometheus.CounterVec

	// 存储指标
	storeOpsTotal     *prometheus.CounterVec
	storeOpDuration   *prometheus.HistogramVec
	storeCompactions  *prometheus.CounterVec
	capacityRejection *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到 prometheus.DefaultRegisterer。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 会话轮次指标
	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of prepared turns",
		},
		[]string{"domain"},
	)

	c.usageShare = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usage_share",
			Help:      "Share of the prompt budget used by session block and previous reply",
			Buckets:   []float64{0.1, 0.2, 0.4, 0.6, 0.8, 0.9, 1, 1.5},
		},
		[]string{"domain"},
	)

	c.sessionBlockBytes = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_block_bytes",
			Help:      "Rendered session block size in bytes",
			Buckets:   []float64{128, 256, 512, 1024, 1536, 2048, 4096},
		},
		[]string{"domain"},
	)

	c.refreshDecisions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_decisions_total",
			Help:      "Refresh decisions by trigger; trigger=none when no refresh fired",
		},
		[]string{"domain", "trigger"},
	)

	c.rebalanceEvicted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebalance_evictions_total",
			Help:      "Items moved or dropped by the rebalancer",
		},
		[]string{"domain", "kind"}, // kind: fresh, pins_truncated, pins_popped, digest_dropped
	)

	c.patchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_patches_total",
			Help:      "Domain patch writer outcomes",
		},
		[]string{"domain", "result"},
	)

	// 存储指标
	c.storeOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of session store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	c.storeOpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Session store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	c.storeCompactions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_compactions_total",
			Help:      "Overflow compactions by result",
		},
		[]string{"backend", "result"}, // result: rescued, failed
	)

	c.capacityRejection = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_rejections_total",
			Help:      "Saves rejected for exceeding the payload byte cap",
		},
		[]string{"backend"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔄 会话轮次指标记录
// =============================================================================

// RecordTurn 记录一次轮次准备
func (c *Collector) RecordTurn(domain string, usageShare float64, blockBytes int) {
	c.turnsTotal.WithLabelValues(domain).Inc()
	c.usageShare.WithLabelValues(domain).Observe(usageShare)
	c.sessionBlockBytes.WithLabelValues(domain).Observe(float64(blockBytes))
}

// RecordRefreshDecision 记录刷新决策，未触发时 trigger 为空
func (c *Collector) RecordRefreshDecision(domain, trigger string) {
	if trigger == "" {
		trigger = "none"
	}
	c.refreshDecisions.WithLabelValues(domain, trigger).Inc()
}

// RecordRebalance 记录一次重平衡各步骤移动/丢弃的条目数
func (c *Collector) RecordRebalance(domain string, freshEvicted, pinsTruncated, pinsPopped, digestDropped int) {
	c.rebalanceEvicted.WithLabelValues(domain, "fresh").Add(float64(freshEvicted))
	c.rebalanceEvicted.WithLabelValues(domain, "pins_truncated").Add(float64(pinsTruncated))
	c.rebalanceEvicted.WithLabelValues(domain, "pins_popped").Add(float64(pinsPopped))
	c.rebalanceEvicted.WithLabelValues(domain, "digest_dropped").Add(float64(digestDropped))
}

// RecordPatch 记录领域补丁写入结果
func (c *Collector) RecordPatch(domain, result string) {
	c.patchesTotal.WithLabelValues(domain, result).Inc()
}

// =============================================================================
// 🗃️ 存储指标记录
// =============================================================================

// ObserveStoreOp 记录存储操作，实现 persistence.Observer
func (c *Collector) ObserveStoreOp(backend, op, status string, d time.Duration) {
	c.storeOpsTotal.WithLabelValues(backend, op, status).Inc()
	c.storeOpDuration.WithLabelValues(backend, op).Observe(d.Seconds())
	if status == "capacity_exceeded" {
		c.capacityRejection.WithLabelValues(backend).Inc()
	}
}

// ObserveCompaction 记录超限压缩结果，实现 persistence.Observer
func (c *Collector) ObserveCompaction(backend string, rescued bool) {
	result := "failed"
	if rescued {
		result = "rescued"
	}
	c.storeCompactions.WithLabelValues(backend, result).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// DBStatsReporter 返回可交给 database.PoolManager.SetStatsReporter 的回调
func (c *Collector) DBStatsReporter(database string) func(open, idle int) {
	return func(open, idle int) {
		c.RecordDBConnections(database, open, idle)
	}
}
