// Package metrics 租户解析链路（缓存、凭证拉取、连接池、会话绑定）的指标采集
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector defines the interface for collecting tenant database metrics
// 使用接口注入模式，未注入时各组件使用 NoOpCollector
type Collector interface {
	// RecordCacheHit records a credential cache hit, level is "l1" or "l2"
	RecordCacheHit(level string)

	// RecordCacheMiss records a credential cache miss
	RecordCacheMiss()

	// RecordCacheError records a failed shared cache operation (degraded to miss/no-op)
	RecordCacheError(op string)

	// RecordResolve records one credential resolution, source is local/cache/service
	RecordResolve(source string, success bool, duration time.Duration)

	// RecordPoolCreated records a pool construction attempt
	RecordPoolCreated(tenantID string, success bool, duration time.Duration)

	// RecordPoolDisposed records a disposed pool
	RecordPoolDisposed(tenantID string)

	// RecordPoolStats records a sql.DBStats snapshot of one pool
	RecordPoolStats(tenantID string, open, inUse, idle int, waitCount int64)

	// RecordSessionBind records one request binding attempt
	RecordSessionBind(success bool)
}

// NoOpCollector is a no-op implementation of Collector
type NoOpCollector struct{}

func (NoOpCollector) RecordCacheHit(level string)                                        {}
func (NoOpCollector) RecordCacheMiss()                                                   {}
func (NoOpCollector) RecordCacheError(op string)                                         {}
func (NoOpCollector) RecordResolve(source string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordPoolCreated(tenantID string, success bool, duration time.Duration) {
}
func (NoOpCollector) RecordPoolDisposed(tenantID string)                                      {}
func (NoOpCollector) RecordPoolStats(tenantID string, open, inUse, idle int, waitCount int64) {}
func (NoOpCollector) RecordSessionBind(success bool)                                          {}

// OrNoOp 把 nil 替换为 NoOpCollector
func OrNoOp(c Collector) Collector {
	if c == nil {
		return NoOpCollector{}
	}
	return c
}

// PrometheusCollector implements Collector using Prometheus
type PrometheusCollector struct {
	registerer prometheus.Registerer

	cacheHits       *prometheus.CounterVec
	cacheMisses     prometheus.Counter
	cacheErrors     *prometheus.CounterVec
	resolves        *prometheus.CounterVec
	resolveLatency  *prometheus.HistogramVec
	poolsCreated    *prometheus.CounterVec
	poolBuildTime   prometheus.Histogram
	poolsDisposed   prometheus.Counter
	poolConnections *prometheus.GaugeVec
	poolWaitCount   *prometheus.GaugeVec
	sessionBinds    *prometheus.CounterVec
}

// NewPrometheusCollector 创建并注册指标；registerer 为 nil 时注册到 prometheus.DefaultRegisterer
func NewPrometheusCollector(namespace string, registerer prometheus.Registerer) (*PrometheusCollector, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{registerer: registerer}

	c.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenantdb_cache_hits_total",
		Help:      "Credential cache hits by level",
	}, []string{"level"})

	c.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenantdb_cache_misses_total",
		Help:      "Credential cache misses",
	})

	c.cacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenantdb_cache_errors_total",
		Help:      "Shared cache operations that failed and were degraded",
	}, []string{"op"})

	c.resolves = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenantdb_resolve_total",
		Help:      "Credential resolutions by source and outcome",
	}, []string{"source", "success"})

	c.resolveLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tenantdb_resolve_latency_seconds",
		Help:      "Credential resolution latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})

	c.poolsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenantdb_pools_created_total",
		Help:      "Tenant pool construction attempts by outcome",
	}, []string{"success"})

	c.poolBuildTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tenantdb_pool_build_seconds",
		Help:      "Tenant pool construction time including the validation query",
		Buckets:   prometheus.DefBuckets,
	})

	c.poolsDisposed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenantdb_pools_disposed_total",
		Help:      "Disposed tenant pools",
	})

	c.poolConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tenantdb_pool_connections",
		Help:      "Connections per tenant pool by state",
	}, []string{"tenant", "state"})

	c.poolWaitCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tenantdb_pool_wait_count",
		Help:      "Total connections waited for per tenant pool",
	}, []string{"tenant"})

	c.sessionBinds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenantdb_session_binds_total",
		Help:      "Request session bindings by outcome",
	}, []string{"success"})

	var registered []prometheus.Collector
	for _, collector := range c.collectors() {
		if err := registerer.Register(collector); err != nil {
			for _, done := range registered {
				registerer.Unregister(done)
			}
			return nil, err
		}
		registered = append(registered, collector)
	}
	return c, nil
}

func (c *PrometheusCollector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.cacheHits, c.cacheMisses, c.cacheErrors,
		c.resolves, c.resolveLatency,
		c.poolsCreated, c.poolBuildTime, c.poolsDisposed, c.poolConnections, c.poolWaitCount,
		c.sessionBinds,
	}
}

func (c *PrometheusCollector) RecordCacheHit(level string) {
	c.cacheHits.WithLabelValues(level).Inc()
}

func (c *PrometheusCollector) RecordCacheMiss() {
	c.cacheMisses.Inc()
}

func (c *PrometheusCollector) RecordCacheError(op string) {
	c.cacheErrors.WithLabelValues(op).Inc()
}

func (c *PrometheusCollector) RecordResolve(source string, success bool, duration time.Duration) {
	c.resolves.WithLabelValues(source, strconv.FormatBool(success)).Inc()
	c.resolveLatency.WithLabelValues(source).Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordPoolCreated(tenantID string, success bool, duration time.Duration) {
	c.poolsCreated.WithLabelValues(strconv.FormatBool(success)).Inc()
	c.poolBuildTime.Observe(duration.Seconds())
}

// RecordPoolDisposed 同时清理该租户的连接数指标，避免已释放的池一直留在面板上
func (c *PrometheusCollector) RecordPoolDisposed(tenantID string) {
	c.poolsDisposed.Inc()
	for _, state := range []string{"open", "in_use", "idle"} {
		c.poolConnections.DeleteLabelValues(tenantID, state)
	}
	c.poolWaitCount.DeleteLabelValues(tenantID)
}

func (c *PrometheusCollector) RecordPoolStats(tenantID string, open, inUse, idle int, waitCount int64) {
	c.poolConnections.WithLabelValues(tenantID, "open").Set(float64(open))
	c.poolConnections.WithLabelValues(tenantID, "in_use").Set(float64(inUse))
	c.poolConnections.WithLabelValues(tenantID, "idle").Set(float64(idle))
	c.poolWaitCount.WithLabelValues(tenantID).Set(float64(waitCount))
}

func (c *PrometheusCollector) RecordSessionBind(success bool) {
	c.sessionBinds.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// Unregister unregisters all Prometheus metrics
func (c *PrometheusCollector) Unregister() {
	for _, collector := range c.collectors() {
		c.registerer.Unregister(collector)
	}
}
