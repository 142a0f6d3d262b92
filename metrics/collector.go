package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// Collector registers the gateway's Prometheus vectors. It does not own
// any load-balancing state itself — Store is the source of truth — it only
// mirrors events into counters/gauges so an external exporter can scrape
// them.
type Collector struct {
	backendRequestsTotal   *prometheus.CounterVec
	backendRequestLatency  *prometheus.HistogramVec
	backendConfidence      *prometheus.GaugeVec
	backendEffectiveWeight *prometheus.GaugeVec
	unhealthyBackends      prometheus.Gauge
	cacheHits              prometheus.Counter
	cacheMisses            prometheus.Counter

	logger *zap.Logger
}

// NewCollector registers the gateway's metric vectors under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.backendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Total number of requests routed to a backend.",
	}, []string{"backend_key", "status"})

	c.backendRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_request_duration_seconds",
		Help:      "Upstream request latency observed per backend.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend_key"})

	c.backendConfidence = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backend_confidence",
		Help:      "SmartAI confidence score per backend, [0.05, 1.0].",
	}, []string{"backend_key"})

	c.backendEffectiveWeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backend_effective_weight",
		Help:      "Instantaneous selection weight per backend.",
	}, []string{"backend_key"})

	c.unhealthyBackends = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "unhealthy_backends",
		Help:      "Count of backends currently in the unhealthy registry.",
	})

	c.cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "selection_cache_hits_total",
		Help:      "Total selection cache hits.",
	})

	c.cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "selection_cache_misses_total",
		Help:      "Total selection cache misses.",
	})

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// ObserveRequest records one completed upstream call.
func (c *Collector) ObserveRequest(backendKey string, success bool, latency time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.backendRequestsTotal.WithLabelValues(backendKey, status).Inc()
	c.backendRequestLatency.WithLabelValues(backendKey).Observe(latency.Seconds())
}

// SetConfidence publishes the current confidence gauge for a backend.
func (c *Collector) SetConfidence(backendKey string, confidence float64) {
	c.backendConfidence.WithLabelValues(backendKey).Set(confidence)
}

// SetEffectiveWeight publishes the current selection-weight gauge.
func (c *Collector) SetEffectiveWeight(backendKey string, weight float64) {
	c.backendEffectiveWeight.WithLabelValues(backendKey).Set(weight)
}

// SetUnhealthyCount publishes the size of the unhealthy registry.
func (c *Collector) SetUnhealthyCount(n int) {
	c.unhealthyBackends.Set(float64(n))
}

// ObserveCacheHit records a selection-cache hit.
func (c *Collector) ObserveCacheHit() { c.cacheHits.Inc() }

// ObserveCacheMiss records a selection-cache miss.
func (c *Collector) ObserveCacheMiss() { c.cacheMisses.Inc() }

// CacheCounts reports the current selection-cache hit/miss counter values,
// for operator introspection and tests outside this package that can't
// reach the unexported prometheus.Counter fields directly.
func (c *Collector) CacheCounts() (hits, misses float64) {
	return counterValue(c.cacheHits), counterValue(c.cacheMisses)
}

func counterValue(ctr prometheus.Counter) float64 {
	var m dto.Metric
	if err := ctr.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
