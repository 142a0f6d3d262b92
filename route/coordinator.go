// Package route implements the gateway's public façade (component C5):
// SelectRoute, SelectSpecificRoute, and ReportResult, wrapping the selector
// with a per-request cache lookup, an internal retry policy, and the
// feedback loop that couples real traffic outcomes back into the metrics
// store.
package route

import (
	"strings"
	"sync"
	"time"

	"github.com/berrygate/loadbalance/cache"
	"github.com/berrygate/loadbalance/gatewaytypes"
	"github.com/berrygate/loadbalance/metrics"
	"github.com/berrygate/loadbalance/selector"
)

// SelectedRoute bundles the chosen Backend and Provider with enough detail
// for the caller to issue the upstream call itself (C6 is an external
// collaborator from this package's point of view).
type SelectedRoute struct {
	Backend           gatewaytypes.Backend
	Provider          gatewaytypes.Provider
	RouteID           string
	SelectionDuration time.Duration
	Reason            string
}

// APIKey returns the provider's configured API key.
func (r SelectedRoute) APIKey() string { return r.Provider.APIKey }

// Timeout returns the provider's configured connect timeout.
func (r SelectedRoute) Timeout() time.Duration {
	return time.Duration(r.Provider.Timeout) * time.Second
}

// UpstreamURL returns the provider's base URL; dialect-specific path
// construction is the backend client's job, not the router's.
func (r SelectedRoute) UpstreamURL() string { return r.Provider.BaseURL }

// RouteResult is the outcome of one issued upstream call, reported back
// through ReportResult.
type RouteResult struct {
	Success bool
	Latency time.Duration
	Err     error
	Kind    gatewaytypes.ErrorKind // optional; empty triggers substring classification
}

// Config bounds the coordinator's internal retry policy.
type Config struct {
	MaxInternalRetries int // default 2; total attempts = this + 1
}

// DefaultConfig returns the documented default retry policy.
func DefaultConfig() Config {
	return Config{MaxInternalRetries: 2}
}

// Coordinator is the public API of the load-balancing core.
type Coordinator struct {
	selector  *selector.Selector
	cache     *cache.Cache
	store     *metrics.Store
	cfg       Config
	collector *metrics.Collector

	mu          sync.RWMutex
	providers   map[string]gatewaytypes.Provider
	backendByID map[gatewaytypes.BackendKey]gatewaytypes.Backend
}

// SetCollector attaches a Prometheus collector that mirrors request
// outcomes and gauge snapshots as they happen; nil detaches it. Optional —
// a Coordinator built without one simply skips the mirroring.
func (c *Coordinator) SetCollector(collector *metrics.Collector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collector = collector
}

// New builds a Coordinator over the given snapshot tables.
func New(models []gatewaytypes.Model, providers map[string]gatewaytypes.Provider, sel *selector.Selector, c *cache.Cache, store *metrics.Store, cfg Config) *Coordinator {
	backendByID := make(map[gatewaytypes.BackendKey]gatewaytypes.Backend)
	for _, m := range models {
		for _, b := range m.Backends {
			backendByID[b.Key()] = b
		}
	}
	return &Coordinator{
		selector:    sel,
		cache:       c,
		store:       store,
		cfg:         cfg,
		providers:   providers,
		backendByID: backendByID,
	}
}

func (c *Coordinator) buildRoute(res selector.Result, started time.Time) SelectedRoute {
	return SelectedRoute{
		Backend:           res.Backend,
		Provider:          res.Provider,
		RouteID:           string(res.Backend.Key()),
		SelectionDuration: time.Since(started),
		Reason:            res.Reason,
	}
}

// SelectRoute is the façade over the selector: it consults the cache
// first, then retries selection up to MaxInternalRetries+1 times,
// returning an unhealthy backend anyway on the final attempt
// (last-resort policy) rather than failing the request outright.
func (c *Coordinator) SelectRoute(modelName string, userTags []string) (SelectedRoute, error) {
	started := time.Now()
	cacheKey := cache.BuildKey(modelName, userTags)
	if b, ok := c.cache.Get(cacheKey); ok {
		if collector := c.collectorRef(); collector != nil {
			collector.ObserveCacheHit()
		}
		prov := c.providerFor(b.ProviderID)
		return SelectedRoute{
			Backend:           b,
			Provider:          prov,
			RouteID:           string(b.Key()),
			SelectionDuration: time.Since(started),
			Reason:            "cache_hit",
		}, nil
	}
	if collector := c.collectorRef(); collector != nil {
		collector.ObserveCacheMiss()
	}

	maxAttempts := c.cfg.MaxInternalRetries + 1
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		res, err := c.selector.Select(modelName, userTags)
		if err != nil {
			lastErr = err
			continue
		}

		healthy := c.store.IsHealthy(res.Backend.Key())
		isLastAttempt := attempt == maxAttempts-1
		if healthy || isLastAttempt {
			route := c.buildRoute(res, started)
			c.cache.Put(cacheKey, res.Backend)
			return route, nil
		}
		// Unhealthy with retries remaining: loop and reselect.
	}
	return SelectedRoute{}, &RouteSelectionError{Kind: KindRetriesExhausted, Cause: lastErr, Attempts: maxAttempts}
}

// SelectSpecificRoute bypasses the selector's weighting entirely and the
// selection cache (an explicit override must never be served a stale
// cached decision).
func (c *Coordinator) SelectSpecificRoute(modelName, providerID string) (SelectedRoute, error) {
	started := time.Now()
	res, err := c.selector.SelectSpecific(modelName, providerID)
	if err != nil {
		return SelectedRoute{}, err
	}
	return c.buildRoute(res, started), nil
}

func (c *Coordinator) providerFor(providerID string) gatewaytypes.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providers[providerID]
}

// collectorRef returns the attached collector, or nil if none is set.
func (c *Coordinator) collectorRef() *metrics.Collector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collector
}

// Stats is the aggregate read API alongside SelectRoute and ReportResult:
// per-route health/latency/weight counters, the unhealthy registry
// snapshot, and selection-cache effectiveness, for operator dashboards and
// Prometheus export (both external collaborators — this is only the read
// path).
type Stats struct {
	Routes    metrics.RouteStats
	Unhealthy []metrics.UnhealthyBackend
	Cache     cache.Stats
}

// Stats snapshots the coordinator's full observable state. As a side
// effect it refreshes any attached collector's gauges, since this is the
// one place the coordinator already computes the full picture.
func (c *Coordinator) Stats() Stats {
	weights := make(map[gatewaytypes.BackendKey]float64, len(c.backendByID))
	for k, b := range c.backendByID {
		weights[k] = b.Weight
	}
	routeStats := c.store.Stats(weights)
	unhealthy := c.store.UnhealthyBackends()

	collector := c.collectorRef()
	if collector != nil {
		for _, rs := range routeStats.PerRoute {
			collector.SetConfidence(string(rs.Key), c.store.Confidence(rs.Key))
			collector.SetEffectiveWeight(string(rs.Key), rs.CurrentWeight)
		}
		collector.SetUnhealthyCount(len(unhealthy))
	}

	return Stats{
		Routes:    routeStats,
		Unhealthy: unhealthy,
		Cache:     c.cache.Stats(),
	}
}

// ReportResult folds one upstream outcome back into the metrics store.
func (c *Coordinator) ReportResult(routeID string, result RouteResult) {
	key := gatewaytypes.BackendKey(routeID)
	backend, ok := c.backendByID[key]
	if !ok {
		return
	}

	collector := c.collectorRef()
	if collector != nil {
		collector.ObserveRequest(routeID, result.Success, result.Latency)
	}

	if result.Success {
		if backend.BillingMode == gatewaytypes.BillingPerRequest && !c.store.IsHealthy(key) {
			c.store.RecordPassiveSuccess(key, backend.Weight)
		} else {
			c.store.RecordSuccess(key)
			c.store.RecordLatency(key, result.Latency)
		}
		c.store.RecordSmartAiRequest(key, metrics.RequestOutcome{Success: true})
		return
	}

	c.store.RecordFailure(key, gatewaytypes.FailureCheckChat)
	if backend.BillingMode == gatewaytypes.BillingPerRequest {
		c.store.InitializePerRequestRecovery(key, backend.Weight)
	}
	kind := result.Kind
	if kind == "" {
		kind = classifyError(result.Err)
	}
	c.store.RecordSmartAiRequest(key, metrics.RequestOutcome{Success: false, Kind: kind})
}

// classifyError does substring-based error classification, used when the
// caller did not supply an explicit kind.
func classifyError(err error) gatewaytypes.ErrorKind {
	if err == nil {
		return gatewaytypes.ErrorKindNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return gatewaytypes.ErrorKindTimeout
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden"):
		return gatewaytypes.ErrorKindAuth
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many"):
		return gatewaytypes.ErrorKindRateLimit
	case strings.Contains(msg, "5xx"):
		return gatewaytypes.ErrorKindServer
	case strings.Contains(msg, "model") && strings.Contains(msg, "not found"):
		return gatewaytypes.ErrorKindModel
	default:
		return gatewaytypes.ErrorKindNetwork
	}
}
