// Package cache implements the gateway's selection cache (component C3): a
// TTL + sampled-LRU cache of recent (model, tags) -> backend decisions,
// meant to absorb bursts of identical requests without touching the
// selector on every call.
//
// Puts are dispatched through a buffered channel drained by one background
// goroutine, stoppable via context cancellation, so a slow eviction never
// stalls the request's critical path.
package cache

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berrygate/loadbalance/gatewaytypes"
)

const keySeparator = "\x00" // separates the model name from the joined tags; validation does not reject NUL in either

// BuildKey derives the cache key for a (model_name, user_tags) pair: tags
// are sorted and comma-joined before being combined with the model name,
// so tag order never causes a spurious cache miss.
func BuildKey(modelName string, tags []string) string {
	if len(tags) == 0 {
		return modelName + keySeparator
	}
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)
	return modelName + keySeparator + strings.Join(sorted, ",")
}

type cacheEntry struct {
	backend    gatewaytypes.Backend
	createdAt  time.Time
	lastAccess time.Time
	hitCount   int64
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Total     int
	Hits      int64
	Misses    int64
	HitRate   float64
	Evictions int64
}

// Cache is the thread-safe selection cache. Zero value is not usable; build
// with New.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	ttl      time.Duration
	capacity int
	now      func() time.Time
	rng      *rand.Rand

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	putCh  chan putRequest
	cancel context.CancelFunc
	done   chan struct{}
}

type putRequest struct {
	key     string
	backend gatewaytypes.Backend
}

// Option customizes Cache construction.
type Option func(*Cache)

// WithTTL overrides the default 30s entry lifetime.
func WithTTL(d time.Duration) Option { return func(c *Cache) { c.ttl = d } }

// WithCapacity overrides the default capacity of 1000 entries.
func WithCapacity(n int) Option { return func(c *Cache) { c.capacity = n } }

// withClock overrides the cache's time source; test-only hook.
func withClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// withRNG overrides the sampled-eviction RNG; test-only hook for determinism.
func withRNG(r *rand.Rand) Option { return func(c *Cache) { c.rng = r } }

// New builds and starts a Cache. The background Put consumer runs until
// Stop is called.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]*cacheEntry),
		ttl:      30 * time.Second,
		capacity: 1000,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		putCh:    make(chan putRequest, 256),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
	return c
}

func (c *Cache) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.putCh:
			c.applyPut(req.key, req.backend)
		}
	}
}

// Stop cancels the background consumer and waits for it to exit. Any Puts
// still queued in the channel are dropped.
func (c *Cache) Stop() {
	c.cancel()
	<-c.done
}

// Get returns a copy of the cached backend for key if present and not
// expired, bumping the hit counter and last-access timestamp. A miss (or
// expiry) increments the miss counter and returns ok=false.
func (c *Cache) Get(key string) (gatewaytypes.Backend, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.createdAt) > c.ttl {
		c.misses.Add(1)
		return gatewaytypes.Backend{}, false
	}
	e.hitCount++
	e.lastAccess = c.now()
	c.hits.Add(1)
	return e.backend, true
}

// Put enqueues a fire-and-forget cache write; it never blocks the caller
// beyond the buffered channel send (which only blocks if the consumer has
// fallen badly behind, an intentional backpressure valve).
func (c *Cache) Put(key string, backend gatewaytypes.Backend) {
	c.putCh <- putRequest{key: key, backend: backend}
}

func (c *Cache) applyPut(key string, backend gatewaytypes.Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictSampledLocked()
	}

	now := c.now()
	c.entries[key] = &cacheEntry{backend: backend, createdAt: now, lastAccess: now}
}

func (c *Cache) evictExpiredLocked() {
	for k, e := range c.entries {
		if c.now().Sub(e.createdAt) > c.ttl {
			delete(c.entries, k)
			c.evictions.Add(1)
		}
	}
}

// evictSampledLocked picks up to 5 random keys and evicts the one with the
// smallest last_access — a deliberate, cheaper alternative to a true LRU
// that avoids a doubly-linked list on every Get.
func (c *Cache) evictSampledLocked() {
	const sampleSize = 5
	if len(c.entries) == 0 {
		return
	}
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}

	var victim string
	var oldest time.Time
	set := false
	for i := 0; i < sampleSize && i < len(keys); i++ {
		k := keys[c.rng.Intn(len(keys))]
		e := c.entries[k]
		if !set || e.lastAccess.Before(oldest) {
			victim, oldest, set = k, e.lastAccess, true
		}
	}
	if set {
		delete(c.entries, victim)
		c.evictions.Add(1)
	}
}

// Clear empties the cache. Outstanding queued Puts still land afterward.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Stats snapshots cumulative hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	total := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return Stats{
		Total:     total,
		Hits:      hits,
		Misses:    misses,
		HitRate:   rate,
		Evictions: c.evictions.Load(),
	}
}
