package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("lb_test_%d", seq)
}

func TestNewCollectorRegistersVectors(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())
	assert.NotNil(t, c.backendRequestsTotal)
	assert.NotNil(t, c.backendRequestLatency)
	assert.NotNil(t, c.backendConfidence)
	assert.NotNil(t, c.backendEffectiveWeight)
	assert.NotNil(t, c.unhealthyBackends)
	assert.NotNil(t, c.cacheHits)
	assert.NotNil(t, c.cacheMisses)
}

func TestCollectorObserveRequest(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.ObserveRequest("p:x", true, 100*time.Millisecond)
	c.ObserveRequest("p:x", false, 50*time.Millisecond)

	assert.Greater(t, testutil.CollectAndCount(c.backendRequestsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(c.backendRequestLatency), 0)
}

func TestCollectorGauges(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.SetConfidence("p:x", 0.87)
	c.SetEffectiveWeight("p:x", 42.5)
	c.SetUnhealthyCount(3)

	assert.Greater(t, testutil.CollectAndCount(c.backendConfidence), 0)
	assert.Greater(t, testutil.CollectAndCount(c.backendEffectiveWeight), 0)
	assert.Equal(t, float64(3), testutil.ToFloat64(c.unhealthyBackends))
}

func TestCollectorCacheCounters(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.ObserveCacheHit()
	c.ObserveCacheHit()
	c.ObserveCacheMiss()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheMisses))
}

func TestCollectorConcurrentRecording(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ObserveRequest("p:x", true, time.Millisecond)
			c.ObserveCacheHit()
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(c.cacheHits))
}
