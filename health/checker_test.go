package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berrygate/loadbalance/backendclient"
	"github.com/berrygate/loadbalance/gatewaytypes"
	"github.com/berrygate/loadbalance/metrics"
)

type fakeClient struct {
	healthOK  atomic.Bool
	modelsOK  atomic.Bool
	chatOK    atomic.Bool
	modelsHit atomic.Int32
	chatHit   atomic.Int32
}

func newFakeClient(ok bool) *fakeClient {
	c := &fakeClient{}
	c.healthOK.Store(ok)
	c.modelsOK.Store(ok)
	c.chatOK.Store(ok)
	return c
}

func (f *fakeClient) BackendType() gatewaytypes.Dialect { return gatewaytypes.DialectOpenAI }
func (f *fakeClient) BaseURL() string                   { return "https://example.test" }
func (f *fakeClient) BuildRequestHeaders(auth, contentType string) map[string]string {
	return map[string]string{}
}
func (f *fakeClient) ChatCompletionsRaw(ctx context.Context, headers map[string]string, body []byte) ([]byte, int, error) {
	f.chatHit.Add(1)
	if f.chatOK.Load() {
		return nil, 200, nil
	}
	return nil, 500, assertErr("chat failed")
}
func (f *fakeClient) Models(ctx context.Context, token string) error {
	f.modelsHit.Add(1)
	if f.modelsOK.Load() {
		return nil
	}
	return assertErr("models failed")
}
func (f *fakeClient) HealthCheck(ctx context.Context, token string) error {
	if f.healthOK.Load() {
		return nil
	}
	return assertErr("health check failed")
}
func (f *fakeClient) ConvertConfigToJSON(cfg gatewaytypes.Provider) ([]byte, error) { return nil, nil }

type assertErr string

func (e assertErr) Error() string { return string(e) }

func setup(t *testing.T) (*Checker, *metrics.Store, *fakeClient, gatewaytypes.BackendKey, gatewaytypes.BackendKey) {
	t.Helper()
	prov := gatewaytypes.Provider{ID: "p", Enabled: true, Dialect: gatewaytypes.DialectOpenAI}
	tokBackend := gatewaytypes.Backend{ProviderID: "p", UpstreamName: "tok", Enabled: true, Weight: 50, BillingMode: gatewaytypes.BillingPerToken}
	reqBackend := gatewaytypes.Backend{ProviderID: "p", UpstreamName: "req", Enabled: true, Weight: 50, BillingMode: gatewaytypes.BillingPerRequest}
	models := []gatewaytypes.Model{
		{ID: "tok-model", Enabled: true, Backends: []gatewaytypes.Backend{tokBackend}},
		{ID: "req-model", Enabled: true, Backends: []gatewaytypes.Backend{reqBackend}},
	}
	providers := map[string]gatewaytypes.Provider{"p": prov}

	store := metrics.NewStore()
	client := newFakeClient(true)
	registry := backendclient.NewRegistry()
	registry.Register("p", client)

	cfg := Config{HealthCheckInterval: time.Hour, RecoveryCheckInterval: time.Hour, ProbeTimeout: time.Second}
	checker := New(models, providers, store, registry, cfg, func(string) string { return "tok" }, nil)
	return checker, store, client, tokBackend.Key(), reqBackend.Key()
}

// Scenario 1: initial probe marks per-token healthy, per-request also
// healthy once, and initial_done flips true.
func TestScenario1InitialProbe(t *testing.T) {
	checker, store, _, tokKey, reqKey := setup(t)
	checker.runProbePass(context.Background())
	checker.initialDone.Store(true)

	assert.True(t, store.IsHealthy(tokKey))
	assert.True(t, store.IsHealthy(reqKey))
	assert.True(t, checker.InitialDone())
}

// Scenario 2: a routine probe that succeeds does not auto-heal a backend
// already marked unhealthy by user traffic.
func TestScenario2RoutineProbeDoesNotAutoHeal(t *testing.T) {
	checker, store, client, tokKey, _ := setup(t)
	checker.runProbePass(context.Background())
	checker.initialDone.Store(true)

	store.RecordFailure(tokKey, gatewaytypes.FailureCheckChat)
	require.False(t, store.IsHealthy(tokKey))

	client.healthOK.Store(true)
	checker.runProbePass(context.Background())

	assert.False(t, store.IsHealthy(tokKey))
	assert.Equal(t, 1, len(store.UnhealthyBackends()))
}

// Scenario 6: recovery sweep for a Chat-classified failure issues a chat
// probe, not a models-list probe.
func TestScenario6RecoveryViaChatClassification(t *testing.T) {
	checker, store, client, tokKey, _ := setup(t)
	store.RecordFailure(tokKey, gatewaytypes.FailureCheckChat)

	client.modelsHit.Store(0)
	client.chatHit.Store(0)
	client.chatOK.Store(true)

	checker.runRecoverySweep(context.Background())

	assert.Equal(t, int32(1), client.chatHit.Load())
	assert.Equal(t, int32(0), client.modelsHit.Load())
	assert.True(t, store.IsHealthy(tokKey))
}

func TestScenario6RecoveryFailureKeepsUnhealthyAndBumpsAttempts(t *testing.T) {
	checker, store, client, tokKey, _ := setup(t)
	store.RecordFailure(tokKey, gatewaytypes.FailureCheckChat)
	client.chatOK.Store(false)

	checker.runRecoverySweep(context.Background())

	assert.False(t, store.IsHealthy(tokKey))
	ub := store.UnhealthyBackends()
	require.Len(t, ub, 1)
	assert.Equal(t, 1, ub[0].Entry.RecoveryAttempts)
}

func TestPerRequestBackendNeverActivelyProbedAfterInitial(t *testing.T) {
	checker, store, client, _, reqKey := setup(t)
	checker.runProbePass(context.Background())
	checker.initialDone.Store(true)

	client.modelsHit.Store(0)
	checker.runProbePass(context.Background())

	assert.Equal(t, int32(0), client.modelsHit.Load())
	assert.True(t, store.IsHealthy(reqKey))
}
