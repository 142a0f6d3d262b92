package selector

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berrygate/loadbalance/gatewaytypes"
	"github.com/berrygate/loadbalance/metrics"
)

func provider(id string) gatewaytypes.Provider {
	return gatewaytypes.Provider{ID: id, Enabled: true, Dialect: gatewaytypes.DialectOpenAI}
}

func backend(providerID, model string, weight float64, tags ...string) gatewaytypes.Backend {
	return gatewaytypes.Backend{
		ProviderID: providerID, UpstreamName: model, Weight: weight,
		Enabled: true, Tags: tags, BillingMode: gatewaytypes.BillingPerToken,
	}
}

func newFixtureSelector(t *testing.T, backends []gatewaytypes.Backend, providers ...gatewaytypes.Provider) (*Selector, *metrics.Store) {
	t.Helper()
	provMap := make(map[string]gatewaytypes.Provider)
	for _, p := range providers {
		provMap[p.ID] = p
	}
	model := gatewaytypes.Model{ID: "m", DisplayName: "Model", Enabled: true, Backends: backends}
	store := metrics.NewStore()
	sel := New([]gatewaytypes.Model{model}, provMap, store,
		WithExplorationRatio(0), WithRNG(rand.New(rand.NewSource(42))))
	return sel, store
}

func TestSelectModelNotFound(t *testing.T) {
	sel, _ := newFixtureSelector(t, nil)
	_, err := sel.Select("nope", nil)
	require.Error(t, err)
	rse := err.(*RouteSelectionError)
	assert.Equal(t, KindModelNotFound, rse.Kind)
}

func TestSelectModelDisabled(t *testing.T) {
	store := metrics.NewStore()
	model := gatewaytypes.Model{ID: "m", Enabled: false}
	sel := New([]gatewaytypes.Model{model}, map[string]gatewaytypes.Provider{}, store)
	_, err := sel.Select("m", nil)
	require.Error(t, err)
	assert.Equal(t, KindModelDisabled, err.(*RouteSelectionError).Kind)
}

func TestSelectNoEnabledBackends(t *testing.T) {
	b := backend("p", "x", 50)
	b.Enabled = false
	sel, _ := newFixtureSelector(t, []gatewaytypes.Backend{b}, provider("p"))
	_, err := sel.Select("m", nil)
	require.Error(t, err)
	assert.Equal(t, KindNoEnabledBackends, err.(*RouteSelectionError).Kind)
}

func TestSelectTagFilterEliminatesAll(t *testing.T) {
	b := backend("p", "x", 50, "premium")
	sel, _ := newFixtureSelector(t, []gatewaytypes.Backend{b}, provider("p"))
	_, err := sel.Select("m", []string{"cheap"})
	require.Error(t, err)
	assert.Equal(t, KindNoBackendsMatchUserTags, err.(*RouteSelectionError).Kind)
}

func TestSelectSingleSurvivor(t *testing.T) {
	b := backend("p", "x", 50)
	sel, _ := newFixtureSelector(t, []gatewaytypes.Backend{b}, provider("p"))
	res, err := sel.Select("m", nil)
	require.NoError(t, err)
	assert.Equal(t, "x", res.Backend.UpstreamName)
	assert.Equal(t, "single_survivor", res.Reason)
}

// Filter soundness: any returned backend is enabled, its provider is
// enabled, and tags intersect (or either side has none).
func TestFilterSoundness(t *testing.T) {
	a := backend("p", "a", 50, "premium")
	b := backend("p", "b", 50)
	sel, _ := newFixtureSelector(t, []gatewaytypes.Backend{a, b}, provider("p"))

	for i := 0; i < 50; i++ {
		res, err := sel.Select("m", []string{"premium"})
		require.NoError(t, err)
		assert.True(t, res.Backend.Enabled)
		assert.True(t, res.Provider.Enabled)
		assert.True(t, len(res.Backend.Tags) == 0 || sharesTag(res.Backend.Tags, []string{"premium"}))
	}
}

func TestSpecificBackendUnavailable(t *testing.T) {
	b := backend("p", "x", 50)
	sel, _ := newFixtureSelector(t, []gatewaytypes.Backend{b}, provider("p"))
	_, err := sel.SelectSpecific("m", "missing")
	require.Error(t, err)
	assert.Equal(t, KindSpecificBackendUnavailable, err.(*RouteSelectionError).Kind)
}

func TestSpecificBackendBypassesWeighting(t *testing.T) {
	b := backend("p", "x", 0.05) // tiny weight, would drop under normal filtering
	sel, store := newFixtureSelector(t, []gatewaytypes.Backend{b}, provider("p"))
	store.RecordFailure(b.Key(), gatewaytypes.FailureCheckNetwork)

	res, err := sel.SelectSpecific("m", "p")
	require.NoError(t, err)
	assert.Equal(t, "x", res.Backend.UpstreamName)
}

// Scenario 5: with A failed, B (higher weight) beats C over many draws
// among the still-reachable backends. The selector keeps a failed backend
// reachable at reduced weight by design (see effectiveWeight and
// original_source's select_smart_ai) — whether A is chosen zero times under
// a request's full retry policy is a route.Coordinator property, asserted
// there, not here.
func TestMixedHealthSteersTraffic(t *testing.T) {
	a := backend("p", "a", 50)
	b := backend("p", "b", 30)
	c := backend("p", "c", 20)
	sel, store := newFixtureSelector(t, []gatewaytypes.Backend{a, b, c}, provider("p"))
	store.RecordFailure(a.Key(), gatewaytypes.FailureCheckChat)

	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		res, err := sel.Select("m", nil)
		require.NoError(t, err)
		counts[res.Backend.UpstreamName]++
	}
	assert.Greater(t, counts["b"], counts["c"])
}

// Scenario 4: three backends all marked failed; over many selections the
// heaviest weight still wins most often because the 10% unhealthy
// multiplier is uniform across all three. Exercised directly at the
// selector level (no cache in front of it) so every call actually performs
// a fresh weighted draw.
func TestScenario4WeightedSelectionWhenAllUnhealthy(t *testing.T) {
	a := backend("p", "a", 50)
	b := backend("p", "b", 30)
	c := backend("p", "c", 20)
	sel, store := newFixtureSelector(t, []gatewaytypes.Backend{a, b, c}, provider("p"))
	for _, bk := range []gatewaytypes.Backend{a, b, c} {
		store.RecordFailure(bk.Key(), gatewaytypes.FailureCheckNetwork)
	}

	counts := map[string]int{}
	for i := 0; i < 100; i++ {
		res, err := sel.Select("m", nil)
		require.NoError(t, err)
		counts[res.Backend.UpstreamName]++
	}
	assert.GreaterOrEqual(t, counts["a"], counts["b"])
	assert.GreaterOrEqual(t, counts["b"], counts["c"])
}

func TestNonPremiumStabilityBonusApplied(t *testing.T) {
	store := metrics.NewStore()
	key := gatewaytypes.BackendKey("p:x")
	for i := 0; i < 10; i++ {
		store.RecordSmartAiRequest(key, metrics.RequestOutcome{Success: true})
	}
	require.Greater(t, store.Confidence(key), 0.95)

	b := backend("p", "x", 50)
	sel := New(nil, map[string]gatewaytypes.Provider{"p": provider("p")}, store, WithNonPremiumStabilityBonus(1.05))
	eff := sel.effectiveWeight(candidate{backend: b, provider: provider("p"), key: key})
	assert.InDelta(t, 50*1.0*1.05, eff, 1e-6)
}
