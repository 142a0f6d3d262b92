package selector

import (
	"math/rand"
	"testing"

	"pgregory.net/rapid"

	"github.com/berrygate/loadbalance/gatewaytypes"
	"github.com/berrygate/loadbalance/metrics"
)

// TestPropertyWeightReachability checks that, with equal, non-decayed
// confidence, the empirical selection distribution over N=10000 draws
// matches the configured weight ratios within +/-3% per backend. rapid
// generates the weight configuration; the draw loop itself is plain.
func TestPropertyWeightReachability(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 4).Draw(rt, "n")
		weights := make([]float64, n)
		total := 0.0
		for i := range weights {
			weights[i] = rapid.Float64Range(5, 95).Draw(rt, "weight")
			total += weights[i]
		}

		backends := make([]gatewaytypes.Backend, n)
		for i, w := range weights {
			backends[i] = gatewaytypes.Backend{
				ProviderID: "p", UpstreamName: name(i), Weight: w,
				Enabled: true, BillingMode: gatewaytypes.BillingPerToken,
			}
		}
		provMap := map[string]gatewaytypes.Provider{"p": {ID: "p", Enabled: true}}
		model := gatewaytypes.Model{ID: "m", Enabled: true, Backends: backends}
		store := metrics.NewStore()
		sel := New([]gatewaytypes.Model{model}, provMap, store,
			WithExplorationRatio(0), WithRNG(rand.New(rand.NewSource(7))))

		const draws = 10000
		counts := make([]int, n)
		for i := 0; i < draws; i++ {
			res, err := sel.Select("m", nil)
			if err != nil {
				rt.Fatalf("unexpected error: %v", err)
			}
			for idx, b := range backends {
				if b.UpstreamName == res.Backend.UpstreamName {
					counts[idx]++
				}
			}
		}

		for i, w := range weights {
			wantFrac := w / total
			gotFrac := float64(counts[i]) / float64(draws)
			if diff := wantFrac - gotFrac; diff > 0.03 || diff < -0.03 {
				rt.Fatalf("backend %d: want fraction %.4f, got %.4f (weights=%v)", i, wantFrac, gotFrac, weights)
			}
		}
	})
}

func name(i int) string {
	return string(rune('a' + i))
}
