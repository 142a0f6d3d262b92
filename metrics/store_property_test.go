package metrics

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/berrygate/loadbalance/gatewaytypes"
)

// TestPropertySuccessAlwaysClears checks that regardless of how many prior
// failures a key accumulated, RecordSuccess always leaves it in the same
// clean state.
func TestPropertySuccessAlwaysClears(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("RecordSuccess clears failure state", prop.ForAll(
		func(failures int) bool {
			s := NewStore()
			k := gatewaytypes.BackendKey("p:m")
			for i := 0; i < failures; i++ {
				s.RecordFailure(k, gatewaytypes.FailureCheckNetwork)
			}
			s.RecordSuccess(k)

			if !s.IsHealthy(k) {
				return false
			}
			if len(s.UnhealthyBackends()) != 0 {
				return false
			}
			return s.EffectiveWeight(k, 42) == 42
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
