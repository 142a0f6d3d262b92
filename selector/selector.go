// Package selector implements the gateway's backend selector (component
// C2): given a model name and optional user tags, it produces one enabled
// backend via the SmartAI weighted-random draw, in a
// filter-candidates/score-candidates/weighted-select sequence.
package selector

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/berrygate/loadbalance/gatewaytypes"
	"github.com/berrygate/loadbalance/metrics"
)

// premiumTag is the tag name that exempts a backend from the non-premium
// stability bonus.
const premiumTag = "premium"

const minEffectiveWeight = 0.01

// Result is a successful selection, tagging how the backend was chosen so
// telemetry can distinguish exploration draws from weighted ones.
type Result struct {
	Backend  gatewaytypes.Backend
	Provider gatewaytypes.Provider
	Reason   string // "single_survivor", "weighted", "exploration", or "explicit_override" (SelectSpecific)
}

// Selector is the stateless (beyond its RNG) weighted-random backend picker.
// Safe for concurrent use.
type Selector struct {
	models    []gatewaytypes.Model
	providers map[string]gatewaytypes.Provider
	store     *metrics.Store

	nonPremiumStabilityBonus float64
	explorationRatio         float64

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes Selector construction.
type Option func(*Selector)

// WithNonPremiumStabilityBonus overrides the canonical 1.05 bonus.
func WithNonPremiumStabilityBonus(v float64) Option {
	return func(s *Selector) { s.nonPremiumStabilityBonus = v }
}

// WithExplorationRatio overrides the default 0.2 exploration probability.
func WithExplorationRatio(v float64) Option {
	return func(s *Selector) { s.explorationRatio = v }
}

// WithRNG overrides the selector's random source; test-only hook for
// deterministic draws.
func WithRNG(r *rand.Rand) Option {
	return func(s *Selector) { s.rng = r }
}

// New builds a Selector over the given model/provider tables and metrics
// store. models and providers are treated as immutable snapshots.
func New(models []gatewaytypes.Model, providers map[string]gatewaytypes.Provider, store *metrics.Store, opts ...Option) *Selector {
	s := &Selector{
		models:                   models,
		providers:                providers,
		store:                    store,
		nonPremiumStabilityBonus: 1.05,
		explorationRatio:         0.2,
		rng:                      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Selector) findModel(name string) (gatewaytypes.Model, bool) {
	for _, m := range s.models {
		if m.ID == name {
			return m, true
		}
	}
	for _, m := range s.models {
		if m.DisplayName == name {
			return m, true
		}
	}
	return gatewaytypes.Model{}, false
}

// candidate bundles a Backend with its provider and derived key, carried
// through the filter pipeline so error reporting can cite it.
type candidate struct {
	backend  gatewaytypes.Backend
	provider gatewaytypes.Provider
	key      gatewaytypes.BackendKey
}

// Select runs the full filter -> (exploration | weighted draw) pipeline.
func (s *Selector) Select(modelName string, userTags []string) (Result, error) {
	model, found := s.findModel(modelName)
	if !found {
		return Result{}, &RouteSelectionError{Kind: KindModelNotFound, ModelName: modelName}
	}
	if !model.Enabled {
		return Result{}, &RouteSelectionError{Kind: KindModelDisabled, ModelName: modelName}
	}

	total := len(model.Backends)
	enabled := make([]candidate, 0, total)
	healthyCount := 0
	for _, b := range model.Backends {
		prov, ok := s.providers[b.ProviderID]
		if !ok || !prov.Enabled || !b.Enabled {
			continue
		}
		key := b.Key()
		if s.store.IsHealthy(key) {
			healthyCount++
		}
		enabled = append(enabled, candidate{backend: b, provider: prov, key: key})
	}
	if len(enabled) == 0 {
		return Result{}, &RouteSelectionError{
			Kind:      KindNoEnabledBackends,
			ModelName: modelName,
			Totals:    Totals{Total: total, Enabled: 0, Healthy: healthyCount},
		}
	}

	tagged := enabled
	if len(userTags) > 0 {
		tagged = make([]candidate, 0, len(enabled))
		for _, c := range enabled {
			if len(c.backend.Tags) == 0 || sharesTag(c.backend.Tags, userTags) {
				tagged = append(tagged, c)
			}
		}
		if len(tagged) == 0 {
			return Result{}, &RouteSelectionError{
				Kind:      KindNoBackendsMatchUserTags,
				ModelName: modelName,
				UserTags:  userTags,
				Totals:    Totals{Total: total, Enabled: len(enabled), Healthy: healthyCount},
			}
		}
	}

	if s.rollExploration() {
		pick := tagged[s.intn(len(tagged))]
		return Result{Backend: pick.backend, Provider: pick.provider, Reason: "exploration"}, nil
	}

	type weighted struct {
		candidate
		effective float64
	}
	survivors := make([]weighted, 0, len(tagged))
	dropped := make([]CandidateReason, 0)
	for _, c := range tagged {
		eff := s.effectiveWeight(c)
		if eff <= minEffectiveWeight {
			dropped = append(dropped, CandidateReason{
				RouteID:      string(c.key),
				Provider:     c.provider.ID,
				Model:        modelName,
				Healthy:      s.store.IsHealthy(c.key),
				FailureCount: 0,
				Reason:       "effective_weight<=0.01",
			})
			continue
		}
		survivors = append(survivors, weighted{candidate: c, effective: eff})
	}
	if len(survivors) == 0 {
		return Result{}, &RouteSelectionError{
			Kind:       KindNoBackendsWithPositiveWeight,
			ModelName:  modelName,
			Candidates: dropped,
		}
	}
	if len(survivors) == 1 {
		c := survivors[0]
		return Result{Backend: c.backend, Provider: c.provider, Reason: "single_survivor"}, nil
	}

	total2 := 0.0
	for _, w := range survivors {
		total2 += w.effective
	}
	target := s.float64() * total2
	cumulative := 0.0
	for _, w := range survivors {
		cumulative += w.effective
		if cumulative >= target {
			return Result{Backend: w.backend, Provider: w.provider, Reason: "weighted"}, nil
		}
	}
	last := survivors[len(survivors)-1]
	return Result{Backend: last.backend, Provider: last.provider, Reason: "weighted"}, nil
}

// SelectSpecific bypasses weighting entirely: it looks the provider up
// directly and returns the matching backend for the model, or
// SpecificBackendUnavailable on miss. Used by route.SelectSpecificRoute.
func (s *Selector) SelectSpecific(modelName, providerID string) (Result, error) {
	model, found := s.findModel(modelName)
	if !found {
		return Result{}, &RouteSelectionError{Kind: KindModelNotFound, ModelName: modelName}
	}
	prov, ok := s.providers[providerID]
	if !ok || !prov.Enabled {
		return Result{}, &RouteSelectionError{
			Kind: KindSpecificBackendUnavailable, ModelName: modelName, ProviderID: providerID,
		}
	}
	for _, b := range model.Backends {
		if b.ProviderID == providerID && b.Enabled {
			return Result{Backend: b, Provider: prov, Reason: "explicit_override"}, nil
		}
	}
	return Result{}, &RouteSelectionError{
		Kind: KindSpecificBackendUnavailable, ModelName: modelName, ProviderID: providerID,
	}
}

// effectiveWeight combines the base (health/recovery adjusted) weight,
// the confidence mapping, and the stability bonus.
func (s *Selector) effectiveWeight(c candidate) float64 {
	base := s.store.EffectiveWeight(c.key, c.backend.Weight)
	confidence := s.store.Confidence(c.key)

	cw := 0.1
	if confidence >= 0.1 {
		cw = math.Sqrt(confidence)*0.7 + 0.3
	}

	bonus := 1.0
	if !c.backend.HasTag(premiumTag) && confidence > 0.95 {
		bonus = s.nonPremiumStabilityBonus
	}

	return base * cw * bonus
}

func sharesTag(backendTags, userTags []string) bool {
	set := make(map[string]struct{}, len(userTags))
	for _, t := range userTags {
		set[t] = struct{}{}
	}
	for _, t := range backendTags {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func (s *Selector) rollExploration() bool {
	if s.explorationRatio <= 0 {
		return false
	}
	return s.float64() < s.explorationRatio
}

func (s *Selector) float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Selector) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}
