// Package metrics is the load balancer's single source of truth for
// per-backend health, latency, failure counters, recovery state, and
// SmartAI confidence (component C1 of the gateway core).
//
// The store is a thread-safe map-like container: one sync.RWMutex guards a
// map keyed by gatewaytypes.BackendKey, rather than sharding by key hash —
// contention here is unmeasured in production, so the simplest correct
// option was chosen (see SPEC_FULL.md §4.1).
package metrics

import (
	"sync"
	"time"

	"github.com/berrygate/loadbalance/gatewaytypes"
)

// UnhealthyEntry is present iff a key's healthy flag is false.
type UnhealthyEntry struct {
	FirstFailureAt      time.Time
	LastFailureAt       time.Time
	FailureCount        int
	RecoveryAttempts    int
	LastRecoveryAttempt time.Time
	HasRecoveryAttempt  bool
	FailureCheckMethod  gatewaytypes.FailureCheckMethod
}

// WeightRecoveryState is present while a per-request backend is unhealthy
// or actively climbing the passive-recovery staircase.
type WeightRecoveryState struct {
	OriginalWeight float64
	CurrentWeight  float64
	Stage          gatewaytypes.RecoveryStage
	SuccessCount   int
	LastSuccessAt  time.Time
}

// SmartAiHealth tracks the confidence model for one backend.
type SmartAiHealth struct {
	Confidence              float64
	TotalRequests           int
	ConsecutiveSuccesses    int
	ConsecutiveFailures     int
	LastRequestAt           time.Time
	LastSuccessAt           time.Time
	LastFailureAt           time.Time
	ErrorCounts             map[gatewaytypes.ErrorKind]int
	ConnectivityOK          bool
	LastConnectivityCheckAt time.Time
	HasConnectivityCheck    bool
}

// entry is the per-BackendKey record. All fields are only ever mutated
// while the store's mutex is held.
type entry struct {
	Latency       time.Duration
	FailureCount  int
	SuccessCount  int
	RequestCount  int
	Healthy       bool
	LastProbeTime time.Time

	Unhealthy *UnhealthyEntry
	Recovery  *WeightRecoveryState
	SmartAI   *SmartAiHealth
}

func newEntry() *entry {
	return &entry{
		Healthy: true,
		SmartAI: &SmartAiHealth{
			Confidence:  0.8,
			ErrorCounts: make(map[gatewaytypes.ErrorKind]int),
		},
	}
}

// confidencePenalties maps an ErrorKind to the amount subtracted from
// confidence on a SmartAI failure.
var confidencePenalties = map[gatewaytypes.ErrorKind]float64{
	gatewaytypes.ErrorKindNetwork:   0.30,
	gatewaytypes.ErrorKindAuth:      0.80,
	gatewaytypes.ErrorKindRateLimit: 0.10,
	gatewaytypes.ErrorKindServer:    0.20,
	gatewaytypes.ErrorKindModel:     0.30,
	gatewaytypes.ErrorKindTimeout:   0.20,
}

// Store is the thread-safe per-backend metrics container.
type Store struct {
	mu       sync.RWMutex
	entries  map[gatewaytypes.BackendKey]*entry
	initConf float64
	minConf  float64
	now      func() time.Time
}

// Option customizes Store construction.
type Option func(*Store)

// WithInitialConfidence overrides the default initial confidence (0.8).
func WithInitialConfidence(v float64) Option {
	return func(s *Store) { s.initConf = v }
}

// WithMinConfidence overrides the confidence floor (0.05).
func WithMinConfidence(v float64) Option {
	return func(s *Store) { s.minConf = v }
}

// withClock overrides the store's time source; test-only hook.
func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore builds an empty metrics store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries:  make(map[gatewaytypes.BackendKey]*entry),
		initConf: 0.8,
		minConf:  0.05,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) getOrCreate(key gatewaytypes.BackendKey) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = newEntry()
		e.SmartAI.Confidence = s.initConf
		s.entries[key] = e
	}
	return e
}

// RecordSuccess clears failure state unconditionally: request/success
// counters increment, failure_count resets, the backend is marked healthy,
// and any unhealthy entry / recovery state is removed.
func (s *Store) RecordSuccess(key gatewaytypes.BackendKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	e.RequestCount++
	e.SuccessCount++
	e.FailureCount = 0
	e.Healthy = true
	e.Unhealthy = nil
	e.Recovery = nil
}

// stageForSuccessCount implements the passive-recovery staircase table:
// 1-2 -> R1, 3-4 -> R2, >=5 -> Full.
func stageForSuccessCount(n int) gatewaytypes.RecoveryStage {
	switch {
	case n >= 5:
		return gatewaytypes.StageFull
	case n >= 3:
		return gatewaytypes.StageR2
	case n >= 1:
		return gatewaytypes.StageR1
	default:
		return gatewaytypes.StageUnhealthy
	}
}

// RecordPassiveSuccess advances a per-request backend's WeightRecoveryState
// by one rung. It is only meaningful for keys currently in the unhealthy
// registry; the first call after a failure lands directly on R1 (30%),
// resolving the staircase off-by-one noted in the design notes.
func (s *Store) RecordPassiveSuccess(key gatewaytypes.BackendKey, originalWeight float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	if e.Recovery == nil {
		e.Recovery = &WeightRecoveryState{
			OriginalWeight: originalWeight,
			Stage:          gatewaytypes.StageUnhealthy,
		}
	}
	r := e.Recovery
	r.SuccessCount++
	r.Stage = stageForSuccessCount(r.SuccessCount)
	r.CurrentWeight = r.OriginalWeight * r.Stage.Multiplier()
	r.LastSuccessAt = s.now()

	if r.Stage == gatewaytypes.StageFull {
		e.Unhealthy = nil
		e.Healthy = true
		e.Recovery = nil
	}
}

// RecordFailure marks a backend unhealthy, bumps counters monotonically,
// and records which probe kind observed the failure. Any in-flight
// weight-recovery state is dropped; InitializePerRequestRecovery re-creates
// it for per-request backends.
func (s *Store) RecordFailure(key gatewaytypes.BackendKey, method gatewaytypes.FailureCheckMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	e.RequestCount++
	e.FailureCount++
	e.Healthy = false
	now := s.now()

	if e.Unhealthy == nil {
		e.Unhealthy = &UnhealthyEntry{FirstFailureAt: now}
	}
	e.Unhealthy.LastFailureAt = now
	e.Unhealthy.FailureCount = e.FailureCount
	e.Unhealthy.FailureCheckMethod = method
	e.Recovery = nil
}

// InitializePerRequestRecovery creates a WeightRecoveryState at stage
// Unhealthy (10%) the first time a per-request backend fails. Idempotent:
// a pre-existing recovery state is left untouched.
func (s *Store) InitializePerRequestRecovery(key gatewaytypes.BackendKey, originalWeight float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	if e.Recovery != nil {
		return
	}
	e.Recovery = &WeightRecoveryState{
		OriginalWeight: originalWeight,
		CurrentWeight:  originalWeight * gatewaytypes.StageUnhealthy.Multiplier(),
		Stage:          gatewaytypes.StageUnhealthy,
	}
}

// RecordLatency stores the last observed latency sample for key.
func (s *Store) RecordLatency(key gatewaytypes.BackendKey, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	e.Latency = d
}

// IsHealthy defaults to true for a key never observed.
func (s *Store) IsHealthy(key gatewaytypes.BackendKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return true
	}
	return e.Healthy
}

// EffectiveWeight is the instantaneous selection weight for key, given its
// static originalWeight: the active WeightRecoveryState takes precedence,
// falling back to the flat 10% unhealthy multiplier, falling back to the
// original weight when the backend is healthy.
func (s *Store) EffectiveWeight(key gatewaytypes.BackendKey, originalWeight float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return originalWeight
	}
	if e.Recovery != nil {
		return e.Recovery.CurrentWeight
	}
	if !e.Healthy {
		return originalWeight * gatewaytypes.StageUnhealthy.Multiplier()
	}
	return originalWeight
}

// decayMultiplier is the confidence time-decay table, tested directly
// against each named boundary.
func decayMultiplier(hoursSinceLastRequest float64) float64 {
	switch {
	case hoursSinceLastRequest <= 1:
		return 1.0
	case hoursSinceLastRequest <= 6:
		return 0.95
	case hoursSinceLastRequest <= 24:
		return 0.90
	case hoursSinceLastRequest <= 72:
		return 0.80
	default:
		return 0.70
	}
}

// Confidence returns the time-decayed SmartAI confidence for key, floored
// at 0.5 for display/selection purposes; the stored value itself is never
// touched by decay. Defaults to the configured initial confidence (0.8)
// for a key never observed.
func (s *Store) Confidence(key gatewaytypes.BackendKey) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || e.SmartAI == nil {
		return s.initConf
	}
	if e.SmartAI.LastRequestAt.IsZero() {
		return e.SmartAI.Confidence
	}
	hours := s.now().Sub(e.SmartAI.LastRequestAt).Hours()
	decayed := e.SmartAI.Confidence * decayMultiplier(hours)
	if decayed < 0.5 {
		decayed = 0.5
	}
	return decayed
}

// RequestOutcome is the argument to RecordSmartAiRequest.
type RequestOutcome struct {
	Success bool
	Kind    gatewaytypes.ErrorKind // only meaningful when !Success
}

// RecordSmartAiRequest folds one request outcome into a backend's
// confidence model: successes nudge confidence up by a flat 0.10 (capped
// at 1.0); failures subtract a kind-dependent penalty (clamped at the
// store's confidence floor).
func (s *Store) RecordSmartAiRequest(key gatewaytypes.BackendKey, outcome RequestOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	h := e.SmartAI
	now := s.now()
	h.TotalRequests++
	h.LastRequestAt = now

	if outcome.Success {
		h.Confidence = min(1.0, h.Confidence+0.10)
		h.ConsecutiveSuccesses++
		h.ConsecutiveFailures = 0
		h.LastSuccessAt = now
		return
	}

	penalty, ok := confidencePenalties[outcome.Kind]
	if !ok {
		penalty = confidencePenalties[gatewaytypes.ErrorKindNetwork]
	}
	h.Confidence = max(s.minConf, h.Confidence-penalty)
	h.ConsecutiveFailures++
	h.ConsecutiveSuccesses = 0
	h.LastFailureAt = now
	if h.ErrorCounts == nil {
		h.ErrorCounts = make(map[gatewaytypes.ErrorKind]int)
	}
	h.ErrorCounts[outcome.Kind]++
}

// UpdateConnectivity records a lightweight connectivity probe result. A
// failed probe (ok=false) halves confidence down to the store's floor.
func (s *Store) UpdateConnectivity(key gatewaytypes.BackendKey, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	e.SmartAI.ConnectivityOK = ok
	e.SmartAI.LastConnectivityCheckAt = s.now()
	e.SmartAI.HasConnectivityCheck = true
	if !ok {
		e.SmartAI.Confidence = max(s.minConf, e.SmartAI.Confidence*0.5)
	}
}

// NeedsRecoveryCheck reports whether key is unhealthy and due for another
// recovery attempt, given the configured recovery interval.
func (s *Store) NeedsRecoveryCheck(key gatewaytypes.BackendKey, interval time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || e.Unhealthy == nil {
		return false
	}
	if !e.Unhealthy.HasRecoveryAttempt {
		return true
	}
	return s.now().Sub(e.Unhealthy.LastRecoveryAttempt) >= interval
}

// RecordRecoveryAttempt bumps the unhealthy entry's recovery-attempt
// counter and timestamp. No-op if key is not currently unhealthy.
func (s *Store) RecordRecoveryAttempt(key gatewaytypes.BackendKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.Unhealthy == nil {
		return
	}
	e.Unhealthy.RecoveryAttempts++
	e.Unhealthy.LastRecoveryAttempt = s.now()
	e.Unhealthy.HasRecoveryAttempt = true
}

// UnhealthyBackend is a read-only snapshot row for UnhealthyBackends().
type UnhealthyBackend struct {
	Key   gatewaytypes.BackendKey
	Entry UnhealthyEntry
}

// UnhealthyBackends returns a point-in-time snapshot of the unhealthy
// registry, for operator dashboards and the health checker's recovery sweep.
func (s *Store) UnhealthyBackends() []UnhealthyBackend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UnhealthyBackend, 0)
	for k, e := range s.entries {
		if e.Unhealthy == nil {
			continue
		}
		out = append(out, UnhealthyBackend{Key: k, Entry: *e.Unhealthy})
	}
	return out
}

// RouteStat is one row of RouteStats' per-route breakdown.
type RouteStat struct {
	Key            gatewaytypes.BackendKey
	IsHealthy      bool
	RequestCount   int
	ErrorCount     int
	AverageLatency time.Duration
	HasLatency     bool
	CurrentWeight  float64
}

// RouteStats is the aggregate read API exposed to operator collaborators.
type RouteStats struct {
	TotalRequests      int
	SuccessfulRequests int
	PerRoute           []RouteStat
}

// Stats snapshots aggregate and per-route counters. originalWeights maps
// each known key to its static configured weight, needed to report
// CurrentWeight; keys absent from it are skipped.
func (s *Store) Stats(originalWeights map[gatewaytypes.BackendKey]float64) RouteStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := RouteStats{}
	for k, e := range s.entries {
		stats.TotalRequests += e.RequestCount
		stats.SuccessfulRequests += e.SuccessCount
		w, ok := originalWeights[k]
		if !ok {
			continue
		}
		row := RouteStat{
			Key:          k,
			IsHealthy:    e.Healthy,
			RequestCount: e.RequestCount,
			ErrorCount:   e.FailureCount,
		}
		if e.LastProbeTime.IsZero() && e.Latency == 0 {
			row.HasLatency = false
		} else {
			row.HasLatency = true
			row.AverageLatency = e.Latency
		}
		if e.Recovery != nil {
			row.CurrentWeight = e.Recovery.CurrentWeight
		} else if !e.Healthy {
			row.CurrentWeight = w * gatewaytypes.StageUnhealthy.Multiplier()
		} else {
			row.CurrentWeight = w
		}
		stats.PerRoute = append(stats.PerRoute, row)
	}
	return stats
}

// RecordProbe updates last_probe_time without affecting health/failure
// state, used by the routine health-check pass for successful probes that
// must not promote an unhealthy backend.
func (s *Store) RecordProbe(key gatewaytypes.BackendKey, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	e.LastProbeTime = s.now()
	e.Latency = latency
}
