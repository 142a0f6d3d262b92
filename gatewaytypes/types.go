// Package gatewaytypes holds the data model shared by every load-balancing
// component: Provider/Backend/Model configuration entities and the small
// enums the metrics store and selector key their behavior on.
//
// This package has ZERO dependencies on other gateway packages to avoid
// circular imports. All other packages import types from here.
package gatewaytypes

import "fmt"

// Dialect identifies the wire format a Provider speaks.
type Dialect string

const (
	DialectOpenAI Dialect = "openai"
	DialectClaude Dialect = "claude"
	DialectGemini Dialect = "gemini"
)

// BillingMode controls whether a Backend may be actively health-probed.
type BillingMode string

const (
	// BillingPerToken backends are safe to probe: a failed probe costs no
	// more than a models-list call.
	BillingPerToken BillingMode = "per_token"
	// BillingPerRequest backends are charged per call and must never be
	// actively probed; they recover only through passive user traffic.
	BillingPerRequest BillingMode = "per_request"
)

// ErrorKind classifies a reported failure for confidence penalties.
type ErrorKind string

const (
	ErrorKindNetwork   ErrorKind = "network"
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindServer    ErrorKind = "server"
	ErrorKindModel     ErrorKind = "model"
	ErrorKindTimeout   ErrorKind = "timeout"
)

// FailureCheckMethod records which probe kind last observed a backend fail.
type FailureCheckMethod string

const (
	FailureCheckNetwork   FailureCheckMethod = "network"
	FailureCheckModelList FailureCheckMethod = "model_list"
	FailureCheckChat      FailureCheckMethod = "chat"
)

// RecoveryStage is one of the four rungs of the passive-recovery staircase.
type RecoveryStage string

const (
	StageUnhealthy RecoveryStage = "unhealthy"
	StageR1        RecoveryStage = "r1"
	StageR2        RecoveryStage = "r2"
	StageFull      RecoveryStage = "full"
)

// Multiplier returns the weight multiplier for the stage.
func (s RecoveryStage) Multiplier() float64 {
	switch s {
	case StageUnhealthy:
		return 0.10
	case StageR1:
		return 0.30
	case StageR2:
		return 0.50
	case StageFull:
		return 1.00
	default:
		return 0.10
	}
}

// Provider is one configured upstream. Immutable after config load.
type Provider struct {
	ID              string
	DisplayName     string
	BaseURL         string
	APIKey          string
	HeaderOverrides map[string]string
	Enabled         bool
	Timeout         int // seconds
	MaxRetries      int
	Dialect         Dialect
}

// Backend is a (provider_id, upstream_model_name) pair plus routing metadata.
// Immutable after config load.
type Backend struct {
	ProviderID   string
	UpstreamName string
	Weight       float64 // (0, 100]
	Priority     int     // [0, 10], unused by SmartAi; carried for future strategies
	Enabled      bool
	Tags         []string
	BillingMode  BillingMode
}

// Key derives the BackendKey identity: "<provider_id>:<upstream_model>".
func (b Backend) Key() BackendKey {
	return BackendKey(fmt.Sprintf("%s:%s", b.ProviderID, b.UpstreamName))
}

// HasTag reports whether the backend carries the given tag.
func (b Backend) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// BackendKey is the unique identity of a Backend in the metrics store:
// "<provider_id>:<upstream_model_name>".
type BackendKey string

// Model groups an ordered list of candidate backends under one logical name.
// Multiple models may share a provider/upstream_model pair.
type Model struct {
	ID          string
	DisplayName string
	Strategy    string // always "smart_ai" for now; carried for future strategies
	Enabled     bool
	Backends    []Backend
}

// MatchesName reports whether the model is addressed by id or display name.
func (m Model) MatchesName(name string) bool {
	return m.ID == name || m.DisplayName == name
}
