// Package gatewayconfig loads and validates the gateway's YAML
// configuration document: providers, models, and the settings that bound
// the load-balancing core's timers and retry policy.
//
// Defaults are applied first, a YAML overlay second, an environment
// overlay last. Wire translation, users/auth, and TOML parsing are out of
// scope.
package gatewayconfig

import "time"

// Document is the full YAML document the gateway loads.
type Document struct {
	Providers []ProviderSpec `yaml:"providers"`
	Models    []ModelSpec    `yaml:"models"`
	Settings  Settings       `yaml:"settings"`
}

// ProviderSpec is one upstream provider declaration.
type ProviderSpec struct {
	ID              string            `yaml:"id"`
	DisplayName     string            `yaml:"display_name"`
	BaseURL         string            `yaml:"base_url"`
	APIKey          string            `yaml:"api_key"`
	HeaderOverrides map[string]string `yaml:"header_overrides"`
	Enabled         bool              `yaml:"enabled"`
	TimeoutSeconds  int               `yaml:"timeout_seconds"`
	MaxRetries      int               `yaml:"max_retries"`
	Dialect         string            `yaml:"dialect"`
}

// BackendSpec is one (provider, upstream_model) routing entry within a model.
type BackendSpec struct {
	ProviderID    string   `yaml:"provider_id"`
	UpstreamModel string   `yaml:"upstream_model"`
	Weight        float64  `yaml:"weight"`
	Priority      int      `yaml:"priority"`
	Enabled       bool     `yaml:"enabled"`
	Tags          []string `yaml:"tags"`
	BillingMode   string   `yaml:"billing_mode"`
}

// ModelSpec is one client-facing model declaration.
type ModelSpec struct {
	ID          string        `yaml:"id"`
	DisplayName string        `yaml:"display_name"`
	Enabled     bool          `yaml:"enabled"`
	Backends    []BackendSpec `yaml:"backends"`
}

// SmartAiSettings bounds C1/C2's confidence model and selector behavior.
type SmartAiSettings struct {
	InitialConfidence               float64 `yaml:"initial_confidence"`
	MinConfidence                   float64 `yaml:"min_confidence"`
	LightweightCheckIntervalSeconds int     `yaml:"lightweight_check_interval_seconds"`
	ExplorationRatio                float64 `yaml:"exploration_ratio"`
	NonPremiumStabilityBonus        float64 `yaml:"non_premium_stability_bonus"`
}

// Settings holds the gateway's configurable timers and retry/cache policy.
type Settings struct {
	HealthCheckIntervalSeconds   int             `yaml:"health_check_interval_seconds"`
	RecoveryCheckIntervalSeconds int             `yaml:"recovery_check_interval_seconds"`
	RequestTimeoutSeconds        int             `yaml:"request_timeout_seconds"`
	HealthCheckTimeoutSeconds    int             `yaml:"health_check_timeout_seconds"`
	MaxInternalRetries           int             `yaml:"max_internal_retries"`
	SelectionCacheTTLSeconds     int             `yaml:"selection_cache_ttl_seconds"`
	SelectionCacheCapacity       int             `yaml:"selection_cache_capacity"`
	SmartAI                      SmartAiSettings `yaml:"smart_ai"`
}

// HealthCheckInterval returns the configured interval as a time.Duration.
func (s Settings) HealthCheckInterval() time.Duration {
	return time.Duration(s.HealthCheckIntervalSeconds) * time.Second
}

// RecoveryCheckInterval returns the configured interval as a time.Duration.
func (s Settings) RecoveryCheckInterval() time.Duration {
	return time.Duration(s.RecoveryCheckIntervalSeconds) * time.Second
}

// HealthCheckTimeout returns the configured probe timeout as a time.Duration.
func (s Settings) HealthCheckTimeout() time.Duration {
	return time.Duration(s.HealthCheckTimeoutSeconds) * time.Second
}

// RequestTimeout returns the configured connect timeout as a time.Duration.
func (s Settings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// SelectionCacheTTL returns the configured cache TTL as a time.Duration.
func (s Settings) SelectionCacheTTL() time.Duration {
	return time.Duration(s.SelectionCacheTTLSeconds) * time.Second
}

// Default returns the documented default settings.
func Default() Settings {
	return Settings{
		HealthCheckIntervalSeconds:   30,
		RecoveryCheckIntervalSeconds: 120,
		RequestTimeoutSeconds:        30,
		HealthCheckTimeoutSeconds:    10,
		MaxInternalRetries:           2,
		SelectionCacheTTLSeconds:     30,
		SelectionCacheCapacity:       1000,
		SmartAI: SmartAiSettings{
			InitialConfidence:               0.8,
			MinConfidence:                   0.05,
			LightweightCheckIntervalSeconds: 600,
			ExplorationRatio:                0.2,
			NonPremiumStabilityBonus:        1.05,
		},
	}
}

// DefaultDocument returns a Document with default Settings and empty
// providers/models, the starting point a Loader overlays a YAML file onto.
func DefaultDocument() *Document {
	return &Document{Settings: Default()}
}
