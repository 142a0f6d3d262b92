package gatewayconfig

import (
	"fmt"
	"strings"
)

// Validate runs every validation rule and returns every violation found,
// rather than stopping at the first, as a list of messages; Load wraps a
// non-empty list in a *ValidationError.
func Validate(doc *Document) []string {
	var errs []string

	providerByID := make(map[string]ProviderSpec, len(doc.Providers))
	for _, p := range doc.Providers {
		errs = append(errs, validateProvider(p)...)
		if p.ID != "" {
			providerByID[p.ID] = p
		}
	}

	for _, m := range doc.Models {
		errs = append(errs, validateModel(m, providerByID)...)
	}

	return errs
}

func validateProvider(p ProviderSpec) []string {
	var errs []string
	if strings.TrimSpace(p.ID) == "" {
		errs = append(errs, "provider: id must not be empty")
	}
	if strings.TrimSpace(p.BaseURL) == "" {
		errs = append(errs, fmt.Sprintf("provider %q: base_url must not be empty", p.ID))
	} else if !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
		errs = append(errs, fmt.Sprintf("provider %q: base_url must start with http:// or https://", p.ID))
	}
	if len(strings.TrimSpace(p.APIKey)) < 10 {
		errs = append(errs, fmt.Sprintf("provider %q: api_key must be at least 10 characters", p.ID))
	}
	if p.TimeoutSeconds <= 0 || p.TimeoutSeconds > 300 {
		errs = append(errs, fmt.Sprintf("provider %q: timeout_seconds must be in (0, 300]", p.ID))
	}
	if p.MaxRetries > 10 {
		errs = append(errs, fmt.Sprintf("provider %q: max_retries must be <= 10", p.ID))
	}
	switch p.Dialect {
	case "openai", "claude", "gemini":
	default:
		errs = append(errs, fmt.Sprintf("provider %q: dialect must be one of openai|claude|gemini, got %q", p.ID, p.Dialect))
	}
	return errs
}

func validateModel(m ModelSpec, providers map[string]ProviderSpec) []string {
	var errs []string
	enabledBackends := 0
	for _, b := range m.Backends {
		sub := validateBackend(m, b, providers)
		errs = append(errs, sub...)
		if len(sub) == 0 && b.Enabled {
			enabledBackends++
		}
	}
	if enabledBackends == 0 {
		errs = append(errs, fmt.Sprintf("model %q: must have at least one enabled, valid backend", m.ID))
	}
	return errs
}

func validateBackend(m ModelSpec, b BackendSpec, providers map[string]ProviderSpec) []string {
	var errs []string
	if _, ok := providers[b.ProviderID]; !ok {
		errs = append(errs, fmt.Sprintf("model %q: backend references unknown provider %q", m.ID, b.ProviderID))
	}
	if b.Weight <= 0 || b.Weight > 100 {
		errs = append(errs, fmt.Sprintf("model %q: backend %s/%s weight must be in (0, 100], got %v", m.ID, b.ProviderID, b.UpstreamModel, b.Weight))
	}
	if b.Priority < 0 || b.Priority > 10 {
		errs = append(errs, fmt.Sprintf("model %q: backend %s/%s priority must be in [0, 10], got %d", m.ID, b.ProviderID, b.UpstreamModel, b.Priority))
	}
	switch b.BillingMode {
	case "per_token", "per_request":
	default:
		errs = append(errs, fmt.Sprintf("model %q: backend %s/%s billing_mode must be per_token|per_request, got %q", m.ID, b.ProviderID, b.UpstreamModel, b.BillingMode))
	}
	for _, tag := range b.Tags {
		if strings.TrimSpace(tag) == "" || strings.ContainsAny(tag, " \t\n") {
			errs = append(errs, fmt.Sprintf("model %q: backend %s/%s has an invalid tag %q (must be nonempty and whitespace-free)", m.ID, b.ProviderID, b.UpstreamModel, tag))
		}
	}
	return errs
}
