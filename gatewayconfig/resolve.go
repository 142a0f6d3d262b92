package gatewayconfig

import "github.com/berrygate/loadbalance/gatewaytypes"

// Resolve converts a validated Document into the immutable snapshot tables
// the load-balancing core consumes. Callers must run Validate (or Load,
// which validates internally) first; Resolve does not re-check invariants.
func Resolve(doc *Document) ([]gatewaytypes.Model, map[string]gatewaytypes.Provider) {
	providers := make(map[string]gatewaytypes.Provider, len(doc.Providers))
	for _, p := range doc.Providers {
		providers[p.ID] = gatewaytypes.Provider{
			ID:              p.ID,
			DisplayName:     p.DisplayName,
			BaseURL:         p.BaseURL,
			APIKey:          p.APIKey,
			HeaderOverrides: p.HeaderOverrides,
			Enabled:         p.Enabled,
			Timeout:         p.TimeoutSeconds,
			MaxRetries:      p.MaxRetries,
			Dialect:         gatewaytypes.Dialect(p.Dialect),
		}
	}

	models := make([]gatewaytypes.Model, 0, len(doc.Models))
	for _, m := range doc.Models {
		backends := make([]gatewaytypes.Backend, 0, len(m.Backends))
		for _, b := range m.Backends {
			backends = append(backends, gatewaytypes.Backend{
				ProviderID:   b.ProviderID,
				UpstreamName: b.UpstreamModel,
				Weight:       b.Weight,
				Priority:     b.Priority,
				Enabled:      b.Enabled,
				Tags:         b.Tags,
				BillingMode:  gatewaytypes.BillingMode(b.BillingMode),
			})
		}
		models = append(models, gatewaytypes.Model{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Strategy:    "smart_ai",
			Enabled:     m.Enabled,
			Backends:    backends,
		})
	}
	return models, providers
}
