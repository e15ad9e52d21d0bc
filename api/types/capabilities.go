package types

// Capability names a single operation a provider can serve.
type Capability string

const (
	CapSearch  Capability = "search"
	CapMetrics Capability = "metrics"
	CapMedia   Capability = "media"
)

// ProviderCapability represents the capabilities of a single provider.
type ProviderCapability struct {
	Provider     string       `json:"provider"`
	Capabilities []Capability `json:"capabilities"`
}

// EngineCapabilities represents all capabilities available on an engine,
// derived from the credentials and features present in the configuration.
type EngineCapabilities []ProviderCapability

// Has reports whether any provider serves the given capability.
func (ec EngineCapabilities) Has(cap Capability) bool {
	for _, pc := range ec {
		for _, c := range pc.Capabilities {
			if c == cap {
				return true
			}
		}
	}
	return false
}

// Providers lists the provider names in detection order.
func (ec EngineCapabilities) Providers() []string {
	names := make([]string, 0, len(ec))
	for _, pc := range ec {
		names = append(names, pc.Provider)
	}
	return names
}
