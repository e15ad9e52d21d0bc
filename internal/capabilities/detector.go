// Package capabilities derives what the engine can currently do from the
// credentials and features present in the configuration.
package capabilities

import (
	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/config"
)

// DetectCapabilities builds the provider capability matrix. Providers that
// need no credentials (oembed, rawhtml) are always present, which is why a
// fully unconfigured engine can still resolve metrics; it just resolves
// them at low confidence.
func DetectCapabilities(ec config.EngineConfig) types.EngineCapabilities {
	caps := types.EngineCapabilities{}

	if len(ec.GetStringSlice("serper_api_keys", nil)) > 0 {
		caps = append(caps, types.ProviderCapability{
			Provider:     "serper",
			Capabilities: []types.Capability{types.CapSearch},
		})
	}
	if len(ec.GetStringSlice("google_cse_keys", nil)) > 0 {
		caps = append(caps, types.ProviderCapability{
			Provider:     "google-cse",
			Capabilities: []types.Capability{types.CapSearch},
		})
	}
	if len(ec.GetStringSlice("apify_api_keys", nil)) > 0 {
		caps = append(caps, types.ProviderCapability{
			Provider:     "apify",
			Capabilities: []types.Capability{types.CapMetrics},
		})
	}
	if len(ec.GetStringSlice("twitter_accounts", nil)) > 0 {
		caps = append(caps, types.ProviderCapability{
			Provider:     "twitter",
			Capabilities: []types.Capability{types.CapSearch, types.CapMetrics},
		})
	}

	caps = append(caps, types.ProviderCapability{
		Provider:     "oembed",
		Capabilities: []types.Capability{types.CapMetrics, types.CapMedia},
	})
	if ec.GetBool("headless", true) {
		caps = append(caps, types.ProviderCapability{
			Provider:     "headless",
			Capabilities: []types.Capability{types.CapMetrics, types.CapMedia},
		})
	}
	caps = append(caps, types.ProviderCapability{
		Provider:     "rawhtml",
		Capabilities: []types.Capability{types.CapMetrics, types.CapMedia},
	})

	return caps
}
