package capabilities

import (
	"context"

	"github.com/trendsift/viral-engine/internal/capabilities/health"
)

// Verifier probes a single provider's upstream. A nil return means the
// upstream answered and the provider can serve.
type Verifier interface {
	Verify(ctx context.Context) error
}

// ProviderVerifier feeds probe outcomes into the health tracker.
type ProviderVerifier struct {
	tracker   health.ProviderHealthTracker
	verifiers map[string]Verifier
}

// NewProviderVerifier creates a new instance of the ProviderVerifier.
func NewProviderVerifier(tracker health.ProviderHealthTracker) *ProviderVerifier {
	return &ProviderVerifier{
		tracker:   tracker,
		verifiers: make(map[string]Verifier),
	}
}

// RegisterVerifier adds a probe for a specific provider.
func (v *ProviderVerifier) RegisterVerifier(provider string, verifier Verifier) {
	v.verifiers[provider] = verifier
}

// VerifyProviders runs the registered probes. A provider with no probe is
// marked healthy so the snapshot lists every detected provider; its real
// state comes from runtime outcomes.
func (v *ProviderVerifier) VerifyProviders(ctx context.Context, providers []string) {
	for _, p := range providers {
		verifier, supported := v.verifiers[p]
		if !supported {
			v.tracker.ReportSuccess(p)
			continue
		}
		if err := verifier.Verify(ctx); err != nil {
			v.tracker.ReportFailure(p, err)
			continue
		}
		v.tracker.ReportSuccess(p)
	}
}
