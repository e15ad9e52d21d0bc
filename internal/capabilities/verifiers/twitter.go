package verifiers

import (
	"context"
	"fmt"

	"github.com/trendsift/viral-engine/internal/providers"
)

// TwitterVerifier verifies the account-based twitter scraper can still
// search. Login state lives in the client's credential pool, so the probe
// exercises the same path a real search would.
type TwitterVerifier struct {
	Searcher providers.Searcher
}

// NewTwitterVerifier creates a new TwitterVerifier.
func NewTwitterVerifier(searcher providers.Searcher) *TwitterVerifier {
	return &TwitterVerifier{Searcher: searcher}
}

// Verify attempts a minimal one-result search.
func (v *TwitterVerifier) Verify(ctx context.Context) error {
	if v.Searcher == nil {
		return fmt.Errorf("twitter verifier not initialized")
	}
	if _, err := v.Searcher.Search(ctx, probeQuery, 1); err != nil {
		return err
	}
	return nil
}
