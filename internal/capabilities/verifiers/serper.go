// Package verifiers holds lightweight upstream probes. Each one answers a
// single question: if a search ran right now, could this provider serve?
package verifiers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const serperProbeURL = "https://google.serper.dev/search"

// probeQuery is deliberately generic; the probes only care that the
// upstream answers, not what it answers with.
const probeQuery = "trending"

// SerperVerifier verifies the serper.dev search API accepts one of the
// configured keys.
type SerperVerifier struct {
	Client   *http.Client
	ProbeURL string
	apiKey   string
}

// NewSerperVerifier creates a new SerperVerifier using the first key, the
// same one the rotating pool would hand out first.
func NewSerperVerifier(apiKeys []string) (*SerperVerifier, error) {
	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("no serper api keys provided for verification")
	}
	return &SerperVerifier{
		Client:   &http.Client{Timeout: 10 * time.Second},
		ProbeURL: serperProbeURL,
		apiKey:   apiKeys[0],
	}, nil
}

// Verify runs a one-result search, the cheapest call the API accepts.
func (v *SerperVerifier) Verify(ctx context.Context) error {
	body, err := json.Marshal(map[string]any{"q": probeQuery, "num": 1})
	if err != nil {
		return fmt.Errorf("failed to marshal probe body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.ProbeURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	req.Header.Set("X-API-KEY", v.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("serper probe returned status %d", resp.StatusCode)
	}
	return nil
}
