package client

import (
	"fmt"
	"time"

	"github.com/trendsift/viral-engine/api/types"
)

// SearchHandle tracks a submitted search until its manifest is ready.
type SearchHandle struct {
	UUID       string
	maxRetries int
	delay      time.Duration
	client     *Client
}

func (h *SearchHandle) SetMaxRetries(maxRetries int) {
	h.maxRetries = maxRetries
}

func (h *SearchHandle) SetDelay(delay time.Duration) {
	h.delay = delay
}

// Get polls the server until the manifest is ready or the retry budget is
// exhausted.
func (h *SearchHandle) Get() (*types.SessionManifest, error) {
	var lastErr error

	for retries := 0; retries < h.maxRetries; retries++ {
		manifest, done, err := h.client.GetManifest(h.UUID)
		if err != nil {
			lastErr = err
			time.Sleep(h.delay)
			continue
		}
		if done {
			return manifest, nil
		}
		time.Sleep(h.delay)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("max retries reached: %w", lastErr)
	}
	return nil, fmt.Errorf("max retries reached waiting for search %s", h.UUID)
}
