package verifiers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	oembedProbeURL = "https://www.youtube.com/oembed"
	// The first video ever uploaded to YouTube; it is not going anywhere.
	oembedProbePost = "https://www.youtube.com/watch?v=jNQXAC9IVRw"
)

// OEmbedVerifier verifies the public oEmbed surface answers for a
// well-known post.
type OEmbedVerifier struct {
	Client   *http.Client
	ProbeURL string
}

// NewOEmbedVerifier creates a new OEmbedVerifier.
func NewOEmbedVerifier() *OEmbedVerifier {
	return &OEmbedVerifier{
		Client:   &http.Client{Timeout: 10 * time.Second},
		ProbeURL: oembedProbeURL,
	}
}

// Verify fetches the embed document for the probe post.
func (v *OEmbedVerifier) Verify(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s?url=%s&format=json", v.ProbeURL, url.QueryEscape(oembedProbePost))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := v.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oembed probe returned status %d", resp.StatusCode)
	}

	var doc struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("failed to parse probe response: %w", err)
	}
	if doc.Title == "" {
		return fmt.Errorf("oembed probe response has no title")
	}
	return nil
}
