package verifiers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const rawHTMLProbeURL = "https://example.com"

// RawHTMLVerifier verifies the raw HTML fetcher has outbound connectivity.
type RawHTMLVerifier struct {
	Client    *http.Client
	ProbeURL  string
	UserAgent string
}

// NewRawHTMLVerifier creates a new RawHTMLVerifier. The user agent should
// match the one the fetcher presents, so the probe sees what it would see.
func NewRawHTMLVerifier(userAgent string) *RawHTMLVerifier {
	return &RawHTMLVerifier{
		Client:    &http.Client{Timeout: 10 * time.Second},
		ProbeURL:  rawHTMLProbeURL,
		UserAgent: userAgent,
	}
}

// Verify performs a lightweight check to ensure network connectivity.
func (v *RawHTMLVerifier) Verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, v.ProbeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	if v.UserAgent != "" {
		req.Header.Set("User-Agent", v.UserAgent)
	}

	resp, err := v.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connectivity probe returned status %d", resp.StatusCode)
	}
	return nil
}
