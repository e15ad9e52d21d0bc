package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/trendsift/viral-engine/api/types"
)

// Client represents a client to interact with the viral-engine API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	apiKey     string
}

// NewClient creates a new Client instance.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create options: %w", err)
	}

	return &Client{
		BaseURL:    baseURL,
		HTTPClient: options.HttpClient,
		apiKey:     options.APIKey,
	}, nil
}

// SubmitSearch submits a new search to the server and returns a handle that
// can poll for the session manifest.
func (c *Client) SubmitSearch(req types.SearchRequest) (*SearchHandle, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error marshaling search request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.BaseURL+"/search", bytes.NewBuffer(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("error creating POST request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error sending POST request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error: received status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	var jobResp types.JobResponse
	if err := json.Unmarshal(body, &jobResp); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}

	return &SearchHandle{UUID: jobResp.UID, client: c, maxRetries: 120, delay: 1 * time.Second}, nil
}

// GetManifest retrieves the manifest of a finished search. The second return
// value reports whether the search has finished.
func (c *Client) GetManifest(searchUUID string) (*types.SessionManifest, bool, error) {
	httpReq, err := http.NewRequest(http.MethodGet, c.BaseURL+"/search/"+searchUUID, nil)
	if err != nil {
		return nil, false, fmt.Errorf("error creating GET request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, false, fmt.Errorf("error sending GET request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, false, nil
	case http.StatusNotFound:
		return nil, false, fmt.Errorf("search not found")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respErr := types.JobError{}
		if err := json.Unmarshal(body, &respErr); err == nil && respErr.Error != "" {
			return nil, true, fmt.Errorf("error: %s", respErr.Error)
		}
		return nil, true, fmt.Errorf("error: received status code %d", resp.StatusCode)
	}

	manifest := &types.SessionManifest{}
	if err := json.Unmarshal(body, manifest); err != nil {
		return nil, true, fmt.Errorf("error unmarshaling manifest: %w", err)
	}

	return manifest, true, nil
}
