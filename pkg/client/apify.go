package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

const apifyBaseURL = "https://api.apify.com/v2"

// Actor run terminal states, as reported by the Apify API.
const (
	ActorRunSucceeded = "SUCCEEDED"
	ActorRunFailed    = "FAILED"
	ActorRunTimedOut  = "TIMED-OUT"
	ActorRunAborted   = "ABORTED"
)

// ApifyClient represents a client for the Apify API.
type ApifyClient struct {
	apiToken   string
	baseUrl    string
	httpClient *http.Client
}

// ActorRunResponse represents the response from running an actor.
type ActorRunResponse struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetId string `json:"defaultDatasetId"`
	} `json:"data"`
}

// NewApifyClient creates a new Apify client with functional options.
func NewApifyClient(apiToken string, opts ...Option) (*ApifyClient, error) {
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create options: %w", err)
	}

	return &ApifyClient{
		apiToken:   apiToken,
		baseUrl:    apifyBaseURL,
		httpClient: options.HttpClient,
	}, nil
}

// RunActor starts an actor run with the given input.
func (c *ApifyClient) RunActor(ctx context.Context, actorId string, input interface{}) (*ActorRunResponse, error) {
	url := fmt.Sprintf("%s/acts/%s/runs?token=%s", c.baseUrl, actorId, c.apiToken)
	logrus.Debugf("Running actor %s", actorId)

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("error marshaling actor input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(inputJSON))
	if err != nil {
		return nil, fmt.Errorf("error creating POST request: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status code %d: %s", status, string(body))
	}

	var runResp ActorRunResponse
	if err := json.Unmarshal(body, &runResp); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	logrus.Debugf("Actor run started with ID: %s", runResp.Data.ID)
	return &runResp, nil
}

// GetRun gets the status of an actor run.
func (c *ApifyClient) GetRun(ctx context.Context, runId string) (*ActorRunResponse, error) {
	url := fmt.Sprintf("%s/actor-runs/%s?token=%s", c.baseUrl, runId, c.apiToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GET request: %w", err)
	}

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", status, string(body))
	}

	var runResp ActorRunResponse
	if err := json.Unmarshal(body, &runResp); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	return &runResp, nil
}

// DatasetItems gets items from a dataset with pagination. The Apify API
// returns a bare JSON array for this endpoint.
func (c *ApifyClient) DatasetItems(ctx context.Context, datasetId string, offset, limit int) ([]json.RawMessage, error) {
	url := fmt.Sprintf("%s/datasets/%s/items?token=%s&offset=%d&limit=%d",
		c.baseUrl, datasetId, c.apiToken, offset, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GET request: %w", err)
	}

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", status, string(body))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	logrus.Debugf("Retrieved %d items from dataset %s", len(items), datasetId)
	return items, nil
}

// RunAndWait starts an actor run and polls with exponential backoff until it
// reaches a terminal state or the context expires, then returns the default
// dataset items.
func (c *ApifyClient) RunAndWait(ctx context.Context, actorId string, input interface{}, maxItems int) ([]json.RawMessage, error) {
	run, err := c.RunActor(ctx, actorId, input)
	if err != nil {
		return nil, err
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = 500 * time.Millisecond
	strategy.MaxInterval = 5 * time.Second
	strategy.MaxElapsedTime = 0 // the context bounds the wait

	status := run.Data.Status
	for status != ActorRunSucceeded {
		switch status {
		case ActorRunFailed, ActorRunTimedOut, ActorRunAborted:
			return nil, fmt.Errorf("actor run %s ended with status %s", run.Data.ID, status)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for actor run %s: %w", run.Data.ID, ctx.Err())
		case <-time.After(strategy.NextBackOff()):
		}

		current, err := c.GetRun(ctx, run.Data.ID)
		if err != nil {
			return nil, err
		}
		status = current.Data.Status
	}

	return c.DatasetItems(ctx, run.Data.DefaultDatasetId, 0, maxItems)
}

// ValidateApiKey tests if the API token is valid by making a request to
// /users/me. This endpoint doesn't consume any actor runs or quotas.
func (c *ApifyClient) ValidateApiKey(ctx context.Context) error {
	url := fmt.Sprintf("%s/users/me?token=%s", c.baseUrl, c.apiToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating auth test request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making auth test request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("invalid Apify API token")
	case http.StatusForbidden:
		return fmt.Errorf("insufficient permissions for Apify API token")
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limit exceeded")
	default:
		return fmt.Errorf("Apify API auth test failed with status: %d", resp.StatusCode)
	}
}

func (c *ApifyClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("error making %s request: %w", req.Method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("error reading response body: %w", err)
	}

	return body, resp.StatusCode, nil
}
