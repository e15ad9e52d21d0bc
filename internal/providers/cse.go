package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/credentials"
)

const cseBaseURL = "https://www.googleapis.com/customsearch/v1"

// CSEHit is the raw shape of one Google Custom Search item.
type CSEHit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Image   struct {
		ContextLink string `json:"contextLink"`
	} `json:"image"`
}

type cseResponse struct {
	Items []CSEHit `json:"items"`
}

// CSEClient is the backup discovery provider, consulted when the primary
// searcher comes back thin. Credentials pair an API key with a cx engine id.
type CSEClient struct {
	BaseURL    string
	HTTPClient *http.Client

	pool         *credentials.Pool
	parseRetries int
}

func NewCSEClient(pool *credentials.Pool, httpClient *http.Client, parseRetries int) *CSEClient {
	return &CSEClient{
		BaseURL:      cseBaseURL,
		HTTPClient:   httpClient,
		pool:         pool,
		parseRetries: parseRetries,
	}
}

func (c *CSEClient) Name() string { return "google-cse" }

func (c *CSEClient) Capabilities() []types.Capability {
	return []types.Capability{types.CapSearch}
}

// Search runs a web search through the custom search engine.
func (c *CSEClient) Search(ctx context.Context, query string, maxResults int) ([]Candidate, error) {
	return c.search(ctx, query, maxResults, false)
}

// SearchImages runs an image search; each hit links the image itself plus
// the page hosting it.
func (c *CSEClient) SearchImages(ctx context.Context, query string, maxResults int) ([]Candidate, error) {
	return c.search(ctx, query, maxResults, true)
}

func (c *CSEClient) search(ctx context.Context, query string, maxResults int, imageSearch bool) ([]Candidate, error) {
	// The API rejects num > 10.
	if maxResults > 10 {
		maxResults = 10
	}

	var candidates []Candidate
	err := RetryParse(ctx, c.parseRetries, func() error {
		cred, err := c.pool.Acquire()
		if err != nil {
			return NewError(c.Name(), KindUnavailable, err)
		}

		params := url.Values{}
		params.Set("key", cred.ID)
		params.Set("cx", cred.Secret)
		params.Set("q", query)
		params.Set("num", strconv.Itoa(maxResults))
		params.Set("safe", "off")
		if imageSearch {
			params.Set("searchType", "image")
			params.Set("imgSize", "large")
			params.Set("imgType", "photo")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
		if err != nil {
			return NewError(c.Name(), KindUnavailable, err)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return Classify(c.Name(), err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			c.pool.ReportFailure(cred)
			logrus.Warnf("Google CSE quota exceeded, cooling the key down")
			return NewError(c.Name(), KindRateLimited, fmt.Errorf("google cse returned 429"))
		case resp.StatusCode != http.StatusOK:
			return NewError(c.Name(), KindUnavailable, fmt.Errorf("google cse returned status %d", resp.StatusCode))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return Classify(c.Name(), err)
		}
		parsed, err := DecodeWithFallback(c.Name(), data, looseCSE)
		if err != nil {
			return err
		}

		c.pool.ReportSuccess(cred)
		candidates = normalizeCSEHits(parsed.Items, imageSearch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// looseCSE pulls items out of a response whose typed decode failed.
func looseCSE(obj map[string]any) (cseResponse, bool) {
	items := SliceAt(obj, "items")
	hits := make([]CSEHit, 0, len(items))
	for _, item := range items {
		hit := CSEHit{
			Title:   StringAt(item, "title"),
			Link:    StringAt(item, "link"),
			Snippet: StringAt(item, "snippet"),
		}
		hit.Image.ContextLink = StringAt(item, "image", "contextLink")
		if hit.Link != "" || hit.Image.ContextLink != "" {
			hits = append(hits, hit)
		}
	}
	if len(hits) == 0 {
		return cseResponse{}, false
	}
	return cseResponse{Items: hits}, true
}

func normalizeCSEHits(hits []CSEHit, imageSearch bool) []Candidate {
	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		candidate := Candidate{
			Title:    hit.Title,
			Snippet:  hit.Snippet,
			Hashtags: HashtagsFrom(hit.Title + " " + hit.Snippet),
		}
		if imageSearch {
			// Image hits put the file in link and the post in contextLink.
			candidate.URL = hit.Image.ContextLink
			candidate.MediaURL = hit.Link
		} else {
			candidate.URL = hit.Link
		}
		if candidate.URL == "" {
			continue
		}
		candidate.Platform = PlatformForURL(candidate.URL)
		candidates = append(candidates, candidate)
	}
	return candidates
}
