package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/credentials"
)

const (
	serperSearchURL = "https://google.serper.dev/search"
	serperImagesURL = "https://google.serper.dev/images"
)

// SerperHit is the raw shape of one serper.dev result.
type SerperHit struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Date     string `json:"date,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type serperResponse struct {
	Organic []SerperHit `json:"organic"`
	Images  []SerperHit `json:"images"`
}

// SerperClient is the primary discovery provider. Keys rotate through a
// credential pool; a 429 cools the key that hit the limit.
type SerperClient struct {
	SearchURL  string
	ImagesURL  string
	HTTPClient *http.Client

	pool         *credentials.Pool
	parseRetries int
}

func NewSerperClient(pool *credentials.Pool, httpClient *http.Client, parseRetries int) *SerperClient {
	return &SerperClient{
		SearchURL:    serperSearchURL,
		ImagesURL:    serperImagesURL,
		HTTPClient:   httpClient,
		pool:         pool,
		parseRetries: parseRetries,
	}
}

func (s *SerperClient) Name() string { return "serper" }

func (s *SerperClient) Capabilities() []types.Capability {
	return []types.Capability{types.CapSearch}
}

// Search runs an organic web search and normalizes the hits.
func (s *SerperClient) Search(ctx context.Context, query string, maxResults int) ([]Candidate, error) {
	payload := map[string]any{"q": query, "num": maxResults}
	return s.run(ctx, s.SearchURL, payload, "organic", false)
}

// SearchImages runs an image search, which carries a direct media URL per
// hit alongside the hosting page.
func (s *SerperClient) SearchImages(ctx context.Context, query string, maxResults int) ([]Candidate, error) {
	payload := map[string]any{
		"q":       query,
		"num":     maxResults,
		"safe":    "off",
		"imgSize": "large",
		"imgType": "photo",
	}
	return s.run(ctx, s.ImagesURL, payload, "images", true)
}

func (s *SerperClient) run(ctx context.Context, endpoint string, payload map[string]any, listKey string, imageSearch bool) ([]Candidate, error) {
	var candidates []Candidate
	err := RetryParse(ctx, s.parseRetries, func() error {
		data, err := s.post(ctx, endpoint, payload)
		if err != nil {
			return err
		}
		resp, err := DecodeWithFallback(s.Name(), data, looseSerper(listKey))
		if err != nil {
			return err
		}
		hits := resp.Organic
		if imageSearch {
			hits = resp.Images
		}
		candidates = normalizeSerperHits(hits, imageSearch)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (s *SerperClient) post(ctx context.Context, endpoint string, payload map[string]any) ([]byte, error) {
	cred, err := s.pool.Acquire()
	if err != nil {
		return nil, NewError(s.Name(), KindUnavailable, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(s.Name(), KindParse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(s.Name(), KindUnavailable, err)
	}
	req.Header.Set("X-API-KEY", cred.ID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, Classify(s.Name(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		s.pool.ReportFailure(cred)
		logrus.Warnf("Serper key rate limited, cooling it down")
		return nil, NewError(s.Name(), KindRateLimited, fmt.Errorf("serper returned 429"))
	case resp.StatusCode != http.StatusOK:
		return nil, NewError(s.Name(), KindUnavailable, fmt.Errorf("serper returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(s.Name(), err)
	}

	s.pool.ReportSuccess(cred)
	return data, nil
}

// looseSerper pulls hits out of a response whose typed decode failed.
func looseSerper(listKey string) func(map[string]any) (serperResponse, bool) {
	return func(obj map[string]any) (serperResponse, bool) {
		items := SliceAt(obj, listKey)
		hits := make([]SerperHit, 0, len(items))
		for _, item := range items {
			hit := SerperHit{
				Title:    StringAt(item, "title"),
				Link:     StringAt(item, "link"),
				Snippet:  StringAt(item, "snippet"),
				Date:     StringAt(item, "date"),
				ImageURL: StringAt(item, "imageUrl"),
			}
			if hit.Link != "" {
				hits = append(hits, hit)
			}
		}
		if len(hits) == 0 {
			return serperResponse{}, false
		}
		if listKey == "images" {
			return serperResponse{Images: hits}, true
		}
		return serperResponse{Organic: hits}, true
	}
}

func normalizeSerperHits(hits []SerperHit, imageSearch bool) []Candidate {
	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		if hit.Link == "" {
			continue
		}
		candidate := Candidate{
			URL:      hit.Link,
			Platform: PlatformForURL(hit.Link),
			Title:    hit.Title,
			Snippet:  hit.Snippet,
			PostDate: hit.Date,
			Hashtags: HashtagsFrom(hit.Title + " " + hit.Snippet),
		}
		if imageSearch {
			candidate.MediaURL = hit.ImageURL
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}
