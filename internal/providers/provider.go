// Package providers contains the clients the engine draws on for discovery,
// engagement metrics and media. Each provider exposes the capabilities it
// can serve; the aggregator and resolver pick providers by capability and
// never depend on a concrete client.
package providers

import (
	"context"

	"github.com/trendsift/viral-engine/api/types"
)

// Confidence tags how an engagement figure was obtained. Higher ranks are
// closer to ground truth.
type Confidence string

const (
	ConfidenceExact     Confidence = "exact"
	ConfidenceEmbed     Confidence = "embed"
	ConfidenceHeadless  Confidence = "headless-extracted"
	ConfidenceMetaTag   Confidence = "meta-tag-inferred"
	ConfidenceHeuristic Confidence = "heuristic-estimated"
)

// Rank orders confidences; exact is highest.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceExact:
		return 5
	case ConfidenceEmbed:
		return 4
	case ConfidenceHeadless:
		return 3
	case ConfidenceMetaTag:
		return 2
	case ConfidenceHeuristic:
		return 1
	default:
		return 0
	}
}

// Engagement is a normalized set of engagement counts for one post.
type Engagement struct {
	Views     int64
	Likes     int64
	Comments  int64
	Shares    int64
	Followers int64

	// Author and PostDate are enrichment some metric providers return
	// alongside the counts; empty when unknown.
	Author   string
	PostDate string

	Confidence Confidence
	Source     string
}

// Candidate is a normalized discovery hit. Raw provider shapes are
// converted to Candidates at the provider boundary and never cross
// package lines.
type Candidate struct {
	URL          string
	CanonicalURL string
	MediaURL     string
	Platform     string
	Title        string
	Snippet      string
	Author       string
	PostDate     string
	Hashtags     []string
}

// Searcher discovers candidates for a query variant.
type Searcher interface {
	Name() string
	Capabilities() []types.Capability
	Search(ctx context.Context, query string, maxResults int) ([]Candidate, error)
}

// MetricsFetcher resolves engagement counts for a single post URL.
type MetricsFetcher interface {
	Name() string
	Capabilities() []types.Capability
	FetchMetrics(ctx context.Context, candidate Candidate) (*Engagement, error)
}

// MediaExtractor recovers a downloadable media URL from a post page.
type MediaExtractor interface {
	Name() string
	Capabilities() []types.Capability
	ExtractMediaURL(ctx context.Context, postURL string) (string, error)
}
