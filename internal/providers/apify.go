package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/credentials"
	"github.com/trendsift/viral-engine/pkg/client"
)

const instagramPostActor = "apify~instagram-post-scraper"

var instagramShortcodeRe = regexp.MustCompile(`/(?:p|reel)/([A-Za-z0-9_-]+)`)

// ActorRunner runs an Apify actor and returns its dataset items.
type ActorRunner interface {
	RunAndWait(ctx context.Context, actorID string, input interface{}, maxItems int) ([]json.RawMessage, error)
}

// ApifyMetricsClient resolves exact Instagram engagement through the
// instagram-post-scraper actor. Tokens rotate through a credential pool.
type ApifyMetricsClient struct {
	pool      *credentials.Pool
	newRunner func(token string) (ActorRunner, error)
}

func NewApifyMetricsClient(pool *credentials.Pool) *ApifyMetricsClient {
	return &ApifyMetricsClient{
		pool: pool,
		newRunner: func(token string) (ActorRunner, error) {
			return client.NewApifyClient(token)
		},
	}
}

// NewApifyMetricsClientWithRunner injects the actor runner. Used in tests.
func NewApifyMetricsClientWithRunner(pool *credentials.Pool, newRunner func(token string) (ActorRunner, error)) *ApifyMetricsClient {
	return &ApifyMetricsClient{pool: pool, newRunner: newRunner}
}

func (a *ApifyMetricsClient) Name() string { return "apify" }

func (a *ApifyMetricsClient) Capabilities() []types.Capability {
	return []types.Capability{types.CapMetrics}
}

// apifyInstagramPost is the dataset item shape the actor emits.
type apifyInstagramPost struct {
	LikesCount          int64  `json:"likesCount"`
	CommentsCount       int64  `json:"commentsCount"`
	VideoViewCount      int64  `json:"videoViewCount"`
	OwnerUsername       string `json:"ownerUsername"`
	OwnerFollowersCount int64  `json:"ownerFollowersCount"`
	Date                string `json:"date"`
	Caption             string `json:"caption"`
}

// FetchMetrics runs the post-scraper actor for an Instagram candidate and
// maps the first dataset item into an exact Engagement.
func (a *ApifyMetricsClient) FetchMetrics(ctx context.Context, candidate Candidate) (*Engagement, error) {
	if candidate.Platform != types.PlatformInstagram {
		return nil, NewError(a.Name(), KindUnavailable, fmt.Errorf("no actor for platform %q", candidate.Platform))
	}

	shortcode := instagramShortcodeFrom(candidate.URL)
	if shortcode == "" {
		return nil, NewError(a.Name(), KindParse, fmt.Errorf("no shortcode in %s", candidate.URL))
	}

	cred, err := a.pool.Acquire()
	if err != nil {
		return nil, NewError(a.Name(), KindUnavailable, err)
	}

	runner, err := a.newRunner(cred.ID)
	if err != nil {
		return nil, NewError(a.Name(), KindUnavailable, err)
	}

	input := map[string]interface{}{
		"instagramPostUrls": []string{fmt.Sprintf("https://www.instagram.com/p/%s/", shortcode)},
		"resultsLimit":      1,
	}

	items, err := runner.RunAndWait(ctx, instagramPostActor, input, 1)
	if err != nil {
		pe := Classify(a.Name(), err)
		if pe.Kind == KindRateLimited {
			a.pool.ReportFailure(cred)
		}
		return nil, pe
	}
	if len(items) == 0 {
		return nil, NewError(a.Name(), KindParse, fmt.Errorf("actor returned no items for %s", candidate.URL))
	}

	var post apifyInstagramPost
	if err := json.Unmarshal(items[0], &post); err != nil {
		return nil, NewError(a.Name(), KindParse, err)
	}

	a.pool.ReportSuccess(cred)
	return &Engagement{
		Views:      post.VideoViewCount,
		Likes:      post.LikesCount,
		Comments:   post.CommentsCount,
		Followers:  post.OwnerFollowersCount,
		Author:     post.OwnerUsername,
		PostDate:   post.Date,
		Confidence: ConfidenceExact,
		Source:     a.Name(),
	}, nil
}

func instagramShortcodeFrom(postURL string) string {
	m := instagramShortcodeRe.FindStringSubmatch(postURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
