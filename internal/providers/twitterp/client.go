// Package twitterp adapts the account-based twitter scraper to the provider
// interfaces. Accounts rotate through a credential pool; a rate-limited
// account cools down while the others keep serving.
package twitterp

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	twitterscraper "github.com/imperatrona/twitter-scraper"
	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/credentials"
	"github.com/trendsift/viral-engine/internal/providers"
)

// Name identifies this provider in errors, stats and capability listings.
const Name = "twitter"

var tweetIDRe = regexp.MustCompile(`/status(?:es)?/(\d+)`)

// Client serves discovery and exact metrics for Twitter posts.
type Client struct {
	pool                  *credentials.Pool
	baseDir               string
	skipLoginVerification bool

	mu       sync.Mutex
	scrapers map[string]*twitterscraper.Scraper
}

func New(pool *credentials.Pool, baseDir string, skipLoginVerification bool) *Client {
	return &Client{
		pool:                  pool,
		baseDir:               baseDir,
		skipLoginVerification: skipLoginVerification,
		scrapers:              make(map[string]*twitterscraper.Scraper),
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() []types.Capability {
	return []types.Capability{types.CapSearch, types.CapMetrics}
}

// Search runs a latest-mode tweet search and normalizes the results.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]providers.Candidate, error) {
	scraper, cred, err := c.authenticatedScraper()
	if err != nil {
		return nil, providers.NewError(Name, providers.KindUnavailable, err)
	}

	scraper.SetSearchMode(twitterscraper.SearchLatest)

	candidates := make([]providers.Candidate, 0, maxResults)
	for tweet := range scraper.SearchTweets(ctx, query, maxResults) {
		if tweet.Error != nil {
			return nil, c.handleError(tweet.Error, cred)
		}
		candidates = append(candidates, candidateFromTweet(&tweet.Tweet))
	}

	c.pool.ReportSuccess(cred)
	return candidates, nil
}

// FetchMetrics resolves exact counts for one tweet, enriched with the
// author's follower count when the profile lookup succeeds.
func (c *Client) FetchMetrics(ctx context.Context, candidate providers.Candidate) (*providers.Engagement, error) {
	tweetID := tweetIDFrom(candidate.URL)
	if tweetID == "" {
		return nil, providers.NewError(Name, providers.KindParse, fmt.Errorf("no tweet id in %s", candidate.URL))
	}

	scraper, cred, err := c.authenticatedScraper()
	if err != nil {
		return nil, providers.NewError(Name, providers.KindUnavailable, err)
	}

	tweet, err := scraper.GetTweet(tweetID)
	if err != nil {
		return nil, c.handleError(err, cred)
	}

	engagement := engagementFromTweet(tweet)
	if tweet.Username != "" {
		profile, err := scraper.GetProfile(tweet.Username)
		if err != nil {
			logrus.Debugf("Profile lookup failed for %s: %v", tweet.Username, err)
		} else {
			engagement.Followers = int64(profile.FollowersCount)
		}
	}

	c.pool.ReportSuccess(cred)
	return engagement, nil
}

// handleError cools the account on a rate limit and classifies everything
// else.
func (c *Client) handleError(err error, cred *credentials.Credential) error {
	if strings.Contains(err.Error(), "Rate limit exceeded") {
		c.pool.ReportFailure(cred)
		logrus.Warnf("rate limited: %s", cred.ID)
		return providers.NewError(Name, providers.KindRateLimited, err)
	}
	return providers.Classify(Name, err)
}

func candidateFromTweet(tweet *twitterscraper.Tweet) providers.Candidate {
	postURL := tweet.PermanentURL
	if postURL == "" && tweet.Username != "" && tweet.ID != "" {
		postURL = fmt.Sprintf("https://twitter.com/%s/status/%s", tweet.Username, tweet.ID)
	}

	candidate := providers.Candidate{
		URL:      postURL,
		Platform: types.PlatformTwitter,
		Title:    truncate(tweet.Text, 80),
		Snippet:  tweet.Text,
		Author:   tweet.Username,
		Hashtags: lowerAll(tweet.Hashtags),
	}
	if tweet.Timestamp > 0 {
		candidate.PostDate = time.Unix(tweet.Timestamp, 0).UTC().Format(time.RFC3339)
	}
	if len(tweet.Photos) > 0 {
		candidate.MediaURL = tweet.Photos[0].URL
	}
	return candidate
}

func engagementFromTweet(tweet *twitterscraper.Tweet) *providers.Engagement {
	engagement := &providers.Engagement{
		Views:      int64(tweet.Views),
		Likes:      int64(tweet.Likes),
		Comments:   int64(tweet.Replies),
		Shares:     int64(tweet.Retweets),
		Author:     tweet.Username,
		Confidence: providers.ConfidenceExact,
		Source:     Name,
	}
	if tweet.Timestamp > 0 {
		engagement.PostDate = time.Unix(tweet.Timestamp, 0).UTC().Format(time.RFC3339)
	}
	return engagement
}

func tweetIDFrom(postURL string) string {
	m := tweetIDRe.FindStringSubmatch(postURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func lowerAll(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = strings.ToLower(tag)
	}
	return out
}
