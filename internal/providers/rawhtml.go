package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff"
	"github.com/gocolly/colly"
	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/api/types"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// KeywordBonus raises the inferred engagement when any of its words appear
// in a post description.
type KeywordBonus struct {
	Words []string
	Bonus float64
}

// DefaultKeywordBonuses mirrors the signal words promotional posts carry.
func DefaultKeywordBonuses() []KeywordBonus {
	return []KeywordBonus{
		{Words: []string{"course", "class", "masterclass", "curso", "aula"}, Bonus: 25},
		{Words: []string{"free", "giveaway", "gratis", "gratuito"}, Bonus: 30},
	}
}

// RawHTMLClient reads public pages without a browser: Open Graph meta tags
// for engagement inference and og:image (or a CDN-hosted <img>) for media
// recovery. It needs no credentials, so it is always registered.
type RawHTMLClient struct {
	UserAgent string
	Timeout   time.Duration

	bonuses []KeywordBonus
}

func NewRawHTMLClient(timeout time.Duration, bonuses []KeywordBonus) *RawHTMLClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if bonuses == nil {
		bonuses = DefaultKeywordBonuses()
	}
	return &RawHTMLClient{
		UserAgent: defaultUserAgent,
		Timeout:   timeout,
		bonuses:   bonuses,
	}
}

func (r *RawHTMLClient) Name() string { return "rawhtml" }

func (r *RawHTMLClient) Capabilities() []types.Capability {
	return []types.Capability{types.CapMetrics, types.CapMedia}
}

// pageMeta is what one page fetch yields.
type pageMeta struct {
	Title       string
	Description string
	Image       string
	Body        []byte
}

// FetchMetrics infers Facebook engagement from meta tags. The page gives no
// counts, so a base figure plus keyword bonuses stands in, scaled into
// plausible counts.
func (r *RawHTMLClient) FetchMetrics(ctx context.Context, candidate Candidate) (*Engagement, error) {
	if candidate.Platform != types.PlatformFacebook {
		return nil, NewError(r.Name(), KindUnavailable, fmt.Errorf("no meta inference for platform %q", candidate.Platform))
	}

	meta, err := r.fetchPage(ctx, candidate.URL)
	if err != nil {
		return nil, err
	}
	if meta.Title == "" && meta.Description == "" {
		return nil, NewError(r.Name(), KindParse, fmt.Errorf("no meta tags on %s", candidate.URL))
	}

	base := 25.0
	desc := strings.ToLower(meta.Description)
	for _, kb := range r.bonuses {
		for _, word := range kb.Words {
			if strings.Contains(desc, word) {
				base += kb.Bonus
				break
			}
		}
	}

	// Page titles read "Author - Post text".
	author := ""
	if idx := strings.Index(meta.Title, " - "); idx > 0 {
		author = meta.Title[:idx]
	}

	return &Engagement{
		Views:      int64(base * 20),
		Likes:      int64(base * 2),
		Comments:   int64(base * 0.4),
		Shares:     int64(base * 0.8),
		Followers:  5000,
		Author:     author,
		Confidence: ConfidenceMetaTag,
		Source:     r.Name(),
	}, nil
}

// ExtractMediaURL recovers the real media URL from a post page: og:image
// first, then any CDN-hosted image in the body.
func (r *RawHTMLClient) ExtractMediaURL(ctx context.Context, postURL string) (string, error) {
	meta, err := r.fetchPage(ctx, postURL)
	if err != nil {
		return "", err
	}
	if meta.Image != "" {
		return meta.Image, nil
	}
	if src := scanBodyForMedia(meta.Body); src != "" {
		return src, nil
	}
	return "", NewError(r.Name(), KindParse, fmt.Errorf("no media URL found on %s", postURL))
}

func (r *RawHTMLClient) fetchPage(ctx context.Context, pageURL string) (*pageMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(r.Name(), err)
	}

	meta := &pageMeta{}
	c := colly.NewCollector(
		colly.UserAgent(r.UserAgent),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(r.Timeout)

	c.OnHTML(`meta[property="og:title"]`, func(e *colly.HTMLElement) {
		meta.Title = e.Attr("content")
	})
	c.OnHTML(`meta[property="og:description"]`, func(e *colly.HTMLElement) {
		meta.Description = e.Attr("content")
	})
	c.OnHTML(`meta[property="og:image"]`, func(e *colly.HTMLElement) {
		if meta.Image == "" {
			meta.Image = e.Attr("content")
		}
	})
	c.OnHTML(`meta[name="twitter:image"]`, func(e *colly.HTMLElement) {
		if meta.Image == "" {
			meta.Image = e.Attr("content")
		}
	})
	c.OnResponse(func(resp *colly.Response) {
		meta.Body = resp.Body
	})

	backoffStrategy := backoff.NewExponentialBackOff()
	retries := 0
	var requestErr error
	c.OnError(func(resp *colly.Response, err error) {
		if resp.StatusCode == http.StatusTooManyRequests && retries < 2 {
			retries++
			nextDelay := backoffStrategy.NextBackOff()
			if retryAfter, convErr := strconv.Atoi(resp.Headers.Get("Retry-After")); convErr == nil && retryAfter > 0 {
				nextDelay = time.Duration(retryAfter) * time.Second
			}
			logrus.Warnf("Rate limited fetching %s, retrying after %v", pageURL, nextDelay)
			timer := time.NewTimer(nextDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				requestErr = Classify(r.Name(), ctx.Err())
				return
			}
			_ = resp.Request.Retry()
			return
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			requestErr = NewError(r.Name(), KindRateLimited, err)
			return
		}
		requestErr = err
	})

	if err := c.Visit(pageURL); err != nil && requestErr == nil {
		requestErr = err
	}
	if requestErr != nil {
		var pe *ProviderError
		if errors.As(requestErr, &pe) {
			return nil, pe
		}
		return nil, Classify(r.Name(), requestErr)
	}
	return meta, nil
}

// scanBodyForMedia walks the page body for a CDN-hosted image.
func scanBodyForMedia(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var found string
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		if !ok {
			return true
		}
		if LikelyMediaHost(src) {
			found = src
			return false
		}
		return true
	})
	return found
}
