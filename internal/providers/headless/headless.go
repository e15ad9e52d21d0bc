package headless

import (
	"context"
	"errors"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/providers"
)

// Name identifies this provider in logs and engagement sources.
const Name = "headless"

// Client extracts engagement counts, media URLs and screenshots by rendering
// the post in Chrome. It needs no credentials; its cost is latency, so the
// resolver consults it after the API-backed tiers.
type Client struct {
	browser *Browser
}

// NewClient wraps a shared browser.
func NewClient(browser *Browser) *Client {
	return &Client{browser: browser}
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() []types.Capability {
	return []types.Capability{types.CapMetrics, types.CapMedia}
}

// FetchMetrics renders the post, clears any login or cookie overlays, then
// reads counters out of the live DOM.
func (c *Client) FetchMetrics(ctx context.Context, candidate providers.Candidate) (*providers.Engagement, error) {
	tabCtx, cancel := c.browser.NewTab(ctx)
	defer cancel()

	if err := navigate(tabCtx, candidate.URL); err != nil {
		return nil, providers.Classify(Name, err)
	}

	dom := &chromeDOM{}
	DismissPopups(tabCtx, dom, candidate.Platform)

	raw, err := extractCounters(tabCtx, candidate.Platform)
	if err != nil {
		return nil, providers.Classify(Name, err)
	}

	engagement, ok := engagementFromCounters(raw)
	if !ok {
		return nil, providers.NewError(Name, providers.KindParse,
			errors.New("page rendered but no engagement counters were visible"))
	}
	engagement.Confidence = providers.ConfidenceHeadless
	engagement.Source = Name
	return engagement, nil
}

// ExtractMediaURL renders the post and recovers a media URL from og:image or
// the largest CDN-hosted image.
func (c *Client) ExtractMediaURL(ctx context.Context, postURL string) (string, error) {
	tabCtx, cancel := c.browser.NewTab(ctx)
	defer cancel()

	if err := navigate(tabCtx, postURL); err != nil {
		return "", providers.Classify(Name, err)
	}

	dom := &chromeDOM{}
	DismissPopups(tabCtx, dom, providers.PlatformForURL(postURL))

	var mediaURL string
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(mediaURLJS, &mediaURL)); err != nil {
		return "", providers.Classify(Name, err)
	}
	if mediaURL == "" {
		return "", providers.NewError(Name, providers.KindParse,
			errors.New("no media URL visible on page"))
	}
	return mediaURL, nil
}

// Screenshot captures the post as a PNG. Instagram posts get the article
// element alone when it is present; everything else gets the viewport.
func (c *Client) Screenshot(ctx context.Context, postURL string) ([]byte, error) {
	tabCtx, cancel := c.browser.NewTab(ctx)
	defer cancel()

	if err := navigate(tabCtx, postURL); err != nil {
		return nil, providers.Classify(Name, err)
	}

	platform := providers.PlatformForURL(postURL)
	dom := &chromeDOM{}
	DismissPopups(tabCtx, dom, platform)

	var shot []byte
	if platform == types.PlatformInstagram {
		err := chromedp.Run(tabCtx, chromedp.Screenshot("article", &shot, chromedp.NodeVisible, chromedp.ByQuery))
		if err == nil && len(shot) > 0 {
			return shot, nil
		}
		logrus.Debugf("article screenshot failed for %s, capturing viewport: %v", postURL, err)
	}
	if err := chromedp.Run(tabCtx, chromedp.CaptureScreenshot(&shot)); err != nil {
		return nil, providers.Classify(Name, err)
	}
	return shot, nil
}
