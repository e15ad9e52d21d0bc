// Package headless drives a shared Chrome instance for the extraction
// paths that need a real DOM: engagement counters, media recovery and
// screenshots. One allocator serves the whole engine; every in-flight post
// gets its own tab context, because DOM state is not shareable.
package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config shapes the shared browser.
type Config struct {
	Headless     bool
	WindowWidth  int
	WindowHeight int
	UserAgent    string
}

// Browser owns the exec allocator. Close releases the Chrome process.
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewBrowser builds the allocator with the stealth flags social platforms
// expect from a real client.
func NewBrowser(ctx context.Context, cfg Config) *Browser {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1920, 1080
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		// navigator.webdriver is the first thing bot checks look at.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	return &Browser{allocCtx: allocCtx, allocCancel: allocCancel}
}

// NewTab opens an isolated tab. The tab inherits the parent's deadline and
// dies with it.
func (b *Browser) NewTab(parent context.Context) (context.Context, context.CancelFunc) {
	tabCtx, tabCancel := chromedp.NewContext(b.allocCtx)
	stop := context.AfterFunc(parent, tabCancel)

	if deadline, ok := parent.Deadline(); ok {
		deadlineCtx, deadlineCancel := context.WithDeadline(tabCtx, deadline)
		return deadlineCtx, func() {
			deadlineCancel()
			stop()
			tabCancel()
		}
	}
	return tabCtx, func() {
		stop()
		tabCancel()
	}
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.allocCancel()
}

// navigate loads a page and waits for content using a selector ladder, so a
// page lacking <main> still gets a chance through <article> or <body>.
func navigate(ctx context.Context, pageURL string) error {
	err := chromedp.Run(ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "en-US,en;q=0.9,pt-BR;q=0.8",
		}),
		chromedp.Navigate(pageURL),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}

	ladder := []struct {
		selector string
		timeout  time.Duration
	}{
		{"main", 6 * time.Second},
		{"article", 4 * time.Second},
		{"body", 2 * time.Second},
	}

	var lastErr error
	for _, step := range ladder {
		waitCtx, cancel := context.WithTimeout(ctx, step.timeout)
		lastErr = chromedp.Run(waitCtx, chromedp.WaitVisible(step.selector, chromedp.ByQuery))
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("no content became visible on %s: %w", pageURL, lastErr)
}

// chromeDOM implements the DOM interface. Every method expects a tab
// context produced by NewTab.
type chromeDOM struct{}

func (d *chromeDOM) ClickFirstLabel(ctx context.Context, labels []string) (bool, error) {
	encoded, err := json.Marshal(labels)
	if err != nil {
		return false, err
	}
	js := fmt.Sprintf(`(function(labels){
		const buttons = document.querySelectorAll('button, [role="button"]');
		for (const b of buttons) {
			const t = (b.textContent || '').trim();
			if (!t) continue;
			for (const label of labels) {
				if (t === label || t.startsWith(label)) {
					b.click();
					return true;
				}
			}
		}
		return false;
	})(%s)`, encoded)

	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

func (d *chromeDOM) ClickFirstSelector(ctx context.Context, selectors []string) (bool, error) {
	encoded, err := json.Marshal(selectors)
	if err != nil {
		return false, err
	}
	js := fmt.Sprintf(`(function(selectors){
		for (const sel of selectors) {
			const el = document.querySelector(sel);
			if (el && el.getClientRects().length > 0) {
				el.click();
				return true;
			}
		}
		return false;
	})(%s)`, encoded)

	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

func (d *chromeDOM) PressEscape(ctx context.Context) error {
	return chromedp.Run(ctx, chromedp.KeyEvent(kb.Escape))
}

func (d *chromeDOM) HasAny(ctx context.Context, selectors []string) (bool, error) {
	encoded, err := json.Marshal(selectors)
	if err != nil {
		return false, err
	}
	js := fmt.Sprintf(`(function(selectors){
		for (const sel of selectors) {
			const el = document.querySelector(sel);
			if (el && el.getClientRects().length > 0) return true;
		}
		return false;
	})(%s)`, encoded)

	var found bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &found)); err != nil {
		return false, err
	}
	return found, nil
}
