// Package media obtains a local media file for a discovered post. It walks
// an ordered ladder per post: download the candidate media URL, re-extract a
// real media URL from the post page and download that, and finally capture a
// screenshot. Every rung can fail without consequence; a post with no media
// stays in the result set.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/internal/providers"
)

const (
	minAssetBytes      = 1 << 10
	maxAssetBytes      = 15 << 20
	minScreenshotBytes = 5 << 10

	defaultDownloadTimeout = 30 * time.Second

	// downloadUserAgent matches what CDNs expect from a browser; several
	// of them refuse default Go client strings outright.
	downloadUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Kind tells an image file apart from a page screenshot.
type Kind string

const (
	KindImage      Kind = "image"
	KindScreenshot Kind = "screenshot"
)

// Asset is one media file written to disk for a post. SourceURL is the URL
// the bytes actually came from, which differs from the candidate media URL
// when the ladder had to re-extract; it is empty for screenshots.
type Asset struct {
	Path        string
	Kind        Kind
	ContentType string
	SizeBytes   int64
	SourceURL   string
}

// Screenshotter captures a rendered post as a PNG.
type Screenshotter interface {
	Screenshot(ctx context.Context, postURL string) ([]byte, error)
}

// Config locates the output directories and bounds each asset.
type Config struct {
	ImagesDir      string
	ScreenshotsDir string
	Timeout        time.Duration

	// MinBytes and MaxBytes bound every asset no matter which rung
	// produced it; MinScreenshotBytes is the higher floor a capture must
	// clear before the shared bounds apply. Zero takes the default.
	MinBytes           int64
	MaxBytes           int64
	MinScreenshotBytes int64

	// AllowedHosts restricts downloads to the named hosts and their
	// subdomains. Empty means any host; the ladder already only sees URLs
	// that came out of discovery or extraction.
	AllowedHosts []string
}

// Deps carries the fallback machinery. Extractors run in order when the
// direct download fails; Screenshots may be nil when no browser is
// available, which drops the last rung.
type Deps struct {
	HTTPClient  *http.Client
	Extractors  []providers.MediaExtractor
	Screenshots Screenshotter
}

// Acquirer fetches media for posts into session-scoped directories.
type Acquirer struct {
	cfg  Config
	http *http.Client
	deps Deps
}

func New(cfg Config, deps Deps) *Acquirer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDownloadTimeout
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = minAssetBytes
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = maxAssetBytes
	}
	if cfg.MinScreenshotBytes <= 0 {
		cfg.MinScreenshotBytes = minScreenshotBytes
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Acquirer{cfg: cfg, http: httpClient, deps: deps}
}

// Acquire walks the ladder for one post and returns the first asset that
// clears validation, or nil when every rung failed.
func (a *Acquirer) Acquire(ctx context.Context, sessionID string, candidate providers.Candidate) *Asset {
	if candidate.MediaURL != "" {
		asset, err := a.download(ctx, sessionID, candidate.Platform, candidate.MediaURL)
		if err == nil {
			return asset
		}
		logrus.Debugf("direct download failed for %s: %v", candidate.URL, err)
	}

	for _, extractor := range a.deps.Extractors {
		mediaURL, err := extractor.ExtractMediaURL(ctx, candidate.URL)
		if err != nil {
			logrus.Debugf("%s found no media URL on %s: %v", extractor.Name(), candidate.URL, err)
			continue
		}
		asset, err := a.download(ctx, sessionID, candidate.Platform, mediaURL)
		if err == nil {
			return asset
		}
		logrus.Debugf("download of re-extracted URL failed for %s: %v", candidate.URL, err)
	}

	if a.deps.Screenshots == nil {
		return nil
	}
	asset, err := a.screenshot(ctx, sessionID, candidate)
	if err != nil {
		logrus.Debugf("screenshot failed for %s: %v", candidate.URL, err)
		return nil
	}
	return asset
}

// download fetches mediaURL through the validation gate: media content type,
// size within bounds, checked against Content-Length up front and against
// the bytes actually written afterwards. A file that fails the gate is
// removed.
func (a *Acquirer) download(ctx context.Context, sessionID, platform, mediaURL string) (*Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	if err := a.checkHost(mediaURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media fetch returned %d", resp.StatusCode)
	}
	contentType := normalizeContentType(resp.Header.Get("Content-Type"))
	if !isMediaType(contentType) {
		return nil, fmt.Errorf("content type %q is not image or video", contentType)
	}
	if resp.ContentLength >= 0 {
		if err := a.checkSize(resp.ContentLength); err != nil {
			return nil, err
		}
	}

	dir := filepath.Join(a.cfg.ImagesDir, sessionID, platformDir(platform))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := uniquePath(dir, func(ts time.Time) string {
		return downloadName(mediaURL, contentType, ts)
	})

	written, err := a.writeBounded(path, resp.Body)
	if err != nil {
		return nil, err
	}
	return &Asset{
		Path:        path,
		Kind:        KindImage,
		ContentType: contentType,
		SizeBytes:   written,
		SourceURL:   mediaURL,
	}, nil
}

func (a *Acquirer) screenshot(ctx context.Context, sessionID string, candidate providers.Candidate) (*Asset, error) {
	shot, err := a.deps.Screenshots.Screenshot(ctx, candidate.URL)
	if err != nil {
		return nil, err
	}
	if int64(len(shot)) < a.cfg.MinScreenshotBytes {
		return nil, fmt.Errorf("screenshot is %d bytes, discarding as blank", len(shot))
	}
	if err := a.checkSize(int64(len(shot))); err != nil {
		return nil, err
	}

	dir := filepath.Join(a.cfg.ScreenshotsDir, sessionID, platformDir(candidate.Platform))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := uniquePath(dir, func(ts time.Time) string {
		return screenshotName(candidate.Title, candidate.URL, ts)
	})

	if err := os.WriteFile(path, shot, 0o644); err != nil {
		return nil, err
	}
	return &Asset{Path: path, Kind: KindScreenshot, ContentType: "image/png", SizeBytes: int64(len(shot))}, nil
}

// checkHost enforces the download allowlist. Matching covers the host and
// its subdomains, which is how CDN hosts appear in practice
// (scontent-lga3-1.cdninstagram.com under cdninstagram.com).
func (a *Acquirer) checkHost(mediaURL string) error {
	if len(a.cfg.AllowedHosts) == 0 {
		return nil
	}
	u, err := url.Parse(mediaURL)
	if err != nil {
		return err
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range a.cfg.AllowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("host %s is not in the media allowlist", host)
}

// writeBounded streams body to path, enforcing the size bounds on the bytes
// that actually arrive. Partial or out-of-bounds files are deleted.
func (a *Acquirer) writeBounded(path string, body io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(f, io.LimitReader(body, a.cfg.MaxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = a.checkSize(written)
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return written, nil
}

func (a *Acquirer) checkSize(n int64) error {
	if n < a.cfg.MinBytes {
		return fmt.Errorf("asset is %d bytes, below the %d byte minimum", n, a.cfg.MinBytes)
	}
	if n > a.cfg.MaxBytes {
		return fmt.Errorf("asset is %d bytes, above the %d byte maximum", n, a.cfg.MaxBytes)
	}
	return nil
}

func normalizeContentType(header string) string {
	contentType, _, _ := strings.Cut(header, ";")
	return strings.ToLower(strings.TrimSpace(contentType))
}

func isMediaType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "video/")
}

func platformDir(platform string) string {
	if platform == "" {
		return "web"
	}
	return platform
}

// uniquePath resolves name collisions by bumping the timestamp the name is
// built from. Names embed a URL hash and a unix timestamp, so collisions
// only happen when the same URL is fetched twice within a second.
func uniquePath(dir string, name func(ts time.Time) string) string {
	now := time.Now()
	path := filepath.Join(dir, name(now))
	for i := 1; i <= 5; i++ {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return path
		}
		path = filepath.Join(dir, name(now.Add(time.Duration(i)*time.Second)))
	}
	return path
}
