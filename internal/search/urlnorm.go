package search

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/trendsift/viral-engine/internal/providers"
)

// Tracking params social shares accumulate; they change the string without
// changing the post.
var trackingParams = map[string]bool{
	"igshid": true,
	"igsh":   true,
	"fbclid": true,
	"gclid":  true,
	"ref":    true,
}

// Canonicalize reduces a post URL to its identity form for deduplication:
// lowercased scheme and host, no www, no fragment, no tracking params, no
// trailing slash. Path identity (/p/<id>, /reel/<id>, /status/<id>) is
// preserved untouched.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("unparseable URL %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL %q has no host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""

	params := u.Query()
	for key := range params {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") {
			params.Del(key)
		}
	}
	u.RawQuery = params.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

var postURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`instagram\.com/(p|reel)/`),
	regexp.MustCompile(`instagram\.com/[^/?#]+/?$`),
	regexp.MustCompile(`facebook\.com/[^/]+/posts/`),
	regexp.MustCompile(`facebook\.com/[^/]+/photos/`),
	regexp.MustCompile(`facebook\.com/watch`),
	regexp.MustCompile(`fb\.watch/`),
	regexp.MustCompile(`m\.facebook\.com/`),
	regexp.MustCompile(`youtube\.com/watch`),
	regexp.MustCompile(`youtu\.be/`),
	regexp.MustCompile(`(twitter|x)\.com/[^/]+/status(es)?/\d+`),
}

var authURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`accounts/login`),
	regexp.MustCompile(`/login(/|$|\?)`),
	regexp.MustCompile(`login\.php`),
	regexp.MustCompile(`/auth/`),
	regexp.MustCompile(`/oauth(/|$|\?)`),
	regexp.MustCompile(`/signup(/|$|\?)`),
	regexp.MustCompile(`/signin(/|$|\?)`),
	regexp.MustCompile(`instagram\.com/(explore|accounts|directory)(/|$)`),
}

// IsSocialPostURL reports whether a URL points at an actual post (or
// profile) rather than a login wall, auth redirect or unrelated page.
func IsSocialPostURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, re := range authURLPatterns {
		if re.MatchString(lower) {
			return false
		}
	}
	for _, re := range postURLPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

var mediaExtRe = regexp.MustCompile(`\.(jpg|jpeg|png|gif|webp|bmp|mp4|webm)(\?|$)`)

var nonMediaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.(html|php|jsp|asp)(\?|$)`),
	regexp.MustCompile(`accounts/login`),
	regexp.MustCompile(`/login(/|$|\?)`),
}

var extraMediaHosts = []string{
	"googleusercontent.com",
	"lookaside.instagram.com",
	"img.youtube.com",
}

// IsLikelyMediaURL reports whether a candidate media URL plausibly serves a
// real file. Discovery providers return login redirects and HTML pages in
// the media slot often enough that keeping them would poison the download
// ladder.
func IsLikelyMediaURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, re := range nonMediaPatterns {
		if re.MatchString(lower) {
			return false
		}
	}
	if providers.LikelyMediaHost(rawURL) {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, known := range extraMediaHosts {
		if strings.HasSuffix(host, known) {
			return true
		}
	}
	return mediaExtRe.MatchString(lower)
}
