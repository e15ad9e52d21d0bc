package providers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/trendsift/viral-engine/api/types"
)

var hashtagRe = regexp.MustCompile(`#(\w+)`)

// DecodeWithFallback decodes a provider response strictly into T. When the
// typed decode fails, loose gets a chance to pull what it can out of the
// generic structure. Only when both fail does the caller see a parse error,
// so a provider reshaping one field does not blind the whole tier.
func DecodeWithFallback[T any](provider string, data []byte, loose func(map[string]any) (T, bool)) (T, error) {
	var out T
	strictErr := json.Unmarshal(data, &out)
	if strictErr == nil {
		return out, nil
	}

	if loose != nil {
		var generic map[string]any
		if err := json.Unmarshal(data, &generic); err == nil {
			if v, ok := loose(generic); ok {
				return v, nil
			}
		}
	}

	var zero T
	return zero, NewError(provider, KindParse, strictErr)
}

// StringAt walks a generic JSON object along path and returns the string
// leaf, if any. Helper for loose extraction.
func StringAt(obj map[string]any, path ...string) string {
	cur := any(obj)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[key]
	}
	s, _ := cur.(string)
	return s
}

// SliceAt returns the object slice at key, tolerating absent or misshapen
// entries.
func SliceAt(obj map[string]any, key string) []map[string]any {
	raw, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items
}

// ParseCount converts a human-formatted counter ("1.2K", "3,456", "2M")
// into an integer. Social pages rarely expose raw numbers.
func ParseCount(s string) (int64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, fmt.Errorf("empty count")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "B"), strings.HasSuffix(s, "b"):
		multiplier = 1_000_000_000
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable count %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative count %q", s)
	}
	return int64(value * float64(multiplier)), nil
}

// PlatformForURL infers the platform from a URL's host. Unknown hosts
// return an empty string.
func PlatformForURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))

	switch {
	case strings.HasSuffix(host, "instagram.com"), strings.HasSuffix(host, "cdninstagram.com"):
		return types.PlatformInstagram
	case strings.HasSuffix(host, "facebook.com"), strings.HasSuffix(host, "fb.watch"), strings.HasSuffix(host, "fbcdn.net"):
		return types.PlatformFacebook
	case strings.HasSuffix(host, "youtube.com"), host == "youtu.be", strings.HasSuffix(host, "ytimg.com"):
		return types.PlatformYouTube
	case strings.HasSuffix(host, "twitter.com"), host == "x.com", strings.HasSuffix(host, "twimg.com"):
		return types.PlatformTwitter
	default:
		return ""
	}
}

var cdnHostSuffixes = []string{
	"cdninstagram.com",
	"fbcdn.net",
	"twimg.com",
	"ytimg.com",
	"ggpht.com",
}

// LikelyMediaHost reports whether a URL points at a platform CDN rather
// than a page.
func LikelyMediaHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range cdnHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	// Meta serves media from regional scontent-* hosts.
	return strings.HasPrefix(host, "scontent")
}

// HashtagsFrom pulls hashtags out of free text, without the # prefix.
func HashtagsFrom(text string) []string {
	matches := hashtagRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	tags := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}
