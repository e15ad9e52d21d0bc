package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	slugMaxLen      = 40
	downloadHashLen = 12
	shotHashLen     = 8
)

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify flattens a title into a filesystem-safe fragment. Empty or
// all-symbol titles fall back to "post".
func slugify(s string, maxLen int) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "_")
	}
	if s == "" {
		return "post"
	}
	return s
}

func urlHash(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// downloadName builds a collision-resistant filename for a downloaded
// asset. The hash pins the name to the source URL so the same asset
// fetched twice in one second overwrites rather than duplicates.
func downloadName(mediaURL, contentType string, ts time.Time) string {
	return fmt.Sprintf("viral_%s_%d.%s",
		urlHash(mediaURL)[:downloadHashLen], ts.Unix(), extForContentType(contentType))
}

func screenshotName(title, postURL string, ts time.Time) string {
	return fmt.Sprintf("screenshot_%s_%s_%d.png",
		slugify(title, slugMaxLen), urlHash(postURL)[:shotHashLen], ts.Unix())
}

// extForContentType maps a normalized content type to a file extension.
// Unknown image and video subtypes take the most common extension for
// their class so the file still opens in anything.
func extForContentType(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	}
	if strings.HasPrefix(contentType, "video/") {
		return "mp4"
	}
	return "jpg"
}
