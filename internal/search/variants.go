// Package search fans a query out across discovery providers, normalizes
// and deduplicates what comes back, and hands the engine a bounded set of
// candidate posts.
package search

import (
	"fmt"
	"strings"

	"github.com/trendsift/viral-engine/api/types"
)

// Variant is one concrete query string sent to a searcher. Strict variants
// are platform-qualified; broad variants only run when strict discovery
// comes back thin.
type Variant struct {
	Query    string
	Platform string
	Strict   bool
}

// BuildVariants expands a user query into search variants, strict first.
// Platform-qualified forms lean on site: operators; the broad forms trade
// precision for recall.
func BuildVariants(query string, platforms []string) []Variant {
	variants := make([]Variant, 0, len(platforms)*4+1)

	for _, platform := range platforms {
		for _, q := range strictQueries(query, platform) {
			variants = append(variants, Variant{Query: q, Platform: platform, Strict: true})
		}
	}
	for _, platform := range platforms {
		variants = append(variants, Variant{
			Query:    fmt.Sprintf("%s %s viral", query, platform),
			Platform: platform,
		})
	}
	if tag := hashtagForm(query); tag != "" {
		variants = append(variants, Variant{Query: tag})
	}
	return variants
}

func strictQueries(query, platform string) []string {
	switch platform {
	case types.PlatformInstagram:
		return []string{
			fmt.Sprintf(`"%s" site:instagram.com`, query),
			fmt.Sprintf(`site:instagram.com/p "%s"`, query),
			fmt.Sprintf(`site:instagram.com/reel "%s"`, query),
		}
	case types.PlatformFacebook:
		return []string{
			fmt.Sprintf(`"%s" site:facebook.com`, query),
			fmt.Sprintf(`site:facebook.com/posts "%s"`, query),
		}
	case types.PlatformYouTube:
		return []string{
			fmt.Sprintf(`"%s" site:youtube.com`, query),
			fmt.Sprintf(`site:youtube.com/watch "%s"`, query),
		}
	case types.PlatformTwitter:
		return []string{
			fmt.Sprintf(`"%s" site:twitter.com`, query),
			fmt.Sprintf(`"%s" site:x.com`, query),
		}
	default:
		return []string{fmt.Sprintf(`"%s" site:%s.com`, query, platform)}
	}
}

// hashtagForm collapses the query into a single hashtag, the way users tag
// the topic on the platforms themselves.
func hashtagForm(query string) string {
	joined := strings.ToLower(strings.Join(strings.Fields(query), ""))
	if joined == "" {
		return ""
	}
	return "#" + joined
}
