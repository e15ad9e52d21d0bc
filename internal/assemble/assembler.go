// Package assemble joins the per-post pipeline outputs into the session
// manifest. Assembly is pure: the same inputs produce the same manifest,
// and the input slice is never mutated.
package assemble

import (
	"math"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/media"
	"github.com/trendsift/viral-engine/internal/providers"
	"github.com/trendsift/viral-engine/internal/scoring"
)

const topPerformerCount = 5

// Item is one post after its pipeline finished: the discovery hit, the
// engagement the resolver settled on, the media asset if any rung of the
// acquirer succeeded, and the computed score.
type Item struct {
	Candidate  providers.Candidate
	Engagement *providers.Engagement
	Asset      *media.Asset
	Score      float64
}

// Session identifies the run a manifest belongs to. ExtractedAt is injected
// so assembly stays deterministic.
type Session struct {
	ID          string
	Query       string
	ExtractedAt time.Time
	ConfigUsed  map[string]any
	APIStatus   map[string]any
}

// Assemble ranks the items and builds the manifest. Items below the request
// minimum engagement stay in the content list and the file counts; only the
// viral subset feeds the aggregate metrics and the platform distribution.
func Assemble(session Session, items []Item, req types.SearchRequest) *types.SessionManifest {
	content := make([]types.ContentItem, 0, len(items))
	for _, item := range items {
		content = append(content, contentItem(item, session.ExtractedAt))
	}

	slices.SortStableFunc(content, func(a, b types.ContentItem) int {
		if a.EngagementScore != b.EngagementScore {
			if a.EngagementScore > b.EngagementScore {
				return -1
			}
			return 1
		}
		if a.LikesEstimate != b.LikesEstimate {
			if a.LikesEstimate > b.LikesEstimate {
				return -1
			}
			return 1
		}
		return strings.Compare(a.PostURL, b.PostURL)
	})

	if req.MaxResults > 0 && len(content) > req.MaxResults {
		content = content[:req.MaxResults]
	}

	manifest := &types.SessionManifest{
		SessionID:            session.ID,
		Query:                session.Query,
		ExtractedAt:          session.ExtractedAt,
		TotalContent:         len(content),
		PlatformDistribution: map[string]types.PlatformStats{},
		TopPerformers:        content[:min(topPerformerCount, len(content))],
		AllContent:           content,
		ConfigUsed:           session.ConfigUsed,
		APIStatus:            session.APIStatus,
	}

	viral := 0
	for _, item := range content {
		if item.ImagePath != nil {
			manifest.ImagesDownloaded++
		}
		if item.ScreenshotPath != nil {
			manifest.ScreenshotsTaken++
		}
		if !scoring.Qualifies(item.EngagementScore, req.MinEngagement) {
			continue
		}
		viral++
		manifest.Metrics.TotalEngagementScore += item.EngagementScore
		manifest.Metrics.TotalEstimatedViews += item.ViewsEstimate
		manifest.Metrics.TotalEstimatedLikes += item.LikesEstimate
		if item.EngagementScore > manifest.Metrics.HighestEngagement {
			manifest.Metrics.HighestEngagement = item.EngagementScore
		}

		stats := manifest.PlatformDistribution[item.Platform]
		stats.Count++
		stats.TotalEngagement += item.EngagementScore
		stats.TotalViews += item.ViewsEstimate
		stats.TotalLikes += item.LikesEstimate
		manifest.PlatformDistribution[item.Platform] = stats
	}
	manifest.ViralContent = viral
	if viral > 0 {
		avg := manifest.Metrics.TotalEngagementScore / float64(viral)
		manifest.Metrics.AverageEngagement = math.Round(avg*100) / 100
	}
	return manifest
}

func contentItem(item Item, extractedAt time.Time) types.ContentItem {
	out := types.ContentItem{
		ImageURL:        item.Candidate.MediaURL,
		PostURL:         item.Candidate.CanonicalURL,
		Platform:        item.Candidate.Platform,
		Title:           item.Candidate.Title,
		Description:     item.Candidate.Snippet,
		EngagementScore: item.Score,
		Author:          item.Candidate.Author,
		PostDate:        item.Candidate.PostDate,
		Hashtags:        item.Candidate.Hashtags,
		ExtractedAt:     extractedAt,
	}
	if out.PostURL == "" {
		out.PostURL = item.Candidate.URL
	}

	if eng := item.Engagement; eng != nil {
		out.ViewsEstimate = eng.Views
		out.LikesEstimate = eng.Likes
		out.CommentsEstimate = eng.Comments
		out.SharesEstimate = eng.Shares
		out.AuthorFollowers = eng.Followers
		out.Confidence = string(eng.Confidence)
		out.MetricsSource = eng.Source
		if eng.Author != "" {
			out.Author = eng.Author
		}
		if eng.PostDate != "" {
			out.PostDate = eng.PostDate
		}
	}

	if asset := item.Asset; asset != nil {
		path := asset.Path
		switch asset.Kind {
		case media.KindScreenshot:
			out.ScreenshotPath = &path
		default:
			out.ImagePath = &path
			if asset.SourceURL != "" {
				out.ImageURL = asset.SourceURL
			}
		}
	}
	return out
}
