package types

import "time"

// Platform identifiers understood by the engine.
const (
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
	PlatformTwitter   = "twitter"
	PlatformYouTube   = "youtube"
)

// AllPlatforms returns the platforms a search targets when the request does
// not name any.
func AllPlatforms() []string {
	return []string{PlatformInstagram, PlatformFacebook, PlatformTwitter, PlatformYouTube}
}

// ContentItem is one acquired piece of content with its resolved engagement,
// score and media locations. ImagePath and ScreenshotPath are nil when the
// corresponding acquisition never succeeded.
type ContentItem struct {
	ImageURL         string    `json:"image_url"`
	PostURL          string    `json:"post_url"`
	Platform         string    `json:"platform"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	EngagementScore  float64   `json:"engagement_score"`
	ViewsEstimate    int64     `json:"views_estimate"`
	LikesEstimate    int64     `json:"likes_estimate"`
	CommentsEstimate int64     `json:"comments_estimate"`
	SharesEstimate   int64     `json:"shares_estimate"`
	Author           string    `json:"author"`
	AuthorFollowers  int64     `json:"author_followers"`
	PostDate         string    `json:"post_date"`
	Hashtags         []string  `json:"hashtags"`
	ImagePath        *string   `json:"image_path"`
	ScreenshotPath   *string   `json:"screenshot_path"`
	Confidence       string    `json:"confidence"`
	MetricsSource    string    `json:"metrics_source"`
	ExtractedAt      time.Time `json:"extracted_at"`
}

// ManifestMetrics aggregates engagement over a whole session.
type ManifestMetrics struct {
	TotalEngagementScore float64 `json:"total_engagement_score"`
	AverageEngagement    float64 `json:"average_engagement"`
	HighestEngagement    float64 `json:"highest_engagement"`
	TotalEstimatedViews  int64   `json:"total_estimated_views"`
	TotalEstimatedLikes  int64   `json:"total_estimated_likes"`
}

// PlatformStats is the per-platform slice of the distribution block.
type PlatformStats struct {
	Count           int     `json:"count"`
	TotalEngagement float64 `json:"total_engagement"`
	TotalViews      int64   `json:"total_views"`
	TotalLikes      int64   `json:"total_likes"`
}

// SessionManifest is the result of one search session. A session always
// produces a manifest, even when every provider failed; in that case the
// content slices are empty and APIStatus explains why.
type SessionManifest struct {
	SessionID            string                   `json:"session_id"`
	Query                string                   `json:"query"`
	ExtractedAt          time.Time                `json:"extracted_at"`
	TotalContent         int                      `json:"total_content"`
	ViralContent         int                      `json:"viral_content"`
	ImagesDownloaded     int                      `json:"images_downloaded"`
	ScreenshotsTaken     int                      `json:"screenshots_taken"`
	Metrics              ManifestMetrics          `json:"metrics"`
	PlatformDistribution map[string]PlatformStats `json:"platform_distribution"`
	TopPerformers        []ContentItem            `json:"top_performers"`
	AllContent           []ContentItem            `json:"all_content"`
	ConfigUsed           map[string]any           `json:"config_used,omitempty"`
	APIStatus            map[string]any           `json:"api_status,omitempty"`
}
