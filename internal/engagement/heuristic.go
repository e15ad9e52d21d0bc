package engagement

import (
	"strings"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/providers"
)

// HeuristicConfig drives the last-resort estimate. Every figure here is a
// tunable guess, not a measured model; treat the numbers as plausible
// placeholders for posts nothing else could resolve.
type HeuristicConfig struct {
	PlatformBases   map[string]float64
	ViewMultipliers map[string]float64

	// ReelBonus applies to instagram /reel/ URLs, PhotoBonus to facebook
	// /photos/ URLs; both formats travel further than plain posts.
	ReelBonus  float64
	PhotoBonus float64

	DefaultBase       float64
	DefaultMultiplier float64

	LikesFactor    float64
	CommentsFactor float64
	SharesFactor   float64
	Followers      int64
}

// DefaultHeuristicConfig returns the stock estimate parameters.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		PlatformBases: map[string]float64{
			types.PlatformInstagram: 30,
			types.PlatformFacebook:  20,
			types.PlatformYouTube:   40,
			types.PlatformTwitter:   35,
		},
		ViewMultipliers: map[string]float64{
			types.PlatformInstagram: 25,
			types.PlatformFacebook:  15,
			types.PlatformYouTube:   50,
			types.PlatformTwitter:   20,
		},
		ReelBonus:         20,
		PhotoBonus:        10,
		DefaultBase:       25,
		DefaultMultiplier: 20,
		LikesFactor:       2,
		CommentsFactor:    0.3,
		SharesFactor:      0.5,
		Followers:         5000,
	}
}

// Estimator is the total fallback: it always produces an Engagement and
// never errors.
type Estimator struct {
	cfg HeuristicConfig
}

func NewEstimator(cfg HeuristicConfig) *Estimator {
	defaults := DefaultHeuristicConfig()
	if cfg.PlatformBases == nil {
		cfg.PlatformBases = defaults.PlatformBases
	}
	if cfg.ViewMultipliers == nil {
		cfg.ViewMultipliers = defaults.ViewMultipliers
	}
	if cfg.ReelBonus <= 0 {
		cfg.ReelBonus = defaults.ReelBonus
	}
	if cfg.PhotoBonus <= 0 {
		cfg.PhotoBonus = defaults.PhotoBonus
	}
	if cfg.DefaultBase <= 0 {
		cfg.DefaultBase = defaults.DefaultBase
	}
	if cfg.DefaultMultiplier <= 0 {
		cfg.DefaultMultiplier = defaults.DefaultMultiplier
	}
	if cfg.LikesFactor <= 0 {
		cfg.LikesFactor = defaults.LikesFactor
	}
	if cfg.CommentsFactor <= 0 {
		cfg.CommentsFactor = defaults.CommentsFactor
	}
	if cfg.SharesFactor <= 0 {
		cfg.SharesFactor = defaults.SharesFactor
	}
	if cfg.Followers <= 0 {
		cfg.Followers = defaults.Followers
	}
	return &Estimator{cfg: cfg}
}

// Estimate derives plausible counts from the platform and URL shape alone.
func (e *Estimator) Estimate(candidate providers.Candidate) *providers.Engagement {
	base, ok := e.cfg.PlatformBases[candidate.Platform]
	if !ok {
		base = e.cfg.DefaultBase
	}

	postURL := strings.ToLower(candidate.URL)
	switch candidate.Platform {
	case types.PlatformInstagram:
		if strings.Contains(postURL, "/reel") {
			base += e.cfg.ReelBonus
		}
	case types.PlatformFacebook:
		if strings.Contains(postURL, "/photos/") {
			base += e.cfg.PhotoBonus
		}
	}

	multiplier, ok := e.cfg.ViewMultipliers[candidate.Platform]
	if !ok {
		multiplier = e.cfg.DefaultMultiplier
	}

	return &providers.Engagement{
		Views:      int64(base * multiplier),
		Likes:      int64(base * e.cfg.LikesFactor),
		Comments:   int64(base * e.cfg.CommentsFactor),
		Shares:     int64(base * e.cfg.SharesFactor),
		Followers:  e.cfg.Followers,
		Confidence: providers.ConfidenceHeuristic,
		Source:     "heuristic",
	}
}
