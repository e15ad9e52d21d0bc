// Package scoring turns heterogeneous engagement counts into one comparable
// figure. Counts arrive with wildly different reliability, so the score
// leans on rates when a denominator exists and raw magnitude when not.
package scoring

import (
	"math"

	"github.com/trendsift/viral-engine/internal/providers"
)

const (
	defaultCommentWeight  = 5
	defaultShareWeight    = 10
	defaultBonusThreshold = 100
	defaultBonusFactor    = 1.2
)

// Config holds the score weights. Zero values take the defaults.
type Config struct {
	CommentWeight  float64
	ShareWeight    float64
	BonusThreshold float64
	BonusFactor    float64
}

func (c Config) withDefaults() Config {
	if c.CommentWeight <= 0 {
		c.CommentWeight = defaultCommentWeight
	}
	if c.ShareWeight <= 0 {
		c.ShareWeight = defaultShareWeight
	}
	if c.BonusThreshold <= 0 {
		c.BonusThreshold = defaultBonusThreshold
	}
	if c.BonusFactor <= 0 {
		c.BonusFactor = defaultBonusFactor
	}
	return c
}

// Engine computes engagement scores.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Score computes the comparable engagement score. Shares move audiences
// more than comments, comments more than likes; views (or followers)
// normalize the raw interactions into a rate. The raw floor keeps a
// heavily-viewed post with strong absolute numbers from scoring below an
// obscure one.
func (e *Engine) Score(eng *providers.Engagement) float64 {
	if eng == nil {
		return 0
	}

	raw := float64(eng.Likes) +
		e.cfg.CommentWeight*float64(eng.Comments) +
		e.cfg.ShareWeight*float64(eng.Shares)
	if raw < 0 {
		raw = 0
	}

	score := raw
	normalized := false
	switch {
	case eng.Views > 0:
		score = raw / float64(eng.Views) * 100
		normalized = true
	case eng.Followers > 0:
		score = raw / float64(eng.Followers) * 100
		normalized = true
	}

	if raw > e.cfg.BonusThreshold {
		score *= e.cfg.BonusFactor
	}
	if normalized {
		score = math.Max(score, raw*0.1)
	}
	if score < 0 {
		score = 0
	}
	return math.Round(score*100) / 100
}

// Qualifies reports whether a score clears the viral threshold.
func Qualifies(score, minEngagement float64) bool {
	return score >= minEngagement
}
