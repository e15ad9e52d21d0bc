// Package engagement resolves engagement counts for discovered posts by
// walking a fixed chain of tiers, from exact APIs down to a heuristic
// estimate that cannot fail.
package engagement

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/internal/providers"
)

// Tier names the resolution stages, in the order they run.
type Tier string

const (
	TierMetricsAPI Tier = "metrics-api"
	TierEmbed      Tier = "embed"
	TierHeadless   Tier = "headless"
	TierMetaTags   Tier = "meta-tags"
	TierHeuristic  Tier = "heuristic"
)

const (
	defaultTierTimeout = 15 * time.Second
	minTierTimeout     = 10 * time.Second
	maxTierTimeout     = 20 * time.Second
)

// HealthReporter receives per-provider outcomes. Failures of providers that
// were never asked to serve (wrong platform, not registered) are not
// reported.
type HealthReporter interface {
	ReportSuccess(provider string)
	ReportFailure(provider string, err error)
}

// Registration binds a fetcher to the platforms it serves. An empty
// Platforms list means all platforms.
type Registration struct {
	Fetcher   providers.MetricsFetcher
	Platforms []string
}

func (r Registration) serves(platform string) bool {
	if len(r.Platforms) == 0 {
		return true
	}
	for _, p := range r.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// Deps carries the tier registrations. A tier with nothing registered is
// skipped without consuming its timeout.
type Deps struct {
	MetricsAPI []Registration
	Embed      []Registration
	Headless   []Registration
	MetaTags   []Registration
	Health     HealthReporter
}

// Config bounds the resolver.
type Config struct {
	TierTimeout time.Duration
	Heuristic   HeuristicConfig
}

type tierSlot struct {
	name Tier
	regs []Registration
}

// Resolver walks the tier chain for one candidate at a time. Safe for
// concurrent use across candidates.
type Resolver struct {
	timeout   time.Duration
	tiers     []tierSlot
	estimator *Estimator
	health    HealthReporter
}

func NewResolver(cfg Config, deps Deps) *Resolver {
	timeout := cfg.TierTimeout
	if timeout == 0 {
		timeout = defaultTierTimeout
	}
	if timeout < minTierTimeout {
		timeout = minTierTimeout
	}
	if timeout > maxTierTimeout {
		timeout = maxTierTimeout
	}

	return &Resolver{
		timeout: timeout,
		tiers: []tierSlot{
			{name: TierMetricsAPI, regs: deps.MetricsAPI},
			{name: TierEmbed, regs: deps.Embed},
			{name: TierHeadless, regs: deps.Headless},
			{name: TierMetaTags, regs: deps.MetaTags},
		},
		estimator: NewEstimator(cfg.Heuristic),
		health:    deps.Health,
	}
}

// Resolve returns the best available engagement for the candidate plus the
// tier that produced it. It never fails: the heuristic tier is total.
func (r *Resolver) Resolve(ctx context.Context, candidate providers.Candidate) (*providers.Engagement, Tier) {
	for _, slot := range r.tiers {
		regs := servingRegistrations(slot.regs, candidate.Platform)
		if len(regs) == 0 {
			continue
		}
		if eng := r.tryTier(ctx, slot.name, regs, candidate); eng != nil {
			return eng, slot.name
		}
		if ctx.Err() != nil {
			break
		}
	}
	return r.estimator.Estimate(candidate), TierHeuristic
}

func (r *Resolver) tryTier(ctx context.Context, name Tier, regs []Registration, candidate providers.Candidate) *providers.Engagement {
	tierCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	for _, reg := range regs {
		eng, err := reg.Fetcher.FetchMetrics(tierCtx, candidate)
		if err != nil {
			r.reportFailure(reg.Fetcher.Name(), err)
			logrus.Debugf("Tier %s: %s failed for %s: %v", name, reg.Fetcher.Name(), candidate.URL, err)
			continue
		}
		if eng == nil {
			continue
		}
		r.reportSuccess(reg.Fetcher.Name())
		return eng
	}
	return nil
}

func servingRegistrations(regs []Registration, platform string) []Registration {
	out := make([]Registration, 0, len(regs))
	for _, reg := range regs {
		if reg.Fetcher != nil && reg.serves(platform) {
			out = append(out, reg)
		}
	}
	return out
}

func (r *Resolver) reportSuccess(provider string) {
	if r.health != nil {
		r.health.ReportSuccess(provider)
	}
}

func (r *Resolver) reportFailure(provider string, err error) {
	if r.health != nil {
		r.health.ReportFailure(provider, err)
	}
}
