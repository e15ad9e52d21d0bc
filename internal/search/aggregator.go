package search

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/trendsift/viral-engine/internal/providers"
)

const (
	defaultParallelism      = 4
	minParallelism          = 3
	maxParallelism          = 5
	defaultBroadenThreshold = 15
	defaultBackupThreshold  = 3
	defaultMaxResults       = 30
	defaultPerVariant       = 10
)

// Config bounds the discovery fan-out.
type Config struct {
	// Parallelism is how many variant searches run at once, clamped to 3..5.
	Parallelism int
	// BroadenThreshold triggers broad variants when strict discovery finds
	// fewer unique posts than this.
	BroadenThreshold int
	// BackupThreshold consults the backup searcher when a variant yields
	// fewer hits than this.
	BackupThreshold int
	// MaxResults caps the aggregated output.
	MaxResults int
	// PerVariantResults is the result budget per variant search.
	PerVariantResults int
}

func (c Config) withDefaults() Config {
	if c.Parallelism == 0 {
		c.Parallelism = defaultParallelism
	}
	if c.Parallelism < minParallelism {
		c.Parallelism = minParallelism
	}
	if c.Parallelism > maxParallelism {
		c.Parallelism = maxParallelism
	}
	if c.BroadenThreshold <= 0 {
		c.BroadenThreshold = defaultBroadenThreshold
	}
	if c.BackupThreshold <= 0 {
		c.BackupThreshold = defaultBackupThreshold
	}
	if c.MaxResults <= 0 {
		c.MaxResults = defaultMaxResults
	}
	if c.PerVariantResults <= 0 {
		c.PerVariantResults = defaultPerVariant
	}
	return c
}

// ImageSearcher supplements discovery with direct media URLs.
type ImageSearcher interface {
	SearchImages(ctx context.Context, query string, maxResults int) ([]providers.Candidate, error)
}

// HealthReporter receives per-searcher outcomes. The image supplement is
// not reported; it rides on whichever searcher serves it.
type HealthReporter interface {
	ReportSuccess(provider string)
	ReportFailure(provider string, err error)
}

// Deps are the searchers the aggregator draws on. Primary handles every
// variant; Backup steps in per variant when the primary comes back thin;
// Native searchers query their platform directly with the bare query.
type Deps struct {
	Primary providers.Searcher
	Backup  providers.Searcher
	Images  ImageSearcher
	Native  map[string]providers.Searcher
	Health  HealthReporter
}

// Aggregator turns one user query into a deduplicated, validated candidate
// set. A failed searcher is logged and skipped; discovery never fails the
// session.
type Aggregator struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) *Aggregator {
	return &Aggregator{cfg: cfg.withDefaults(), deps: deps}
}

// Discover runs strict variants (plus native searchers and the image
// supplement), broadens when the unique count is under the threshold, and
// caps the result.
func (a *Aggregator) Discover(ctx context.Context, query string, platforms []string) []providers.Candidate {
	variants := BuildVariants(query, platforms)
	strict := make([]Variant, 0, len(variants))
	broad := make([]Variant, 0, len(variants))
	for _, v := range variants {
		if v.Strict {
			strict = append(strict, v)
		} else {
			broad = append(broad, v)
		}
	}

	set := newCandidateSet()
	a.runPhase(ctx, set, query, strict, platforms, true)

	if set.size() < a.cfg.BroadenThreshold {
		logrus.Debugf("Strict discovery found %d unique posts, broadening", set.size())
		a.runPhase(ctx, set, query, broad, nil, false)
	}

	candidates := set.items()
	if len(candidates) > a.cfg.MaxResults {
		candidates = candidates[:a.cfg.MaxResults]
	}
	logrus.Infof("Discovery for %q found %d unique candidates", query, len(candidates))
	return candidates
}

// runPhase executes one batch of searches under the parallelism bound.
// Native searchers and the image supplement ride along with the strict
// phase only, and they get the bare query: they search their platform
// directly and have no use for site: operators.
func (a *Aggregator) runPhase(ctx context.Context, set *candidateSet, query string, variants []Variant, platforms []string, includeExtras bool) {
	sem := semaphore.NewWeighted(int64(a.cfg.Parallelism))
	g, gctx := errgroup.WithContext(ctx)

	for _, v := range variants {
		v := v
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			a.searchVariant(gctx, v, set)
			return nil
		})
	}

	if includeExtras {
		for _, platform := range platforms {
			searcher, ok := a.deps.Native[platform]
			if !ok {
				continue
			}
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				defer sem.Release(1)
				hits, err := searcher.Search(gctx, query, a.cfg.PerVariantResults)
				a.reportOutcome(searcher.Name(), err)
				if err != nil {
					logrus.WithError(err).Warnf("Native searcher %s failed", searcher.Name())
					return nil
				}
				set.addAll(hits)
				return nil
			})
		}
		if a.deps.Images != nil {
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				defer sem.Release(1)
				hits, err := a.deps.Images.SearchImages(gctx, query, a.cfg.PerVariantResults)
				if err != nil {
					logrus.WithError(err).Warn("Image search supplement failed")
					return nil
				}
				set.addAll(hits)
				return nil
			})
		}
	}

	_ = g.Wait()
}

func (a *Aggregator) searchVariant(ctx context.Context, v Variant, set *candidateSet) {
	var hits []providers.Candidate
	if a.deps.Primary != nil {
		found, err := a.deps.Primary.Search(ctx, v.Query, a.cfg.PerVariantResults)
		a.reportOutcome(a.deps.Primary.Name(), err)
		if err != nil {
			logrus.WithError(err).Warnf("Searcher %s failed for %q", a.deps.Primary.Name(), v.Query)
		}
		hits = found
	}

	if a.deps.Backup != nil && len(hits) < a.cfg.BackupThreshold {
		found, err := a.deps.Backup.Search(ctx, v.Query, a.cfg.PerVariantResults)
		a.reportOutcome(a.deps.Backup.Name(), err)
		if err != nil {
			logrus.WithError(err).Warnf("Backup searcher %s failed for %q", a.deps.Backup.Name(), v.Query)
		} else {
			hits = append(hits, found...)
		}
	}

	set.addAll(hits)
}

func (a *Aggregator) reportOutcome(name string, err error) {
	if a.deps.Health == nil {
		return
	}
	if err != nil {
		a.deps.Health.ReportFailure(name, err)
		return
	}
	a.deps.Health.ReportSuccess(name)
}

// candidateSet deduplicates on canonical URL while preserving insertion
// order. Duplicates merge instead of vanishing, so an image-search hit can
// fill the media URL on a post the organic search found first.
type candidateSet struct {
	mu    sync.Mutex
	order []string
	byURL map[string]*providers.Candidate
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byURL: make(map[string]*providers.Candidate)}
}

func (s *candidateSet) addAll(candidates []providers.Candidate) {
	for _, c := range candidates {
		s.add(c)
	}
}

func (s *candidateSet) add(c providers.Candidate) {
	if !IsSocialPostURL(c.URL) {
		logrus.Debugf("Discarding non-post URL %s", c.URL)
		return
	}
	canon, err := Canonicalize(c.URL)
	if err != nil {
		logrus.Debugf("Discarding uncanonicalizable URL %s: %v", c.URL, err)
		return
	}
	c.CanonicalURL = canon
	if c.MediaURL != "" && !IsLikelyMediaURL(c.MediaURL) {
		c.MediaURL = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byURL[canon]
	if !ok {
		stored := c
		s.byURL[canon] = &stored
		s.order = append(s.order, canon)
		return
	}
	mergeCandidate(existing, c)
}

func mergeCandidate(dst *providers.Candidate, src providers.Candidate) {
	if dst.MediaURL == "" {
		dst.MediaURL = src.MediaURL
	}
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Snippet == "" {
		dst.Snippet = src.Snippet
	}
	if dst.Author == "" {
		dst.Author = src.Author
	}
	if dst.PostDate == "" {
		dst.PostDate = src.PostDate
	}
	if dst.Platform == "" {
		dst.Platform = src.Platform
	}
	if len(dst.Hashtags) == 0 {
		dst.Hashtags = src.Hashtags
	}
}

func (s *candidateSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *candidateSet) items() []providers.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]providers.Candidate, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.byURL[key])
	}
	return out
}
