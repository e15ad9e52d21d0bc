// Package engine is the composition root. It builds every provider the
// configuration allows, wires them into the discovery, resolution, scoring
// and acquisition stages, and exposes one synchronous Search call that the
// job server and the CLI both sit on top of.
package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/assemble"
	"github.com/trendsift/viral-engine/internal/capabilities"
	"github.com/trendsift/viral-engine/internal/capabilities/health"
	"github.com/trendsift/viral-engine/internal/capabilities/verifiers"
	"github.com/trendsift/viral-engine/internal/config"
	"github.com/trendsift/viral-engine/internal/credentials"
	"github.com/trendsift/viral-engine/internal/engagement"
	"github.com/trendsift/viral-engine/internal/media"
	"github.com/trendsift/viral-engine/internal/providers"
	"github.com/trendsift/viral-engine/internal/providers/headless"
	"github.com/trendsift/viral-engine/internal/providers/twitterp"
	"github.com/trendsift/viral-engine/internal/scoring"
	"github.com/trendsift/viral-engine/internal/search"
	"github.com/trendsift/viral-engine/internal/stats"
	"github.com/trendsift/viral-engine/internal/storage"
	"github.com/trendsift/viral-engine/internal/storage/sqlite"
	"github.com/trendsift/viral-engine/pkg/seal"
)

// Engine runs acquisition sessions. Construct it once; Search is safe for
// concurrent use, with the credential pools and the browser allocator as
// the only shared state between in-flight sessions.
type Engine struct {
	cfg config.EngineConfig

	aggregator *search.Aggregator
	resolver   *engagement.Resolver
	acquirer   *media.Acquirer
	scorer     *scoring.Engine

	collector *stats.Collector
	tracker   *health.Tracker
	verifier  *capabilities.ProviderVerifier
	caps      types.EngineCapabilities
	pools     map[string]*credentials.Pool

	browser  *headless.Browser
	sessions *sqlite.Store

	outputDir   string
	maxResults  int
	minScore    float64
	concurrency int64
}

// New validates the configuration and builds the engine. The returned error
// is always a FatalConfigError; anything less than fatal is logged and
// worked around.
func New(ctx context.Context, ec config.EngineConfig) (*Engine, error) {
	if err := ec.Validate(); err != nil {
		return nil, err
	}

	sc := ec.GetSearchConfig()
	rc := ec.GetResolverConfig()
	mc := ec.GetMediaConfig()
	bc := ec.GetBrowserConfig()

	concurrency, _ := ec.GetInt("pipeline_concurrency", 3)
	bufSize, _ := ec.GetInt("stats_buf_size", 128)

	e := &Engine{
		cfg:         ec,
		collector:   stats.StartCollector(uint(bufSize)),
		tracker:     health.NewTracker(),
		caps:        capabilities.DetectCapabilities(ec),
		pools:       map[string]*credentials.Pool{},
		scorer:      scoring.NewEngine(scoringConfig(ec)),
		outputDir:   ec.GetString("output_dir", "viral_output"),
		maxResults:  sc.MaxResults,
		minScore:    ec.GetFloat("min_engagement", 0),
		concurrency: int64(concurrency),
	}
	e.verifier = capabilities.NewProviderVerifier(e.tracker)

	httpClient := &http.Client{Timeout: mc.Timeout}
	report := &reporter{tracker: e.tracker, stats: e.collector}

	store := e.loadCredentialStore(ec)
	serperKeys := mergedCredentials(store, "serper", credentials.FromKeys(ec.GetStringSlice("serper_api_keys", nil)))
	cseKeys := mergedCredentials(store, "google-cse", credentials.FromPairs(ec.GetStringSlice("google_cse_keys", nil)))
	apifyKeys := mergedCredentials(store, "apify", credentials.FromKeys(ec.GetStringSlice("apify_api_keys", nil)))
	twitterAccounts := mergedCredentials(store, "twitter", credentials.FromPairs(ec.GetStringSlice("twitter_accounts", nil)))

	// Discovery searchers. Serper leads because its answers carry richer
	// snippets; CSE steps in per variant when serper comes back thin.
	var primary, backup providers.Searcher
	var images search.ImageSearcher
	if len(serperKeys) > 0 {
		pool := credentials.NewPool("serper", serperKeys)
		e.pools["serper"] = pool
		serper := providers.NewSerperClient(pool, httpClient, rc.ParseRetries)
		primary = serper
		images = serper
		if v, err := verifiers.NewSerperVerifier(ec.GetStringSlice("serper_api_keys", nil)); err == nil {
			e.verifier.RegisterVerifier("serper", v)
		}
	}
	if len(cseKeys) > 0 {
		pool := credentials.NewPool("google-cse", cseKeys)
		e.pools["google-cse"] = pool
		cse := providers.NewCSEClient(pool, httpClient, rc.ParseRetries)
		if primary == nil {
			primary = cse
			images = cse
		} else {
			backup = cse
		}
	}

	native := map[string]providers.Searcher{}
	var twitter *twitterp.Client
	if len(twitterAccounts) > 0 {
		pool := credentials.NewPool("twitter", twitterAccounts)
		e.pools["twitter"] = pool
		twitter = twitterp.New(pool, ec.DataDir(), ec.GetBool("twitter_skip_login_verification", false))
		native[types.PlatformTwitter] = twitter
		e.verifier.RegisterVerifier("twitter", verifiers.NewTwitterVerifier(twitter))
	}

	e.aggregator = search.New(search.Config{
		Parallelism:      sc.Parallelism,
		BroadenThreshold: sc.BroadenThreshold,
		MaxResults:       sc.MaxResults,
	}, search.Deps{
		Primary: primary,
		Backup:  backup,
		Images:  images,
		Native:  native,
		Health:  report,
	})

	// Metrics tiers, most precise first. The credential-free tiers are
	// always registered; the heuristic inside the resolver makes the chain
	// total even when everything above it is down.
	oembed := providers.NewOEmbedClient(httpClient)
	rawhtml := providers.NewRawHTMLClient(mc.Timeout, nil)
	e.verifier.RegisterVerifier("oembed", verifiers.NewOEmbedVerifier())
	e.verifier.RegisterVerifier("rawhtml", verifiers.NewRawHTMLVerifier(rawhtml.UserAgent))

	deps := engagement.Deps{Health: report}
	if len(apifyKeys) > 0 {
		pool := credentials.NewPool("apify", apifyKeys)
		e.pools["apify"] = pool
		deps.MetricsAPI = append(deps.MetricsAPI, engagement.Registration{
			Fetcher:   providers.NewApifyMetricsClient(pool),
			Platforms: []string{types.PlatformInstagram},
		})
	}
	if twitter != nil {
		deps.MetricsAPI = append(deps.MetricsAPI, engagement.Registration{
			Fetcher:   twitter,
			Platforms: []string{types.PlatformTwitter},
		})
	}
	deps.Embed = append(deps.Embed, engagement.Registration{
		Fetcher:   oembed,
		Platforms: []string{types.PlatformInstagram},
	})

	var screenshots media.Screenshotter
	var browserExtractor providers.MediaExtractor
	if bc.Headless {
		e.browser = headless.NewBrowser(ctx, headless.Config{
			Headless:     true,
			WindowWidth:  int(bc.Width),
			WindowHeight: int(bc.Height),
		})
		hc := headless.NewClient(e.browser)
		deps.Headless = append(deps.Headless, engagement.Registration{Fetcher: hc})
		browserExtractor = hc
		screenshots = hc
	}
	extractors := extractorLadder(oembed, rawhtml, browserExtractor)
	deps.MetaTags = append(deps.MetaTags, engagement.Registration{
		Fetcher:   rawhtml,
		Platforms: []string{types.PlatformFacebook},
	})

	e.resolver = engagement.NewResolver(engagement.Config{TierTimeout: rc.TierTimeout}, deps)

	e.acquirer = media.New(media.Config{
		ImagesDir:          mc.ImagesDir,
		ScreenshotsDir:     mc.ScreenshotsDir,
		Timeout:            mc.Timeout,
		AllowedHosts:       mc.AllowedHosts,
		MinBytes:           mc.MinBytes,
		MaxBytes:           mc.MaxBytes,
		MinScreenshotBytes: mc.MinScreenshotBytes,
	}, media.Deps{
		HTTPClient:  httpClient,
		Extractors:  extractors,
		Screenshots: screenshots,
	})

	if dbPath := ec.GetString("sessions_db", ""); dbPath != "" {
		idx, err := sqlite.Open(dbPath)
		if err != nil {
			logrus.WithError(err).Error("Session index unavailable, continuing without history")
		} else {
			e.sessions = idx
		}
	}

	logrus.Infof("Engine ready: %d providers, %d credential pools", len(e.caps), len(e.pools))
	return e, nil
}

// Search runs one full acquisition session and always produces a manifest.
// The only errors it returns are fatal configuration problems; a session
// where every provider failed returns an empty manifest whose api_status
// says why.
func (e *Engine) Search(ctx context.Context, req types.SearchRequest) (*types.SessionManifest, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, &config.FatalConfigError{Field: "query", Reason: "must not be empty"}
	}
	if req.MaxResults <= 0 {
		req.MaxResults = e.maxResults
	}
	if req.MinEngagement <= 0 {
		req.MinEngagement = e.minScore
	}
	if len(req.Platforms) == 0 {
		req.Platforms = types.AllPlatforms()
	}

	sessionID := uuid.New().String()
	startedAt := time.Now().UTC()
	logrus.Infof("Session %s: searching %q across %v", sessionID, req.Query, req.Platforms)

	if e.sessions != nil {
		if err := e.sessions.CreateSession(ctx, sessionID, req.Query, startedAt); err != nil {
			logrus.WithError(err).Warn("Could not index session start")
		}
	}
	e.collector.Add(sessionID, stats.SearchQueries, 1)

	candidates := e.aggregator.Discover(ctx, req.Query, req.Platforms)
	e.collector.Add(sessionID, stats.SearchResults, uint(len(candidates)))

	items := e.runPipelines(ctx, sessionID, req, candidates)

	manifest := assemble.Assemble(assemble.Session{
		ID:          sessionID,
		Query:       req.Query,
		ExtractedAt: time.Now().UTC(),
		ConfigUsed:  e.configSnapshot(req),
		APIStatus:   e.apiStatus(),
	}, items, req)

	path, err := storage.WriteManifest(e.outputDir, manifest)
	if err != nil {
		logrus.WithError(err).Error("Failed to persist manifest")
		if e.sessions != nil {
			if ferr := e.sessions.FailSession(ctx, sessionID, err.Error()); ferr != nil {
				logrus.WithError(ferr).Warn("Could not index session failure")
			}
		}
		return manifest, nil
	}
	if e.sessions != nil {
		if err := e.sessions.CompleteSession(ctx, sessionID, manifest, path); err != nil {
			logrus.WithError(err).Warn("Could not index session completion")
		}
	}

	logrus.Infof("Session %s: %d posts, %d viral, manifest %s",
		sessionID, manifest.TotalContent, manifest.ViralContent, path)
	return manifest, nil
}

// runPipelines fans the candidates out under the concurrency bound. Each
// candidate runs its stages sequentially; the bound caps how many posts are
// in flight, not which stage they are in.
func (e *Engine) runPipelines(ctx context.Context, sessionID string, req types.SearchRequest, candidates []providers.Candidate) []assemble.Item {
	sem := semaphore.NewWeighted(e.concurrency)
	g, gctx := errgroup.WithContext(ctx)
	slots := make([]assemble.Item, len(candidates))

	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			slots[i] = e.runPipeline(gctx, sessionID, req, candidate)
			return nil
		})
	}
	_ = g.Wait()

	items := make([]assemble.Item, 0, len(slots))
	for _, item := range slots {
		if item.Candidate.URL != "" {
			items = append(items, item)
		}
	}
	return items
}

func (e *Engine) runPipeline(ctx context.Context, sessionID string, req types.SearchRequest, candidate providers.Candidate) assemble.Item {
	eng, tier := e.resolver.Resolve(ctx, candidate)
	e.collector.Add(sessionID, tierStat(tier), 1)

	item := assemble.Item{
		Candidate:  candidate,
		Engagement: eng,
		Score:      e.scorer.Score(eng),
	}
	if req.SkipMedia {
		return item
	}

	if asset := e.acquirer.Acquire(ctx, sessionID, candidate); asset != nil {
		item.Asset = asset
		switch asset.Kind {
		case media.KindImage:
			e.collector.Add(sessionID, stats.MediaDownloads, 1)
		case media.KindScreenshot:
			e.collector.Add(sessionID, stats.Screenshots, 1)
		}
	}
	return item
}

// Close releases the browser and the session index. In-flight searches
// should be done before calling it.
func (e *Engine) Close() error {
	if e.browser != nil {
		e.browser.Close()
	}
	if e.sessions != nil {
		return e.sessions.Close()
	}
	return nil
}

// Stats exposes the collector for the /stats endpoint and the job server.
func (e *Engine) Stats() *stats.Collector { return e.collector }

// Health exposes the provider health tracker.
func (e *Engine) Health() *health.Tracker { return e.tracker }

// Capabilities reports what this engine instance can do.
func (e *Engine) Capabilities() types.EngineCapabilities { return e.caps }

// Sessions exposes the session index; nil when no sessions_db is configured.
func (e *Engine) Sessions() *sqlite.Store { return e.sessions }

// Verifier exposes the provider probes for the startup verification pass.
func (e *Engine) Verifier() *capabilities.ProviderVerifier { return e.verifier }

func (e *Engine) loadCredentialStore(ec config.EngineConfig) map[string][]credentials.Credential {
	path := ec.GetString("credentials_file", "")
	if path == "" {
		return nil
	}
	ring := seal.NewKeyRing(ec.GetStringSlice("seal_keys", nil)...)
	store, err := credentials.LoadStore(path, ring)
	if err != nil {
		logrus.WithError(err).Errorf("Could not load credential store %s", path)
		return nil
	}
	return store
}

func (e *Engine) configSnapshot(req types.SearchRequest) map[string]any {
	return map[string]any{
		"platforms":            req.Platforms,
		"max_results":          req.MaxResults,
		"min_engagement":       req.MinEngagement,
		"skip_media":           req.SkipMedia,
		"pipeline_concurrency": e.concurrency,
		"headless":             e.browser != nil,
	}
}

// apiStatus is the provider-side story the manifest carries: which
// capabilities were present, how each provider was doing and how much
// credential headroom remained when the session closed.
func (e *Engine) apiStatus() map[string]any {
	status := map[string]any{
		"capabilities": e.caps,
		"providers":    e.tracker.Snapshot(),
	}
	if len(e.pools) > 0 {
		pools := make(map[string]any, len(e.pools))
		for name, pool := range e.pools {
			pools[name] = map[string]any{
				"size":      pool.Size(),
				"available": pool.Available(),
			}
		}
		status["credential_pools"] = pools
	}
	return status
}

// extractorLadder orders re-extraction cheapest first: one oEmbed GET for
// the post thumbnail, then a raw page fetch, then the browser when one is
// available.
func extractorLadder(oembed, rawhtml, browser providers.MediaExtractor) []providers.MediaExtractor {
	extractors := []providers.MediaExtractor{oembed, rawhtml}
	if browser != nil {
		extractors = append(extractors, browser)
	}
	return extractors
}

func tierStat(tier engagement.Tier) stats.StatType {
	switch tier {
	case engagement.TierMetricsAPI:
		return stats.MetricsAPIResolved
	case engagement.TierEmbed:
		return stats.EmbedResolved
	case engagement.TierHeadless:
		return stats.HeadlessResolved
	case engagement.TierMetaTags:
		return stats.MetaTagResolved
	default:
		return stats.HeuristicFallbacks
	}
}

func scoringConfig(ec config.EngineConfig) scoring.Config {
	sc := ec.GetScoringConfig()
	return scoring.Config{
		CommentWeight:  sc.CommentWeight,
		ShareWeight:    sc.ShareWeight,
		BonusThreshold: sc.BonusThreshold,
		BonusFactor:    sc.BonusFactor,
	}
}

// mergedCredentials combines environment credentials with the store's
// entries for one provider. Environment entries come first so ad-hoc keys
// rotate in ahead of long-lived stored ones.
func mergedCredentials(store map[string][]credentials.Credential, provider string, env []credentials.Credential) []credentials.Credential {
	if len(store) == 0 {
		return env
	}
	return append(env, store[provider]...)
}

// reporter fans provider outcomes into both the health tracker and the
// stats collector. Pools are shared across sessions, so the counters land
// under the engine-wide key.
type reporter struct {
	tracker *health.Tracker
	stats   *stats.Collector
}

func (r *reporter) ReportSuccess(provider string) {
	r.tracker.ReportSuccess(provider)
}

func (r *reporter) ReportFailure(provider string, err error) {
	r.tracker.ReportFailure(provider, err)
	r.stats.Add(stats.EngineSession, classifyProviderError(err), 1)
}

func classifyProviderError(err error) stats.StatType {
	switch {
	case errors.Is(err, credentials.ErrCredentialExhausted):
		return stats.CredentialExhaustions
	case providers.IsRateLimited(err):
		return stats.RateLimitHits
	default:
		return stats.ProviderErrors
	}
}
