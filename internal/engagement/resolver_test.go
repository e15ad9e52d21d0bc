package engagement

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/providers"
)

type fakeFetcher struct {
	name string
	eng  *providers.Engagement
	err  error

	mu          sync.Mutex
	calls       int
	sawDeadline bool
	callLog     *[]string
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) Capabilities() []types.Capability {
	return []types.Capability{types.CapMetrics}
}

func (f *fakeFetcher) FetchMetrics(ctx context.Context, _ providers.Candidate) (*providers.Engagement, error) {
	f.mu.Lock()
	f.calls++
	_, f.sawDeadline = ctx.Deadline()
	if f.callLog != nil {
		*f.callLog = append(*f.callLog, f.name)
	}
	f.mu.Unlock()
	return f.eng, f.err
}

type recordingHealth struct {
	mu        sync.Mutex
	successes map[string]int
	failures  map[string]int
}

func newRecordingHealth() *recordingHealth {
	return &recordingHealth{successes: map[string]int{}, failures: map[string]int{}}
}

func (h *recordingHealth) ReportSuccess(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes[provider]++
}

func (h *recordingHealth) ReportFailure(provider string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[provider]++
}

var _ = Describe("Resolver", func() {
	var (
		health    *recordingHealth
		candidate providers.Candidate
	)

	exact := &providers.Engagement{Likes: 100, Confidence: providers.ConfidenceExact, Source: "apify"}

	BeforeEach(func() {
		health = newRecordingHealth()
		candidate = providers.Candidate{
			URL:      "https://instagram.com/p/Cxy123",
			Platform: types.PlatformInstagram,
		}
	})

	It("resolves from the first tier when the metrics API answers", func() {
		api := &fakeFetcher{name: "apify", eng: exact}
		embed := &fakeFetcher{name: "oembed", eng: &providers.Engagement{Likes: 50}}

		r := NewResolver(Config{}, Deps{
			MetricsAPI: []Registration{{Fetcher: api, Platforms: []string{types.PlatformInstagram}}},
			Embed:      []Registration{{Fetcher: embed}},
			Health:     health,
		})
		eng, tier := r.Resolve(context.Background(), candidate)

		Expect(tier).To(Equal(TierMetricsAPI))
		Expect(eng.Likes).To(Equal(int64(100)))
		Expect(embed.calls).To(BeZero(), "later tiers must not run")
		Expect(health.successes["apify"]).To(Equal(1))
	})

	It("falls through tiers in order until one answers", func() {
		var order []string
		api := &fakeFetcher{name: "apify", err: errors.New("down"), callLog: &order}
		embed := &fakeFetcher{name: "oembed", err: errors.New("gone"), callLog: &order}
		headless := &fakeFetcher{
			name:    "headless",
			eng:     &providers.Engagement{Likes: 7, Confidence: providers.ConfidenceHeadless},
			callLog: &order,
		}

		r := NewResolver(Config{}, Deps{
			MetricsAPI: []Registration{{Fetcher: api}},
			Embed:      []Registration{{Fetcher: embed}},
			Headless:   []Registration{{Fetcher: headless}},
			Health:     health,
		})
		eng, tier := r.Resolve(context.Background(), candidate)

		Expect(tier).To(Equal(TierHeadless))
		Expect(eng.Confidence).To(Equal(providers.ConfidenceHeadless))
		Expect(order).To(Equal([]string{"apify", "oembed", "headless"}))
		Expect(health.failures["apify"]).To(Equal(1))
		Expect(health.failures["oembed"]).To(Equal(1))
		Expect(health.successes["headless"]).To(Equal(1))
	})

	It("never calls a fetcher registered for another platform", func() {
		api := &fakeFetcher{name: "apify", eng: exact}

		r := NewResolver(Config{}, Deps{
			MetricsAPI: []Registration{{Fetcher: api, Platforms: []string{types.PlatformInstagram}}},
			Health:     health,
		})
		candidate.Platform = types.PlatformFacebook
		eng, tier := r.Resolve(context.Background(), candidate)

		Expect(api.calls).To(BeZero())
		Expect(tier).To(Equal(TierHeuristic))
		Expect(eng).NotTo(BeNil())
		Expect(health.failures).To(BeEmpty(), "a skipped fetcher is not a failed one")
	})

	It("reaches the heuristic when everything above fails", func() {
		failing := &fakeFetcher{name: "x", err: errors.New("no")}

		r := NewResolver(Config{}, Deps{
			MetricsAPI: []Registration{{Fetcher: failing}},
			Embed:      []Registration{{Fetcher: failing}},
			Headless:   []Registration{{Fetcher: failing}},
			MetaTags:   []Registration{{Fetcher: failing}},
		})
		eng, tier := r.Resolve(context.Background(), candidate)

		Expect(tier).To(Equal(TierHeuristic))
		Expect(eng.Confidence).To(Equal(providers.ConfidenceHeuristic))
		Expect(eng.Views).To(BeNumerically(">", 0))
	})

	It("estimates immediately when nothing is registered", func() {
		r := NewResolver(Config{}, Deps{})

		eng, tier := r.Resolve(context.Background(), candidate)

		Expect(tier).To(Equal(TierHeuristic))
		Expect(eng.Source).To(Equal("heuristic"))
	})

	It("wraps each tier in a deadline", func() {
		api := &fakeFetcher{name: "apify", eng: exact}

		r := NewResolver(Config{}, Deps{MetricsAPI: []Registration{{Fetcher: api}}})
		r.Resolve(context.Background(), candidate)

		Expect(api.sawDeadline).To(BeTrue())
	})

	It("clamps the tier timeout into 10..20s", func() {
		Expect(NewResolver(Config{TierTimeout: time.Second}, Deps{}).timeout).To(Equal(minTierTimeout))
		Expect(NewResolver(Config{TierTimeout: time.Minute}, Deps{}).timeout).To(Equal(maxTierTimeout))
		Expect(NewResolver(Config{}, Deps{}).timeout).To(Equal(defaultTierTimeout))
	})

	It("still estimates when the session context is already gone", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		failing := &fakeFetcher{name: "x", err: context.Canceled}

		r := NewResolver(Config{}, Deps{MetricsAPI: []Registration{{Fetcher: failing}}})
		eng, tier := r.Resolve(ctx, candidate)

		Expect(tier).To(Equal(TierHeuristic))
		Expect(eng).NotTo(BeNil())
	})
})

var _ = Describe("Estimator", func() {
	est := NewEstimator(DefaultHeuristicConfig())

	DescribeTable("platform estimates",
		func(postURL, platform string, wantViews, wantLikes, wantComments, wantShares int64) {
			eng := est.Estimate(providers.Candidate{URL: postURL, Platform: platform})

			Expect(eng.Views).To(Equal(wantViews))
			Expect(eng.Likes).To(Equal(wantLikes))
			Expect(eng.Comments).To(Equal(wantComments))
			Expect(eng.Shares).To(Equal(wantShares))
			Expect(eng.Followers).To(Equal(int64(5000)))
			Expect(eng.Confidence).To(Equal(providers.ConfidenceHeuristic))
		},
		Entry("instagram post", "https://instagram.com/p/A", types.PlatformInstagram,
			int64(750), int64(60), int64(9), int64(15)),
		Entry("instagram reel", "https://instagram.com/reel/A", types.PlatformInstagram,
			int64(1250), int64(100), int64(15), int64(25)),
		Entry("facebook post", "https://facebook.com/x/posts/1", types.PlatformFacebook,
			int64(300), int64(40), int64(6), int64(10)),
		Entry("facebook photo", "https://facebook.com/x/photos/1", types.PlatformFacebook,
			int64(450), int64(60), int64(9), int64(15)),
		Entry("youtube video", "https://youtube.com/watch?v=a", types.PlatformYouTube,
			int64(2000), int64(80), int64(12), int64(20)),
		Entry("tweet", "https://x.com/u/status/1", types.PlatformTwitter,
			int64(700), int64(70), int64(10), int64(17)),
		Entry("unknown platform", "https://example.com/post", "",
			int64(500), int64(50), int64(7), int64(12)),
	)
})
