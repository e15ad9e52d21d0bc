package jobserver_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/config"
	"github.com/trendsift/viral-engine/internal/jobserver"
)

// fakeEngine records search requests and answers with a canned manifest or
// error. When block is set it holds the call until the context is done, so
// the job timeout path can be exercised.
type fakeEngine struct {
	mu       sync.Mutex
	requests []types.SearchRequest
	err      error
	block    bool
}

func (f *fakeEngine) Search(ctx context.Context, req types.SearchRequest) (*types.SessionManifest, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &types.SessionManifest{Query: req.Query, TotalContent: 1}, nil
}

func (f *fakeEngine) seen() []types.SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.SearchRequest(nil), f.requests...)
}

var _ = Describe("JobServer", func() {
	var (
		engine *fakeEngine
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		engine = &fakeEngine{}
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	It("runs a search job and caches the manifest", func() {
		js := jobserver.NewJobServer(2, config.EngineConfig{}, engine)
		defer js.Shutdown()

		uid := js.AddJob(types.Job{
			Type:      types.SearchJobType,
			Arguments: types.JobArguments{"query": "standing desk"},
		})
		Expect(uid).NotTo(BeEmpty())

		result, exists := js.GetJobResult(uid)
		Expect(exists).To(BeTrue(), "an accepted job is visible immediately")
		Expect(result.Manifest).To(BeNil(), "but it has no manifest until a worker finishes it")

		go js.Run(ctx)

		Eventually(func() bool {
			result, ok := js.GetJobResult(uid)
			return ok && result.Success() && result.Manifest != nil && result.Manifest.Query == "standing desk"
		}, "5s").Should(BeTrue())

		Expect(engine.seen()).To(HaveLen(1))
		Expect(engine.seen()[0].Query).To(Equal("standing desk"))
	})

	It("records engine failures as the job result", func() {
		engine.err = errors.New("all providers down")
		js := jobserver.NewJobServer(1, config.EngineConfig{}, engine)
		defer js.Shutdown()
		go js.Run(ctx)

		uid := js.AddJob(types.Job{
			Type:      types.SearchJobType,
			Arguments: types.JobArguments{"query": "anything"},
		})

		Eventually(func() string {
			result, _ := js.GetJobResult(uid)
			return result.Error
		}, "5s").Should(ContainSubstring("all providers down"))
	})

	It("rejects unknown job types through the result cache", func() {
		js := jobserver.NewJobServer(1, config.EngineConfig{}, engine)
		defer js.Shutdown()
		go js.Run(ctx)

		uid := js.AddJob(types.Job{Type: "transcode"})

		Eventually(func() string {
			result, _ := js.GetJobResult(uid)
			return result.Error
		}, "5s").Should(ContainSubstring("unknown job type"))
		Expect(engine.seen()).To(BeEmpty())
	})

	It("cancels jobs that outrun the configured timeout", func() {
		engine.block = true
		js := jobserver.NewJobServer(1, config.EngineConfig{
			"job_timeout_seconds": 50 * time.Millisecond,
		}, engine)
		defer js.Shutdown()
		go js.Run(ctx)

		uid := js.AddJob(types.Job{
			Type:      types.SearchJobType,
			Arguments: types.JobArguments{"query": "slow"},
		})

		Eventually(func() string {
			result, _ := js.GetJobResult(uid)
			return result.Error
		}, "5s").Should(ContainSubstring("context deadline exceeded"))
	})

	It("routes metadata-only searches to the fast lane", func() {
		// no Run call, so the jobs stay queued where AddJob put them
		js := jobserver.NewJobServer(1, config.EngineConfig{}, engine)
		defer js.Shutdown()

		js.AddJob(types.Job{
			Type:      types.SearchJobType,
			Arguments: types.JobArguments{"query": "quick", "skip_media": true},
		})
		js.AddJob(types.Job{
			Type:      types.SearchJobType,
			Arguments: types.JobArguments{"query": "full"},
		})

		stats := js.GetQueueStats()
		Expect(stats.FastQueueDepth).To(Equal(1))
		Expect(stats.SlowQueueDepth).To(Equal(1))
	})

	It("records a failed result when the queue is closed", func() {
		js := jobserver.NewJobServer(1, config.EngineConfig{}, engine)
		js.Shutdown()

		uid := js.AddJob(types.Job{
			Type:      types.SearchJobType,
			Arguments: types.JobArguments{"query": "late"},
		})

		result, exists := js.GetJobResult(uid)
		Expect(exists).To(BeTrue())
		Expect(result.Error).To(ContainSubstring("could not queue job"))
	})

	It("reports whether the workers are up", func() {
		js := jobserver.NewJobServer(1, config.EngineConfig{}, engine)
		defer js.Shutdown()

		Expect(js.Running()).To(BeFalse())
		go js.Run(ctx)
		Eventually(js.Running, "2s").Should(BeTrue())

		cancel()
		Eventually(js.Running, "2s").Should(BeFalse())
	})
})
