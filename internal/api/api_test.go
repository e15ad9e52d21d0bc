package api_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/api"
	"github.com/trendsift/viral-engine/internal/config"
	"github.com/trendsift/viral-engine/internal/engine"
	"github.com/trendsift/viral-engine/pkg/client"
)

// serverConfig builds a config for an engine with no provider credentials.
// Searches complete with an empty manifest instead of touching the network.
func serverConfig(tmp, listen string) config.EngineConfig {
	return config.EngineConfig{
		"images_dir":           filepath.Join(tmp, "images"),
		"screenshots_dir":      filepath.Join(tmp, "screenshots"),
		"output_dir":           filepath.Join(tmp, "output"),
		"sessions_db":          filepath.Join(tmp, "sessions.db"),
		"pipeline_concurrency": 2,
		"search_parallelism":   2,
		"max_images":           10,
		"timeout_seconds":      5,
		"tier_timeout_seconds": 15,
		"headless":             false,
		"listen_address":       listen,
		"log_level":            "error",
	}
}

func freeAddr() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	defer l.Close()
	return l.Addr().String()
}

func startServer(ctx context.Context, ec config.EngineConfig) (*engine.Engine, string) {
	eng, err := engine.New(ctx, ec)
	Expect(err).NotTo(HaveOccurred())

	go api.Start(ctx, eng, ec)

	baseURL := "http://" + ec.GetString("listen_address", "")
	Eventually(func() error {
		resp, err := http.Get(baseURL + "/healthz")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("healthz returned %d", resp.StatusCode)
		}
		return nil
	}, 5*time.Second, 100*time.Millisecond).Should(Succeed())

	return eng, baseURL
}

var _ = Describe("API", func() {

	var (
		clientInstance *client.Client
		eng            *engine.Engine
		baseURL        string
		ctx            context.Context
		cancel         context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())

		ec := serverConfig(GinkgoT().TempDir(), freeAddr())
		eng, baseURL = startServer(ctx, ec)

		var err error
		clientInstance, err = client.NewClient(baseURL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cancel()
		eng.Close()
	})

	It("accepts a search and serves the manifest once it completes", func() {
		handle, err := clientInstance.SubmitSearch(types.SearchRequest{
			Query:     "standing desk",
			Platforms: []string{types.PlatformInstagram},
			SkipMedia: true,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(handle.UUID).NotTo(BeEmpty())

		handle.SetDelay(100 * time.Millisecond)
		manifest, err := handle.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(manifest).NotTo(BeNil())
		Expect(manifest.Query).To(Equal("standing desk"))
		Expect(manifest.SessionID).NotTo(BeEmpty())
		Expect(manifest.TotalContent).To(BeZero())
	})

	It("rejects a search without a query", func() {
		_, err := clientInstance.SubmitSearch(types.SearchRequest{Query: "   "})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("400"))
	})

	It("reports unknown search ids", func() {
		_, done, err := clientInstance.GetManifest("b5ac63f5-0000-0000-0000-000000000000")
		Expect(err).To(MatchError(ContainSubstring("search not found")))
		Expect(done).To(BeFalse())
	})

	It("lists completed sessions", func() {
		handle, err := clientInstance.SubmitSearch(types.SearchRequest{
			Query:     "cold brew hacks",
			SkipMedia: true,
		})
		Expect(err).NotTo(HaveOccurred())
		handle.SetDelay(100 * time.Millisecond)
		_, err = handle.Get()
		Expect(err).NotTo(HaveOccurred())

		resp, err := http.Get(baseURL + "/sessions")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("cold brew hacks"))
		Expect(string(body)).To(ContainSubstring("completed"))
	})

	It("exposes queue stats, capabilities and engine stats", func() {
		for path, fragment := range map[string]string{
			"/search/queue/stats": "fast_queue_depth",
			"/capabilities":       "oembed",
			"/stats":              "boot_time",
		} {
			resp, err := http.Get(baseURL + path)
			Expect(err).NotTo(HaveOccurred())
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK), path)
			Expect(string(body)).To(ContainSubstring(fragment), path)
		}
	})
})

var _ = Describe("API with an api_key configured", func() {

	var (
		baseURL string
		eng     *engine.Engine
		cancel  context.CancelFunc
	)

	BeforeEach(func() {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())

		ec := serverConfig(GinkgoT().TempDir(), freeAddr())
		ec["api_key"] = "super-secret"
		eng, baseURL = startServer(ctx, ec)
	})

	AfterEach(func() {
		cancel()
		eng.Close()
	})

	It("turns away clients without the key", func() {
		anonymous, err := client.NewClient(baseURL)
		Expect(err).NotTo(HaveOccurred())

		_, err = anonymous.SubmitSearch(types.SearchRequest{Query: "espresso", SkipMedia: true})
		Expect(err).To(MatchError(ContainSubstring("401")))
	})

	It("serves clients that present the key", func() {
		authed, err := client.NewClient(baseURL, client.APIKey("super-secret"))
		Expect(err).NotTo(HaveOccurred())

		handle, err := authed.SubmitSearch(types.SearchRequest{Query: "espresso", SkipMedia: true})
		Expect(err).NotTo(HaveOccurred())

		handle.SetDelay(100 * time.Millisecond)
		manifest, err := handle.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(manifest.Query).To(Equal("espresso"))
	})

	It("still answers health probes without the key", func() {
		resp, err := http.Get(baseURL + "/healthz")
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})
})
