package client_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/trendsift/viral-engine/api/types"
	. "github.com/trendsift/viral-engine/pkg/client"
)

var _ = Describe("Client", func() {
	var (
		mockServer *httptest.Server
		client     *Client
		pollCount  atomic.Int32
	)

	BeforeEach(func() {
		pollCount.Store(0)
		mockServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/search":
				if r.Method == http.MethodPost {
					response := types.JobResponse{UID: "mock-search-id"}
					respJSON, _ := json.Marshal(response)
					w.WriteHeader(http.StatusOK)
					w.Write(respJSON)
				}
			case "/search/mock-search-id":
				if r.Method == http.MethodGet {
					// Pending on the first poll, done afterwards.
					if pollCount.Add(1) < 2 {
						w.WriteHeader(http.StatusNoContent)
						return
					}
					manifest := types.SessionManifest{Query: "sunset reels", TotalContent: 3}
					respJSON, _ := json.Marshal(manifest)
					w.WriteHeader(http.StatusOK)
					w.Write(respJSON)
				}
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		var err error
		client, err = NewClient(mockServer.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockServer.Close()
	})

	Describe("SubmitSearch", func() {
		It("should submit a search and return a handle", func() {
			handle, err := client.SubmitSearch(types.SearchRequest{Query: "sunset reels"})
			Expect(err).NotTo(HaveOccurred())
			Expect(handle.UUID).To(Equal("mock-search-id"))
		})
	})

	Describe("GetManifest", func() {
		It("should report pending until the manifest is ready", func() {
			_, done, err := client.GetManifest("mock-search-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeFalse())

			manifest, done, err := client.GetManifest("mock-search-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeTrue())
			Expect(manifest.Query).To(Equal("sunset reels"))
			Expect(manifest.TotalContent).To(Equal(3))
		})

		It("should fail for unknown searches", func() {
			_, _, err := client.GetManifest("nope")
			Expect(err).To(MatchError(ContainSubstring("not found")))
		})
	})

	Describe("SearchHandle.Get", func() {
		It("should poll until the manifest arrives", func() {
			handle, err := client.SubmitSearch(types.SearchRequest{Query: "sunset reels"})
			Expect(err).NotTo(HaveOccurred())

			handle.SetDelay(10 * time.Millisecond)
			manifest, err := handle.Get()
			Expect(err).NotTo(HaveOccurred())
			Expect(manifest.TotalContent).To(Equal(3))
		})
	})
})
