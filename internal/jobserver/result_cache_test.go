package jobserver_test

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/jobserver"
)

var _ = Describe("ResultCache", func() {
	It("stores and returns results by UUID", func() {
		cache := jobserver.NewResultCache(10, time.Minute)

		cache.Set("abc", types.JobResult{Manifest: &types.SessionManifest{Query: "desks"}})

		got, ok := cache.Get("abc")
		Expect(ok).To(BeTrue())
		Expect(got.Manifest.Query).To(Equal("desks"))

		_, ok = cache.Get("missing")
		Expect(ok).To(BeFalse())
	})

	It("evicts the oldest entries past the size bound", func() {
		cache := jobserver.NewResultCache(3, time.Minute)

		for i := 0; i < 5; i++ {
			cache.Set(fmt.Sprintf("job-%d", i), types.JobResult{})
		}

		_, ok := cache.Get("job-0")
		Expect(ok).To(BeFalse())
		_, ok = cache.Get("job-1")
		Expect(ok).To(BeFalse())
		for i := 2; i < 5; i++ {
			_, ok = cache.Get(fmt.Sprintf("job-%d", i))
			Expect(ok).To(BeTrue())
		}
	})

	It("refreshes an entry's eviction slot on overwrite", func() {
		cache := jobserver.NewResultCache(2, time.Minute)

		cache.Set("a", types.JobResult{})
		cache.Set("b", types.JobResult{})
		cache.Set("a", types.JobResult{Error: "updated"})
		cache.Set("c", types.JobResult{})

		_, ok := cache.Get("b")
		Expect(ok).To(BeFalse(), "b became the oldest once a was rewritten")

		got, ok := cache.Get("a")
		Expect(ok).To(BeTrue())
		Expect(got.Error).To(Equal("updated"))
		_, ok = cache.Get("c")
		Expect(ok).To(BeTrue())
	})

	It("expires entries past their age even when the cache is not full", func() {
		cache := jobserver.NewResultCache(10, 50*time.Millisecond)

		cache.Set("short-lived", types.JobResult{})

		Eventually(func() bool {
			_, ok := cache.Get("short-lived")
			return ok
		}, "2s", "20ms").Should(BeFalse())
	})
})
