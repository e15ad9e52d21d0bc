package capabilities_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/trendsift/viral-engine/internal/capabilities"
	"github.com/trendsift/viral-engine/internal/capabilities/health"
)

// mockVerifier is a mock implementation of the Verifier interface for testing.
type mockVerifier struct {
	err   error
	calls int
}

func (m *mockVerifier) Verify(ctx context.Context) error {
	m.calls++
	return m.err
}

var _ = Describe("ProviderVerifier", func() {
	var (
		tracker      *health.Tracker
		verifier     *ProviderVerifier
		healthyProbe *mockVerifier
		failingProbe *mockVerifier
		ctx          context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		tracker = health.NewTracker()
		verifier = NewProviderVerifier(tracker)
		healthyProbe = &mockVerifier{}
		failingProbe = &mockVerifier{err: fmt.Errorf("verification failed")}
	})

	Context("when all probes pass", func() {
		It("should mark every provider healthy in the tracker", func() {
			verifier.RegisterVerifier("serper", healthyProbe)
			verifier.RegisterVerifier("oembed", healthyProbe)
			verifier.VerifyProviders(ctx, []string{"serper", "oembed"})

			statuses := tracker.Snapshot()
			Expect(statuses).To(HaveLen(2))
			Expect(statuses["serper"].Healthy).To(BeTrue())
			Expect(statuses["oembed"].Healthy).To(BeTrue())
			Expect(healthyProbe.calls).To(Equal(2))
		})
	})

	Context("when a probe fails", func() {
		It("should record the failure without flipping the provider on one miss", func() {
			verifier.RegisterVerifier("serper", healthyProbe)
			verifier.RegisterVerifier("apify", failingProbe)
			verifier.VerifyProviders(ctx, []string{"serper", "apify"})

			statuses := tracker.Snapshot()
			Expect(statuses["serper"].Healthy).To(BeTrue())
			Expect(statuses["apify"].Healthy).To(BeTrue())
			Expect(statuses["apify"].ErrorCount).To(Equal(1))
			Expect(statuses["apify"].LastError).To(Equal("verification failed"))
		})

		It("should flip the provider unhealthy once failures run past the threshold", func() {
			verifier.RegisterVerifier("apify", failingProbe)
			for i := 0; i < 3; i++ {
				verifier.VerifyProviders(ctx, []string{"apify"})
			}

			Expect(tracker.Snapshot()["apify"].Healthy).To(BeFalse())
			Expect(tracker.Healthy()).To(BeFalse())
		})
	})

	Context("when a provider has no registered probe", func() {
		It("should be assumed healthy so the snapshot stays complete", func() {
			verifier.RegisterVerifier("serper", healthyProbe)
			verifier.VerifyProviders(ctx, []string{"serper", "heuristic"})

			statuses := tracker.Snapshot()
			Expect(statuses).To(HaveLen(2))
			Expect(statuses["heuristic"].Healthy).To(BeTrue())
			Expect(statuses["heuristic"].LastError).To(BeEmpty())
		})
	})

	Context("when there are no providers to verify", func() {
		It("should not add any statuses to the tracker", func() {
			verifier.VerifyProviders(ctx, []string{})
			Expect(tracker.Snapshot()).To(BeEmpty())
		})
	})
})
