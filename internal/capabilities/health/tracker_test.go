package health_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/trendsift/viral-engine/internal/capabilities/health"
)

// fakeClock is a settable clock shared with the tracker under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var _ = Describe("Tracker", func() {
	var (
		tracker *fakeTrackerHarness
		boom    = fmt.Errorf("upstream returned 503")
	)

	BeforeEach(func() {
		tracker = newHarness()
	})

	Describe("Creating a new tracker", func() {
		It("should be healthy with an empty, non-nil snapshot", func() {
			Expect(tracker.Healthy()).To(BeTrue())
			Expect(tracker.Snapshot()).NotTo(BeNil())
			Expect(tracker.Snapshot()).To(BeEmpty())
		})
	})

	Describe("Reporting failures", func() {
		Context("below the consecutive-failure threshold", func() {
			It("should keep the provider healthy while counting errors", func() {
				tracker.ReportFailure("apify", boom)
				tracker.ReportFailure("apify", boom)

				Expect(tracker.Healthy()).To(BeTrue())
				status := tracker.Snapshot()["apify"]
				Expect(status.Healthy).To(BeTrue())
				Expect(status.ErrorCount).To(Equal(2))
				Expect(status.LastError).To(Equal(boom.Error()))
			})
		})

		Context("when the run reaches the threshold", func() {
			It("should flip the provider unhealthy", func() {
				for i := 0; i < 3; i++ {
					tracker.ReportFailure("apify", boom)
				}

				Expect(tracker.Healthy()).To(BeFalse())
				status := tracker.Snapshot()["apify"]
				Expect(status.Healthy).To(BeFalse())
				Expect(status.ErrorCount).To(Equal(3))
				Expect(status.Provider).To(Equal("apify"))
			})
		})

		Context("when a success lands mid-run", func() {
			It("should reset the run so failures must be consecutive", func() {
				tracker.ReportFailure("oembed", boom)
				tracker.ReportFailure("oembed", boom)
				tracker.ReportSuccess("oembed")
				tracker.ReportFailure("oembed", boom)
				tracker.ReportFailure("oembed", boom)

				Expect(tracker.Snapshot()["oembed"].Healthy).To(BeTrue())
				Expect(tracker.Snapshot()["oembed"].ErrorCount).To(Equal(4))
			})
		})

		Context("when only one of several providers is failing", func() {
			It("should report the tracker unhealthy overall", func() {
				tracker.ReportSuccess("serper")
				for i := 0; i < 3; i++ {
					tracker.ReportFailure("headless", boom)
				}

				Expect(tracker.Healthy()).To(BeFalse())
				Expect(tracker.Snapshot()["serper"].Healthy).To(BeTrue())
				Expect(tracker.Snapshot()["headless"].Healthy).To(BeFalse())
			})
		})
	})

	Describe("Recovering a provider", func() {
		Context("with an explicit success", func() {
			It("should mark it healthy immediately", func() {
				for i := 0; i < 3; i++ {
					tracker.ReportFailure("rawhtml", boom)
				}
				Expect(tracker.Healthy()).To(BeFalse())

				tracker.ReportSuccess("rawhtml")
				Expect(tracker.Healthy()).To(BeTrue())
				Expect(tracker.Snapshot()["rawhtml"].Healthy).To(BeTrue())
			})
		})

		Context("through reconciliation", func() {
			It("should leave fresh unhealthy providers alone", func() {
				for i := 0; i < 3; i++ {
					tracker.ReportFailure("apify", boom)
				}

				tracker.clock.Advance(time.Minute)
				tracker.Reconcile()
				Expect(tracker.Snapshot()["apify"].Healthy).To(BeFalse())
			})

			It("should age out providers past the recovery window", func() {
				for i := 0; i < 3; i++ {
					tracker.ReportFailure("apify", boom)
				}

				tracker.clock.Advance(5 * time.Minute)
				tracker.Reconcile()
				Expect(tracker.Snapshot()["apify"].Healthy).To(BeTrue())
				Expect(tracker.Healthy()).To(BeTrue())
			})
		})
	})

	Describe("Snapshot", func() {
		It("should return a copy, not a reference", func() {
			tracker.ReportSuccess("serper")
			snap := tracker.Snapshot()
			snap["serper"] = Status{Provider: "modified"}

			Expect(tracker.Snapshot()["serper"].Provider).To(Equal("serper"))
		})
	})

	Describe("The reconciliation loop", func() {
		It("should keep reconciling until the context is cancelled", func() {
			loop := NewTracker(
				WithThreshold(1),
				WithRecoveryWindow(time.Millisecond),
				WithReconcileInterval(5*time.Millisecond),
			)
			loop.ReportFailure("serper", boom)
			Expect(loop.Healthy()).To(BeFalse())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				loop.StartReconciliationLoop(ctx)
			}()

			Eventually(loop.Healthy, time.Second, 5*time.Millisecond).Should(BeTrue())
			cancel()
			Eventually(done).Should(BeClosed())
		})
	})
})

// fakeTrackerHarness pairs a tracker with the fake clock driving it.
type fakeTrackerHarness struct {
	*Tracker
	clock *fakeClock
}

func newHarness() *fakeTrackerHarness {
	clock := &fakeClock{t: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}
	return &fakeTrackerHarness{
		Tracker: NewTracker(WithClock(clock.Now)),
		clock:   clock,
	}
}
