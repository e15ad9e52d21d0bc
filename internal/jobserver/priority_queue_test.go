package jobserver_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/jobserver"
)

var _ = Describe("PriorityQueue", func() {
	var pq *jobserver.PriorityQueue

	BeforeEach(func() {
		pq = jobserver.NewPriorityQueue(10, 10)
	})

	AfterEach(func() {
		pq.Close()
	})

	Describe("non-blocking operations", func() {
		It("round-trips a job through the fast lane", func() {
			Expect(pq.EnqueueFast(&types.Job{UUID: "fast-1"})).To(Succeed())

			job, err := pq.Dequeue()
			Expect(err).NotTo(HaveOccurred())
			Expect(job.UUID).To(Equal("fast-1"))
		})

		It("round-trips a job through the slow lane", func() {
			Expect(pq.EnqueueSlow(&types.Job{UUID: "slow-1"})).To(Succeed())

			job, err := pq.Dequeue()
			Expect(err).NotTo(HaveOccurred())
			Expect(job.UUID).To(Equal("slow-1"))
		})

		It("serves the fast lane before the slow lane", func() {
			Expect(pq.EnqueueSlow(&types.Job{UUID: "slow-1"})).To(Succeed())
			Expect(pq.EnqueueFast(&types.Job{UUID: "fast-1"})).To(Succeed())

			job, err := pq.Dequeue()
			Expect(err).NotTo(HaveOccurred())
			Expect(job.UUID).To(Equal("fast-1"))

			job, err = pq.Dequeue()
			Expect(err).NotTo(HaveOccurred())
			Expect(job.UUID).To(Equal("slow-1"))
		})

		It("returns ErrQueueEmpty when both lanes are empty", func() {
			_, err := pq.Dequeue()
			Expect(err).To(MatchError(jobserver.ErrQueueEmpty))
		})

		It("returns ErrQueueFull when a lane is at capacity", func() {
			small := jobserver.NewPriorityQueue(2, 2)
			defer small.Close()

			for i := 0; i < 2; i++ {
				Expect(small.EnqueueFast(&types.Job{UUID: fmt.Sprintf("job-%d", i)})).To(Succeed())
			}
			Expect(small.EnqueueFast(&types.Job{UUID: "overflow"})).To(MatchError(jobserver.ErrQueueFull))
		})
	})

	Describe("blocking dequeue", func() {
		It("blocks until a job arrives", func() {
			type outcome struct {
				job *types.Job
				err error
			}
			results := make(chan outcome, 1)

			go func() {
				job, err := pq.DequeueBlocking(context.Background())
				results <- outcome{job, err}
			}()

			Consistently(results, "100ms").ShouldNot(Receive())

			Expect(pq.EnqueueSlow(&types.Job{UUID: "arrived"})).To(Succeed())

			var got outcome
			Eventually(results, "2s").Should(Receive(&got))
			Expect(got.err).NotTo(HaveOccurred())
			Expect(got.job.UUID).To(Equal("arrived"))
		})

		It("lets a slow job through after a burst of fast ones", func() {
			for i := 0; i < 6; i++ {
				Expect(pq.EnqueueFast(&types.Job{UUID: fmt.Sprintf("fast-%d", i)})).To(Succeed())
			}
			Expect(pq.EnqueueSlow(&types.Job{UUID: "slow-0"})).To(Succeed())

			var order []string
			for i := 0; i < 7; i++ {
				job, err := pq.DequeueBlocking(context.Background())
				Expect(err).NotTo(HaveOccurred())
				order = append(order, job.UUID)
			}

			Expect(order[:4]).To(Equal([]string{"fast-0", "fast-1", "fast-2", "fast-3"}))
			Expect(order[4]).To(Equal("slow-0"), "the fifth pick must break the fast streak")
			Expect(order[5:]).To(Equal([]string{"fast-4", "fast-5"}))
		})

		It("returns the context error when cancelled while waiting", func() {
			ctx, cancel := context.WithCancel(context.Background())

			errs := make(chan error, 1)
			go func() {
				_, err := pq.DequeueBlocking(ctx)
				errs <- err
			}()

			cancel()
			Eventually(errs, "2s").Should(Receive(MatchError(context.Canceled)))
		})
	})

	Describe("close handling", func() {
		It("unblocks a waiting dequeue with ErrQueueClosed", func() {
			errs := make(chan error, 1)
			go func() {
				_, err := pq.DequeueBlocking(context.Background())
				errs <- err
			}()

			// give the goroutine time to park on the channels
			time.Sleep(50 * time.Millisecond)
			pq.Close()

			Eventually(errs, "2s").Should(Receive(MatchError(jobserver.ErrQueueClosed)))
		})

		It("refuses new jobs after close", func() {
			pq.Close()
			Expect(pq.EnqueueFast(&types.Job{UUID: "late"})).To(MatchError(jobserver.ErrQueueClosed))
			Expect(pq.EnqueueSlow(&types.Job{UUID: "late"})).To(MatchError(jobserver.ErrQueueClosed))
		})

		It("drains buffered jobs before reporting closed", func() {
			Expect(pq.EnqueueFast(&types.Job{UUID: "buffered"})).To(Succeed())
			pq.Close()

			job, err := pq.Dequeue()
			Expect(err).NotTo(HaveOccurred())
			Expect(job.UUID).To(Equal("buffered"))

			_, err = pq.Dequeue()
			Expect(err).To(MatchError(jobserver.ErrQueueClosed))
		})

		It("is safe to close twice", func() {
			pq.Close()
			Expect(pq.Close).NotTo(Panic())
		})
	})

	Describe("stats", func() {
		It("tracks depths and processed counts per lane", func() {
			Expect(pq.EnqueueFast(&types.Job{UUID: "f1"})).To(Succeed())
			Expect(pq.EnqueueFast(&types.Job{UUID: "f2"})).To(Succeed())
			Expect(pq.EnqueueSlow(&types.Job{UUID: "s1"})).To(Succeed())

			stats := pq.GetStats()
			Expect(stats.FastQueueDepth).To(Equal(2))
			Expect(stats.SlowQueueDepth).To(Equal(1))
			Expect(stats.FastProcessed).To(BeZero())

			for i := 0; i < 3; i++ {
				_, err := pq.Dequeue()
				Expect(err).NotTo(HaveOccurred())
			}

			stats = pq.GetStats()
			Expect(stats.FastQueueDepth).To(BeZero())
			Expect(stats.SlowQueueDepth).To(BeZero())
			Expect(stats.FastProcessed).To(Equal(int64(2)))
			Expect(stats.SlowProcessed).To(Equal(int64(1)))
			Expect(stats.LastUpdate).NotTo(BeZero())
		})
	})
})
