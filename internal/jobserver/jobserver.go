// Package jobserver turns synchronous engine searches into queued jobs.
// Callers get a UUID back immediately; worker goroutines drain a dual-lane
// priority queue and park finished manifests in a bounded result cache for
// the pollers to collect.
package jobserver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/api/types"
	"github.com/trendsift/viral-engine/internal/config"
)

const (
	defaultFastQueueSize = 1000
	defaultSlowQueueSize = 5000
)

// SearchEngine is the slice of the engine the job server drives.
type SearchEngine interface {
	Search(ctx context.Context, req types.SearchRequest) (*types.SessionManifest, error)
}

type JobServer struct {
	workers int
	timeout time.Duration

	queue   *PriorityQueue
	results *ResultCache

	jobWorkers map[string]worker

	running atomic.Bool
}

func NewJobServer(workers int, ec config.EngineConfig, eng SearchEngine) *JobServer {
	if workers <= 0 {
		logrus.Infof("Invalid worker count (%d), defaulting to 1", workers)
		workers = 1
	}

	fastSize, _ := ec.GetInt("fast_queue_size", defaultFastQueueSize)
	slowSize, _ := ec.GetInt("slow_queue_size", defaultSlowQueueSize)
	cacheSize, _ := ec.GetInt("result_cache_max_size", defaultCacheSize)

	js := &JobServer{
		workers: workers,
		timeout: ec.GetDuration("job_timeout_seconds", 300),
		queue:   NewPriorityQueue(fastSize, slowSize),
		results: NewResultCache(cacheSize, ec.GetDuration("result_cache_max_age_seconds", 600)),
		jobWorkers: map[string]worker{
			types.SearchJobType: &searchWorker{engine: eng},
		},
	}

	logrus.Infof("Job server ready: %d workers, fast lane %d, slow lane %d", workers, fastSize, slowSize)
	return js
}

// Run starts the worker goroutines and blocks until ctx is done.
func (js *JobServer) Run(ctx context.Context) {
	js.running.Store(true)
	defer js.running.Store(false)

	for i := 0; i < js.workers; i++ {
		go js.worker(ctx)
	}
	<-ctx.Done()
}

// Running reports whether the worker goroutines are up. The readiness
// endpoint refuses traffic until they are.
func (js *JobServer) Running() bool {
	return js.running.Load()
}

// AddJob assigns the job a UUID and queues it without blocking. Metadata-only
// searches take the fast lane. When no lane can hold the job it never runs;
// the failure is recorded as its result so pollers see what happened.
func (js *JobServer) AddJob(j types.Job) string {
	j.UUID = uuid.New().String()
	j.Timeout = js.timeout

	// A zero result marks the job as accepted and still running, so the
	// status endpoint can tell "in flight" from "never heard of it".
	js.results.Set(j.UUID, types.JobResult{})

	if err := js.enqueue(&j); err != nil {
		logrus.WithError(err).Errorf("Could not queue job %s", j.UUID)
		js.results.Set(j.UUID, types.JobResult{Error: fmt.Sprintf("could not queue job: %v", err)})
	}
	return j.UUID
}

func (js *JobServer) enqueue(j *types.Job) error {
	if skipsMedia(*j) {
		if err := js.queue.EnqueueFast(j); err == nil {
			return nil
		}
		// fast lane full, the slow lane is the fallback
	}
	return js.queue.EnqueueSlow(j)
}

// skipsMedia reports whether the job asks for a metadata-only session.
// Those finish in seconds, so they get the fast lane.
func skipsMedia(j types.Job) bool {
	if j.Type != types.SearchJobType {
		return false
	}
	var req types.SearchRequest
	if err := j.Arguments.Unmarshal(&req); err != nil {
		return false
	}
	return req.SkipMedia
}

// GetJobResult returns the cached state of a job. A zero result with no
// error and no manifest means the job was accepted and is still running;
// false means the UUID is unknown or its result has already expired.
func (js *JobServer) GetJobResult(uuid string) (types.JobResult, bool) {
	return js.results.Get(uuid)
}

// GetQueueStats snapshots the lane depths and throughput counters.
func (js *JobServer) GetQueueStats() QueueStats {
	return js.queue.GetStats()
}

// Shutdown stops the queue from accepting jobs and lets the buffered ones
// drain. Cancel the Run context to stop the workers themselves.
func (js *JobServer) Shutdown() {
	js.queue.Close()
}
