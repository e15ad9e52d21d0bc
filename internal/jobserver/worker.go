package jobserver

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/api/types"
)

// worker executes one job type. Implementations must be safe for concurrent
// use; the server runs them from every worker goroutine at once.
type worker interface {
	ExecuteJob(ctx context.Context, j types.Job) (types.JobResult, error)
}

// searchWorker drives full acquisition sessions through the engine.
type searchWorker struct {
	engine SearchEngine
}

func (w *searchWorker) ExecuteJob(ctx context.Context, j types.Job) (types.JobResult, error) {
	var req types.SearchRequest
	if err := j.Arguments.Unmarshal(&req); err != nil {
		return types.JobResult{}, fmt.Errorf("decoding search arguments: %w", err)
	}

	manifest, err := w.engine.Search(ctx, req)
	if err != nil {
		return types.JobResult{}, err
	}
	return types.JobResult{Manifest: manifest}, nil
}

func (js *JobServer) worker(ctx context.Context) {
	for {
		job, err := js.queue.DequeueBlocking(ctx)
		if err != nil {
			return
		}
		js.doWork(ctx, *job)
	}
}

func (js *JobServer) doWork(ctx context.Context, j types.Job) {
	w, exists := js.jobWorkers[j.Type]
	if !exists {
		logrus.Errorf("Job %s has unknown type %q", j.UUID, j.Type)
		js.results.Set(j.UUID, types.JobResult{Error: fmt.Sprintf("unknown job type: %s", j.Type)})
		return
	}

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	result, err := w.ExecuteJob(ctx, j)
	if err != nil {
		logrus.WithError(err).Warnf("Job %s failed", j.UUID)
		result.Error = err.Error()
	}
	js.results.Set(j.UUID, result)
}
