package jobserver

import (
	"context"
	"sync"
	"time"

	"github.com/trendsift/viral-engine/api/types"
)

// fastLaneBurst is how many consecutive fast-lane jobs a worker takes
// before it must serve a waiting slow job. Without the cap a steady stream
// of metadata-only searches would park media sessions forever.
const fastLaneBurst = 4

// PriorityQueue is the dual-lane job buffer. Metadata-only searches ride
// the fast lane because they finish in seconds; sessions that download
// media ride the slow one. Dequeue prefers the fast lane up to
// fastLaneBurst picks in a row.
//
// After Close no new jobs are accepted, but jobs already buffered can
// still be drained.
type PriorityQueue struct {
	fast chan *types.Job
	slow chan *types.Job

	mu     sync.RWMutex
	closed bool

	statsMu       sync.Mutex
	fastProcessed int64
	slowProcessed int64
	fastStreak    int
	lastUpdate    time.Time
}

// QueueStats is a point-in-time snapshot of the dual queue.
type QueueStats struct {
	FastQueueDepth int       `json:"fast_queue_depth"`
	SlowQueueDepth int       `json:"slow_queue_depth"`
	FastProcessed  int64     `json:"fast_processed"`
	SlowProcessed  int64     `json:"slow_processed"`
	LastUpdate     time.Time `json:"last_update"`
}

func NewPriorityQueue(fastSize, slowSize int) *PriorityQueue {
	if fastSize <= 0 {
		fastSize = defaultFastQueueSize
	}
	if slowSize <= 0 {
		slowSize = defaultSlowQueueSize
	}
	return &PriorityQueue{
		fast:       make(chan *types.Job, fastSize),
		slow:       make(chan *types.Job, slowSize),
		lastUpdate: time.Now(),
	}
}

// EnqueueFast adds a job to the fast lane without blocking. Returns
// ErrQueueFull when the lane is at capacity and ErrQueueClosed after Close.
func (pq *PriorityQueue) EnqueueFast(job *types.Job) error {
	// the read lock is held across the send so Close cannot slip in
	// between the check and the send
	pq.mu.RLock()
	defer pq.mu.RUnlock()
	if pq.closed {
		return ErrQueueClosed
	}
	select {
	case pq.fast <- job:
		pq.touch()
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueSlow adds a job to the slow lane without blocking.
func (pq *PriorityQueue) EnqueueSlow(job *types.Job) error {
	pq.mu.RLock()
	defer pq.mu.RUnlock()
	if pq.closed {
		return ErrQueueClosed
	}
	select {
	case pq.slow <- job:
		pq.touch()
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue takes the next job without blocking, fast lane strictly first.
// Returns ErrQueueEmpty when both lanes are empty, ErrQueueClosed once the
// queue is closed and drained.
func (pq *PriorityQueue) Dequeue() (*types.Job, error) {
	pq.mu.RLock()
	closed := pq.closed
	pq.mu.RUnlock()

	select {
	case job := <-pq.fast:
		if job == nil {
			return nil, ErrQueueClosed
		}
		pq.noteDequeue(true)
		return job, nil
	default:
	}
	select {
	case job := <-pq.slow:
		if job == nil {
			return nil, ErrQueueClosed
		}
		pq.noteDequeue(false)
		return job, nil
	default:
	}
	if closed {
		return nil, ErrQueueClosed
	}
	return nil, ErrQueueEmpty
}

// DequeueBlocking takes the next job, waiting until one arrives, the queue
// closes or ctx is done. The fast lane wins while its streak stays under
// fastLaneBurst; then one slow job is served when available and the streak
// resets.
func (pq *PriorityQueue) DequeueBlocking(ctx context.Context) (*types.Job, error) {
	if pq.slowIsDue() {
		select {
		case job := <-pq.slow:
			if job == nil {
				return nil, ErrQueueClosed
			}
			pq.noteDequeue(false)
			return job, nil
		default:
		}
	}

	select {
	case job := <-pq.fast:
		if job == nil {
			return nil, ErrQueueClosed
		}
		pq.noteDequeue(true)
		return job, nil
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job := <-pq.fast:
		if job == nil {
			return nil, ErrQueueClosed
		}
		pq.noteDequeue(true)
		return job, nil
	case job := <-pq.slow:
		if job == nil {
			return nil, ErrQueueClosed
		}
		pq.noteDequeue(false)
		return job, nil
	}
}

// Close stops the queue from accepting jobs. Buffered jobs can still be
// dequeued; once drained, dequeues return ErrQueueClosed. Idempotent.
func (pq *PriorityQueue) Close() {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if !pq.closed {
		pq.closed = true
		close(pq.fast)
		close(pq.slow)
	}
}

// GetStats snapshots the lane depths and throughput counters.
func (pq *PriorityQueue) GetStats() QueueStats {
	pq.statsMu.Lock()
	defer pq.statsMu.Unlock()
	return QueueStats{
		FastQueueDepth: len(pq.fast),
		SlowQueueDepth: len(pq.slow),
		FastProcessed:  pq.fastProcessed,
		SlowProcessed:  pq.slowProcessed,
		LastUpdate:     pq.lastUpdate,
	}
}

func (pq *PriorityQueue) noteDequeue(fast bool) {
	pq.statsMu.Lock()
	defer pq.statsMu.Unlock()
	if fast {
		pq.fastProcessed++
		pq.fastStreak++
	} else {
		pq.slowProcessed++
		pq.fastStreak = 0
	}
	pq.lastUpdate = time.Now()
}

func (pq *PriorityQueue) slowIsDue() bool {
	pq.statsMu.Lock()
	defer pq.statsMu.Unlock()
	return pq.fastStreak >= fastLaneBurst
}

// touch is called with pq.mu read-held by the enqueue paths.
func (pq *PriorityQueue) touch() {
	pq.statsMu.Lock()
	pq.lastUpdate = time.Now()
	pq.statsMu.Unlock()
}
