package jobserver

import "errors"

var (
	// ErrQueueClosed is returned when the queue no longer accepts jobs.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueFull is returned when the addressed lane is at capacity.
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueEmpty is returned by a non-blocking dequeue when no job waits.
	ErrQueueEmpty = errors.New("all queues are empty")
)
