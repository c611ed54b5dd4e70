// Package queue provides the single-consumer job queue feeding the
// image worker. Producers never block; the one consumer blocks until a
// job arrives or its context ends.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/ladlebot/ladle/internal/log"
)

// ErrClosed is returned by Dequeue once the queue is shut down and the
// backlog has drained.
var ErrClosed = errors.New("queue: closed")

// Queue is an unbounded FIFO job queue. Safe for concurrent use by any
// number of producers and a single consumer.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []Job
	closed bool
	logger log.Logger
}

// New creates an empty queue.
func New(logger log.Logger) *Queue {
	q := &Queue{logger: logger}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends job and returns its 1-based position in the backlog.
// Returns 0 if the queue has been shut down.
func (q *Queue) Enqueue(job Job) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("enqueue after shutdown dropped")
		return 0
	}
	q.jobs = append(q.jobs, job)
	pos := len(q.jobs)
	q.cond.Signal()
	q.logger.Debug("job enqueued", "position", pos)
	return pos
}

// Dequeue blocks until a job is available, the queue is shut down, or
// ctx ends. After Shutdown it returns ErrClosed; if ctx ends first it
// returns ctx.Err().
func (q *Queue) Dequeue(ctx context.Context) (Job, error) {
	// Wake the cond.Wait loop when ctx ends. The goroutine exits once
	// Dequeue returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.cond.Broadcast()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return nil, ErrClosed
		}
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs[0] = nil
			q.jobs = q.jobs[1:]
			return job, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.cond.Wait()
	}
}

// Size reports the number of jobs waiting, excluding any in flight.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Shutdown stops accepting new jobs and discards any queued-but-
// unprocessed jobs. A job already dequeued is unaffected and runs to
// completion.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	discarded := len(q.jobs)
	q.jobs = nil
	q.cond.Broadcast()
	q.logger.Info("queue shut down", "discarded", discarded)
}
