package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ladlebot/ladle/internal/log"
)

// Dispatcher executes a single job. Implementations route by concrete
// job type; an error means the job failed after its own user-facing
// reporting, so the worker only logs it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// Worker consumes jobs from a Queue one at a time. At most one job is
// ever in flight.
type Worker struct {
	queue      *Queue
	dispatcher Dispatcher
	tracer     trace.Tracer
	logger     log.Logger

	busy atomic.Bool
	wg   sync.WaitGroup
}

// NewWorker creates a worker bound to q. Call Start to begin consuming.
func NewWorker(q *Queue, d Dispatcher, logger log.Logger) *Worker {
	return &Worker{
		queue:      q,
		dispatcher: d,
		tracer:     otel.Tracer("ladle/queue"),
		logger:     logger,
	}
}

// Start launches the consumer goroutine. The goroutine runs until the
// queue drains after shutdown or ctx ends; a job already in flight is
// finished either way.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Busy reports whether a job is currently being processed.
func (w *Worker) Busy() bool { return w.busy.Load() }

// Wait blocks until the consumer goroutine has exited.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.logger.Info("worker stopping", "reason", err)
			return
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	ctx, span := w.tracer.Start(ctx, "queue.process", trace.WithAttributes(
		attribute.String("job_type", fmt.Sprintf("%T", job)),
	))
	defer span.End()

	w.busy.Store(true)
	defer w.busy.Store(false)

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked", "panic", fmt.Sprint(r))
		}
	}()

	if err := w.dispatcher.Dispatch(ctx, job); err != nil {
		span.RecordError(err)
		w.logger.Error("job failed", "error", err)
	}
}
