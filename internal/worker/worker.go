// Package worker runs queued tasks on a fixed pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/metrics"
	"github.com/JakeFAU/iri-facility-api/internal/queue/memory"
	"github.com/JakeFAU/iri-facility-api/internal/task"
)

// Executor runs one dequeued task to completion.
type Executor interface {
	Execute(ctx context.Context, item task.QueueItem)
}

// Worker consumes queue items and hands them to the executor.
type Worker struct {
	id     int
	queue  task.Queue
	exec   Executor
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue task.Queue, exec Executor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		queue:  queue,
		exec:   exec,
		logger: logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the
// queue is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("task_id", item.TaskID))
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item task.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("task execution panicked",
				zap.String("task_id", item.TaskID),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	w.exec.Execute(ctx, item)
}
