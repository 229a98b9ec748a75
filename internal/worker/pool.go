package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/task"
)

// Pool fans out queue work to a fixed set of workers.
type Pool struct {
	queue   task.Queue
	workers []*Worker
}

var _ task.Enqueuer = (*Pool)(nil)

// NewPool creates a Pool with size workers sharing one queue and executor.
func NewPool(size int, queue task.Queue, exec Executor, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("worker")
	workers := make([]*Worker, 0, size)
	for i := 0; i < size; i++ {
		workers = append(workers, New(i, queue, exec, logger))
	}
	return &Pool{queue: queue, workers: workers}
}

// Size reports the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Run starts all workers and blocks until every worker has returned.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (p *Pool) Enqueue(ctx context.Context, item task.QueueItem) error {
	if err := p.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
