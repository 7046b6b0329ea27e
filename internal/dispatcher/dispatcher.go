// Package dispatcher fans queued scans out to a pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/brandscan/internal/scan"
)

// Runner consumes the queue until its context ends. *worker.Worker
// satisfies it.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher owns the job queue and the workers draining it.
type Dispatcher struct {
	queue   scan.Queue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue scan.Queue, workers ...Runner) *Dispatcher {
	return &Dispatcher{queue: queue, workers: workers}
}

// Run starts all workers and blocks until every one has returned, which
// happens when ctx ends or the queue is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	wg.Wait()
}

// Enqueue submits a scan to the workers.
func (d *Dispatcher) Enqueue(ctx context.Context, item scan.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
