// Package queue provides admission control for browser work: a bounded FIFO
// in front of a fixed number of execution slots, with a deadline per task.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/metrics"
)

// Errors returned through Enqueue and Future.Wait.
var (
	ErrQueueFull    = errors.New("request queue is full")
	ErrQueueTimeout = errors.New("request queue task timed out")
	ErrQueueCleared = errors.New("request queue cleared")
	ErrQueueClosed  = errors.New("request queue closed")
)

const (
	defaultMaxConcurrent = 2
	defaultMaxQueueSize  = 64
	defaultTaskTimeout   = 30 * time.Second
)

// Config bounds the queue.
type Config struct {
	MaxConcurrent int
	MaxQueueSize  int
	TaskTimeout   time.Duration
}

// Task is a unit of work. The context is cancelled when the task deadline
// passes; work that ignores it keeps running after the future has settled.
type Task func(ctx context.Context) (any, error)

// Stats is a point-in-time view of queue occupancy.
type Stats struct {
	Running int
	Pending int
}

// Future settles once with the task's value or error.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(value any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx ends. Giving up on the wait does
// not cancel the task.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for task: %w", ctx.Err())
	}
}

type entry struct {
	id        uint64
	ctx       context.Context
	task      Task
	timeout   time.Duration
	createdAt time.Time
	future    *Future
}

// RequestQueue starts pending tasks in FIFO order while fewer than
// MaxConcurrent are running.
type RequestQueue struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	pending []*entry
	running int
	nextID  uint64
	closed  bool
}

// New builds a RequestQueue, filling zero values with defaults.
func New(cfg Config, logger *zap.Logger) *RequestQueue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = defaultMaxQueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestQueue{cfg: cfg, logger: logger}
}

// Enqueue admits task or rejects it immediately with ErrQueueFull when
// MaxQueueSize tasks are already waiting. A timeout <= 0 uses the configured
// default. ctx is the parent of the task context.
func (q *RequestQueue) Enqueue(ctx context.Context, task Task, timeout time.Duration) (*Future, error) {
	if task == nil {
		return nil, errors.New("task is required")
	}
	if timeout <= 0 {
		timeout = q.cfg.TaskTimeout
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	if len(q.pending) >= q.cfg.MaxQueueSize {
		pending := len(q.pending)
		q.mu.Unlock()
		metrics.ObserveQueueRejection("full")
		return nil, fmt.Errorf("%w: %d tasks pending", ErrQueueFull, pending)
	}
	q.nextID++
	e := &entry{
		id:        q.nextID,
		ctx:       ctx,
		task:      task,
		timeout:   timeout,
		createdAt: time.Now(),
		future:    newFuture(),
	}
	q.pending = append(q.pending, e)
	started := q.drainLocked()
	q.publishLocked()
	q.mu.Unlock()

	q.start(started)
	return e.future, nil
}

// Clear rejects every task that has not started yet and returns how many were
// rejected. Running tasks are unaffected.
func (q *RequestQueue) Clear() int {
	q.mu.Lock()
	cleared := q.pending
	q.pending = nil
	q.publishLocked()
	q.mu.Unlock()

	for _, e := range cleared {
		e.future.settle(nil, ErrQueueCleared)
		metrics.ObserveQueueRejection("cleared")
	}
	if len(cleared) > 0 {
		q.logger.Info("request queue cleared", zap.Int("rejected", len(cleared)))
	}
	return len(cleared)
}

// Close clears pending work and refuses new tasks.
func (q *RequestQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.Clear()
}

// Stats reports the current running and pending counts.
func (q *RequestQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Running: q.running, Pending: len(q.pending)}
}

// drainLocked claims slots for pending tasks in FIFO order. q.mu must be held.
func (q *RequestQueue) drainLocked() []*entry {
	var started []*entry
	for q.running < q.cfg.MaxConcurrent && len(q.pending) > 0 {
		e := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.running++
		started = append(started, e)
	}
	return started
}

func (q *RequestQueue) publishLocked() {
	metrics.SetQueueDepth(q.running, len(q.pending))
}

func (q *RequestQueue) start(entries []*entry) {
	for _, e := range entries {
		go q.execute(e)
	}
}

func (q *RequestQueue) execute(e *entry) {
	parent := e.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	result := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				result <- outcome{err: fmt.Errorf("task panicked: %v", rec)}
			}
		}()
		value, err := e.task(ctx)
		result <- outcome{value: value, err: err}
	}()

	select {
	case out := <-result:
		e.future.settle(out.value, out.err)
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrQueueTimeout, e.timeout)
			metrics.ObserveQueueRejection("timeout")
			q.logger.Warn("queued task timed out",
				zap.Uint64("task_id", e.id),
				zap.Duration("timeout", e.timeout),
				zap.Duration("age", time.Since(e.createdAt)),
			)
		} else {
			err = fmt.Errorf("task canceled: %w", err)
		}
		e.future.settle(nil, err)
	}

	q.finish()
}

func (q *RequestQueue) finish() {
	q.mu.Lock()
	q.running--
	started := q.drainLocked()
	q.publishLocked()
	q.mu.Unlock()
	q.start(started)
}

// Submit enqueues fn and waits for its typed result.
func Submit[T any](
	ctx context.Context,
	q *RequestQueue,
	timeout time.Duration,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	future, err := q.Enqueue(ctx, func(taskCtx context.Context) (any, error) {
		return fn(taskCtx)
	}, timeout)
	if err != nil {
		return zero, err
	}
	value, err := future.Wait(ctx)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok && value != nil {
		return zero, fmt.Errorf("unexpected task result type %T", value)
	}
	return typed, nil
}
