package diagnostics

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/logging"
)

// DefaultQueueSize bounds the serial dispatcher's backlog.
const DefaultQueueSize = 64

// Dispatcher runs fault-handling work off the faulting goroutine. Submit
// never blocks on the task itself.
type Dispatcher interface {
	Submit(task func()) error
	// Close stops accepting work and waits for accepted tasks until ctx is done.
	Close(ctx context.Context) error
}

// runTask executes task and swallows any panic it raises. A failing dump
// task must not take the process down with it.
func runTask(logger *logging.Logger, task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatched task panicked",
				"error", newDumpError(KindHandlerInternalFailure, "run task", "", fmt.Errorf("%v", r)))
		}
	}()
	task()
}

// PoolDispatcher runs every task on its own goroutine. MaxConcurrent > 0
// limits how many run at once; the rest wait on a semaphore.
type PoolDispatcher struct {
	logger *logging.Logger
	sem    *semaphore.Weighted

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPoolDispatcher creates a pool dispatcher. maxConcurrent <= 0 means unbounded.
func NewPoolDispatcher(maxConcurrent int, logger *logging.Logger) *PoolDispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &PoolDispatcher{logger: logger.WithComponent("dispatcher")}
	if maxConcurrent > 0 {
		d.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return d
}

// Submit starts task in the background.
func (d *PoolDispatcher) Submit(task func()) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if d.sem != nil {
			// Background context: accepted work always gets to run.
			_ = d.sem.Acquire(context.Background(), 1)
			defer d.sem.Release(1)
		}
		runTask(d.logger, task)
	}()
	return nil
}

// Close rejects further submissions and waits for in-flight tasks.
func (d *PoolDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return waitGroupContext(ctx, &d.wg)
}

// SerialDispatcher runs tasks one at a time in submission order on a single
// worker goroutine. When the queue is full new tasks are rejected.
type SerialDispatcher struct {
	logger *logging.Logger
	queue  chan func()
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewSerialDispatcher creates a serial dispatcher and starts its worker.
func NewSerialDispatcher(queueSize int, logger *logging.Logger) *SerialDispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &SerialDispatcher{
		logger: logger.WithComponent("dispatcher"),
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *SerialDispatcher) loop() {
	defer close(d.done)
	for task := range d.queue {
		runTask(d.logger, task)
	}
}

// Submit enqueues task without blocking.
func (d *SerialDispatcher) Submit(task func()) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the worker once the queue drains.
func (d *SerialDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InlineDispatcher runs tasks synchronously on the caller. Useful in tests
// and in one-shot tools where the dump must exist when Submit returns.
type InlineDispatcher struct {
	Logger *logging.Logger
}

// Submit runs task immediately.
func (d InlineDispatcher) Submit(task func()) error {
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	runTask(logger, task)
	return nil
}

// Close is a no-op.
func (InlineDispatcher) Close(context.Context) error { return nil }

// NewDispatcher builds the dispatcher selected by mode: "pool", "serial" or "inline".
func NewDispatcher(mode string, maxConcurrent, queueSize int, logger *logging.Logger) (Dispatcher, error) {
	switch mode {
	case "", "pool":
		return NewPoolDispatcher(maxConcurrent, logger), nil
	case "serial":
		return NewSerialDispatcher(queueSize, logger), nil
	case "inline":
		return InlineDispatcher{Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown dispatcher mode %q", mode)
	}
}

func waitGroupContext(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
