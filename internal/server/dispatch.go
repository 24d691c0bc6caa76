package server

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Dispatcher is a bounded worker pool for webhook events. Handlers enqueue
// work and return 200 immediately; the chat platform retries on timeout, and
// the approval core is idempotent under redelivery, so dropping an event when
// the queue is full is safe.
type Dispatcher struct {
	tasks   chan func(context.Context)
	workers int

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDispatcher creates a pool of workers draining a buffered task channel.
func NewDispatcher(workers, buffer int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		tasks:   make(chan func(context.Context), buffer),
		workers: workers,
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go func() {
			defer wg.Done()
			for task := range d.tasks {
				task(ctx)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(d.done)
	}()
}

// Enqueue submits a task to the pool. It returns false when the queue is
// full or the pool is stopped. The send stays under the mutex so it cannot
// race Stop closing the channel; it is non-blocking, so the lock is held
// only briefly.
func (d *Dispatcher) Enqueue(task func(context.Context)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return false
	}
	select {
	case d.tasks <- task:
		return true
	default:
		log.Warn().Msg("event queue full, dropping event")
		return false
	}
}

// Stop closes the queue and waits for in-flight tasks to finish, up to the
// context deadline.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	close(d.tasks)
	cancel := d.cancel
	done := d.done
	d.mu.Unlock()

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}
