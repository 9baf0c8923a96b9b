// Package workerpool runs submitted tasks on a fixed set of goroutines.
package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

var ErrClosed = errors.New("worker pool is shut down")

// Pool executes tasks on a fixed number of workers fed from a bounded queue.
// Completion order is unspecified.
type Pool struct {
	tasks   chan func()
	workers int
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Workers   int
	Submitted int64
	Completed int64
	Queued    int
}

// New starts a pool. workers <= 0 means runtime.NumCPU(); queueDepth <= 0
// means twice the worker count.
func New(workers, queueDepth int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueDepth <= 0 {
		queueDepth = workers * 2
	}
	p := &Pool{
		tasks:   make(chan func(), queueDepth),
		workers: workers,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
		p.completed.Add(1)
	}
}

// Submit enqueues task and returns without waiting for it to run. It blocks
// only while the queue is full, until ctx is done.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShutdownAndWait stops accepting tasks and blocks until every submitted task
// has finished. It is safe to call more than once.
func (p *Pool) ShutdownAndWait() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Queued:    len(p.tasks),
	}
}
