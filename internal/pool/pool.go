// Package pool provides a small fixed-size worker pool for blocking side
// effects (state autosave, slow rendering) so they never stall the driver's
// event stream.
package pool

import (
	"log/slog"
	"sync"
)

type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex // guards closed and dropped; held across queue sends
	closed  bool
	dropped int
}

// New starts a pool with the given number of workers and queue depth.
func New(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queue <= 0 {
		queue = 64
	}
	p := &Pool{jobs: make(chan func(), queue)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("worker pool job panicked", "panic", r)
				}
			}()
			job()
		}()
	}
}

// Submit enqueues a job without blocking. When the queue is full or the
// pool is closed the job is dropped — callers use the pool only for
// best-effort side effects.
func (p *Pool) Submit(job func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		p.dropped++
		slog.Warn("worker pool queue full, dropping job", "dropped_total", p.dropped)
		return false
	}
}

// Close stops accepting jobs and waits for in-flight ones to finish.
// Submits racing with Close are rejected rather than panicking on the
// closed queue.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.once.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}
