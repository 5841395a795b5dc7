// Package parallel provides the worker pool that runs artwork decodes off
// the render loop.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// MaxDefaultWorkers caps the worker count chosen when none is requested.
// Decodes are memory-heavy; running one per core on large machines only
// multiplies peak allocation.
const MaxDefaultWorkers = 4

// QueuePerWorker is the number of queued jobs allowed per worker before
// Submit starts refusing work.
const QueuePerWorker = 16

// Pool is a fixed set of goroutines executing submitted jobs.
//
// All workers pull from one shared queue, so a single slow decode (a very
// large source image) never holds back jobs while another worker is idle.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int
	jobs    chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool creates a pool with the given number of workers and starts them.
// If workers is 0 or negative, min(GOMAXPROCS, MaxDefaultWorkers) is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = min(runtime.GOMAXPROCS(0), MaxDefaultWorkers)
	}

	queueSize := max(workers*QueuePerWorker, 32)

	p := &Pool{
		workers: workers,
		jobs:    make(chan func(), queueSize),
		done:    make(chan struct{}),
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}

	return p
}

// worker is the main loop for each worker goroutine.
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			p.drain()
			return
		case job := <-p.jobs:
			run(job)
		}
	}
}

func run(job func()) {
	if job != nil {
		job()
	}
}

// drain executes every job left in the queue.
func (p *Pool) drain() {
	for {
		select {
		case job := <-p.jobs:
			run(job)
		default:
			return
		}
	}
}

// Submit queues fn for execution. It never blocks: it returns false,
// without running fn, if the pool is closed or its queue is full.
func (p *Pool) Submit(fn func()) bool {
	if fn == nil || !p.running.Load() {
		return false
	}

	select {
	case p.jobs <- fn:
		return true
	default:
		return false
	}
}

// Close stops accepting work, runs everything already queued, and waits
// for the workers to exit. Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()

	// A Submit racing with Close may have queued after the workers drained.
	p.drain()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Queued returns the approximate number of queued, not yet started jobs.
func (p *Pool) Queued() int {
	return len(p.jobs)
}
