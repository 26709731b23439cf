package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolStopped is returned by Do after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// job is a unit of work submitted to the pool.
type job struct {
	fn   func() (any, error)
	done chan jobResult
}

// jobResult holds the return value from a job.
type jobResult struct {
	value any
	err   error
}

// WorkerPool runs jobs on a fixed number of goroutines. It bounds how many
// programs execute at once; each job brings its own VM, so workers share no
// interpreter state.
type WorkerPool struct {
	jobs     chan job
	quit     chan struct{}
	stopped  chan struct{} // closed once every worker has exited
	wg       sync.WaitGroup
	stopOnce sync.Once
	size     int
}

// NewWorkerPool creates a pool of n workers and starts them. n below one
// is treated as one.
func NewWorkerPool(n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	p := &WorkerPool{
		jobs:    make(chan job, 64),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		size:    n,
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

// loop processes jobs until the pool is stopped.
func (p *WorkerPool) loop() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.done <- p.execute(j.fn)
		case <-p.quit:
			return
		}
	}
}

// execute runs a job, recovering from panics.
func (p *WorkerPool) execute(fn func() (any, error)) jobResult {
	var result jobResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("worker recovered from panic: %v", r)
				result.err = fmt.Errorf("internal error: %v", r)
			}
		}()
		result.value, result.err = fn()
	}()
	return result
}

// Do submits fn and blocks until it completes or ctx is done. A panic in fn
// is returned as an error.
func (p *WorkerPool) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	j := job{
		fn:   fn,
		done: make(chan jobResult, 1),
	}

	select {
	case p.jobs <- j:
	case <-p.quit:
		return nil, ErrPoolStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-j.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stopped:
		// The job either finished before the workers exited or never ran.
		select {
		case r := <-j.done:
			return r.value, r.err
		default:
			return nil, ErrPoolStopped
		}
	}
}

// Stop shuts down the workers and waits for running jobs to finish. Queued
// jobs that have not started are abandoned.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
		close(p.stopped)
	})
}
