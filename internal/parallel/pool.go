// Package parallel runs indexed jobs on a fixed set of goroutines.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs batches of jobs on a fixed number of workers.
//
// Each batch is split round-robin into per-worker queues. A worker drains its
// own queue first and then steals from the others, so slow jobs do not leave
// workers idle.
//
// Thread safety: WorkerPool is safe for concurrent use, but batches are run
// one at a time.
type WorkerPool struct {
	workers int

	mu      sync.Mutex // serializes batches
	running atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{workers: workers}
	p.running.Store(true)
	return p
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// Run calls job(ctx, i) for every i in [0, n) and waits for all calls to
// return. Once ctx is done, jobs that have not started are skipped; Run
// returns the indices that ran, in ascending order, and ctx.Err().
func (p *WorkerPool) Run(ctx context.Context, n int, job func(ctx context.Context, i int)) ([]int, error) {
	if n <= 0 || !p.running.Load() {
		return nil, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	workers := min(p.workers, n)
	queues := make([]chan int, workers)
	for w := range queues {
		queues[w] = make(chan int, n/workers+1)
	}
	for i := range n {
		queues[i%workers] <- i
	}
	for _, q := range queues {
		close(q)
	}

	ran := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := range workers {
		go func() {
			defer wg.Done()
			for {
				i, ok := next(queues, w)
				if !ok || ctx.Err() != nil {
					return
				}
				job(ctx, i)
				ran[i] = true
			}
		}()
	}
	wg.Wait()

	var done []int
	for i, ok := range ran {
		if ok {
			done = append(done, i)
		}
	}
	return done, ctx.Err()
}

// next takes a job from the worker's own queue, then from the others.
func next(queues []chan int, own int) (int, bool) {
	if i, ok := <-queues[own]; ok {
		return i, true
	}
	for k := 1; k < len(queues); k++ {
		q := queues[(own+k)%len(queues)]
		select {
		case i, ok := <-q:
			if ok {
				return i, true
			}
		default:
		}
	}
	return 0, false
}

// Close stops the pool. Later calls to Run do nothing.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.running.Store(false)
}

// IsRunning returns true if the pool still accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
