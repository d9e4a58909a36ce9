// Package worker runs per-unit indexing tasks with bounded concurrency.
package worker

import (
	"context"
	"sync"
)

// Task is one unit of work. Tasks write their own results through
// captured variables; each task owns a distinct slot so no locking is
// needed on the caller side.
type Task func(ctx context.Context) error

// Pool executes batches of tasks with a fixed number of workers
type Pool struct {
	workers int
}

// NewPool creates a pool with the given worker count
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Run executes all tasks and returns the first error. The remaining
// tasks are cancelled once a task fails, but tasks already running are
// allowed to finish.
func (p *Pool) Run(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan Task)
	var wg sync.WaitGroup

	var once sync.Once
	var firstErr error
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				if ctx.Err() != nil {
					continue
				}
				if err := task(ctx); err != nil {
					fail(err)
				}
			}
		}()
	}

	for _, task := range tasks {
		queue <- task
	}
	close(queue)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
