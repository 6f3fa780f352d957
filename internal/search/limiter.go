package search

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

const DefaultConcurrency = 3

// RunBounded runs every task with at most limit of them in flight and returns one
// value per task in completion order. A task that errors, panics or never gets a
// permit because ctx ended contributes the zero value of T.
func RunBounded[T any](ctx context.Context, limit int, tasks []func(context.Context) (T, error)) []T {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	sem := semaphore.NewWeighted(int64(limit))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make([]T, 0, len(tasks))
	)
	for _, task := range tasks {
		wg.Add(1)
		go func(task func(context.Context) (T, error)) {
			defer wg.Done()
			var value T
			defer func() {
				mu.Lock()
				out = append(out, value)
				mu.Unlock()
			}()

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			value = runTask(ctx, task)
		}(task)
	}
	wg.Wait()
	return out
}

func runTask[T any](ctx context.Context, task func(context.Context) (T, error)) (value T) {
	defer func() {
		if recover() != nil {
			var zero T
			value = zero
		}
	}()
	if task == nil {
		return value
	}
	result, err := task(ctx)
	if err != nil {
		return value
	}
	return result
}
