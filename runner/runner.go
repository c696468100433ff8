// Package runner bounds how much work runs at once. Runner limits whole
// pipeline graph runs; ParallelRunner fans a batch of tasks out under the
// same kind of semaphore and returns results in task order.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/sweetpotato0/lexdraft/graph"
)

const defaultConcurrency = 10

// Runner executes graph workflows under a concurrency limit.
type Runner interface {
	// RunGraph waits for a free slot, then executes g. It returns ctx.Err()
	// if ctx ends first.
	RunGraph(ctx context.Context, g *graph.Graph, initialState graph.State) (graph.State, error)
}

// runner is the default implementation of Runner
type runner struct {
	semaphore chan struct{}
}

// New creates a new runner
func New(maxConcurrency int) Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultConcurrency
	}
	return &runner{semaphore: make(chan struct{}, maxConcurrency)}
}

// RunGraph executes a graph workflow
func (r *runner) RunGraph(ctx context.Context, g *graph.Graph, initialState graph.State) (graph.State, error) {
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return g.Execute(ctx, initialState)
}

// Task is one unit of work in a parallel batch.
type Task[T any] struct {
	ID    string
	Input T
}

// Result represents the result of a task execution
type Result[R any] struct {
	TaskID string
	Index  int
	Output R
	Error  error
}

// TaskFunc processes a single task input.
type TaskFunc[T, R any] func(ctx context.Context, input T) (R, error)

// ParallelRunner executes tasks in parallel
type ParallelRunner struct {
	semaphore chan struct{}
}

// NewParallelRunner creates a new parallel runner
func NewParallelRunner(maxConcurrency int) *ParallelRunner {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultConcurrency
	}
	return &ParallelRunner{semaphore: make(chan struct{}, maxConcurrency)}
}

// RunParallel runs fn over every task and waits for all of them. Results
// keep task order. A panicking task yields an error result; tasks still
// waiting for a slot when ctx ends get ctx.Err().
func RunParallel[T, R any](ctx context.Context, pr *ParallelRunner, tasks []Task[T], fn TaskFunc[T, R]) []Result[R] {
	results := make([]Result[R], len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(index int, t Task[T]) {
			defer wg.Done()
			results[index] = Result[R]{TaskID: t.ID, Index: index}
			defer func() {
				if r := recover(); r != nil {
					results[index].Error = fmt.Errorf("panic in task %s: %v", t.ID, r)
				}
			}()

			select {
			case pr.semaphore <- struct{}{}:
				defer func() { <-pr.semaphore }()
			case <-ctx.Done():
				results[index].Error = ctx.Err()
				return
			}

			out, err := fn(ctx, t.Input)
			results[index].Output = out
			results[index].Error = err
		}(i, task)
	}

	wg.Wait()
	return results
}

// Succeeded returns the outputs of results without an error, in order.
func Succeeded[R any](results []Result[R]) []R {
	out := make([]R, 0, len(results))
	for _, r := range results {
		if r.Error == nil {
			out = append(out, r.Output)
		}
	}
	return out
}
