package sim

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Ensemble runs independent integrations concurrently. Every run must build
// its own stepper and state; nothing is shared between runs.
type Ensemble struct {
	Runs int
	// Concurrency caps the number of runs in flight; zero means GOMAXPROCS.
	Concurrency int
}

func NewEnsemble(runs int) *Ensemble {
	return &Ensemble{Runs: runs}
}

func (e *Ensemble) limit() int {
	if e.Concurrency > 0 {
		return e.Concurrency
	}
	return runtime.GOMAXPROCS(0)
}

// Run calls run for every index and returns the results in index order. The
// first error cancels the context handed to the remaining runs.
func (e *Ensemble) Run(ctx context.Context, run func(ctx context.Context, i int) (*Result, error)) ([]*Result, error) {
	return RunEach(ctx, e.Runs, e.limit(), run)
}

// RunEach is the generic form of Ensemble.Run.
func RunEach[T any](ctx context.Context, n, limit int, run func(ctx context.Context, i int) (T, error)) ([]T, error) {
	results := make([]T, n)
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i := 0; i < n; i++ {
		g.Go(func() error {
			r, err := run(ctx, i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
