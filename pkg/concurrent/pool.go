package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ParallelMap runs fn on every item concurrently and returns the results in
// input order. maxConcurrency <= 0 launches every item at once.
//
// The first error cancels the context handed to the remaining calls and is
// returned once all of them have finished; no partial results are returned.
func ParallelMap[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), maxConcurrency int) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if maxConcurrency <= 0 || maxConcurrency > len(items) {
		maxConcurrency = len(items)
	}

	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, item)
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
