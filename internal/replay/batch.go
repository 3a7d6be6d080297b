package replay

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// VerifyBatch verifies requests concurrently on at most workers goroutines.
// Each request gets its own engine. Results keep request order; the first
// build error or context cancellation aborts the batch.
func VerifyBatch(ctx context.Context, reqs []Request, workers int) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := Verify(reqs[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
