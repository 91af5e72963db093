package backtest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"tradecore/internal/schema"
	"tradecore/internal/strategy"
)

// Job is one independent backtest in a batch.
type Job struct {
	Symbol   string
	Bars     []schema.Bar
	Strategy strategy.Strategy
}

// JobResult pairs a job with its outcome. Err is the run error, if any.
type JobResult struct {
	Symbol string
	Result Result
	Err    error
}

// RunBatch runs jobs on at most workers goroutines. A failing job does not
// stop the others; results keep job order. Only ctx cancellation aborts the
// batch.
func (e *Engine) RunBatch(ctx context.Context, jobs []Job, workers int) ([]JobResult, error) {
	if workers <= 0 {
		workers = 1
	}
	out := make([]JobResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.Run(gctx, job.Symbol, job.Bars, job.Strategy)
			out[i] = JobResult{Symbol: job.Symbol, Result: res, Err: err}
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
