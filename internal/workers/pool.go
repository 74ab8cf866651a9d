package workers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Job is one unit of work. It should honour ctx when it blocks.
type Job[T any] func(ctx context.Context) (T, error)

// Result - outcome of the job submitted at Index.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

type options struct {
	progress func(done, total int)
}

type Option func(*options)

// WithProgress registers a callback invoked after every finished job. It is
// called from worker goroutines and must be safe for concurrent use.
func WithProgress(fn func(done, total int)) Option {
	return func(o *options) { o.progress = fn }
}

// Run executes jobs on at most `workers` goroutines and blocks until all of
// them have returned. Results come back in submission order. The first
// failing job cancels the shared context, so jobs that have not started yet
// report the cancellation instead of running; the first error is also
// returned on its own.
func Run[T any](ctx context.Context, workers int, jobs []Job[T], opts ...Option) ([]Result[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if workers <= 0 {
		workers = 1
	}

	results := make([]Result[T], len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var done atomic.Int64
	total := len(jobs)

	for i, job := range jobs {
		results[i].Index = i
		// Go blocks while the limit is reached; stop submitting once cancelled.
		if gctx.Err() != nil {
			results[i].Err = context.Cause(gctx)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			v, err := job(gctx)
			results[i].Value = v
			results[i].Err = err
			if o.progress != nil {
				o.progress(int(done.Add(1)), total)
			}
			if err != nil {
				return fmt.Errorf("job %d: %w", i, err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return results, err
}

// Values unwraps results, returning the first error in submission order.
func Values[T any](results []Result[T]) ([]T, error) {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("job %d: %w", r.Index, r.Err)
		}
		out = append(out, r.Value)
	}
	return out, nil
}

// Errors collects every non-nil result error.
func Errors[T any](results []Result[T]) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil && !errors.Is(r.Err, context.Canceled) {
			errs = append(errs, fmt.Errorf("job %d: %w", r.Index, r.Err))
		}
	}
	return errors.Join(errs...)
}
