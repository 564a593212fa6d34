package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchItem is the result of one request in a batch: a verdict or the
// dispatch error for that request.
type BatchItem struct {
	Verdict Verdict
	Err     error
}

// DispatchAll dispatches requests concurrently, at most limit at a time
// (limit <= 0 means unbounded). Items are returned in request order.
//
// Per-request errors are reported on their item; the returned error is
// non-nil only when ctx ended before every request was started.
func (d *Dispatcher) DispatchAll(ctx context.Context, reg Registry, reqs []Request, limit int) ([]BatchItem, error) {
	items := make([]BatchItem, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				items[i].Err = err
				return err
			}
			v, err := d.Run(gctx, reg, reqs[i])
			items[i] = BatchItem{Verdict: v, Err: err}
			return nil
		})
	}
	return items, g.Wait()
}
