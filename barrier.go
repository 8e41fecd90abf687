package rxpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// AwaitAll blocks until every source has completed.
//
// The first source to fail aborts the wait with a *BarrierError and the other sources are abandoned. When ctx is
// done first, its error is returned. Waiting on a single source is not enough when completion is spread over
// streams terminated from different workers, hence the merge.
func AwaitAll(ctx context.Context, sources ...Source) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		terminated := make(chan error, 1)
		sub := src.Watch(
			func() { signal(terminated, nil) },
			func(err error) { signal(terminated, err) },
		)
		g.Go(func() error {
			defer sub.Unsubscribe()
			select {
			case err := <-terminated:
				if err != nil {
					return &BarrierError{Source: i, Err: err}
				}
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}

func signal(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
