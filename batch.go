package afetch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FetchAll fetches every URL concurrently with default options and
// returns results in input order.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]BatchResult, error) {
	items := make([]BatchItem, len(urls))
	for i, u := range urls {
		items[i] = BatchItem{URL: u}
	}
	return f.RequestAll(ctx, items)
}

// RequestAll runs every item through Request concurrently, bounded by
// the configured concurrency limit, and returns one result per item in
// input order. With return-exceptions enabled, per-item errors land in
// their BatchResult and the call itself succeeds. Otherwise the first
// failure cancels the remaining items and is returned; results already
// collected are discarded.
func (f *Fetcher) RequestAll(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	if f.closed.Load() {
		return nil, ErrClientClosed
	}

	results := make([]BatchResult, len(items))

	if f.returnExceptions {
		var g errgroup.Group
		if f.concurrencyLimit > 0 {
			g.SetLimit(f.concurrencyLimit)
		}
		for i, item := range items {
			i, item := i, item
			g.Go(func() error {
				resp, err := f.Request(ctx, "", item.URL, item.Options)
				results[i] = BatchResult{Response: resp, Err: err}
				return nil
			})
		}
		_ = g.Wait()
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if f.concurrencyLimit > 0 {
		g.SetLimit(f.concurrencyLimit)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			resp, err := f.Request(gctx, "", item.URL, item.Options)
			if err != nil {
				return err
			}
			results[i] = BatchResult{Response: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
