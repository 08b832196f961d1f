// Package prefetch keeps the next few tracks of a playlist warm in the cache.
//
// The Prefetcher tracks a sliding window [cursor+1, cursor+1+N) over a
// manifest and downloads every uncached track in it with a small worker pool.
// It never blocks the caller and never retries: a failed background download
// is dropped and only attempted again when the track is played.
//
//	p := prefetch.New(store, fetcher, prefetch.WithLogger(logger))
//	p.Start(ctx, manifest, 0, 3)
//	session.OnCursor(p.Advance)
//	defer p.Stop()
package prefetch
