package prefetch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/yplay/yplay/internal/cache"
	"github.com/yplay/yplay/internal/download"
	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/monitoring"
)

// MaxWorkers bounds parallel background downloads.
const MaxWorkers = 4

// Resolver looks a track up in the cache.
type Resolver interface {
	Resolve(id string) (*cache.Entry, error)
}

// Fetcher downloads a track into the cache.
type Fetcher interface {
	Fetch(ctx context.Context, info model.TrackInfo, mode download.Mode) (*cache.Entry, error)
}

// Status is a point-in-time view of the prefetcher.
type Status struct {
	// Window is the half-open index range [start, end) being kept warm.
	Window   [2]int
	Pending  []string
	InFlight []string
	Done     int
	Failed   int
	// Skipped counts tracks found already cached when their turn came.
	Skipped int
	Running bool
}

// Prefetcher downloads the tracks following the cursor in the background.
type Prefetcher struct {
	store   Resolver
	fetcher Fetcher
	workers int
	logger  *zap.Logger

	mu       sync.Mutex
	idle     *sync.Cond
	manifest *model.Manifest
	n        int
	cursor   int
	pending  []int
	inFlight map[string]bool
	// attempted holds ids already downloaded or failed; they are never
	// scheduled again in the same run.
	attempted map[string]bool
	done      int
	failed    int
	skipped   int
	running   bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Prefetcher.
type Option func(*Prefetcher)

// WithWorkers sets the number of parallel downloads, clamped to 1..MaxWorkers.
func WithWorkers(n int) Option {
	return func(p *Prefetcher) { p.workers = min(max(n, 1), MaxWorkers) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Prefetcher) { p.logger = monitoring.Named(l, "prefetch") }
}

// New creates an idle Prefetcher.
func New(store Resolver, fetcher Fetcher, opts ...Option) *Prefetcher {
	p := &Prefetcher{
		store:   store,
		fetcher: fetcher,
		workers: 1,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.idle = sync.NewCond(&p.mu)
	return p
}

// Start begins keeping n tracks after cursor warm. A running prefetcher is
// stopped first.
func (p *Prefetcher) Start(ctx context.Context, manifest *model.Manifest, cursor, n int) {
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.manifest = manifest
	p.n = max(n, 0)
	p.cursor = cursor
	p.pending = nil
	p.inFlight = make(map[string]bool)
	p.attempted = make(map[string]bool)
	p.done, p.failed, p.skipped = 0, 0, 0
	p.running = true
	p.wake = make(chan struct{}, 1)
	p.ctx = ctx
	p.cancel = cancel
	p.scheduleLocked()
	p.mu.Unlock()

	context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.idle.Broadcast()
		p.mu.Unlock()
	})

	p.logger.Debug("prefetch started", zap.Int("cursor", cursor), zap.Int("n", n), zap.Int("workers", p.workers))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Advance moves the window to follow cursor. Pending tracks that left the
// window are dropped; downloads already running are left to finish.
func (p *Prefetcher) Advance(cursor int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || cursor == p.cursor {
		return
	}
	p.cursor = cursor

	start, end := p.windowLocked()
	kept := p.pending[:0]
	for _, i := range p.pending {
		if i >= start && i < end {
			kept = append(kept, i)
		}
	}
	p.pending = kept
	p.scheduleLocked()
	p.logger.Debug("prefetch window moved", zap.Int("start", start), zap.Int("end", end))
}

// Stop cancels the workers and waits for them to exit. In-flight downloads
// are abandoned.
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.pending = nil
	cancel := p.cancel
	p.idle.Broadcast()
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	monitoring.UpdatePrefetchQueueSize(0)
}

// Wait blocks until nothing is pending or in flight, or the prefetcher stops
// or its context ends.
func (p *Prefetcher) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.running && p.ctx.Err() == nil && (len(p.pending) > 0 || len(p.inFlight) > 0) {
		p.idle.Wait()
	}
}

// Status returns a snapshot of the prefetcher's state.
func (p *Prefetcher) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Done:    p.done,
		Failed:  p.failed,
		Skipped: p.skipped,
		Running: p.running,
	}
	if p.manifest == nil {
		return st
	}
	st.Window[0], st.Window[1] = p.windowLocked()
	for _, i := range p.pending {
		st.Pending = append(st.Pending, p.manifest.Tracks[i].ID)
	}
	for id := range p.inFlight {
		st.InFlight = append(st.InFlight, id)
	}
	return st
}

// IsInFlight reports whether id is being downloaded in the background.
func (p *Prefetcher) IsInFlight(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight[id]
}

func (p *Prefetcher) windowLocked() (int, int) {
	start := max(p.cursor+1, 0)
	end := min(start+p.n, p.manifest.Len())
	return min(start, end), end
}

// scheduleLocked queues every window index not already pending, in flight
// or attempted.
func (p *Prefetcher) scheduleLocked() {
	start, end := p.windowLocked()
	queued := make(map[string]bool, len(p.pending))
	for _, i := range p.pending {
		queued[p.manifest.Tracks[i].ID] = true
	}

	added := false
	for i := start; i < end; i++ {
		id := p.manifest.Tracks[i].ID
		if queued[id] || p.inFlight[id] || p.attempted[id] {
			continue
		}
		queued[id] = true
		p.pending = append(p.pending, i)
		added = true
	}
	monitoring.UpdatePrefetchQueueSize(len(p.pending))
	if added {
		p.signal()
	}
}

func (p *Prefetcher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Prefetcher) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		info, ok := p.take()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
				continue
			}
		}
		p.run(ctx, info)
		if ctx.Err() != nil {
			return
		}
	}
}

// take pops the next pending track and marks it in flight.
func (p *Prefetcher) take() (model.TrackInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || len(p.pending) == 0 {
		return model.TrackInfo{}, false
	}
	info := p.manifest.Tracks[p.pending[0]]
	p.pending = p.pending[1:]
	p.inFlight[info.ID] = true
	monitoring.UpdatePrefetchQueueSize(len(p.pending))
	if len(p.pending) > 0 {
		p.signal()
	}
	return info, true
}

func (p *Prefetcher) run(ctx context.Context, info model.TrackInfo) {
	// The foreground may have cached it since it was queued.
	if _, err := p.store.Resolve(info.ID); err == nil {
		p.finish(info.ID, func() { p.skipped++ })
		return
	}

	_, err := p.fetcher.Fetch(ctx, info, download.Background)
	switch {
	case err == nil:
		p.logger.Debug("prefetched", zap.String("id", info.ID))
		p.finish(info.ID, func() { p.done++ })
	case ctx.Err() != nil:
		// Abandoned by Stop; the track may be scheduled again by a later Start.
		p.finish(info.ID, nil)
	default:
		p.logger.Debug("prefetch failed", zap.String("id", info.ID), zap.Error(err))
		monitoring.RecordError(string(apperrors.KindOf(err)))
		p.finish(info.ID, func() { p.failed++ })
	}
}

func (p *Prefetcher) finish(id string, count func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, id)
	if count != nil {
		count()
		p.attempted[id] = true
	}
	p.idle.Broadcast()
}
