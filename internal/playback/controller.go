package playback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yplay/yplay/internal/cache"
	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/monitoring"
)

// DefaultStopTimeout is how long Stop waits for a graceful exit.
const DefaultStopTimeout = 2 * time.Second

// Queue is an ordered list of tracks the controller can walk.
type Queue interface {
	Len() int
	// EntryAt returns the cache entry for index i and may block while the
	// track downloads.
	EntryAt(ctx context.Context, i int) (*cache.Entry, error)
}

// Controller owns the playback state and the single player process.
type Controller struct {
	backend     Backend
	stopTimeout time.Duration
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// transition serializes everything that starts or stops a process.
	transition sync.Mutex
	proc       Process
	queue      Queue
	// gen identifies the current process; watchers of older ones are ignored.
	gen uint64
	// intent changes on every user request so a slow queue lookup can tell
	// it has been superseded.
	intent atomic.Uint64

	mu        sync.RWMutex
	state     State
	listeners []func(State)
}

// Option configures a Controller.
type Option func(*Controller)

// WithStopTimeout sets the graceful stop timeout.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.stopTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = monitoring.Named(l, "playback") }
}

// WithLoopMode sets the initial loop mode.
func WithLoopMode(m LoopMode) Option {
	return func(c *Controller) { c.state.Loop = m }
}

// NewController creates a stopped controller playing through backend.
func NewController(backend Backend, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:     backend,
		stopTimeout: DefaultStopTimeout,
		logger:      zap.NewNop(),
		ctx:         ctx,
		cancel:      cancel,
		state:       State{Index: -1, Backend: backend.Name()},
	}
	if pc, ok := backend.(PauseCapable); ok {
		c.state.CanPause = pc.CanPause()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnChange registers fn to receive every new state. fn runs synchronously
// and must not call back into the controller.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Play stops whatever is playing and plays entry outside of any queue.
func (c *Controller) Play(ctx context.Context, entry *cache.Entry) error {
	if entry == nil {
		return apperrors.Validation("nil entry")
	}
	c.intent.Add(1)

	c.transition.Lock()
	defer c.transition.Unlock()
	c.queue = nil
	return c.startLocked(ctx, entry, -1)
}

// PlayQueue plays track i of q. The lookup of the track, which may
// download it, runs without blocking Stop; a request made meanwhile wins.
func (c *Controller) PlayQueue(ctx context.Context, q Queue, i int) error {
	return c.playQueue(ctx, q, i, c.intent.Add(1))
}

func (c *Controller) playQueue(ctx context.Context, q Queue, i int, token uint64) error {
	if q == nil || i < 0 || i >= q.Len() {
		return apperrors.Validation("queue index %d out of range", i)
	}

	entry, err := q.EntryAt(ctx, i)
	if err != nil {
		if c.intent.Load() == token {
			c.setState(func(s *State) { s.Message = fmt.Sprintf("cannot play track %d: %v", i+1, err) })
		}
		return err
	}

	c.transition.Lock()
	defer c.transition.Unlock()
	if c.intent.Load() != token {
		c.logger.Debug("play request superseded", zap.Int("index", i))
		return nil
	}
	c.queue = q
	return c.startLocked(ctx, entry, i)
}

// Next plays the track after the current one in the active queue.
func (c *Controller) Next(ctx context.Context) error {
	c.transition.Lock()
	q := c.queue
	c.transition.Unlock()

	idx := c.Snapshot().Index
	if q == nil || idx < 0 || idx+1 >= q.Len() {
		return apperrors.InvalidState("no next track")
	}
	return c.PlayQueue(ctx, q, idx+1)
}

// Previous plays the track before the current one in the active queue.
func (c *Controller) Previous(ctx context.Context) error {
	c.transition.Lock()
	q := c.queue
	c.transition.Unlock()

	idx := c.Snapshot().Index
	if q == nil || idx <= 0 {
		return apperrors.InvalidState("no previous track")
	}
	return c.PlayQueue(ctx, q, idx-1)
}

// Stop stops playback. It is a no-op when already stopped.
func (c *Controller) Stop() error {
	c.intent.Add(1)

	c.transition.Lock()
	defer c.transition.Unlock()
	err := c.stopLocked()
	c.setState(func(s *State) {
		s.Status = Stopped
		s.Current = nil
		s.Index = -1
	})
	return err
}

// Pause pauses a playing track.
func (c *Controller) Pause() error {
	return c.setPaused(true)
}

// Resume resumes a paused track.
func (c *Controller) Resume() error {
	return c.setPaused(false)
}

// TogglePause pauses when playing and resumes when paused.
func (c *Controller) TogglePause() error {
	return c.setPaused(c.Snapshot().Status == Playing)
}

func (c *Controller) setPaused(pause bool) error {
	c.transition.Lock()
	defer c.transition.Unlock()

	from, to := Playing, Paused
	if !pause {
		from, to = Paused, Playing
	}
	if st := c.Snapshot().Status; st != from {
		return apperrors.InvalidState("cannot %s while %s", verb(pause), st)
	}
	p, ok := c.proc.(Pauser)
	if !ok || !c.Snapshot().CanPause {
		return apperrors.Unsupported("%s cannot pause", c.backend.Name())
	}

	var err error
	if pause {
		err = p.Pause()
	} else {
		err = p.Resume()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", verb(pause), err)
	}
	c.setState(func(s *State) { s.Status = to })
	return nil
}

func verb(pause bool) string {
	if pause {
		return "pause"
	}
	return "resume"
}

// SetLoopMode changes the loop mode without touching playback.
func (c *Controller) SetLoopMode(m LoopMode) {
	c.setState(func(s *State) { s.Loop = m })
}

// CycleLoopMode advances the loop mode and returns the new one.
func (c *Controller) CycleLoopMode() LoopMode {
	var next LoopMode
	c.setState(func(s *State) {
		s.Loop = s.Loop.Next()
		next = s.Loop
	})
	return next
}

// Close stops playback and cancels any pending auto-advance.
func (c *Controller) Close() error {
	c.cancel()
	return c.Stop()
}

// startLocked stops the current process and starts entry. Callers hold
// transition.
func (c *Controller) startLocked(ctx context.Context, entry *cache.Entry, index int) error {
	if err := c.stopLocked(); err != nil {
		c.logger.Warn("previous player did not stop cleanly", zap.Error(err))
	}

	proc, err := c.backend.Start(ctx, entry.AudioPath)
	if err != nil {
		c.setState(func(s *State) {
			s.Status = Stopped
			s.Current = nil
			s.Index = -1
			s.Message = err.Error()
		})
		return err
	}

	c.gen++
	c.proc = proc
	c.setState(func(s *State) {
		s.Status = Playing
		s.Current = entry
		s.Index = index
		s.Message = ""
	})
	monitoring.RecordPlay(c.backend.Name())
	c.logger.Info("playing", zap.String("id", entry.ID), zap.String("title", entry.DisplayTitle()), zap.Int("index", index))

	go c.watch(c.gen, proc)
	return nil
}

// stopLocked terminates the current process. Callers hold transition.
func (c *Controller) stopLocked() error {
	if c.proc == nil {
		return nil
	}
	proc := c.proc
	c.proc = nil
	c.gen++
	return proc.Stop(c.stopTimeout)
}

// watch applies the loop mode when proc exits on its own.
func (c *Controller) watch(gen uint64, proc Process) {
	<-proc.Done()

	c.transition.Lock()
	if gen != c.gen {
		c.transition.Unlock()
		return
	}
	c.proc = nil
	c.gen++

	st := c.Snapshot()
	if err := proc.Err(); err != nil {
		monitoring.RecordPlayerCrash(c.backend.Name())
		c.logger.Warn("player crashed", zap.String("id", st.Current.ID), zap.Error(err))
		c.setState(func(s *State) {
			s.Status = Stopped
			s.Current = nil
			s.Index = -1
			s.Message = "player exited: " + err.Error()
		})
		c.transition.Unlock()
		return
	}

	switch {
	case st.Loop == LoopSingle:
		err := c.startLocked(c.ctx, st.Current, st.Index)
		c.transition.Unlock()
		if err != nil {
			c.logger.Warn("replay failed", zap.Error(err))
		}
		return
	case st.Loop == LoopAll && c.queue != nil && st.Index >= 0 && st.Index+1 < c.queue.Len():
		q, next := c.queue, st.Index+1
		token := c.intent.Add(1)
		// The finished track stays current until the next one starts.
		c.setState(func(s *State) { s.Status = Loading })
		c.transition.Unlock()

		if err := c.playQueue(c.ctx, q, next, token); err != nil {
			c.logger.Warn("advance failed", zap.Int("index", next), zap.Error(err))
			c.transition.Lock()
			if c.intent.Load() == token {
				c.setState(func(s *State) {
					s.Status = Stopped
					s.Current = nil
					s.Index = -1
				})
			}
			c.transition.Unlock()
		}
		return
	default:
		c.setState(func(s *State) {
			s.Status = Stopped
			s.Current = nil
			s.Index = -1
		})
		c.transition.Unlock()
	}
}

func (c *Controller) setState(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	st := c.state
	listeners := c.listeners
	c.mu.Unlock()

	for _, l := range listeners {
		l(st)
	}
}
