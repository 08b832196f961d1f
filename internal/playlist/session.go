package playlist

import (
	"context"
	"sync"

	"github.com/yplay/yplay/internal/cache"
	"github.com/yplay/yplay/internal/model"
)

// Session is an open manifest plus the index of the active track.
type Session struct {
	manager  *Manager
	manifest *model.Manifest

	mu        sync.Mutex
	cursor    int
	observers []func(int)
}

// NewSession starts a session over manifest with no active track.
func (m *Manager) NewSession(manifest *model.Manifest) *Session {
	return &Session{manager: m, manifest: manifest, cursor: -1}
}

// Manifest returns the session's manifest.
func (s *Session) Manifest() *model.Manifest { return s.manifest }

// Len returns the number of tracks.
func (s *Session) Len() int { return s.manifest.Len() }

// Cursor returns the index of the active track, or -1 before the first one.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// OnCursor registers fn to be called whenever the active track changes.
func (s *Session) OnCursor(fn func(int)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// EntryAt makes track i the active one and returns its cache entry,
// downloading it in the foreground when needed. Observers see the new cursor
// before the download starts.
func (s *Session) EntryAt(ctx context.Context, i int) (*cache.Entry, error) {
	s.setCursor(i)
	return s.manager.TrackAt(ctx, s.manifest, i)
}

func (s *Session) setCursor(i int) {
	s.mu.Lock()
	if s.cursor == i {
		s.mu.Unlock()
		return
	}
	s.cursor = i
	observers := append(([]func(int))(nil), s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(i)
	}
}
