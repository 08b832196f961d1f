package album

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yplay/yplay/internal/cache"
	apperrors "github.com/yplay/yplay/internal/errors"
	ioutils "github.com/yplay/yplay/internal/io"
	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/monitoring"
)

const (
	dirName = "albums"
	fileExt = ".album.json"
)

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)

// Track is one album member.
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Order    int    `json:"order"`
	Uploader string `json:"uploader,omitempty"`
	Duration *int   `json:"duration,omitempty"`
	URL      string `json:"webpage_url,omitempty"`
}

// Info converts t to a track stub.
func (t Track) Info() model.TrackInfo {
	return model.TrackInfo{ID: t.ID, Title: t.Title, Uploader: t.Uploader, Duration: t.Duration, URL: t.URL}
}

// Album is a named track list.
type Album struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Tracks      []Track `json:"tracks"`

	path string
}

// Path returns the album file.
func (a *Album) Path() string { return a.path }

// Manifest returns the album as a playlist manifest in track order.
func (a *Album) Manifest() *model.Manifest {
	m := &model.Manifest{Title: a.Name}
	for _, t := range a.sortedTracks() {
		m.Tracks = append(m.Tracks, t.Info())
	}
	return m
}

func (a *Album) sortedTracks() []Track {
	tracks := append([]Track(nil), a.Tracks...)
	sort.SliceStable(tracks, func(i, j int) bool { return tracks[i].Order < tracks[j].Order })
	return tracks
}

// ResolvedTrack pairs an album track with its cache entry, nil if uncached.
type ResolvedTrack struct {
	Track
	Entry *cache.Entry
}

// Resolver looks tracks up in the cache.
type Resolver interface {
	Resolve(id string) (*cache.Entry, error)
}

// Manager performs album CRUD under <root>/albums.
type Manager struct {
	dir    string
	store  Resolver
	logger *zap.Logger
	mu     sync.Mutex
}

// NewManager creates the albums directory under cacheRoot if needed.
func NewManager(cacheRoot string, store Resolver, logger *zap.Logger) (*Manager, error) {
	dir := filepath.Join(cacheRoot, dirName)
	if err := ioutils.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &Manager{dir: dir, store: store, logger: monitoring.Named(logger, "album")}, nil
}

// SanitizeName turns an album name into a file name stem.
func SanitizeName(name string) string {
	s := strings.TrimSpace(unsafeName.ReplaceAllString(name, ""))
	return strings.Join(strings.Fields(s), "_")
}

func (m *Manager) pathFor(name string) (string, error) {
	stem := SanitizeName(name)
	if stem == "" {
		return "", apperrors.Validation("album name %q has no usable characters", name)
	}
	return filepath.Join(m.dir, stem+fileExt), nil
}

// Create adds an empty album. It fails if the album exists.
func (m *Manager) Create(name, description string) (*Album, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("album name must not be empty")
	}
	path, err := m.pathFor(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := os.Stat(path); err == nil {
		return nil, apperrors.Validation("album %q already exists", name)
	}

	a := &Album{Name: name, Description: description, Tracks: []Track{}, path: path}
	if err := save(a); err != nil {
		return nil, err
	}
	m.logger.Info("album created", zap.String("name", name))
	return a, nil
}

// List returns all albums sorted by name. Unreadable files are skipped.
func (m *Manager) List() ([]*Album, error) {
	dirents, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var albums []*Album
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) {
			continue
		}
		path := filepath.Join(m.dir, d.Name())
		a, err := load(path)
		if err != nil {
			m.logger.Debug("album unreadable", zap.String("path", path), zap.Error(err))
			continue
		}
		albums = append(albums, a)
	}
	sort.Slice(albums, func(i, j int) bool {
		return strings.ToLower(albums[i].Name) < strings.ToLower(albums[j].Name)
	})
	return albums, nil
}

// Get loads one album by name.
func (m *Manager) Get(name string) (*Album, error) {
	path, err := m.pathFor(name)
	if err != nil {
		return nil, err
	}
	a, err := load(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NotFound("album %q", name)
	}
	return a, err
}

// Tracks returns the album's tracks in order, each resolved against the cache.
func (m *Manager) Tracks(ctx context.Context, name string) ([]ResolvedTrack, error) {
	a, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	tracks := a.sortedTracks()
	out := make([]ResolvedTrack, len(tracks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, t := range tracks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = ResolvedTrack{Track: t}
			if e, err := m.store.Resolve(t.ID); err == nil {
				out[i].Entry = e
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddTrack appends info to the album. A track already present is rejected.
func (m *Manager) AddTrack(name string, info model.TrackInfo) error {
	if info.ID == "" {
		return apperrors.Validation("track id must not be empty")
	}
	return m.update(name, func(a *Album) error {
		order := 0
		for _, t := range a.Tracks {
			if t.ID == info.ID {
				return apperrors.Validation("%s is already in %q", info.DisplayTitle(), a.Name)
			}
			order = max(order, t.Order)
		}
		a.Tracks = append(a.Tracks, Track{
			ID:       info.ID,
			Title:    info.Title,
			Order:    order + 1,
			Uploader: info.Uploader,
			Duration: info.Duration,
			URL:      info.URL,
		})
		return nil
	})
}

// RemoveTrack drops the track with id from the album.
func (m *Manager) RemoveTrack(name, id string) error {
	return m.update(name, func(a *Album) error {
		kept := a.Tracks[:0]
		for _, t := range a.Tracks {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		if len(kept) == len(a.Tracks) {
			return apperrors.NotFound("track %s in album %q", id, a.Name)
		}
		a.Tracks = kept
		return nil
	})
}

// Delete removes the album file. Cached tracks are not touched.
func (m *Manager) Delete(name string) error {
	path, err := m.pathFor(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return apperrors.NotFound("album %q", name)
		}
		return err
	}
	m.logger.Info("album deleted", zap.String("name", name))
	return nil
}

func (m *Manager) update(name string, fn func(*Album) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.Get(name)
	if err != nil {
		return err
	}
	if err := fn(a); err != nil {
		return err
	}
	return save(a)
}

func load(path string) (*Album, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Album
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	if a.Name == "" {
		a.Name = strings.TrimSuffix(filepath.Base(path), fileExt)
	}
	// Files written by hand may omit order; keep their listed order.
	for i := range a.Tracks {
		if a.Tracks[i].Order == 0 {
			a.Tracks[i].Order = i + 1
		}
	}
	a.path = path
	return &a, nil
}

func save(a *Album) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return ioutils.WriteFileAtomic(a.path, data)
}
