package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/yplay/yplay/internal/errors"
	ioutils "github.com/yplay/yplay/internal/io"
	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/monitoring"
)

const (
	stagingPrefix = ".staging-"
	partialPrefix = ".partial-"
	trashPrefix   = ".trash-"

	// staleAfter is how old a hidden work directory must be before List
	// removes it.
	staleAfter = time.Hour

	measureTimeout = 15 * time.Second
)

// Tagger rewrites the embedded title of an audio file.
type Tagger interface {
	SetTitle(path, title string) error
}

// Store is the on-disk track cache rooted at a single directory.
//
// Store is safe for concurrent use. Operations on the same id are
// serialized; different ids proceed in parallel.
type Store struct {
	root     string
	logger   *zap.Logger
	measurer Measurer
	tagger   Tagger
	locks    *keyedMutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = monitoring.Named(l, "cache") }
}

// WithMeasurer enables duration backfill on Resolve.
func WithMeasurer(p Measurer) Option {
	return func(s *Store) { s.measurer = p }
}

// WithTagger enables ID3 title updates on Rename.
func WithTagger(t Tagger) Option {
	return func(s *Store) { s.tagger = t }
}

// New opens (creating if needed) the cache rooted at root.
func New(root string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := ioutils.EnsureDir(abs); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	s := &Store{
		root:   abs,
		logger: zap.NewNop(),
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute cache directory.
func (s *Store) Root() string {
	return s.root
}

// Resolve returns the cached entry for id, checking the per-track layout
// before the legacy one. A miss is reported as a NotFound error.
func (s *Store) Resolve(id string) (*Entry, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	e, err := s.resolveLocked(id)
	monitoring.RecordCacheLookup(err == nil)
	if err != nil {
		return nil, err
	}
	s.backfillDuration(e)
	return e, nil
}

func (s *Store) resolveLocked(id string) (*Entry, error) {
	if e := s.findPerTrack(id); e != nil {
		return e, nil
	}
	if e := s.findLegacy(id); e != nil {
		return e, nil
	}
	return nil, apperrors.NotFound("track %s not cached", id)
}

// backfillDuration measures and stores a missing duration. Failures only log.
func (s *Store) backfillDuration(e *Entry) {
	if e.Duration != nil || s.measurer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), measureTimeout)
	defer cancel()

	d, err := s.measurer.Measure(ctx, e.AudioPath)
	if err != nil {
		s.logger.Debug("duration measure failed", zap.String("id", e.ID), zap.Error(err))
		return
	}
	sc, err := readSidecar(e.SidecarPath)
	if err != nil {
		s.logger.Debug("duration backfill: read sidecar", zap.String("id", e.ID), zap.Error(err))
		return
	}
	if sc.ID == "" {
		sc.ID = e.ID
	}
	sc.Duration = &d
	if err := writeSidecar(e.SidecarPath, sc); err != nil {
		s.logger.Debug("duration backfill: write sidecar", zap.String("id", e.ID), zap.Error(err))
		return
	}
	e.Duration = &d
}

// Persist moves a downloaded audio file into a new per-track folder.
//
// The folder is assembled under a hidden name and renamed into place, so a
// concurrent Resolve never observes it half-written. If a complete entry for
// the id already exists the staged file is discarded and the existing entry
// is returned.
func (s *Store) Persist(info model.TrackInfo, audioPath string) (*Entry, error) {
	if err := validateID(info.ID); err != nil {
		return nil, err
	}
	ext := extOf(audioPath)
	if !isKnownExt(ext) {
		return nil, apperrors.Validation("unsupported audio extension %q", ext)
	}
	if !ioutils.Exists(audioPath) {
		return nil, apperrors.Validation("audio file %s is missing or empty", audioPath)
	}

	unlock := s.locks.Lock(info.ID)
	defer unlock()

	if existing := s.findPerTrack(info.ID); existing != nil {
		s.logger.Debug("persist: entry already complete", zap.String("id", info.ID))
		os.Remove(audioPath)
		return existing, nil
	}

	final, err := s.claimDir(info)
	if err != nil {
		return nil, err
	}

	partial := filepath.Join(s.root, partialPrefix+uuid.NewString())
	if err := os.Mkdir(partial, 0755); err != nil {
		return nil, fmt.Errorf("persist %s: %w", info.ID, err)
	}
	audioName := "audio." + ext
	if err := s.assemble(partial, audioName, info, audioPath); err != nil {
		os.RemoveAll(partial)
		return nil, fmt.Errorf("persist %s: %w", info.ID, err)
	}
	if err := os.Rename(partial, final); err != nil {
		os.RemoveAll(partial)
		return nil, fmt.Errorf("persist %s: %w", info.ID, err)
	}

	s.logger.Info("track cached", zap.String("id", info.ID), zap.String("dir", filepath.Base(final)))
	return s.entryFromDir(final, audioName, sidecarFromInfo(info)), nil
}

func (s *Store) assemble(dir, audioName string, info model.TrackInfo, audioPath string) error {
	if err := ioutils.MoveFile(context.Background(), audioPath, filepath.Join(dir, audioName)); err != nil {
		return err
	}
	return writeSidecar(filepath.Join(dir, sidecarName), sidecarFromInfo(info))
}

// claimDir picks the final folder path for info. A leftover incomplete
// folder for the same id is removed; a folder owned by another id sharing
// the 8-char prefix forces the full id into the suffix.
func (s *Store) claimDir(info model.TrackInfo) (string, error) {
	candidates := []string{trackDirName(info.Title, info.ID, false)}
	if len(info.ID) > 8 {
		candidates = append(candidates, trackDirName(info.Title, info.ID, true))
	}
	for _, name := range candidates {
		path := filepath.Join(s.root, name)
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			return path, nil
		}
		sc, err := readSidecar(filepath.Join(path, sidecarName))
		if err == nil && sc.ID != "" && sc.ID != info.ID {
			continue
		}
		// An unreadable folder under the short suffix may belong to
		// another id; only a full-id folder is known to be ours.
		if (err != nil || sc.ID == "") && !strings.HasSuffix(name, " ["+info.ID+"]") {
			s.logger.Debug("skipping unreadable track folder", zap.String("dir", name))
			continue
		}
		s.logger.Warn("removing incomplete track folder", zap.String("dir", name))
		if err := s.discardDir(path); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", apperrors.PartialFailure("no free folder name for "+info.ID, nil)
}

// discardDir hides dir under a trash name, then removes it.
func (s *Store) discardDir(dir string) error {
	trash := filepath.Join(s.root, trashPrefix+uuid.NewString())
	if err := os.Rename(dir, trash); err != nil {
		return err
	}
	if err := os.RemoveAll(trash); err != nil {
		s.logger.Warn("trash not removed", zap.String("path", trash), zap.Error(err))
	}
	return nil
}

// StagingDir creates a hidden directory for a downloader to write into.
func (s *Store) StagingDir(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, stagingPrefix+id+"-"+uuid.NewString())
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// DiscardStaging removes a directory returned by StagingDir.
func (s *Store) DiscardStaging(dir string) error {
	if filepath.Dir(dir) != s.root || !strings.HasPrefix(filepath.Base(dir), stagingPrefix) {
		return apperrors.Validation("%s is not a staging directory", dir)
	}
	return os.RemoveAll(dir)
}

func (s *Store) findPerTrack(id string) *Entry {
	suffixes := []string{" [" + id8(id) + "]", " [" + id + "]"}
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}
	for _, d := range dirents {
		name := d.Name()
		if !d.IsDir() || isHidden(name) {
			continue
		}
		if !strings.HasSuffix(name, suffixes[0]) && !strings.HasSuffix(name, suffixes[1]) {
			continue
		}
		e, ok := s.loadDir(filepath.Join(s.root, name))
		if ok && e.ID == id {
			return e
		}
	}
	return nil
}

// loadDir reads a per-track folder. ok is false unless both the sidecar
// and a non-empty audio file are present.
func (s *Store) loadDir(dir string) (*Entry, bool) {
	sc, err := readSidecar(filepath.Join(dir, sidecarName))
	if err != nil || sc.ID == "" {
		return nil, false
	}
	audio := audioIn(dir)
	if audio == "" {
		return nil, false
	}
	return s.entryFromDir(dir, audio, sc), true
}

func (s *Store) entryFromDir(dir, audioName string, sc *sidecar) *Entry {
	return &Entry{
		ID:          sc.ID,
		Title:       sc.Title,
		Uploader:    sc.Uploader,
		SourceURL:   sourceURL(sc),
		Duration:    sc.Duration,
		AudioPath:   filepath.Join(dir, audioName),
		SidecarPath: filepath.Join(dir, sidecarName),
		Dir:         dir,
		Layout:      LayoutPerTrack,
	}
}

// audioIn returns the name of the audio file in a per-track folder,
// preferring "audio.<ext>".
func audioIn(dir string) string {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var fallback string
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || isHidden(name) || !isKnownExt(extOf(name)) {
			continue
		}
		if !ioutils.Exists(filepath.Join(dir, name)) {
			continue
		}
		if strings.TrimSuffix(name, filepath.Ext(name)) == "audio" {
			return name
		}
		if fallback == "" {
			fallback = name
		}
	}
	return fallback
}

func (s *Store) findLegacy(id string) *Entry {
	if e := s.loadLegacy(id); e != nil && e.ID == id {
		return e
	}
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || isHidden(name) || extOf(name) != "json" {
			continue
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if base == id {
			continue
		}
		if e := s.loadLegacy(base); e != nil && e.ID == id {
			return e
		}
	}
	return nil
}

// loadLegacy reads the "<base>.json" + "<base>.<ext>" pair.
func (s *Store) loadLegacy(base string) *Entry {
	sidecarPath := filepath.Join(s.root, base+".json")
	sc, err := readSidecar(sidecarPath)
	if err != nil {
		return nil
	}
	audio := legacyAudio(s.root, base)
	if audio == "" {
		return nil
	}
	id := sc.ID
	if id == "" {
		id = base
	}
	return &Entry{
		ID:          id,
		Title:       sc.Title,
		Uploader:    sc.Uploader,
		SourceURL:   sourceURL(&sidecar{ID: id, URL: sc.URL}),
		Duration:    sc.Duration,
		AudioPath:   audio,
		SidecarPath: sidecarPath,
		Layout:      LayoutLegacy,
	}
}

func legacyAudio(root, base string) string {
	for _, ext := range KnownExts {
		p := filepath.Join(root, base+"."+ext)
		if ioutils.Exists(p) {
			return p
		}
	}
	return ""
}

func sourceURL(sc *sidecar) string {
	if sc.URL != "" {
		return sc.URL
	}
	return model.WatchURLPrefix + sc.ID
}

func trackDirName(title, id string, fullID bool) string {
	suffix := id8(id)
	if fullID {
		suffix = id
	}
	return ioutils.SanitizeTitle(title, id) + " [" + suffix + "]"
}

func id8(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// isHidden reports whether name is one of the store's own work paths:
// staging, partial and trash directories, or an atomic-write temp file.
func isHidden(name string) bool {
	switch {
	case strings.HasPrefix(name, stagingPrefix),
		strings.HasPrefix(name, partialPrefix),
		strings.HasPrefix(name, trashPrefix):
		return true
	}
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-")
}

func validateID(id string) error {
	if id == "" || len(id) > 64 || strings.ContainsAny(id, `/\ `) || strings.HasPrefix(id, ".") {
		return apperrors.Validation("invalid track id %q", id)
	}
	return nil
}
