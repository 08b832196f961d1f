package cache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// List returns every complete entry in the cache sorted by title.
//
// A per-track entry hides a legacy entry with the same id. While scanning,
// stale hidden work directories and incomplete per-track folders are
// removed. Legacy files without a partner are logged and left alone.
func (s *Store) List() ([]*Entry, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Entry)
	var legacy []*Entry
	legacyFiles := make(map[string]bool)

	for _, d := range dirents {
		name := d.Name()
		path := filepath.Join(s.root, name)

		if isHidden(name) {
			s.sweepHidden(d, path)
			continue
		}

		if d.IsDir() {
			if !isTrackDirName(name) {
				continue
			}
			e, ok := s.loadDir(path)
			if !ok {
				if isIncomplete(path) {
					s.sweepIncomplete(path)
				} else {
					s.logger.Debug("unreadable track folder", zap.String("dir", name))
				}
				continue
			}
			if prev, dup := byID[e.ID]; dup {
				s.logger.Warn("duplicate per-track folders", zap.String("id", e.ID),
					zap.String("kept", prev.Dir), zap.String("ignored", e.Dir))
				continue
			}
			byID[e.ID] = e
			continue
		}

		if extOf(name) != "json" {
			continue
		}
		if e := s.loadLegacy(strings.TrimSuffix(name, filepath.Ext(name))); e != nil {
			legacy = append(legacy, e)
			legacyFiles[e.AudioPath] = true
			legacyFiles[e.SidecarPath] = true
		}
	}

	for _, e := range legacy {
		if _, shadowed := byID[e.ID]; shadowed {
			continue
		}
		byID[e.ID] = e
	}
	s.reportOrphans(dirents, legacyFiles)

	out := make([]*Entry, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].DisplayTitle()), strings.ToLower(out[j].DisplayTitle())
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) sweepHidden(d os.DirEntry, path string) {
	name := d.Name()
	if !strings.HasPrefix(name, stagingPrefix) && !strings.HasPrefix(name, partialPrefix) && !strings.HasPrefix(name, trashPrefix) {
		return
	}
	info, err := d.Info()
	if err != nil || time.Since(info.ModTime()) < staleAfter {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		s.logger.Debug("stale work dir not removed", zap.String("path", name), zap.Error(err))
		return
	}
	s.logger.Debug("removed stale work dir", zap.String("path", name))
}

func (s *Store) sweepIncomplete(dir string) {
	s.logger.Info("removing incomplete track folder", zap.String("dir", filepath.Base(dir)))
	if err := s.discardDir(dir); err != nil {
		s.logger.Debug("incomplete folder not removed", zap.String("dir", dir), zap.Error(err))
	}
}

func (s *Store) reportOrphans(dirents []os.DirEntry, paired map[string]bool) {
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || isHidden(name) {
			continue
		}
		ext := extOf(name)
		if ext != "json" && !isKnownExt(ext) {
			continue
		}
		if !paired[filepath.Join(s.root, name)] {
			s.logger.Debug("legacy file without partner", zap.String("file", name))
		}
	}
}

// isIncomplete reports whether a per-track folder lacks its sidecar or
// its audio file.
func isIncomplete(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, sidecarName)); err != nil {
		return true
	}
	return audioIn(dir) == ""
}

// isTrackDirName reports whether name has the "<title> [<id>]" shape.
func isTrackDirName(name string) bool {
	if !strings.HasSuffix(name, "]") {
		return false
	}
	open := strings.LastIndex(name, " [")
	if open < 0 {
		return false
	}
	id := name[open+2 : len(name)-1]
	return id != "" && validateID(id) == nil
}
