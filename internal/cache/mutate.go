package cache

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/yplay/yplay/internal/errors"
	ioutils "github.com/yplay/yplay/internal/io"
)

// Delete removes an entry completely.
//
// A per-track folder is renamed to a hidden trash name in one step, so it
// vanishes from Resolve and List atomically. For a legacy pair both files
// are hidden first; if the second hide fails the first is restored and a
// PartialFailure is returned with both files still in place.
func (s *Store) Delete(e *Entry) error {
	if e == nil {
		return apperrors.Validation("nil entry")
	}
	unlock := s.locks.Lock(e.ID)
	defer unlock()

	var err error
	switch e.Layout {
	case LayoutLegacy:
		err = s.deleteLegacy(e)
	default:
		err = s.deletePerTrack(e)
	}
	if err != nil {
		return err
	}
	s.logger.Info("track deleted", zap.String("id", e.ID), zap.String("layout", e.Layout.String()))
	return nil
}

func (s *Store) deletePerTrack(e *Entry) error {
	dir := e.Dir
	if dir == "" {
		dir = filepath.Dir(e.AudioPath)
	}
	if filepath.Dir(dir) != s.root {
		return apperrors.Validation("%s is outside the cache", dir)
	}
	if err := s.discardDir(dir); err != nil {
		return apperrors.PartialFailure("delete "+e.ID, err)
	}
	s.removeStrayLegacySidecar(e.ID)
	return nil
}

// removeStrayLegacySidecar drops a "<id>.json" written next to a per-track
// folder by older versions, as long as it has no audio partner.
func (s *Store) removeStrayLegacySidecar(id string) {
	path := filepath.Join(s.root, id+".json")
	sc, err := readSidecar(path)
	if err != nil || (sc.ID != "" && sc.ID != id) || legacyAudio(s.root, id) != "" {
		return
	}
	if err := os.Remove(path); err != nil {
		s.logger.Debug("stray sidecar not removed", zap.String("path", path), zap.Error(err))
	}
}

func (s *Store) deleteLegacy(e *Entry) error {
	tag := uuid.NewString()
	hiddenAudio := filepath.Join(s.root, trashPrefix+tag+"-"+filepath.Base(e.AudioPath))
	hiddenSidecar := filepath.Join(s.root, trashPrefix+tag+"-"+filepath.Base(e.SidecarPath))

	if err := os.Rename(e.AudioPath, hiddenAudio); err != nil {
		return apperrors.PartialFailure("delete "+e.ID+": hide audio", err)
	}
	if err := os.Rename(e.SidecarPath, hiddenSidecar); err != nil {
		if rbErr := os.Rename(hiddenAudio, e.AudioPath); rbErr != nil {
			s.logger.Error("legacy delete rollback failed",
				zap.String("id", e.ID), zap.String("audio", hiddenAudio), zap.Error(rbErr))
		}
		return apperrors.PartialFailure("delete "+e.ID+": hide sidecar", err)
	}

	for _, p := range []string{hiddenAudio, hiddenSidecar} {
		if err := os.Remove(p); err != nil {
			s.logger.Warn("trash not removed", zap.String("path", p), zap.Error(err))
		}
	}
	return nil
}

// Rename changes an entry's title and returns the updated entry.
//
// Per-track folders keep their id suffix, so lookups by id keep working.
// Legacy pairs are renamed together; a failure on the second file rolls
// the first back.
func (s *Store) Rename(e *Entry, newTitle string) (*Entry, error) {
	if e == nil {
		return nil, apperrors.Validation("nil entry")
	}
	newTitle = strings.TrimSpace(newTitle)
	if newTitle == "" {
		return nil, apperrors.Validation("title must not be empty")
	}

	unlock := s.locks.Lock(e.ID)
	defer unlock()

	var (
		out *Entry
		err error
	)
	switch e.Layout {
	case LayoutLegacy:
		out, err = s.renameLegacy(e, newTitle)
	default:
		out, err = s.renamePerTrack(e, newTitle)
	}
	if err != nil {
		return nil, err
	}

	if s.tagger != nil && out.Ext() == "mp3" {
		if err := s.tagger.SetTitle(out.AudioPath, newTitle); err != nil {
			s.logger.Debug("retag after rename failed", zap.String("id", out.ID), zap.Error(err))
		}
	}
	s.logger.Info("track renamed", zap.String("id", out.ID), zap.String("title", newTitle))
	return out, nil
}

func (s *Store) renamePerTrack(e *Entry, newTitle string) (*Entry, error) {
	oldDir := e.Dir
	if oldDir == "" {
		oldDir = filepath.Dir(e.AudioPath)
	}
	sidecarPath := filepath.Join(oldDir, sidecarName)
	old, err := readSidecar(sidecarPath)
	if err != nil {
		return nil, apperrors.PartialFailure("rename "+e.ID+": read sidecar", err)
	}

	// Keep whichever suffix form the folder already uses.
	fullID := strings.HasSuffix(filepath.Base(oldDir), " ["+e.ID+"]") && len(e.ID) > 8
	newDir := filepath.Join(s.root, trackDirName(newTitle, e.ID, fullID))
	if newDir != oldDir {
		if _, err := os.Lstat(newDir); err == nil {
			return nil, apperrors.Validation("folder %s already exists", filepath.Base(newDir))
		}
	}

	updated := *old
	updated.ID = e.ID
	updated.Title = newTitle
	if err := writeSidecar(sidecarPath, &updated); err != nil {
		return nil, apperrors.PartialFailure("rename "+e.ID+": write sidecar", err)
	}

	if newDir != oldDir {
		if err := os.Rename(oldDir, newDir); err != nil {
			if rbErr := writeSidecar(sidecarPath, old); rbErr != nil {
				s.logger.Error("sidecar rollback failed", zap.String("id", e.ID), zap.Error(rbErr))
			}
			return nil, apperrors.PartialFailure("rename "+e.ID+": move folder", err)
		}
	}

	return s.entryFromDir(newDir, filepath.Base(e.AudioPath), &updated), nil
}

func (s *Store) renameLegacy(e *Entry, newTitle string) (*Entry, error) {
	base := ioutils.SanitizeTitle(newTitle, e.ID)
	ext := e.Ext()
	newAudio := filepath.Join(s.root, base+"."+ext)
	newSidecar := filepath.Join(s.root, base+".json")

	sameAudio := newAudio == e.AudioPath
	sameSidecar := newSidecar == e.SidecarPath
	if !sameAudio {
		if _, err := os.Lstat(newAudio); err == nil {
			return nil, apperrors.Validation("%s already exists", filepath.Base(newAudio))
		}
	}
	if !sameSidecar {
		if _, err := os.Lstat(newSidecar); err == nil {
			return nil, apperrors.Validation("%s already exists", filepath.Base(newSidecar))
		}
	}

	old, err := readSidecar(e.SidecarPath)
	if err != nil {
		return nil, apperrors.PartialFailure("rename "+e.ID+": read sidecar", err)
	}

	if !sameAudio {
		if err := os.Rename(e.AudioPath, newAudio); err != nil {
			return nil, apperrors.PartialFailure("rename "+e.ID+": move audio", err)
		}
	}
	if !sameSidecar {
		if err := os.Rename(e.SidecarPath, newSidecar); err != nil {
			if !sameAudio {
				if rbErr := os.Rename(newAudio, e.AudioPath); rbErr != nil {
					s.logger.Error("legacy rename rollback failed", zap.String("id", e.ID), zap.Error(rbErr))
				}
			}
			return nil, apperrors.PartialFailure("rename "+e.ID+": move sidecar", err)
		}
	}

	// The basename no longer carries the id, so the sidecar must.
	updated := *old
	updated.ID = e.ID
	updated.Title = newTitle
	if err := writeSidecar(newSidecar, &updated); err != nil {
		s.logger.Warn("legacy sidecar title not updated", zap.String("id", e.ID), zap.Error(err))
		updated = *old
		updated.ID = e.ID
	}

	return &Entry{
		ID:          e.ID,
		Title:       updated.Title,
		Uploader:    updated.Uploader,
		SourceURL:   sourceURL(&updated),
		Duration:    updated.Duration,
		AudioPath:   newAudio,
		SidecarPath: newSidecar,
		Layout:      LayoutLegacy,
	}, nil
}
