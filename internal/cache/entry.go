package cache

import (
	"path/filepath"
	"strings"

	"github.com/yplay/yplay/internal/model"
)

// Layout tells which on-disk arrangement an Entry was found in.
type Layout int

const (
	// LayoutPerTrack is "<title> [<id8>]/audio.<ext>" plus "meta.json".
	LayoutPerTrack Layout = iota
	// LayoutLegacy is "<base>.<ext>" plus "<base>.json" in the cache root.
	LayoutLegacy
)

func (l Layout) String() string {
	if l == LayoutLegacy {
		return "legacy"
	}
	return "per_track"
}

// Entry is a complete cached track.
//
// Callers never need to branch on Layout: AudioPath is always playable and
// the store's mutating operations accept either layout.
type Entry struct {
	ID        string
	Title     string
	Uploader  string
	SourceURL string
	// Duration in seconds; nil until known.
	Duration *int

	AudioPath   string
	SidecarPath string
	// Dir is the per-track folder; empty for legacy entries.
	Dir    string
	Layout Layout
}

// Info returns the entry's metadata as a TrackInfo.
func (e *Entry) Info() model.TrackInfo {
	return model.TrackInfo{
		ID:       e.ID,
		Title:    e.Title,
		Uploader: e.Uploader,
		Duration: e.Duration,
		URL:      e.SourceURL,
	}
}

// DisplayTitle returns the title, falling back to the id.
func (e *Entry) DisplayTitle() string {
	return e.Info().DisplayTitle()
}

// Ext returns the lower-case audio extension without the dot.
func (e *Entry) Ext() string {
	return extOf(e.AudioPath)
}

// KnownExts lists the audio extensions recognised in both layouts.
var KnownExts = []string{"mp3", "m4a", "opus", "flac", "wav", "webm", "ogg", "oga", "aac"}

func isKnownExt(ext string) bool {
	for _, k := range KnownExts {
		if k == ext {
			return true
		}
	}
	return false
}

func extOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
