package model

import (
	"fmt"
	"strings"
)

// WatchURLPrefix is prepended to an id to form its canonical source URL.
const WatchURLPrefix = "https://www.youtube.com/watch?v="

// TrackInfo is the metadata stub for a remote track.
//
// TrackInfo is produced by the metadata resolver and by the downloader, and is
// what the cache persists into a sidecar next to the audio file. Only ID is
// required; every other field may be empty when the source did not provide
// it.
//
// Example:
//
//	info := model.NewTrackInfo("dQw4w9WgXcQ")
//	// info.URL == "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
type TrackInfo struct {
	// ID is the opaque remote identifier (8–12 characters).
	ID string

	// Title is the track title as reported by the source.
	Title string

	// Uploader is the channel or artist name.
	Uploader string

	// Duration is the length in whole seconds; nil when unknown.
	Duration *int

	// URL is the canonical source URL.
	URL string
}

// NewTrackInfo returns a stub carrying only id and its watch URL.
func NewTrackInfo(id string) TrackInfo {
	return TrackInfo{ID: id, URL: WatchURLPrefix + id}
}

// DisplayTitle returns the title, or the id when the title is unknown.
func (t TrackInfo) DisplayTitle() string {
	if strings.TrimSpace(t.Title) == "" {
		return t.ID
	}
	return t.Title
}

// SourceURL returns URL or, when it is empty, the watch URL built from ID.
func (t TrackInfo) SourceURL() string {
	if t.URL != "" {
		return t.URL
	}
	return WatchURLPrefix + t.ID
}

// Merge fills empty fields of t from other. Fields already set in t win.
func (t TrackInfo) Merge(other TrackInfo) TrackInfo {
	if t.ID == "" {
		t.ID = other.ID
	}
	if t.Title == "" {
		t.Title = other.Title
	}
	if t.Uploader == "" {
		t.Uploader = other.Uploader
	}
	if t.Duration == nil && other.Duration != nil {
		d := *other.Duration
		t.Duration = &d
	}
	if t.URL == "" {
		t.URL = other.URL
	}
	return t
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// FormatDuration renders seconds as m:ss, or h:mm:ss past an hour.
// A nil duration renders as "--:--".
func FormatDuration(d *int) string {
	if d == nil || *d < 0 {
		return "--:--"
	}
	s := *d
	h, m, sec := s/3600, (s%3600)/60, s%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
