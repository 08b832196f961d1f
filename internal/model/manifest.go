package model

import "fmt"

// Manifest is the ordered list of tracks behind a playlist URL.
//
// A Manifest is immutable once returned by the playlist manager; tracks are
// addressed by index only.
type Manifest struct {
	// URL is the playlist URL the manifest was resolved from.
	URL string

	// Title is the playlist title, if the source reported one.
	Title string

	// Tracks holds the entries in playlist order.
	Tracks []TrackInfo
}

// Len returns the number of tracks.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Tracks)
}

// At returns the track at index i. It panics if i is out of range.
func (m *Manifest) At(i int) TrackInfo {
	if i < 0 || i >= m.Len() {
		panic(fmt.Sprintf("model: manifest index %d out of range [0,%d)", i, m.Len()))
	}
	return m.Tracks[i]
}

// IDs returns the track ids in order.
func (m *Manifest) IDs() []string {
	ids := make([]string, m.Len())
	for i, t := range m.Tracks {
		ids[i] = t.ID
	}
	return ids
}
