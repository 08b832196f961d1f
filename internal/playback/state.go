package playback

import (
	"strings"

	"github.com/yplay/yplay/internal/cache"
)

// Status is the playback state.
type Status int

const (
	Stopped Status = iota
	Playing
	Paused
	// Loading means the current track finished and the next queue track
	// is being fetched.
	Loading
)

func (s Status) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Loading:
		return "loading"
	default:
		return "stopped"
	}
}

// LoopMode decides what happens when a track finishes.
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopSingle
	LoopAll
)

func (m LoopMode) String() string {
	switch m {
	case LoopSingle:
		return "single"
	case LoopAll:
		return "all"
	default:
		return "none"
	}
}

// Next returns the mode after m in the None, Single, All cycle.
func (m LoopMode) Next() LoopMode {
	return (m + 1) % 3
}

// ParseLoopMode accepts "none", "single", "one", "all".
func ParseLoopMode(s string) (LoopMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return LoopNone, true
	case "single", "one":
		return LoopSingle, true
	case "all":
		return LoopAll, true
	}
	return LoopNone, false
}

// State is a consistent snapshot of the controller.
//
// Status is Stopped exactly when Current is nil.
type State struct {
	Status  Status
	Current *cache.Entry
	// Index is the queue position of Current, or -1.
	Index    int
	Loop     LoopMode
	Backend  string
	CanPause bool
	// Message describes the last failure, if any.
	Message string
}
