// Package tui provides the Bubble Tea browser for yplay.
//
// The browser has four modes: the local library, an opened playlist, the
// album list and a single album. Playback runs through a
// playback.Controller; the view polls its snapshot and the prefetcher's
// status every 500ms, so the model never receives callbacks from worker
// goroutines.
//
// Keys:
//
//	↑/↓ k/j   move            enter   play / open album
//	space     pause/resume    s       stop
//	n         next track      p       previous track
//	l         cycle loop mode
//	a         albums          b       back
//	c         create album    +       add track to album
//	x         remove from album
//	d         delete from cache
//	r         rename cached track
//	q         quit
package tui
