// Package playback plays cache entries through an external player process.
//
// A Controller owns the playback state machine (Stopped, Playing, Paused),
// enforces that at most one player process runs at a time, and applies the
// loop mode when a track finishes. Player backends are pluggable:
//
//   - MPV runs mpv with a JSON IPC socket and supports pause and resume
//   - Simple runs ffplay or afplay and only supports play and stop
//
// SelectBackend picks the best player found in PATH.
package playback
