// Package cache implements the on-disk track cache.
//
// Two layouts are read:
//
//	<root>/<sanitized-title> [<id8>]/audio.<ext>
//	<root>/<sanitized-title> [<id8>]/meta.json
//
//	<root>/<base>.json     (legacy sidecar)
//	<root>/<base>.<ext>    (legacy audio, paired by basename)
//
// New tracks are always written in the per-track layout. Every mutation is
// made visible with a single rename so readers never observe a partial
// entry: downloads land in a hidden ".staging-" directory, Persist builds
// the folder under ".partial-" and renames it into place, and Delete
// renames to ".trash-" before removing.
//
// Operations on the same track id are linearized by a per-id mutex.
package cache
