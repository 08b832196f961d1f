// Package playlist turns a playlist URL into a logical playlist and resolves
// its tracks against the cache on demand.
//
// A Manager opens manifests through a Resolver and materializes tracks with
// a download.Fetcher. A Session pairs a manifest with the cursor of the track
// being played and is the queue the playback controller walks.
package playlist
