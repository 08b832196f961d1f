// Package download turns track metadata into cached audio.
//
// # Downloader
//
// YTDLP runs yt-dlp into a staging directory, converting to the configured
// format when ffmpeg is available and keeping the native format otherwise.
// Failures are classified as tool_missing, network or tool_error.
//
// # Fetcher
//
// The Fetcher is the one path from a TrackInfo to a cache entry:
//
//  1. Resolve the id in the cache; a hit returns immediately
//  2. Join or start the single flight for the id
//  3. Download into a staging dir
//  4. Tag mp3 files with title, uploader and thumbnail artwork
//  5. Persist into the cache and discard the staging dir
//
// # Basic Usage
//
//	f := download.NewFetcher(store, download.NewYTDLP(),
//	    download.WithTagger(audio.NewTagger()),
//	    download.WithProgress(func(e download.ProgressEvent) {
//	        fmt.Println(e.Message)
//	    }),
//	)
//	entry, err := f.Fetch(ctx, info, download.Foreground)
//
// # Self-heal
//
// A Foreground fetch that fails with a tool_error runs the downloader's
// SelfUpdate once and retries once. Background fetches never do.
package download
