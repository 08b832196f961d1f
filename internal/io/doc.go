// Package ioutils provides file system and image processing utilities used by
// the track cache and the tagger.
//
// This package contains functions for:
//   - Title sanitization for cache folder and file names
//   - Atomic writes of small JSON documents
//   - Copying and moving files across filesystems
//   - Artwork resizing and format conversion
//
// # File Operations
//
//	// Replace a sidecar so readers never see a half-written file
//	err := ioutils.WriteFileAtomic("/cache/Song [dQw4w9Wg]/meta.json", data)
//
//	// Move a staged download into the cache
//	err := ioutils.MoveFile(ctx, "/cache/.staging-x/audio.mp3", dst)
//
// # Title Sanitization
//
//	safe := ioutils.SanitizeTitle("Song: Part 1/2", id) // "Song Part 12"
//
// # Image Processing
//
// The ImageService prepares thumbnails before they are embedded as ID3 artwork:
//
//	svc := ioutils.NewImageService()
//	resized, _ := svc.ResizeImage(ctx, thumb, 500, 500)
package ioutils
