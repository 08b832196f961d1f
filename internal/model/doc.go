// Package model defines the core data structures shared by the cache, the
// resolver, the downloader and the player.
//
// # TrackInfo
//
// TrackInfo is the metadata stub for one remote track:
//
//	info := model.NewTrackInfo("dQw4w9WgXcQ")
//	info.Title = "Never Gonna Give You Up"
//	fmt.Println(info.DisplayTitle(), model.FormatDuration(info.Duration))
//
// # Manifest
//
// Manifest is the immutable, index-addressed track list of a playlist:
//
//	for i := 0; i < m.Len(); i++ {
//	    fmt.Println(i, m.At(i).Title)
//	}
package model
