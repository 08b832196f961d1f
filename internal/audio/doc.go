// Package audio provides ID3 tagging of downloaded tracks and playlist file
// export.
//
// # ID3 Tagging
//
// The Tagger writes title, uploader, length, source URL and cover art into
// mp3 files:
//
//	tagger := audio.NewTagger(audio.DefaultTagConfig())
//	err := tagger.Tag(path, info, artworkBytes)
//
// It satisfies both download.Tagger (tagging before a track enters the
// cache) and cache.Tagger (retitling after a rename).
//
// # Playlist Export
//
// Cached tracks or a whole playlist manifest can be exported:
//
//	format, _ := audio.FormatForPath("mix.m3u")
//	content := audio.NewPlaylistCreator(format, true).
//	    CreatePlaylist(manifest.Title, audio.ItemsFromManifest(manifest, store.Resolve))
//
// Supported formats:
//   - M3U (with optional extended info)
//   - PLS
//   - WPL (Windows Media Player)
//   - ZPL (Zune Media Player)
package audio
