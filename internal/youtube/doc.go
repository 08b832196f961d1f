// Package youtube resolves track and playlist metadata.
//
// The Client talks to the YouTube Data API v3 for search, single video
// lookups and playlist listings. Without an API key playlists are listed
// through "yt-dlp --flat-playlist" instead; search and single video lookups
// report a ResolverUnavailable error.
//
//	c := youtube.NewClient(youtube.WithAPIKey(key))
//	results, err := c.Search(ctx, "daft punk", 10)
//	m, err := c.Playlist(ctx, "https://www.youtube.com/playlist?list=PL...")
//
// The URL helpers (IsURL, IsPlaylistURL, ExtractVideoID, ExtractPlaylistID)
// are pure and safe to call from anywhere.
package youtube
