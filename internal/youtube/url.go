package youtube

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/yplay/yplay/internal/model"
)

var (
	urlRE        = regexp.MustCompile(`(?i)^(https?://)?(www\.|m\.|music\.)?(youtube\.com|youtu\.be)/`)
	videoIDRE    = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`)
	bareIDRE     = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
	playlistIDRE = regexp.MustCompile(`[?&]list=([0-9A-Za-z_-]{10,})`)
)

// IsURL reports whether s looks like a YouTube URL.
func IsURL(s string) bool {
	return urlRE.MatchString(strings.TrimSpace(s))
}

// IsPlaylistURL reports whether s points at a playlist rather than a single video.
func IsPlaylistURL(s string) bool {
	if !IsURL(s) {
		return false
	}
	return playlistIDRE.MatchString(s) || strings.Contains(s, "/playlist")
}

// ExtractVideoID returns the video id of a watch, short or embed URL, or s
// itself when s is already a bare 11-character id. It returns "" otherwise.
func ExtractVideoID(s string) string {
	s = strings.TrimSpace(s)
	if bareIDRE.MatchString(s) {
		return s
	}
	if !IsURL(s) {
		return ""
	}
	if u, err := url.Parse(ensureScheme(s)); err == nil {
		if v := u.Query().Get("v"); bareIDRE.MatchString(v) {
			return v
		}
	}
	if m := videoIDRE.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// ExtractPlaylistID returns the list= parameter of a playlist URL.
func ExtractPlaylistID(s string) string {
	if m := playlistIDRE.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// WatchURL returns the canonical watch URL for id.
func WatchURL(id string) string {
	return model.WatchURLPrefix + id
}

// PlaylistURL returns the canonical playlist URL for a list id.
func PlaylistURL(listID string) string {
	return "https://www.youtube.com/playlist?list=" + listID
}

// ThumbnailURL returns the high quality thumbnail URL for id.
func ThumbnailURL(id string) string {
	return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"
}

func ensureScheme(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "http://") || strings.HasPrefix(strings.ToLower(s), "https://") {
		return s
	}
	return "https://" + s
}
