package youtube

import (
	"context"
	"os/exec"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/model"
)

// flatFormat is the --print template for flat playlist listing.
const flatFormat = "%(id)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(playlist_title)s"

// YTDLPFlat lists playlists with "yt-dlp --flat-playlist" so no API key is needed.
type YTDLPFlat struct{}

// NewYTDLPFlat returns the yt-dlp backed lister.
func NewYTDLPFlat() *YTDLPFlat {
	return &YTDLPFlat{}
}

func (y *YTDLPFlat) FlatPlaylist(ctx context.Context, playlistURL string) (*model.Manifest, error) {
	if _, err := exec.LookPath("yt-dlp"); err != nil {
		return nil, apperrors.ResolverUnavailable("no API key and yt-dlp is not installed", apperrors.ToolMissing("yt-dlp"))
	}

	res, err := ytdlp.New().
		FlatPlaylist().
		Print(flatFormat).
		NoWarnings().
		IgnoreConfig().
		Run(ctx, playlistURL)
	if err != nil {
		msg := ""
		if res != nil {
			msg = strings.TrimSpace(res.Stderr)
		}
		return nil, apperrors.ResolverUnavailable("yt-dlp flat playlist: "+msg, err)
	}

	m := parseFlatOutput(res.Stdout)
	m.URL = playlistURL
	return m, nil
}

// parseFlatOutput reads one tab separated line per entry.
func parseFlatOutput(stdout string) *model.Manifest {
	m := &model.Manifest{}
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 2 || parts[0] == "" || parts[0] == "NA" {
			continue
		}
		info := model.NewTrackInfo(parts[0])
		info.Title = naToEmpty(parts[1])
		if isUnavailableTitle(info.Title) {
			continue
		}
		if len(parts) > 2 {
			info.Uploader = naToEmpty(parts[2])
		}
		if len(parts) > 3 {
			if d, ok := model.ParseDuration(naToEmpty(parts[3])); ok {
				info.Duration = &d
			}
		}
		if len(parts) > 4 && m.Title == "" {
			m.Title = naToEmpty(parts[4])
		}
		m.Tracks = append(m.Tracks, info)
	}
	return m
}

func naToEmpty(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}
