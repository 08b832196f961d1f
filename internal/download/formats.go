package download

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"

	apperrors "github.com/yplay/yplay/internal/errors"
)

// AudioFormat is one audio-only stream offered for a video.
type AudioFormat struct {
	ID         string
	Ext        string
	Codec      string
	Bitrate    float64 // kbit/s, 0 when unknown
	SampleRate int     // Hz, 0 when unknown
	Filesize   int64   // bytes, 0 when unknown
	Note       string
}

type rawFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	ACodec         string   `json:"acodec"`
	VCodec         string   `json:"vcodec"`
	ABR            *float64 `json:"abr"`
	ASR            *float64 `json:"asr"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
	FormatNote     string   `json:"format_note"`
}

// ListFormats inspects url without downloading and returns its audio-only
// formats, best bitrate first.
func (y *YTDLP) ListFormats(ctx context.Context, url string) ([]AudioFormat, error) {
	if _, err := y.lookPath("yt-dlp"); err != nil {
		return nil, apperrors.DownloadFailed(apperrors.DownloadToolMissing, "yt-dlp not found in PATH", err)
	}

	y.logger.Debug("yt-dlp list formats", zap.String("target", url))
	res, err := ytdlp.New().
		DumpJSON().
		SkipDownload().
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, url)
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		return nil, classify(ctx, err, stderr)
	}
	return parseFormats(res.Stdout)
}

// parseFormats decodes a --dump-json document and keeps the streams that
// carry audio and no video.
func parseFormats(stdout string) ([]AudioFormat, error) {
	var doc struct {
		Formats []rawFormat `json:"formats"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &doc); err != nil {
		return nil, apperrors.DownloadFailed(apperrors.DownloadToolError, "unreadable yt-dlp format list", err)
	}

	var out []AudioFormat
	for _, f := range doc.Formats {
		if f.ACodec == "" || f.ACodec == "none" || (f.VCodec != "" && f.VCodec != "none") {
			continue
		}
		af := AudioFormat{
			ID:    f.FormatID,
			Ext:   f.Ext,
			Codec: f.ACodec,
			Note:  f.FormatNote,
		}
		if f.ABR != nil {
			af.Bitrate = *f.ABR
		}
		if f.ASR != nil {
			af.SampleRate = int(*f.ASR)
		}
		switch {
		case f.Filesize != nil:
			af.Filesize = int64(*f.Filesize)
		case f.FilesizeApprox != nil:
			af.Filesize = int64(*f.FilesizeApprox)
		}
		out = append(out, af)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bitrate > out[j].Bitrate })
	return out, nil
}
