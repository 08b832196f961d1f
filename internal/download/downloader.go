package download

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"

	"github.com/yplay/yplay/internal/cache"
	apperrors "github.com/yplay/yplay/internal/errors"
	ioutils "github.com/yplay/yplay/internal/io"
	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/monitoring"
)

// Result describes a finished download.
type Result struct {
	// AudioPath is the produced audio file inside the destination dir.
	AudioPath string
	Title     string
	Uploader  string
	Duration  *int
}

// Downloader fetches the audio of one track into destDir.
//
// Failures are DownloadFailed errors whose DownloadKind is tool_missing,
// network or tool_error.
type Downloader interface {
	Fetch(ctx context.Context, idOrURL, destDir string) (Result, error)
}

// SelfUpdater is implemented by downloaders that can update their external tool.
type SelfUpdater interface {
	SelfUpdate(ctx context.Context) error
}

// SupportedFormats are the conversion targets accepted for --format.
var SupportedFormats = []string{"mp3", "m4a", "opus", "flac", "wav"}

// DefaultAudioQuality is the best VBR quality.
const DefaultAudioQuality = "0"

var bitrateQuality = regexp.MustCompile(`^(\d+)[kK]$`)

// printTemplate reports the final file and effective metadata after all
// post-processing has run.
const printTemplate = "after_move:%(filepath)s\t%(id)s\t%(title)s\t%(uploader)s\t%(duration)s"

// networkMarkers are stderr fragments that indicate a transient network problem.
var networkMarkers = []string{
	"Unable to download",
	"HTTP Error",
	"timed out",
	"Temporary failure",
	"Connection reset",
	"Network is unreachable",
}

// YTDLP downloads audio with yt-dlp.
type YTDLP struct {
	format        string
	audioQuality  string
	native        bool
	embedMetadata bool
	logger        *zap.Logger
	lookPath      func(string) (string, error)
}

// YTDLPOption configures a YTDLP downloader.
type YTDLPOption func(*YTDLP)

// WithFormat sets the conversion target (mp3 by default).
func WithFormat(format string) YTDLPOption {
	return func(y *YTDLP) { y.format = strings.ToLower(strings.TrimPrefix(format, ".")) }
}

// WithAudioQuality sets the ffmpeg quality hint used when converting:
// 0 (best) to 10 for VBR, or a bitrate such as "192K". Empty means "0".
func WithAudioQuality(quality string) YTDLPOption {
	return func(y *YTDLP) { y.audioQuality = strings.TrimSpace(quality) }
}

// WithNative keeps the source format and skips conversion.
func WithNative(native bool) YTDLPOption {
	return func(y *YTDLP) { y.native = native }
}

// WithEmbedMetadata controls --embed-metadata during conversion.
func WithEmbedMetadata(embed bool) YTDLPOption {
	return func(y *YTDLP) { y.embedMetadata = embed }
}

// WithYTDLPLogger sets the logger.
func WithYTDLPLogger(l *zap.Logger) YTDLPOption {
	return func(y *YTDLP) { y.logger = monitoring.Named(l, "ytdlp") }
}

// NewYTDLP creates a yt-dlp backed downloader.
func NewYTDLP(opts ...YTDLPOption) *YTDLP {
	y := &YTDLP{
		format:        "mp3",
		audioQuality:  DefaultAudioQuality,
		embedMetadata: true,
		logger:        zap.NewNop(),
		lookPath:      exec.LookPath,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// IsValidAudioQuality reports whether quality is accepted by
// WithAudioQuality: empty, 0 to 10, or a bitrate in kbit/s with a K suffix.
func IsValidAudioQuality(quality string) bool {
	if quality == "" {
		return true
	}
	if m := bitrateQuality.FindStringSubmatch(quality); m != nil {
		n, err := strconv.Atoi(m[1])
		return err == nil && n > 0
	}
	n, err := strconv.Atoi(quality)
	return err == nil && n >= 0 && n <= 10
}

func (y *YTDLP) quality() string {
	if y.audioQuality == "" {
		return DefaultAudioQuality
	}
	return y.audioQuality
}

// IsSupportedFormat reports whether format is a valid conversion target.
func IsSupportedFormat(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (y *YTDLP) Fetch(ctx context.Context, idOrURL, destDir string) (Result, error) {
	if _, err := y.lookPath("yt-dlp"); err != nil {
		return Result{}, apperrors.DownloadFailed(apperrors.DownloadToolMissing, "yt-dlp not found in PATH", err)
	}

	cmd := ytdlp.New().
		Format("bestaudio/best").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		NoSimulate().
		Output(filepath.Join(destDir, "audio.%(ext)s")).
		Print(printTemplate)

	if y.shouldConvert() {
		cmd.ExtractAudio().AudioFormat(y.format).AudioQuality(y.quality())
		if y.embedMetadata {
			cmd.EmbedMetadata()
		}
	}

	y.logger.Debug("yt-dlp fetch", zap.String("target", idOrURL), zap.String("dest", destDir))
	res, err := cmd.Run(ctx, idOrURL)
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		return Result{}, classify(ctx, err, stderr)
	}

	out := parsePrintOutput(res.Stdout)
	if out.AudioPath == "" || !ioutils.Exists(out.AudioPath) {
		out.AudioPath = findAudio(destDir)
	}
	if out.AudioPath == "" {
		return Result{}, apperrors.DownloadFailed(apperrors.DownloadToolError, "yt-dlp produced no audio file", nil)
	}
	return out, nil
}

// shouldConvert is false in native mode and when ffmpeg is absent, in which
// case the source format is kept.
func (y *YTDLP) shouldConvert() bool {
	if y.native {
		return false
	}
	if _, err := y.lookPath("ffmpeg"); err != nil {
		y.logger.Warn("ffmpeg not found; keeping native audio format")
		return false
	}
	return true
}

// SelfUpdate runs "yt-dlp -U".
func (y *YTDLP) SelfUpdate(ctx context.Context) error {
	if _, err := y.lookPath("yt-dlp"); err != nil {
		return apperrors.ToolMissing("yt-dlp")
	}
	res, err := ytdlp.New().Run(ctx, "--update")
	if err != nil {
		msg := ""
		if res != nil {
			msg = strings.TrimSpace(res.Stderr)
		}
		return fmt.Errorf("yt-dlp -U: %s: %w", msg, err)
	}
	y.logger.Info("yt-dlp updated", zap.String("output", strings.TrimSpace(res.Stdout)))
	return nil
}

func classify(ctx context.Context, err error, stderr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if stderrors.Is(err, exec.ErrNotFound) {
		return apperrors.DownloadFailed(apperrors.DownloadToolMissing, "yt-dlp not found", err)
	}
	msg := lastLine(stderr)
	for _, marker := range networkMarkers {
		if strings.Contains(stderr, marker) {
			return apperrors.DownloadFailed(apperrors.DownloadNetwork, msg, err)
		}
	}
	return apperrors.DownloadFailed(apperrors.DownloadToolError, msg, err)
}

func parsePrintOutput(stdout string) Result {
	var out Result
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(parts) < 5 || parts[0] == "" {
			continue
		}
		out = Result{
			AudioPath: parts[0],
			Title:     na(parts[2]),
			Uploader:  na(parts[3]),
		}
		if d, ok := model.ParseDuration(na(parts[4])); ok {
			out.Duration = &d
		}
	}
	return out
}

// findAudio returns the first non-empty file with a known audio extension.
func findAudio(dir string) string {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Name()), "."))
		for _, known := range cache.KnownExts {
			p := filepath.Join(dir, d.Name())
			if ext == known && ioutils.Exists(p) {
				return p
			}
		}
	}
	return ""
}

func na(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return "yt-dlp failed"
}
