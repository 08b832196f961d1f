package download

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yplay/yplay/internal/cache"
	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/http"
	ioutils "github.com/yplay/yplay/internal/io"
	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/monitoring"
	"github.com/yplay/yplay/internal/youtube"
)

// ProgressLevel indicates the severity/type of a progress message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// ProgressEvent represents a download progress update.
type ProgressEvent struct {
	Message string
	Level   ProgressLevel
	// TrackID is the track the event is about.
	TrackID string
	Mode    Mode
}

// Mode tells who asked for a download.
type Mode int

const (
	// Foreground downloads block a waiting user and may self-heal the tool.
	Foreground Mode = iota
	// Background downloads come from the prefetcher and never self-heal.
	Background
)

func (m Mode) String() string {
	if m == Background {
		return "background"
	}
	return "foreground"
}

// Store is the part of the track cache the fetcher writes through.
type Store interface {
	Resolve(id string) (*cache.Entry, error)
	Persist(info model.TrackInfo, audioPath string) (*cache.Entry, error)
	StagingDir(id string) (string, error)
	DiscardStaging(dir string) error
}

// Tagger writes ID3 metadata and cover art into an mp3 file.
type Tagger interface {
	Tag(path string, info model.TrackInfo, artwork []byte) error
}

// Fetcher is the single path from a TrackInfo to a cache entry.
//
// Concurrent requests for the same id, foreground or background, share one
// download. A foreground request whose download fails with a tool error
// updates the tool once and retries once.
type Fetcher struct {
	store      Store
	downloader Downloader
	tagger     Tagger
	httpClient *http.Client
	images     *ioutils.ImageService
	artworkURL func(id string) string

	maxRetries    int
	retryCooldown float64
	retryExponent float64
	artworkSize   int

	group      singleflight.Group
	onProgress func(ProgressEvent)
	logger     *zap.Logger

	// healMu serializes self-updates so parallel foreground failures run
	// the updater once.
	healMu sync.Mutex
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTagger enables ID3 tagging and artwork embedding for mp3 downloads.
func WithTagger(t Tagger) Option {
	return func(f *Fetcher) { f.tagger = t }
}

// WithHTTPClient sets the client used for artwork.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithArtworkURL overrides where thumbnails are fetched from.
func WithArtworkURL(fn func(id string) string) Option {
	return func(f *Fetcher) { f.artworkURL = fn }
}

// WithRetry configures artwork download retries: the n-th retry waits
// cooldown * exponent^n seconds.
func WithRetry(maxRetries int, cooldown, exponent float64) Option {
	return func(f *Fetcher) {
		f.maxRetries = max(1, maxRetries)
		f.retryCooldown = cooldown
		f.retryExponent = exponent
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn func(ProgressEvent)) Option {
	return func(f *Fetcher) { f.onProgress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = monitoring.Named(l, "fetcher") }
}

// NewFetcher creates a Fetcher writing into store.
func NewFetcher(store Store, downloader Downloader, opts ...Option) *Fetcher {
	f := &Fetcher{
		store:         store,
		downloader:    downloader,
		httpClient:    http.NewClient(),
		images:        ioutils.NewImageService(),
		artworkURL:    youtube.ThumbnailURL,
		maxRetries:    3,
		retryCooldown: 0.5,
		retryExponent: 2,
		artworkSize:   500,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the cache entry for info, downloading it on a miss.
func (f *Fetcher) Fetch(ctx context.Context, info model.TrackInfo, mode Mode) (*cache.Entry, error) {
	if e, err := f.store.Resolve(info.ID); err == nil {
		return e, nil
	} else if !apperrors.IsNotFound(err) {
		return nil, err
	}

	healed := false
	for {
		e, err := f.fetchShared(ctx, info, mode)
		if err == nil {
			return e, nil
		}
		if mode != Foreground || healed || apperrors.DownloadKindOf(err) != apperrors.DownloadToolError {
			return nil, err
		}
		updater, ok := f.downloader.(SelfUpdater)
		if !ok {
			return nil, err
		}
		healed = true
		if uerr := f.selfUpdate(ctx, updater, info.ID); uerr != nil {
			f.logger.Warn("self-update failed", zap.Error(uerr))
			return nil, err
		}
	}
}

func (f *Fetcher) selfUpdate(ctx context.Context, updater SelfUpdater, id string) error {
	f.healMu.Lock()
	defer f.healMu.Unlock()

	f.progress(ProgressEvent{Message: "Download failed; updating yt-dlp and retrying", Level: LevelWarning, TrackID: id, Mode: Foreground})
	return updater.SelfUpdate(ctx)
}

// fetchShared joins or starts the single flight for info.ID. A waiter whose
// shared flight was cancelled by its leader retries under its own context.
func (f *Fetcher) fetchShared(ctx context.Context, info model.TrackInfo, mode Mode) (*cache.Entry, error) {
	for {
		ch := f.group.DoChan(info.ID, func() (any, error) {
			return f.download(ctx, info, mode)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			if r.Err != nil {
				if r.Shared && isCancellation(r.Err) && ctx.Err() == nil {
					continue
				}
				return nil, r.Err
			}
			return r.Val.(*cache.Entry), nil
		}
	}
}

func (f *Fetcher) download(ctx context.Context, info model.TrackInfo, mode Mode) (*cache.Entry, error) {
	// Another flight may have finished between the caller's lookup and now.
	if e, err := f.store.Resolve(info.ID); err == nil {
		return e, nil
	}

	label := mode.String()
	monitoring.RecordDownloadStart(label)
	start := time.Now()

	f.progress(ProgressEvent{Message: fmt.Sprintf("Downloading: %s", info.DisplayTitle()), Level: LevelVerbose, TrackID: info.ID, Mode: mode})

	staging, err := f.store.StagingDir(info.ID)
	if err != nil {
		monitoring.RecordDownloadFailed(label, "staging")
		return nil, err
	}
	defer func() {
		if err := f.store.DiscardStaging(staging); err != nil {
			f.logger.Debug("staging not removed", zap.String("dir", staging), zap.Error(err))
		}
	}()

	res, err := f.downloader.Fetch(ctx, info.SourceURL(), staging)
	if err != nil {
		kind := string(apperrors.DownloadKindOf(err))
		if kind == "" {
			kind = "other"
		}
		monitoring.RecordDownloadFailed(label, kind)
		f.logger.Debug("download failed", zap.String("id", info.ID), zap.String("mode", label), zap.Error(err))
		return nil, err
	}

	merged := info.Merge(model.TrackInfo{Title: res.Title, Uploader: res.Uploader, Duration: res.Duration})
	f.tag(ctx, res.AudioPath, merged)

	e, err := f.store.Persist(merged, res.AudioPath)
	if err != nil {
		monitoring.RecordDownloadFailed(label, "persist")
		return nil, err
	}

	monitoring.RecordDownloadComplete(label, time.Since(start))
	f.logger.Info("download complete", zap.String("id", info.ID), zap.String("mode", label), zap.Duration("took", time.Since(start)))
	f.progress(ProgressEvent{Message: fmt.Sprintf("Downloaded: %s", e.DisplayTitle()), Level: LevelSuccess, TrackID: info.ID, Mode: mode})
	return e, nil
}

// tag embeds metadata and artwork into a staged mp3. Failures only warn.
func (f *Fetcher) tag(ctx context.Context, path string, info model.TrackInfo) {
	if f.tagger == nil || !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return
	}
	artwork, err := f.downloadArtwork(ctx, info.ID)
	if err != nil {
		f.logger.Debug("artwork unavailable", zap.String("id", info.ID), zap.Error(err))
	}
	if err := f.tagger.Tag(path, info, artwork); err != nil {
		f.progress(ProgressEvent{Message: fmt.Sprintf("Error tagging %s: %v", info.DisplayTitle(), err), Level: LevelWarning, TrackID: info.ID})
	}
}

func (f *Fetcher) downloadArtwork(ctx context.Context, id string) ([]byte, error) {
	if f.artworkURL == nil {
		return nil, nil
	}
	var (
		artwork []byte
		err     error
	)
	for tries := 0; tries < f.maxRetries; tries++ {
		artwork, err = f.httpClient.DownloadBytes(ctx, f.artworkURL(id))
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if tries+1 < f.maxRetries {
			f.waitForRetry(ctx, tries)
		}
	}
	if err != nil {
		return nil, err
	}
	return f.images.Artwork(ctx, artwork, f.artworkSize)
}

func (f *Fetcher) waitForRetry(ctx context.Context, tries int) {
	cooldown := f.retryCooldown * math.Pow(f.retryExponent, float64(tries))
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(cooldown * float64(time.Second))):
	}
}

func (f *Fetcher) progress(event ProgressEvent) {
	if f.onProgress != nil {
		f.onProgress(event)
	}
}

func isCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
