package playlist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yplay/yplay/internal/cache"
	"github.com/yplay/yplay/internal/download"
	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/monitoring"
	"github.com/yplay/yplay/internal/youtube"
)

// Resolver supplies track metadata.
type Resolver interface {
	Video(ctx context.Context, idOrURL string) (model.TrackInfo, error)
	Playlist(ctx context.Context, url string) (*model.Manifest, error)
}

// Fetcher materializes a track into the cache.
type Fetcher interface {
	Fetch(ctx context.Context, info model.TrackInfo, mode download.Mode) (*cache.Entry, error)
}

// Manager opens playlists and resolves tracks to cache entries.
type Manager struct {
	resolver Resolver
	fetcher  Fetcher
	logger   *zap.Logger
}

// NewManager creates a Manager. A nil logger disables logging.
func NewManager(resolver Resolver, fetcher Fetcher, logger *zap.Logger) *Manager {
	return &Manager{
		resolver: resolver,
		fetcher:  fetcher,
		logger:   monitoring.Named(logger, "playlist"),
	}
}

// Open builds the manifest for a playlist URL with a single resolver call.
// Any resolver failure fails the whole call.
func (m *Manager) Open(ctx context.Context, url string) (*model.Manifest, error) {
	manifest, err := m.resolver.Playlist(ctx, url)
	if err != nil {
		return nil, err
	}
	if manifest.Len() == 0 {
		return nil, apperrors.NotFound("playlist %s has no playable tracks", url)
	}
	if manifest.URL == "" {
		manifest.URL = url
	}
	m.logger.Info("playlist opened",
		zap.String("url", url),
		zap.String("title", manifest.Title),
		zap.Int("tracks", manifest.Len()))
	return manifest, nil
}

// TrackAt returns the cache entry for track i, downloading it in the
// foreground on a miss. It panics if i is out of range.
func (m *Manager) TrackAt(ctx context.Context, manifest *model.Manifest, i int) (*cache.Entry, error) {
	if i < 0 || i >= manifest.Len() {
		panic(fmt.Sprintf("playlist: track index %d out of range [0,%d)", i, manifest.Len()))
	}
	return m.fetcher.Fetch(ctx, manifest.Tracks[i], download.Foreground)
}

// Resolve returns the cache entry for a single video id or URL. When the
// resolver is unavailable the download proceeds from the bare id and the
// downloader supplies the metadata.
func (m *Manager) Resolve(ctx context.Context, idOrURL string) (*cache.Entry, error) {
	id := youtube.ExtractVideoID(idOrURL)
	if id == "" {
		return nil, apperrors.Validation("%q is not a video id or URL", idOrURL)
	}

	info, err := m.resolver.Video(ctx, id)
	switch {
	case err == nil:
	case apperrors.IsKind(err, apperrors.KindResolverUnavailable):
		m.logger.Debug("resolver unavailable, using bare id", zap.String("id", id), zap.Error(err))
		info = model.NewTrackInfo(id)
	default:
		return nil, err
	}
	return m.fetcher.Fetch(ctx, info, download.Foreground)
}
