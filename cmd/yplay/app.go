package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yplay/yplay/internal/album"
	"github.com/yplay/yplay/internal/audio"
	"github.com/yplay/yplay/internal/cache"
	"github.com/yplay/yplay/internal/config"
	"github.com/yplay/yplay/internal/download"
	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/playback"
	"github.com/yplay/yplay/internal/playlist"
	"github.com/yplay/yplay/internal/prefetch"
	"github.com/yplay/yplay/internal/youtube"
)

// app holds the wired components for one run.
type app struct {
	settings *config.Settings
	logger   *zap.Logger

	store      *cache.Store
	resolver   *youtube.Client
	downloader *download.YTDLP
	fetcher    *download.Fetcher
	playlists  *playlist.Manager
	prefetcher *prefetch.Prefetcher
	albums     *album.Manager
}

func newApp(settings *config.Settings, logger *zap.Logger, progress func(download.ProgressEvent)) (*app, error) {
	var tagger *audio.Tagger
	if settings.ModifyTags {
		tagger = audio.NewTagger(audio.DefaultTagConfig())
	}

	storeOpts := []cache.Option{cache.WithLogger(logger)}
	if ff, err := cache.NewFFProbe(); err == nil {
		storeOpts = append(storeOpts, cache.WithMeasurer(ff))
	} else {
		logger.Debug("duration backfill disabled", zap.Error(err))
	}
	if tagger != nil {
		storeOpts = append(storeOpts, cache.WithTagger(tagger))
	}

	store, err := cache.New(settings.CacheDir, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", settings.CacheDir, err)
	}

	resolver := youtube.NewClient(
		youtube.WithAPIKey(settings.APIKey),
		youtube.WithFlatLister(youtube.NewYTDLPFlat()),
		youtube.WithLogger(logger),
	)

	downloader := download.NewYTDLP(
		download.WithFormat(settings.Format),
		download.WithAudioQuality(settings.AudioQuality),
		download.WithNative(settings.Native),
		download.WithEmbedMetadata(settings.EmbedMetadata),
		download.WithYTDLPLogger(logger),
	)

	fetchOpts := []download.Option{
		download.WithLogger(logger),
		download.WithRetry(settings.DownloadMaxRetries, settings.DownloadRetryCooldown, settings.DownloadRetryExponent),
	}
	if tagger != nil {
		fetchOpts = append(fetchOpts, download.WithTagger(tagger))
	}
	if progress != nil {
		fetchOpts = append(fetchOpts, download.WithProgress(progress))
	}
	fetcher := download.NewFetcher(store, downloader, fetchOpts...)

	albums, err := album.NewManager(settings.CacheDir, store, logger)
	if err != nil {
		return nil, fmt.Errorf("opening albums: %w", err)
	}

	return &app{
		settings:   settings,
		logger:     logger,
		store:      store,
		resolver:   resolver,
		downloader: downloader,
		fetcher:    fetcher,
		playlists:  playlist.NewManager(resolver, fetcher, logger),
		prefetcher: prefetch.New(store, fetcher,
			prefetch.WithWorkers(settings.PrefetchWorkers),
			prefetch.WithLogger(logger)),
		albums: albums,
	}, nil
}

// newController picks a player backend and builds the playback controller.
func (a *app) newController() (*playback.Controller, error) {
	backendOpts := []playback.BackendOption{playback.WithBackendLogger(a.logger)}
	if a.settings.HasVolume() {
		backendOpts = append(backendOpts, playback.WithVolume(a.settings.Volume))
	}
	backend, err := playback.SelectBackend(a.settings.Player, backendOpts...)
	if err != nil {
		return nil, err
	}
	return playback.NewController(backend,
		playback.WithStopTimeout(a.settings.StopTimeout),
		playback.WithLoopMode(a.settings.LoopMode()),
		playback.WithLogger(a.logger),
	), nil
}

// downloadAll keeps the whole manifest warm and waits for it.
func (a *app) downloadAll(ctx context.Context, manifest *model.Manifest) prefetch.Status {
	a.prefetcher.Start(ctx, manifest, -1, manifest.Len())
	a.prefetcher.Wait()
	st := a.prefetcher.Status()
	a.prefetcher.Stop()
	return st
}
