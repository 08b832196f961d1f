package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// DownloadsTotal tracks downloads by status and mode (foreground, background)
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yplay_downloads_total",
			Help: "Total number of downloads",
		},
		[]string{"status", "mode"},
	)

	// DownloadDuration tracks download duration in seconds by mode
	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yplay_download_duration_seconds",
			Help:    "Download duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"mode"},
	)

	// ActiveDownloads tracks number of active downloads
	ActiveDownloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yplay_active_downloads",
			Help: "Number of active downloads",
		},
	)

	// CacheLookups tracks cache hits and misses
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yplay_cache_lookups_total",
			Help: "Cache lookups by result",
		},
		[]string{"result"},
	)

	// PrefetchQueueSize tracks ids waiting in the prefetch queue
	PrefetchQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yplay_prefetch_queue_size",
			Help: "Pending prefetch downloads",
		},
	)

	// PlaysTotal counts player starts
	PlaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yplay_plays_total",
			Help: "Total number of tracks started",
		},
		[]string{"backend"},
	)

	// PlayerCrashesTotal counts unexpected player exits
	PlayerCrashesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yplay_player_crashes_total",
			Help: "Player processes that exited with an error",
		},
		[]string{"backend"},
	)

	// APIRequestsTotal tracks API requests by endpoint and status
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yplay_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "status"},
	)

	// APIRequestDuration tracks API request duration
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yplay_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// ErrorsTotal tracks errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yplay_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

// RecordDownloadStart records the start of a download
func RecordDownloadStart(mode string) {
	ActiveDownloads.Inc()
	DownloadsTotal.WithLabelValues("started", mode).Inc()
}

// RecordDownloadComplete records a completed download
func RecordDownloadComplete(mode string, duration time.Duration) {
	DownloadsTotal.WithLabelValues("completed", mode).Inc()
	DownloadDuration.WithLabelValues(mode).Observe(duration.Seconds())
	ActiveDownloads.Dec()
}

// RecordDownloadFailed records a failed download
func RecordDownloadFailed(mode string, errorType string) {
	DownloadsTotal.WithLabelValues("failed", mode).Inc()
	ErrorsTotal.WithLabelValues(errorType).Inc()
	ActiveDownloads.Dec()
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	CacheLookups.WithLabelValues("miss").Inc()
}

// UpdatePrefetchQueueSize updates the prefetch queue gauge
func UpdatePrefetchQueueSize(size int) {
	PrefetchQueueSize.Set(float64(size))
}

// RecordPlay records a player start
func RecordPlay(backend string) {
	PlaysTotal.WithLabelValues(backend).Inc()
}

// RecordPlayerCrash records an unexpected player exit
func RecordPlayerCrash(backend string) {
	PlayerCrashesTotal.WithLabelValues(backend).Inc()
}

// RecordAPIRequest records an API request
func RecordAPIRequest(endpoint string, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordError records an error
func RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ServeMetrics exposes the default registry on addr until ctx is cancelled.
func ServeMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
