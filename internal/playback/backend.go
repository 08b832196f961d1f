package playback

import (
	"context"
	"os/exec"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/monitoring"
)

// Backend launches a player for one audio file.
type Backend interface {
	Name() string
	Start(ctx context.Context, path string) (Process, error)
}

// Process is a running player.
type Process interface {
	// Done is closed when the player exits for any reason.
	Done() <-chan struct{}
	// Err reports why the player exited. It is nil for a natural finish and
	// for an exit caused by Stop.
	Err() error
	// Stop asks the player to quit, waits up to timeout, then kills it.
	Stop(timeout time.Duration) error
}

// Pauser is implemented by processes that can pause and resume.
type Pauser interface {
	Pause() error
	Resume() error
}

// PauseCapable is implemented by backends whose processes implement Pauser.
type PauseCapable interface {
	CanPause() bool
}

// Known player names, in order of preference.
const (
	PlayerMPV    = "mpv"
	PlayerFFPlay = "ffplay"
	PlayerAFPlay = "afplay"
)

var playerOrder = []string{PlayerMPV, PlayerFFPlay, PlayerAFPlay}

// BackendOption configures a backend.
type BackendOption func(*backendConfig)

type backendConfig struct {
	volume *float64
	logger *zap.Logger
}

// WithVolume sets the start volume, 0.0 to 1.0.
func WithVolume(v float64) BackendOption {
	return func(c *backendConfig) {
		v = min(max(v, 0), 1)
		c.volume = &v
	}
}

// WithBackendLogger sets the logger.
func WithBackendLogger(l *zap.Logger) BackendOption {
	return func(c *backendConfig) { c.logger = l }
}

var lookPath = exec.LookPath

// SelectBackend returns a backend for prefer when it is installed, otherwise
// the first of mpv, ffplay and afplay found in PATH.
func SelectBackend(prefer string, opts ...BackendOption) (Backend, error) {
	cfg := backendConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := monitoring.Named(cfg.logger, "player")

	candidates := playerOrder
	if prefer != "" {
		if !isKnownPlayer(prefer) {
			return nil, apperrors.Validation("unknown player %q (want mpv, ffplay or afplay)", prefer)
		}
		candidates = append([]string{prefer}, playerOrder...)
	}

	for _, name := range candidates {
		path, err := lookPath(name)
		if err != nil {
			if name == prefer {
				logger.Warn("preferred player not found", zap.String("player", prefer))
			}
			continue
		}
		logger.Debug("player selected", zap.String("player", name), zap.String("path", path))
		if name == PlayerMPV {
			return newMPV(path, cfg, logger), nil
		}
		return newSimple(name, path, cfg, logger), nil
	}
	return nil, apperrors.ToolMissing("mpv, ffplay or afplay")
}

func isKnownPlayer(name string) bool {
	for _, p := range playerOrder {
		if p == name {
			return true
		}
	}
	return false
}
