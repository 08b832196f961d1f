package playback

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
)

// Simple plays files with ffplay or afplay. It cannot pause.
type Simple struct {
	name   string
	path   string
	volume *float64
	logger *zap.Logger
}

func newSimple(name, path string, cfg backendConfig, logger *zap.Logger) *Simple {
	return &Simple{name: name, path: path, volume: cfg.volume, logger: logger}
}

func (s *Simple) Name() string { return s.name }

func (s *Simple) CanPause() bool { return false }

func (s *Simple) args(path string) []string {
	switch s.name {
	case PlayerAFPlay:
		args := []string{path}
		if s.volume != nil {
			args = append(args, "-v", strconv.FormatFloat(*s.volume, 'f', 2, 64))
		}
		return args
	default:
		args := []string{"-nodisp", "-autoexit", "-loglevel", "warning"}
		if s.volume != nil {
			args = append(args, "-volume", strconv.Itoa(int(math.Round(*s.volume*100))))
		}
		return append(args, path)
	}
}

func (s *Simple) Start(ctx context.Context, path string) (Process, error) {
	cmd := exec.Command(s.path, s.args(path)...)
	proc, err := startProcess(cmd, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", s.name, err)
	}
	s.logger.Debug("player started", zap.String("player", s.name), zap.Int("pid", cmd.Process.Pid))
	return proc, nil
}
