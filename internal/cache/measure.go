package cache

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/model"
)

// Measurer measures the length of a local audio file in seconds.
type Measurer interface {
	Measure(ctx context.Context, path string) (int, error)
}

// FFProbe runs ffprobe to read the container duration.
type FFProbe struct {
	// Path to the executable; "ffprobe" from PATH when empty.
	Path string
}

// NewFFProbe returns a measurer when ffprobe is installed, or a ToolMissing error.
func NewFFProbe() (*FFProbe, error) {
	p, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, apperrors.ToolMissing("ffprobe")
	}
	return &FFProbe{Path: p}, nil
}

func (f *FFProbe) Measure(ctx context.Context, path string) (int, error) {
	bin := f.Path
	if bin == "" {
		bin = "ffprobe"
	}
	out, err := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	d, ok := model.ParseDuration(strings.TrimSpace(string(out)))
	if !ok {
		return 0, fmt.Errorf("ffprobe %s: unparseable duration %q", path, strings.TrimSpace(string(out)))
	}
	return d, nil
}
