package playback

import (
	"os/exec"
	"strings"
	"testing"

	apperrors "github.com/yplay/yplay/internal/errors"
)

func withPath(t *testing.T, installed ...string) {
	t.Helper()
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(name string) (string, error) {
		for _, n := range installed {
			if n == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func TestSelectBackend(t *testing.T) {
	tests := []struct {
		name      string
		installed []string
		prefer    string
		want      string
		wantKind  apperrors.Kind
	}{
		{"mpv first", []string{"afplay", "ffplay", "mpv"}, "", "mpv", ""},
		{"ffplay fallback", []string{"ffplay", "afplay"}, "", "ffplay", ""},
		{"preferred", []string{"mpv", "afplay"}, "afplay", "afplay", ""},
		{"preferred missing", []string{"ffplay"}, "mpv", "ffplay", ""},
		{"none", nil, "", "", apperrors.KindToolMissing},
		{"unknown preference", []string{"mpv"}, "vlc", "", apperrors.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withPath(t, tt.installed...)

			b, err := SelectBackend(tt.prefer)
			if tt.wantKind != "" {
				if !apperrors.IsKind(err, tt.wantKind) {
					t.Fatalf("err = %v, want kind %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if b.Name() != tt.want {
				t.Errorf("Name() = %s, want %s", b.Name(), tt.want)
			}
			if pc, ok := b.(PauseCapable); !ok || pc.CanPause() != (tt.want == "mpv" && ipcSupported) {
				t.Errorf("CanPause mismatch for %s", tt.want)
			}
		})
	}
}

func TestPlayerArgs(t *testing.T) {
	half := backendConfig{}
	WithVolume(0.5)(&half)
	loud := backendConfig{}
	WithVolume(7)(&loud)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"mpv", newMPV("mpv", backendConfig{}, nil).args("/tmp/s", "/a.mp3"),
			"--no-video --idle=no --keep-open=no --input-ipc-server=/tmp/s -- /a.mp3"},
		{"mpv volume", newMPV("mpv", half, nil).args("/tmp/s", "/a.mp3"),
			"--no-video --idle=no --keep-open=no --input-ipc-server=/tmp/s --volume=50 -- /a.mp3"},
		{"ffplay", newSimple("ffplay", "ffplay", backendConfig{}, nil).args("/a.mp3"),
			"-nodisp -autoexit -loglevel warning /a.mp3"},
		{"afplay clamped volume", newSimple("afplay", "afplay", loud, nil).args("/a.mp3"),
			"/a.mp3 -v 1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Join(tt.args, " "); got != tt.want {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 8}
	b.Write([]byte("hello "))
	b.Write([]byte("world\n"))

	if got := b.String(); got != "o world\n" {
		t.Errorf("String() = %q", got)
	}
	if got := lastLine("warn\nError opening input\n"); got != "Error opening input" {
		t.Errorf("lastLine = %q", got)
	}
}
