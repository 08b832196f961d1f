//go:build windows

package playback

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/yplay/yplay/internal/errors"
)

// mpv listens on a named pipe on Windows, which net cannot dial.
const ipcSupported = false

func setProcessGroup(cmd *exec.Cmd) {}

func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return terminate(cmd)
}

func socketPath() string {
	return fmt.Sprintf(`\\.\pipe\yplay-mpv-%d-%s`, os.Getpid(), uuid.NewString()[:8])
}

func dialIPC(path string, timeout time.Duration) (net.Conn, error) {
	return nil, apperrors.Unsupported("mpv IPC is not available on Windows")
}
