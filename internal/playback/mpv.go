package playback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ipcTimeout bounds a single IPC round trip and the wait for the socket.
const ipcTimeout = time.Second

// MPV plays files with mpv and controls it over its JSON IPC socket.
type MPV struct {
	path   string
	volume *float64
	logger *zap.Logger
}

func newMPV(path string, cfg backendConfig, logger *zap.Logger) *MPV {
	return &MPV{path: path, volume: cfg.volume, logger: logger}
}

func (m *MPV) Name() string { return PlayerMPV }

func (m *MPV) CanPause() bool { return ipcSupported }

func (m *MPV) args(sock, path string) []string {
	args := []string{"--no-video", "--idle=no", "--keep-open=no", "--input-ipc-server=" + sock}
	if m.volume != nil {
		args = append(args, fmt.Sprintf("--volume=%d", int(math.Round(*m.volume*100))))
	}
	return append(args, "--", path)
}

func (m *MPV) Start(ctx context.Context, path string) (Process, error) {
	sock := socketPath()
	mp := &mpvProcess{sock: sock}

	cmd := exec.Command(m.path, m.args(sock, path)...)
	proc, err := startProcess(cmd,
		func() error { return mp.send(false, "quit") },
		func() { os.Remove(sock) },
	)
	if err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}
	mp.execProcess = proc
	m.logger.Debug("mpv started", zap.Int("pid", cmd.Process.Pid), zap.String("socket", sock))
	return mp, nil
}

type mpvProcess struct {
	*execProcess
	sock  string
	reqID atomic.Int64
}

func (p *mpvProcess) Pause() error  { return p.send(true, "set_property", "pause", true) }
func (p *mpvProcess) Resume() error { return p.send(true, "set_property", "pause", false) }

type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type ipcResponse struct {
	Error     string `json:"error"`
	RequestID int64  `json:"request_id"`
	Event     string `json:"event"`
}

// send writes one command. With wait set it reads until the reply carrying
// the same request id and maps a non-success reply to an error.
func (p *mpvProcess) send(wait bool, args ...any) error {
	conn, err := p.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcTimeout))

	id := p.reqID.Add(1)
	if err := json.NewEncoder(conn).Encode(ipcRequest{Command: args, RequestID: id}); err != nil {
		return fmt.Errorf("mpv ipc write: %w", err)
	}
	if !wait {
		return nil
	}

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		var resp ipcResponse
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil || resp.Event != "" || resp.RequestID != id {
			continue
		}
		if resp.Error != "success" {
			return fmt.Errorf("mpv: %s", resp.Error)
		}
		return nil
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("mpv ipc read: %w", err)
	}
	return errors.New("mpv ipc: connection closed without reply")
}

// dial connects to the socket, retrying while mpv is still creating it.
func (p *mpvProcess) dial() (net.Conn, error) {
	deadline := time.Now().Add(ipcTimeout)
	for {
		conn, err := dialIPC(p.sock, ipcTimeout)
		if err == nil {
			return conn, nil
		}
		if p.execProcess != nil && p.exited() {
			return nil, errors.New("mpv has exited")
		}
		if !ipcSupported || time.Now().After(deadline) {
			return nil, fmt.Errorf("mpv ipc: %w", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
