package playback

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// killWait bounds each wait after a signal.
const killWait = time.Second

// execProcess is a player subprocess running in its own process group.
type execProcess struct {
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
	stderr *tailBuffer

	stopping atomic.Bool
	// quit asks the player to exit gracefully; nil means signal it.
	quit func() error
}

func startProcess(cmd *exec.Cmd, quit func() error, cleanup func()) (*execProcess, error) {
	p := &execProcess{
		cmd:    cmd,
		done:   make(chan struct{}),
		stderr: &tailBuffer{max: 512},
		quit:   quit,
	}
	cmd.Stderr = p.stderr
	// Orphaned helpers holding stderr open must not stall Wait.
	cmd.WaitDelay = killWait
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, err
	}

	go func() {
		err := cmd.Wait()
		if cleanup != nil {
			cleanup()
		}
		if err != nil && !p.stopping.Load() {
			p.err = p.describe(err)
		}
		close(p.done)
	}()
	return p, nil
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *execProcess) Stop(timeout time.Duration) error {
	if p.exited() {
		return nil
	}
	p.stopping.Store(true)

	graceful := p.quit
	if graceful == nil {
		graceful = func() error { return terminate(p.cmd) }
	}
	if err := graceful(); err == nil && p.wait(timeout) {
		return nil
	}
	if p.quit != nil {
		_ = terminate(p.cmd)
		if p.wait(killWait) {
			return nil
		}
	}
	_ = kill(p.cmd)
	if p.wait(killWait) {
		return nil
	}
	return fmt.Errorf("player pid %d did not exit", p.cmd.Process.Pid)
}

func (p *execProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *execProcess) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return false
	}
}

func (p *execProcess) describe(err error) error {
	if msg := lastLine(p.stderr.String()); msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
