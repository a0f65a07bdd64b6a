// Package ptydelegate implements conductor.Delegate over a real local PTY
// running an interactive login shell. It is the stated external
// collaborator that owns the actual SSH subprocess/PTY; the conductor
// package never touches os/exec or creack/pty directly.
package ptydelegate

import (
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// PTY wires a spawned command's PTY to a conductor via conductor.Delegate.
// Reads from the PTY are handed to Sink, which the caller should connect to
// a conductor.Parser implementation (see internal/vtfeed).
type PTY struct {
	cmd *exec.Cmd
	ptm *os.File

	mu     sync.Mutex
	closed bool

	log *slog.Logger
}

// Sink receives raw bytes read back from the PTY.
type Sink func(p []byte)

// Spawn starts argv (argv[0] resolved on PATH) attached to a new PTY sized
// cols×rows, with cwd and env applied. Output read from the PTY is handed
// to sink on a dedicated goroutine until the PTY closes.
func Spawn(argv []string, cwd string, env []string, cols, rows int, sink Sink, log *slog.Logger) (*PTY, error) {
	if log == nil {
		log = slog.Default()
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = env

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, err
	}

	p := &PTY{cmd: cmd, ptm: ptm, log: log}
	go p.readLoop(sink)
	return p, nil
}

func (p *PTY) readLoop(sink Sink) {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.ptm.Read(buf)
		if n > 0 && sink != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			sink(chunk)
		}
		if err != nil {
			p.log.Debug("ptydelegate: read loop ended", "err", err)
			return
		}
	}
}

// ConductorWrite implements conductor.Delegate.
func (p *PTY) ConductorWrite(s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return os.ErrClosed
	}
	_, err := p.ptm.Write([]byte(s))
	return err
}

// ConductorAbort implements conductor.Delegate: logs and tears down.
func (p *PTY) ConductorAbort(reason string) {
	p.log.Warn("ptydelegate: aborted", "reason", reason)
	p.Close()
}

// ConductorQuit implements conductor.Delegate: orderly teardown.
func (p *PTY) ConductorQuit() {
	p.Close()
}

// Resize updates the PTY window size.
func (p *PTY) Resize(cols, rows int) error {
	return pty.Setsize(p.ptm, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Close terminates the child process and releases the PTY.
func (p *PTY) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	_ = p.ptm.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return nil
}
