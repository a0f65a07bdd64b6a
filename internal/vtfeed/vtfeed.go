// Package vtfeed is a reference implementation of conductor.Parser on top of
// github.com/charmbracelet/x/vt. It is the stated external collaborator that
// owns the terminal emulator and its DCS parser; the conductor package itself
// never touches escape sequences.
//
// A Feed is attached to one physical PTY (one fixed depth). It feeds every
// byte read from that PTY into a vt.Emulator for visual rendering and
// scrollback capture exactly the way egg's VTerm does, and in parallel scans
// the same bytes for the command-begin/command-end/side-channel/terminate/
// unhook control sequences and the plain-text recovery banner, translating
// each into the matching conductor.Parser call.
package vtfeed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"

	"github.com/hopline/conductor/internal/conductor"
)

const maxScrollbackLines = 50000

// Control sequence tags. A control sequence is ESC P <tag> ; <fields...> ESC \
// where fields are ';'-joined and base64 where noted. This is the wire form
// the bundled framer template's DCS writer emits around command boundaries.
const (
	tagBegin    = "B" // B;<id>
	tagEnd      = "E" // E;<id>;<f|r>;<status>
	tagUnhook   = "U" // U
	tagTerm     = "T" // T;<pid>;<code>
	tagSide     = "S" // S;<pid>;<channel>;<base64 data>
	dcsIntro    = "\x1bP"
	dcsTerm     = "\x1b\\"
)

// Feed parses one PTY's byte stream into both a rendered terminal surface
// and conductor.Parser events, delivered to Target at a fixed Depth.
type Feed struct {
	emu   *vt.Emulator
	depth int
	target conductor.Parser

	mu           sync.Mutex
	scrollback   []string
	sbHead       int
	sbLen        int
	altScreen    bool
	cursorHidden bool

	pending []byte // unconsumed tail, may hold a partial line or partial DCS sequence
}

// New creates a Feed for a PTY sized cols×rows whose parsed events are
// delivered to target at the given nesting depth.
func New(cols, rows, depth int, target conductor.Parser) *Feed {
	f := &Feed{
		depth:      depth,
		target:     target,
		scrollback: make([]string, maxScrollbackLines),
	}
	f.emu = vt.NewEmulator(cols, rows)
	f.emu.SetCallbacks(vt.Callbacks{
		ScrollOut: func(lines []uv.Line) {
			if f.altScreen {
				return
			}
			for _, line := range lines {
				f.pushScrollback(line.Render())
			}
		},
		ScrollbackClear: func() {
			for i := range f.scrollback {
				f.scrollback[i] = ""
			}
			f.sbLen, f.sbHead = 0, 0
		},
		AltScreen:        func(on bool) { f.altScreen = on },
		CursorVisibility: func(visible bool) { f.cursorHidden = !visible },
	})
	return f
}

func (f *Feed) pushScrollback(rendered string) {
	if f.sbLen == len(f.scrollback) {
		f.scrollback[f.sbHead] = ""
	}
	f.scrollback[f.sbHead] = rendered
	f.sbHead = (f.sbHead + 1) % len(f.scrollback)
	if f.sbLen < len(f.scrollback) {
		f.sbLen++
	}
}

// Write feeds raw PTY output into the emulator (for rendering) and the
// control-sequence scanner (for conductor events). Order matches how a real
// terminal would see the bytes: both consumers observe the identical stream.
func (f *Feed) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.emu.Write(p); err != nil {
		return 0, err
	}
	f.pending = append(f.pending, p...)
	f.drainPending()
	return len(p), nil
}

// drainPending consumes complete DCS sequences and complete lines out of
// f.pending, leaving any trailing partial fragment buffered for the next
// Write. Must be called with mu held.
func (f *Feed) drainPending() {
	for {
		dcsAt := bytes.Index(f.pending, []byte(dcsIntro))
		nlAt := bytes.IndexByte(f.pending, '\n')

		switch {
		case dcsAt == 0:
			end := bytes.Index(f.pending, []byte(dcsTerm))
			if end < 0 {
				return // incomplete sequence, wait for more bytes
			}
			body := string(f.pending[len(dcsIntro):end])
			f.pending = f.pending[end+len(dcsTerm):]
			f.dispatchControl(body)
		case dcsAt > 0 && (nlAt < 0 || dcsAt < nlAt):
			f.dispatchText(string(f.pending[:dcsAt]))
			f.pending = f.pending[dcsAt:]
		case nlAt >= 0:
			f.dispatchText(string(f.pending[:nlAt]))
			f.pending = f.pending[nlAt+1:]
		default:
			return
		}
	}
}

func (f *Feed) dispatchText(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	if line == ":begin-recovery" || line == ":end-recovery" || strings.HasPrefix(line, ":recovery: ") {
		f.target.HandleRecovery(f.depth, line)
		return
	}
	f.target.HandleLine(f.depth, line)
}

func (f *Feed) dispatchControl(body string) {
	fields := strings.Split(body, ";")
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case tagBegin:
		if len(fields) >= 2 {
			f.target.HandleCommandBegin(f.depth, fields[1])
		}
	case tagEnd:
		if len(fields) >= 4 {
			status, err := strconv.Atoi(fields[3])
			if err != nil {
				return
			}
			kind := conductor.EndNonFramer
			if fields[2] == "f" {
				kind = conductor.EndFramer
			}
			f.target.HandleCommandEnd(f.depth, fields[1], kind, status)
		}
	case tagUnhook:
		f.target.HandleUnhook(f.depth)
	case tagTerm:
		if len(fields) >= 3 {
			pid, err1 := strconv.Atoi(fields[1])
			code, err2 := strconv.Atoi(fields[2])
			if err1 == nil && err2 == nil {
				f.target.HandleTerminate(f.depth, pid, code)
			}
		}
	case tagSide:
		if len(fields) >= 4 {
			pid, err1 := strconv.Atoi(fields[1])
			channel, err2 := strconv.Atoi(fields[2])
			data, err3 := base64.StdEncoding.DecodeString(fields[3])
			if err1 == nil && err2 == nil && err3 == nil {
				f.target.HandleSideChannelOutput(f.depth, string(data), pid, channel)
			}
		}
	}
}

// Resize changes the terminal dimensions.
func (f *Feed) Resize(cols, rows int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emu.Resize(cols, rows)
}

// Snapshot renders a reconnect payload: scrollback + grid + cursor restore,
// the same shape egg's VTerm produces, for a client that reattaches to an
// already-running feed.
func (f *Feed) Snapshot() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	var buf strings.Builder
	lines := f.scrollbackLines()
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\x1b[m\x1b[H")
	buf.WriteString(f.emu.Render())
	pos := f.emu.CursorPosition()
	fmt.Fprintf(&buf, "\x1b[%d;%dH", pos.Y+1, pos.X+1)
	if f.cursorHidden {
		buf.WriteString("\x1b[?25l")
	} else {
		buf.WriteString("\x1b[?25h")
	}
	return []byte(buf.String())
}

func (f *Feed) scrollbackLines() []string {
	if f.sbLen == 0 {
		return nil
	}
	lines := make([]string, f.sbLen)
	start := (f.sbHead - f.sbLen + len(f.scrollback)) % len(f.scrollback)
	for i := range f.sbLen {
		lines[i] = f.scrollback[(start+i)%len(f.scrollback)]
	}
	return lines
}

// Close releases the emulator.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emu.Close()
}
