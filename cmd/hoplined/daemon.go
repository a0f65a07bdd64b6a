// hoplined is the small daemon that owns a tree of conductors so a hopline
// CLI invocation can disconnect and reattach, mirroring the teacher's
// wtd/daemon split (cmd/wtd/main.go): a long-running process holds state a
// short-lived CLI process cannot.
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/google/shlex"

	"github.com/hopline/conductor/internal/conductor"
	"github.com/hopline/conductor/internal/hostprofile"
	"github.com/hopline/conductor/internal/ipc"
	"github.com/hopline/conductor/internal/observer"
	"github.com/hopline/conductor/internal/ptydelegate"
	"github.com/hopline/conductor/internal/registry"
	"github.com/hopline/conductor/internal/vtfeed"
)

// session is one live hop: the real PTY running the ssh subprocess, the
// reference Parser feeding its output into the conductor, and the
// conductor itself. Every mutation of these three is serialized through
// mu, standing in for the "embedding event loop" §5 assumes: hoplined is
// multi-goroutine (one HTTP handler goroutine per request, one PTY reader
// goroutine per session), but the conductor package itself assumes a
// single logical thread, so something has to provide that here.
type session struct {
	cond *conductor.Conductor
	pty  *ptydelegate.PTY
	feed *vtfeed.Feed

	mu sync.Mutex
}

// feedBytes delivers one chunk of PTY output into the conductor, holding
// mu for the duration — the same lock an IPC-triggered enqueue
// (RunRemoteCommand, SendKeys, RequestFile) holds only for its own brief,
// non-blocking enqueue step, never across a completion wait. That split is
// what keeps a pending file RPC from deadlocking against its own PTY feed:
// see internal/conductor/file.go's RequestFile doc comment.
func (s *session) feedBytes(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed.Write(p)
}

func (s *session) withLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Daemon owns every session hoplined is currently driving, plus the
// registry that persists them to disk and the observer hub that
// broadcasts their lifecycle events. It implements ipc.Backend.
type Daemon struct {
	mu       sync.Mutex
	sessions map[string]*session

	reg *registry.Registry
	hub *observer.Hub
	log *slog.Logger

	cols, rows int
}

// NewDaemon creates a Daemon. hub may be nil (events are simply not
// broadcast); log may be nil (slog.Default is used).
func NewDaemon(reg *registry.Registry, hub *observer.Hub, log *slog.Logger) *Daemon {
	if log == nil {
		log = slog.Default()
	}
	return &Daemon{
		sessions: map[string]*session{},
		reg:      reg,
		hub:      hub,
		log:      log,
		cols:     80,
		rows:     24,
	}
}

func (d *Daemon) track(s *session) {
	d.mu.Lock()
	d.sessions[s.cond.ClientUniqueID] = s
	d.mu.Unlock()
}

func (d *Daemon) untrack(id string) {
	d.mu.Lock()
	delete(d.sessions, id)
	d.mu.Unlock()
}

func (d *Daemon) session(id string) (*session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[id]
	return s, ok
}

func (d *Daemon) allSessions() []*session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s)
	}
	return out
}

func envMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}

// OpenSession spawns `ssh <sshargs>` under a fresh local PTY, wires it to a
// new root conductor, and starts the launch sequence (§4.4). sshargs is
// carried through to the remote end opaquely per §3; only its leading host
// token is used locally, to resolve a per-host profile (internal/hostprofile)
// and to pick argv[0] for identity purposes.
func (d *Daemon) OpenSession(sshargs string) (ipc.SessionSummary, error) {
	args, err := shlex.Split(sshargs)
	if err != nil {
		return ipc.SessionSummary{}, fmt.Errorf("hoplined: parse sshargs %q: %w", sshargs, err)
	}
	if len(args) == 0 {
		return ipc.SessionSummary{}, fmt.Errorf("hoplined: sshargs is empty")
	}
	host := args[0]
	argv := append([]string{"ssh"}, args...)

	cond := conductor.New(sshargs, "", nil)
	cond.Log = d.log
	if d.hub != nil {
		cond.Observer = d.hub
	}
	cond.ParsedArgs = conductor.ParsedArgs{CommandArgs: args[1:], Identity: host}
	cond.AutopollEnabled = true

	if profile, perr := hostprofile.Load(host); perr == nil {
		profile.ApplyTo(cond, envMap(os.Environ()))
	} else {
		d.log.Debug("hoplined: no host profile", "host", host, "error", perr)
	}

	// feed must exist before Spawn: ptydelegate.Spawn starts reading the PTY
	// in a background goroutine immediately and may call sess.feedBytes
	// before Spawn returns.
	sess := &session{cond: cond, feed: vtfeed.New(d.cols, d.rows, 0, cond)}
	home, _ := os.UserHomeDir()

	pty, err := ptydelegate.Spawn(argv, home, os.Environ(), d.cols, d.rows, sess.feedBytes, d.log)
	if err != nil {
		return ipc.SessionSummary{}, fmt.Errorf("hoplined: spawn %v: %w", argv, err)
	}
	sess.pty = pty
	cond.SetDelegate(pty)

	d.track(sess)
	if d.reg != nil {
		if err := d.reg.Add(cond); err != nil {
			d.log.Warn("hoplined: registry add failed", "id", cond.ClientUniqueID, "error", err)
		}
	}

	sess.withLock(func() { cond.Start() })

	return ipc.Summarize(cond), nil
}

// adopt re-arms a conductor decoded from disk (registry.LoadAll) as a
// tracked, delegate-less session so a later reconnect can complete its
// recovery handshake. It is used only at startup; the registry has
// already called StartRecovery on c.
func (d *Daemon) adopt(c *conductor.Conductor) {
	c.Log = d.log
	if d.hub != nil {
		c.Observer = d.hub
	}
	d.track(&session{cond: c})
}

func (d *Daemon) ListSessions() []ipc.SessionSummary {
	sessions := d.allSessions()
	out := make([]ipc.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		var sum ipc.SessionSummary
		s.withLock(func() { sum = ipc.Summarize(s.cond) })
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientUniqueID < out[j].ClientUniqueID })
	return out
}

func (d *Daemon) CloseSession(id string) error {
	sess, ok := d.session(id)
	if !ok {
		return fmt.Errorf("hoplined: unknown session %s", id)
	}
	sess.withLock(func() { sess.cond.Quit() })
	if sess.pty != nil {
		sess.pty.Close()
	}
	d.untrack(id)
	if d.reg != nil {
		if err := d.reg.Remove(id); err != nil {
			d.log.Warn("hoplined: registry remove failed", "id", id, "error", err)
		}
	}
	return nil
}

func (d *Daemon) RunCommand(id, cmdline string) ([]byte, int, error) {
	sess, ok := d.session(id)
	if !ok {
		return nil, 0, fmt.Errorf("hoplined: unknown session %s", id)
	}
	type result struct {
		data   []byte
		status int
	}
	ch := make(chan result, 1)
	sess.withLock(func() {
		sess.cond.RunRemoteCommand(cmdline, func(data []byte, status int) {
			ch <- result{data, status}
		})
	})
	r := <-ch
	return r.data, r.status, nil
}

func (d *Daemon) SendKeys(id string, data []byte) error {
	sess, ok := d.session(id)
	if !ok {
		return fmt.Errorf("hoplined: unknown session %s", id)
	}
	sess.withLock(func() { sess.cond.SendKeys(data) })
	return nil
}

// requestFile is the shared plumbing for every file RPC method below: lock
// only long enough to enqueue (conductor.RequestFile never blocks), then
// wait for the completion unlocked so the session's PTY feed is free to
// deliver the command-end boundary that fires it.
func (d *Daemon) requestFile(id string, sub conductor.FileSubcommand) (conductor.FileResult, error) {
	sess, ok := d.session(id)
	if !ok {
		return conductor.FileResult{}, fmt.Errorf("hoplined: unknown session %s", id)
	}
	ch := make(chan conductor.FileResult, 1)
	sess.withLock(func() {
		sess.cond.RequestFile(sub, func(r conductor.FileResult) { ch <- r })
	})
	r := <-ch
	return r, nil
}

func (d *Daemon) ListFiles(id, path string, sortByDate bool) ([]conductor.RemoteFile, error) {
	p, err := conductor.EncodePath(path)
	if err != nil {
		return nil, err
	}
	order := conductor.SortByName
	if sortByDate {
		order = conductor.SortByDate
	}
	r, err := d.requestFile(id, conductor.FileSubcommand{Kind: conductor.FileLs, Path: p, Sort: order})
	if err != nil {
		return nil, err
	}
	if err := conductor.FileStatusError(r.Status); err != nil {
		return nil, err
	}
	var files []conductor.RemoteFile
	if err := json.Unmarshal(r.Data, &files); err != nil {
		return nil, fmt.Errorf("hoplined: decode listFiles response: %w", err)
	}
	return files, nil
}

// Stat retrieves size/mtime metadata for a remote path (spec.md §4.7's
// `stat` operation).
func (d *Daemon) Stat(id, path string) (conductor.RemoteStat, error) {
	p, err := conductor.EncodePath(path)
	if err != nil {
		return conductor.RemoteStat{}, err
	}
	r, err := d.requestFile(id, conductor.FileSubcommand{Kind: conductor.FileStat, Path: p})
	if err != nil {
		return conductor.RemoteStat{}, err
	}
	if err := conductor.FileStatusError(r.Status); err != nil {
		return conductor.RemoteStat{}, err
	}
	var st conductor.RemoteStat
	if err := json.Unmarshal(r.Data, &st); err != nil {
		return conductor.RemoteStat{}, fmt.Errorf("hoplined: decode stat response: %w", err)
	}
	return st, nil
}

func (d *Daemon) Download(id, path string) ([]byte, error) {
	p, err := conductor.EncodePath(path)
	if err != nil {
		return nil, err
	}
	r, err := d.requestFile(id, conductor.FileSubcommand{Kind: conductor.FileFetch, Path: p})
	if err != nil {
		return nil, err
	}
	if err := conductor.FileStatusError(r.Status); err != nil {
		return nil, err
	}
	return decodeBase64Content(r.Data)
}

func (d *Daemon) Upload(id, path string, content []byte) error {
	p, err := conductor.EncodePath(path)
	if err != nil {
		return err
	}
	r, err := d.requestFile(id, conductor.FileSubcommand{Kind: conductor.FileCreate, Path: p, Content: content})
	if err != nil {
		return err
	}
	return conductor.FileStatusError(r.Status)
}

func (d *Daemon) Delete(id, path string, recursive bool) error {
	p, err := conductor.EncodePath(path)
	if err != nil {
		return err
	}
	r, err := d.requestFile(id, conductor.FileSubcommand{Kind: conductor.FileRm, Path: p, Recursive: recursive})
	if err != nil {
		return err
	}
	return conductor.FileStatusError(r.Status)
}

func (d *Daemon) Move(id, source, dest string) error {
	s, err := conductor.EncodePath(source)
	if err != nil {
		return err
	}
	e, err := conductor.EncodePath(dest)
	if err != nil {
		return err
	}
	r, err := d.requestFile(id, conductor.FileSubcommand{Kind: conductor.FileMv, Source: s, Dest: e})
	if err != nil {
		return err
	}
	return conductor.FileStatusError(r.Status)
}

func (d *Daemon) Link(id, source, dest string) error {
	s, err := conductor.EncodePath(source)
	if err != nil {
		return err
	}
	e, err := conductor.EncodePath(dest)
	if err != nil {
		return err
	}
	r, err := d.requestFile(id, conductor.FileSubcommand{Kind: conductor.FileLn, Source: s, Dest: e})
	if err != nil {
		return err
	}
	return conductor.FileStatusError(r.Status)
}

func (d *Daemon) Mkdir(id, path string) error {
	p, err := conductor.EncodePath(path)
	if err != nil {
		return err
	}
	r, err := d.requestFile(id, conductor.FileSubcommand{Kind: conductor.FileMkdir, Path: p})
	if err != nil {
		return err
	}
	return conductor.FileStatusError(r.Status)
}

func decodeBase64Content(data []byte) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("hoplined: decode download response: %w", err)
	}
	return decoded, nil
}

var _ ipc.Backend = (*Daemon)(nil)
