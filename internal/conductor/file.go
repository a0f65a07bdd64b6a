package conductor

import (
	"unicode/utf8"
)

// EncodePath validates a path argument is well-formed UTF-8 before it is
// turned into bytes for the wire (§4.7 point 1: "UTF-8-encodes path
// arguments; on failure, raises notFound"). Exported so embedders building
// a FileSubcommand for RequestFile (rather than going through this
// package's own helpers) get the same validation.
func EncodePath(path string) ([]byte, error) {
	if !utf8.ValidString(path) {
		return nil, ErrFileNotFound
	}
	return []byte(path), nil
}

// RemoteFile is one entry in a listFiles response.
type RemoteFile struct {
	Name    string `json:"name"`
	IsDir   bool   `json:"isDir"`
	Size    int64  `json:"size,omitempty"`
	ModTime int64  `json:"mtime,omitempty"`
}

// RemoteStat is the response body of a stat call.
type RemoteStat struct {
	Size  int64 `json:"size"`
	MTime int64 `json:"mtime"`
}

// FileResult is the raw (not yet decoded or status-checked) outcome of one
// framerFile round trip: the dispatcher only knows how to hand back
// (bytes, status); callers decode that into the right Go type per §4.7
// point 4 (JSON for ls/stat/ln/mv, base64 for download, nothing for
// rm/mkdir/create).
type FileResult struct {
	Data   []byte
	Status int
}

// RequestFile is the file RPC façade's one entry point: it enqueues sub and
// returns immediately, invoking cb once the round trip's command-end
// boundary closes it.
//
// §5 describes the façade as "async-awaitable": the calling thread
// suspends at the await point while continuing to dispatch other events.
// That is a cooperative-scheduling idiom (single OS thread, many logical
// tasks) with no direct Go translation — a blocking call on a channel only
// the caller's own later HandleCommandEnd can fill deadlocks outright,
// since nothing else can run on that goroutine while it's parked on the
// receive. This package does not offer a blocking ListFiles/Download/...
// for that reason: RequestFile's callback is the one realization of "await
// without blocking the thread" that actually works in Go, whether the
// embedder is a single goroutine interleaving Poll/HandleXxx calls with
// enqueues, or (cmd/hoplined's case) a per-session goroutine pair where a
// short-held lock protects the enqueue step and the callback fires later
// from whichever goroutine is feeding parser events in.
func (c *Conductor) RequestFile(sub FileSubcommand, cb func(FileResult)) {
	c.send(Command{Kind: CmdFramerFile, File: sub}, handleFile(func(data []byte, status int) {
		if cb != nil {
			cb(FileResult{Data: data, Status: status})
		}
	}))
}

// FileStatusError maps a framerFile status code to the §4.7/§7 error
// mapping (negative -> transport closed, positive -> not found, zero ->
// nil).
func FileStatusError(status int) error {
	return statusToErr(status)
}

// finalizeFile hands the joined response lines and the raw status to the
// request's callback. It does no mapping itself: the caller turns the
// status into an error with FileStatusError (< 0 → ErrTransportClosed,
// > 0 → ErrFileNotFound, 0 → nil) and decodes the payload (ls/stat/ln/mv
// need JSON, download needs base64, rm/mkdir/create need nothing).
func (c *Conductor) finalizeFile(ctx *ExecutionContext, status int) {
	if ctx.Handler.Result == nil {
		return
	}
	ctx.Handler.Result(ctx.joinedLines(), status)
}

func statusToErr(status int) error {
	switch {
	case status < 0:
		return ErrTransportClosed
	case status > 0:
		return ErrFileNotFound
	default:
		return nil
	}
}

// Replace, SetModificationDate and Chmod are reserved stubs (§4.7): they
// must fail with ErrNotImplemented without touching the wire at all.
func (c *Conductor) Replace(string, []byte) error            { return ErrNotImplemented }
func (c *Conductor) SetModificationDate(string, int64) error { return ErrNotImplemented }
func (c *Conductor) Chmod(string, int) error                 { return ErrNotImplemented }
