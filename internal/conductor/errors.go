package conductor

import "github.com/pkg/errors"

// Sentinel error kinds. Callers should compare with errors.Is/errors.Cause
// rather than string matching; wrapped instances carry additional context
// via github.com/pkg/errors.Wrap.
var (
	// ErrTransportClosed indicates the delegate went away mid-operation.
	ErrTransportClosed = errors.New("conductor: transport closed")

	// ErrProtocolViolation indicates the remote side sent something the
	// state machine did not expect: a bad status, a malformed PID, or an
	// unparsable version line.
	ErrProtocolViolation = errors.New("conductor: protocol violation")

	// ErrFileNotFound is raised for any positive status code returned by a
	// framer file subcommand, uniformly, with no permission/not-found split.
	ErrFileNotFound = errors.New("conductor: file not found")

	// ErrInternal covers decode failures on an otherwise successful
	// (status 0) remote response.
	ErrInternal = errors.New("conductor: internal error")

	// ErrNotImplemented is returned by the reserved file RPC stubs.
	ErrNotImplemented = errors.New("conductor: not implemented")

	// ErrAbort names the outcome of a context drained because the delegate
	// was lost or a fatal fail forced the queue to reset. Drained handlers
	// receive status -1 rather than this value; FileStatusError maps that
	// status to ErrTransportClosed.
	ErrAbort = errors.New("conductor: aborted")
)

// wrapf is a small helper mirroring the teacher's own use of pkg/errors:
// add one frame of context without discarding the cause.
func wrapf(cause error, format string, args ...any) error {
	return errors.Wrapf(cause, format, args...)
}
