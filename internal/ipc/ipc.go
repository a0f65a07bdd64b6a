// Package ipc is the HTTP-over-unix-socket control channel between the
// hopline CLI and the hoplined daemon, grounded on the teacher's
// internal/transport (Client/Server wrapping a single business-logic
// object behind typed request/response structs and a checkStatus helper).
package ipc

import (
	"github.com/hopline/conductor/internal/conductor"
)

// SessionSummary is the wire view of one root conductor tree.
type SessionSummary struct {
	ClientUniqueID string `json:"clientUniqueID"`
	SSHArgs        string `json:"sshargs"`
	Depth          int    `json:"depth"`
	Framing        bool   `json:"framing"`
	FramedPID      *int   `json:"framedPID,omitempty"`
}

// Summarize builds the wire view of a root conductor tree. Backend
// implementations (hoplined's Daemon) call this to answer ListSessions and
// OpenSession.
func Summarize(c *conductor.Conductor) SessionSummary {
	return SessionSummary{
		ClientUniqueID: c.ClientUniqueID,
		SSHArgs:        c.SSHArgs,
		Depth:          c.Depth,
		Framing:        c.Framing(),
		FramedPID:      c.FramedPID,
	}
}

// Backend is the business logic the server dispatches onto; hoplined's
// daemon type implements it, keeping the wire format in this package
// independent of how sessions are actually held and driven.
type Backend interface {
	ListSessions() []SessionSummary
	OpenSession(sshargs string) (SessionSummary, error)
	CloseSession(clientUniqueID string) error

	RunCommand(clientUniqueID, cmdline string) (output []byte, status int, err error)
	SendKeys(clientUniqueID string, data []byte) error

	ListFiles(clientUniqueID, path string, sortByDate bool) ([]conductor.RemoteFile, error)
	Stat(clientUniqueID, path string) (conductor.RemoteStat, error)
	Download(clientUniqueID, path string) ([]byte, error)
	Upload(clientUniqueID, path string, content []byte) error
	Delete(clientUniqueID, path string, recursive bool) error
	Move(clientUniqueID, source, dest string) error
	Link(clientUniqueID, source, dest string) error
	Mkdir(clientUniqueID, path string) error
}
