package conductor

import (
	"log/slog"

	"github.com/google/uuid"
)

// ParsedArgs is the structured view of sshargs: the argv following the host
// token, plus a host fingerprint used for ancestry lookups.
type ParsedArgs struct {
	CommandArgs []string
	Identity    string
}

// Payload is one grouped local-path-set → remote-destination upload job. Tar
// construction itself is an external collaborator (§1 non-goal); Content is
// populated by whatever builds it before the payload is queued.
type Payload struct {
	Destination string
	LocalPaths  []string
	Content     []byte
}

// ExecutionContext pairs a Command with the Handler that will consume its
// response events, plus the mutable accumulator handlers use to collect
// lines between command-begin and command-end.
type ExecutionContext struct {
	Command Command
	Handler Handler

	lines [][]byte
}

func newContext(cmd Command, h Handler) *ExecutionContext {
	return &ExecutionContext{Command: cmd, Handler: h}
}

func (ctx *ExecutionContext) appendLine(line string) {
	ctx.lines = append(ctx.lines, []byte(line))
}

func (ctx *ExecutionContext) joinedLines() []byte {
	out := make([]byte, 0)
	for i, l := range ctx.lines {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, l...)
	}
	return out
}

// ConductorRecovery is produced when a reconnecting client finishes reading
// a `:recovery:` banner stream (§4.5).
type ConductorRecovery struct {
	PID            int
	DCSID          string
	SSHArgs        string
	BoolArgs       string
	ClientUniqueID string
}

// Conductor is the central entity: an in-process driver multiplexing one
// remote-shell transport into interactive terminal, background execution,
// file RPC, and a recoverable nested session model.
//
// All mutation happens on calls made by the embedding event loop; there are
// no locks (§5's single-thread invariant protects every field below).
type Conductor struct {
	SSHArgs    string
	BoolArgs   string
	ParsedArgs ParsedArgs

	Depth  int
	Parent *Conductor

	DCSID          string
	ClientUniqueID string

	VarsToSend          map[string]string
	ClientVars          map[string]string
	ModifiedVars        map[string]string
	ModifiedCommandArgs []string

	InitialDirectory             string
	ShouldInjectShellIntegration bool
	Payloads                     []Payload

	// FramedPID is nil until the framer's login shell PID is known.
	// Invariant 2: Framing() ⇔ FramedPID != nil.
	FramedPID *int

	AutopollEnabled bool

	Delegate Delegate
	Observer Observer
	Log      *slog.Logger

	state          State
	queue          []*ExecutionContext
	backgroundJobs map[int]*ExecutionContext
	autopoll       []byte

	// queueWritesSelf is this conductor's own opt-in to writing; the
	// transitive QueueWrites() additionally requires every ancestor to
	// agree and none of them to be unhooked.
	queueWritesSelf bool
	// draining guards write() against re-entrancy (§9's recommended
	// "distinct draining flag" in place of a stateful latch field).
	draining bool

	// restored is set by DecodeConductor and cleared on the next Delegate
	// assignment (§4.9).
	restored bool

	payloadBuilder *PayloadBuilder

	// remote* hold the getshell probe results (§4.4 step 1), used to
	// decide shell-integration eligibility and payload destination
	// normalization.
	remoteShell        string
	remoteHome         string
	remoteShellVersion string
}

// New creates a freshly started conductor. parent may be nil for a root
// conductor.
func New(sshargs, boolArgs string, parent *Conductor) *Conductor {
	depth := 0
	if parent != nil {
		depth = parent.Depth + 1
	}
	c := &Conductor{
		SSHArgs:         sshargs,
		BoolArgs:        boolArgs,
		Parent:          parent,
		Depth:           depth,
		DCSID:           uuid.NewString(),
		ClientUniqueID:  uuid.NewString(),
		VarsToSend:      map[string]string{},
		ClientVars:      map[string]string{},
		ModifiedVars:    map[string]string{},
		backgroundJobs:  map[int]*ExecutionContext{},
		queueWritesSelf: true,
		state:           State{Kind: StateGround},
		Log:             slog.Default(),
	}
	c.payloadBuilder = NewPayloadBuilder(c)
	return c
}

// Framing reports whether the framer helper has been launched (invariant 2).
func (c *Conductor) Framing() bool { return c.FramedPID != nil }

// HandlesKeystrokes reports whether this conductor is the right place for
// raw interactive keystrokes right now: it must be framing, and every
// conductor in the chain up to the root must currently accept writes
// (invariant 3).
func (c *Conductor) HandlesKeystrokes() bool {
	return c.Framing() && c.QueueWrites()
}

// QueueWrites is the transitive form of queueWritesSelf: true only if self
// and every ancestor have queueWritesSelf set and are not unhooked.
func (c *Conductor) QueueWrites() bool {
	if !c.queueWritesSelf {
		return false
	}
	if c.state.Kind == StateUnhooked {
		return false
	}
	if c.Parent != nil {
		return c.Parent.QueueWrites()
	}
	return true
}

// State returns the current state machine value.
func (c *Conductor) State() State { return c.state }

// SetDelegate assigns (or clears) the transport delegate. Assigning a
// non-nil delegate after a restore clears the restored flag (§4.9).
func (c *Conductor) SetDelegate(d Delegate) {
	c.Delegate = d
	if d != nil {
		c.restored = false
	}
}

// Restored reports whether this conductor was produced by DecodeConductor
// and has not yet had a delegate assigned.
func (c *Conductor) Restored() bool { return c.restored }

// Start issues the opening getshell command, beginning the launch sequence
// described in §4.4.
func (c *Conductor) Start() {
	c.notify("lifecycle", "start")
	c.send(Command{Kind: CmdGetShell}, handleGetShell())
}

// Quit performs an orderly shutdown: queues a quit command and tells the
// delegate to wind down.
func (c *Conductor) Quit() {
	c.notify("lifecycle", "quit")
	c.send(Command{Kind: CmdQuit}, fireAndForget())
	if c.Delegate != nil {
		c.Delegate.ConductorQuit()
	}
}

// Reset returns this conductor alone to ground state, draining its queue
// with abort.
func (c *Conductor) Reset() {
	c.drainQueueWithAbort()
	c.state = State{Kind: StateGround}
}

// ResetTransitively resets this conductor and every ancestor up to the root.
func (c *Conductor) ResetTransitively() {
	c.Reset()
	if c.Parent != nil {
		c.Parent.ResetTransitively()
	}
}

// DidResynchronize is called once a reconnect's recovery handshake (or a
// fresh start) has caught the parser up; it clears the transient recovered
// latch.
func (c *Conductor) DidResynchronize() {
	if c.state.Kind == StateRecovered {
		c.state = State{Kind: StateGround}
	}
}

// StartRecovery arms the conductor to expect a `:begin-recovery` banner.
func (c *Conductor) StartRecovery() {
	c.state = State{Kind: StateRecovery, RecoverySub: RecoverySubGround}
}

// RecoveryDidFinish forces the transient recovered→ground transition; used
// by callers that drive recovery manually rather than through parser
// events.
func (c *Conductor) RecoveryDidFinish() {
	c.state = State{Kind: StateGround}
}

// Add registers a local path to be uploaded to destination before framing
// starts (§4.4 payload step). Actual tar construction happens externally;
// see internal/conductor/payload.go.
func (c *Conductor) Add(path, destination string) {
	c.payloadBuilder.Add(path, destination)
}

// RegisterProcess asks the framer to track an additional remote PID.
func (c *Conductor) RegisterProcess(pid int) {
	c.send(Command{Kind: CmdFramerRegister, Pid: pid}, fireAndForget())
}

// DeregisterProcess asks the framer to stop tracking a remote PID.
func (c *Conductor) DeregisterProcess(pid int) {
	c.send(Command{Kind: CmdFramerDeregister, Pid: pid}, fireAndForget())
}

// Poll issues a framerPoll request, coalescing with any already-queued poll
// per §4.3's queueing discipline.
func (c *Conductor) Poll(cb PollCallback) {
	for _, ctx := range c.queue {
		if ctx.Command.Kind == CmdFramerPoll {
			return // coalesced: silently dropped
		}
	}
	c.send(Command{Kind: CmdFramerPoll}, handlePoll(cb))
}

// JSONValue serializes this conductor per §4.9; see serialize.go.
func (c *Conductor) JSONValue() (string, error) {
	return c.encodeJSON()
}

// globalByPID is the process-wide table a conductor registers itself into
// once its framer login completes (§4.4 step 8: "the conductor registers
// itself globally"). It exists so a depth-unaware caller — e.g. a terminate
// event arriving without nesting context — can still find the owning
// conductor; the single-thread invariant that protects every other field
// here protects this table too.
var globalByPID = map[int]*Conductor{}

func registerGlobal(pid int, c *Conductor) {
	globalByPID[pid] = c
}

func deregisterGlobal(pid int) {
	delete(globalByPID, pid)
}

// LookupByFramedPID returns the conductor registered under pid, if any.
func LookupByFramedPID(pid int) (*Conductor, bool) {
	c, ok := globalByPID[pid]
	return c, ok
}
