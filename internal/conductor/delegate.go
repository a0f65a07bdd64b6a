package conductor

// Delegate is the external collaborator that owns the actual transport: an
// SSH subprocess and its PTY in the reference deployment, but the conductor
// only ever sees opaque strings in and out. See internal/ptydelegate for a
// concrete local-PTY implementation.
type Delegate interface {
	// ConductorWrite sends opaque bytes to the transport.
	ConductorWrite(s string) error
	// ConductorAbort notifies the delegate of a fatal condition.
	ConductorAbort(reason string)
	// ConductorQuit requests an orderly shutdown of the transport.
	ConductorQuit()
}

// Parser is the external collaborator that turns raw transport bytes into
// framed events: the terminal emulator and its DCS parser in the reference
// deployment. See internal/vtfeed for a concrete implementation atop a real
// terminal emulator. Every method carries the depth of the conductor it
// targets so a Conductor with children can route per §4.8.
type Parser interface {
	HandleLine(depth int, line string)
	HandleUnhook(depth int)
	HandleCommandBegin(depth int, id string)
	HandleCommandEnd(depth int, id string, kind CommandEndKind, status int)
	HandleTerminate(depth int, pid int, code int)
	HandleSideChannelOutput(depth int, data string, pid int, channel int)
	HandleRecovery(depth int, line string) *ConductorRecovery
}

// CommandEndKind disambiguates a framer vs non-framer command-end boundary,
// needed when a non-framing conductor has a framing parent.
type CommandEndKind int

const (
	EndNonFramer CommandEndKind = iota // "r" in the wire protocol
	EndFramer                          // "f" in the wire protocol
)

// Observer is an optional sink for conductor lifecycle/state events. It is
// never required for correctness: a nil Observer is a documented no-op.
// Notify is called synchronously from the conductor's own event handling,
// so an implementation that blocks delays the conductor
// (internal/observer.Hub bounds each client write with a timeout).
type Observer interface {
	Notify(Event)
}

// Event is one observable occurrence in a conductor's lifecycle.
type Event struct {
	ClientUniqueID string
	Depth          int
	Kind           string
	Detail         string
}

func (c *Conductor) notify(kind, detail string) {
	if c.Observer == nil {
		return
	}
	c.Observer.Notify(Event{
		ClientUniqueID: c.ClientUniqueID,
		Depth:          c.Depth,
		Kind:           kind,
		Detail:         detail,
	})
}
