// Package conductortest provides hand-written fakes for driving a
// conductor.Conductor in tests, matching the teacher's internal/mocks
// pattern of plain structs over a mocking library.
package conductortest

import "github.com/hopline/conductor/internal/conductor"

// FakeDelegate records every write, abort and quit it receives. WriteErr, if
// set, is returned from ConductorWrite without recording the write.
type FakeDelegate struct {
	Writes   []string
	Aborted  []string
	Quit     bool
	WriteErr error
}

func (d *FakeDelegate) ConductorWrite(s string) error {
	if d.WriteErr != nil {
		return d.WriteErr
	}
	d.Writes = append(d.Writes, s)
	return nil
}

func (d *FakeDelegate) ConductorAbort(reason string) { d.Aborted = append(d.Aborted, reason) }
func (d *FakeDelegate) ConductorQuit()                { d.Quit = true }

// Joined concatenates every recorded write, for tests that only care about
// the cumulative wire form rather than chunk boundaries.
func (d *FakeDelegate) Joined() string {
	out := ""
	for _, w := range d.Writes {
		out += w
	}
	return out
}

var _ conductor.Delegate = (*FakeDelegate)(nil)

// ScriptedEvent is one event to feed through a FakeParser's Drive helper: it
// simply invokes the matching conductor.Parser method by name.
type ScriptedEvent struct {
	// One of: "line", "unhook", "begin", "end", "terminate", "side", "recovery".
	Kind    string
	Depth   int
	Line    string
	ID      string
	EndKind conductor.CommandEndKind
	Status  int
	PID     int
	Code    int
	Data    string
	Channel int
}

// Drive feeds a sequence of scripted events directly to target (normally a
// *conductor.Conductor, which implements conductor.Parser on itself).
func Drive(target conductor.Parser, events []ScriptedEvent) []*conductor.ConductorRecovery {
	var recoveries []*conductor.ConductorRecovery
	for _, e := range events {
		switch e.Kind {
		case "line":
			target.HandleLine(e.Depth, e.Line)
		case "unhook":
			target.HandleUnhook(e.Depth)
		case "begin":
			target.HandleCommandBegin(e.Depth, e.ID)
		case "end":
			target.HandleCommandEnd(e.Depth, e.ID, e.EndKind, e.Status)
		case "terminate":
			target.HandleTerminate(e.Depth, e.PID, e.Code)
		case "side":
			target.HandleSideChannelOutput(e.Depth, e.Data, e.PID, e.Channel)
		case "recovery":
			if rec := target.HandleRecovery(e.Depth, e.Line); rec != nil {
				recoveries = append(recoveries, rec)
			}
		}
	}
	return recoveries
}
