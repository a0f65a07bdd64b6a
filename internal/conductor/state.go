package conductor

import "fmt"

// StateKind tags the State union (§4.3).
type StateKind int

const (
	StateGround StateKind = iota
	StateWillExecute
	StateExecuting
	StateUnhooked
	StateRecovery
	StateRecovered
)

func (k StateKind) String() string {
	switch k {
	case StateGround:
		return "ground"
	case StateWillExecute:
		return "willExecute"
	case StateExecuting:
		return "executing"
	case StateUnhooked:
		return "unhooked"
	case StateRecovery:
		return "recovery"
	case StateRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// RecoverySub tags the sub-state of StateRecovery.
type RecoverySub int

const (
	RecoverySubGround RecoverySub = iota
	RecoverySubBuilding
)

// State is the tagged union of per-conductor states.
type State struct {
	Kind StateKind

	// willExecute / executing
	Ctx *ExecutionContext

	// recovery
	RecoverySub  RecoverySub
	RecoveryInfo map[string]string
}

// --- local (depth-matched) event handlers; nesting.go routes here ---

func (c *Conductor) handleLineLocal(line string) {
	switch c.state.Kind {
	case StateWillExecute, StateExecuting:
		c.state.Kind = StateExecuting
		if c.state.Ctx != nil {
			c.state.Ctx.appendLine(line)
		}
	case StateGround, StateUnhooked, StateRecovery, StateRecovered:
		c.logTolerated("line", line)
	}
}

func (c *Conductor) handleUnhookLocal() {
	c.state = State{Kind: StateUnhooked}
	c.notify("state", "unhooked")
}

func (c *Conductor) handleCommandBeginLocal(id string) {
	switch c.state.Kind {
	case StateWillExecute:
		c.state.Kind = StateExecuting
	case StateExecuting:
		// already executing; tolerate duplicate begin
	default:
		c.logTolerated("command-begin", id)
	}
}

func (c *Conductor) handleCommandEndLocal(id string, kind CommandEndKind, status int) {
	switch c.state.Kind {
	case StateWillExecute, StateExecuting:
		ctx := c.state.Ctx
		c.state = State{Kind: StateGround}
		if ctx != nil {
			c.finalize(ctx, status)
		}
		c.dequeue()
	case StateGround, StateUnhooked, StateRecovery, StateRecovered:
		c.logTolerated("command-end", fmt.Sprintf("id=%s status=%d", id, status))
	}
}

func (c *Conductor) handleSideChannelLocal(data string, pid int, channel int) {
	if pid == SSHOutputAutopollPID {
		c.handleAutopollLine(data, channel)
		return
	}
	if ctx, ok := c.backgroundJobs[pid]; ok {
		if channel == 1 {
			ctx.appendLine(data)
		}
		return
	}
}

// handleAutopollLine implements §4.4's autopoll loop: lines accumulate
// until a sentinel "EOF", at which point the joined payload is delivered to
// the process-info observer and a fresh framerAutopoll is queued.
func (c *Conductor) handleAutopollLine(data string, channel int) {
	if channel != 1 {
		return
	}
	if data == "EOF" {
		joined := c.autopoll
		c.autopoll = nil
		c.notify("autopoll", string(joined))
		if c.AutopollEnabled && c.Framing() {
			c.send(Command{Kind: CmdFramerAutopoll}, fireAndForget())
		}
		return
	}
	c.autopoll = append(c.autopoll, []byte(data)...)
	c.autopoll = append(c.autopoll, '\n')
}

func (c *Conductor) handleTerminateLocal(pid int, code int) {
	if c.FramedPID != nil && *c.FramedPID == pid {
		deregisterGlobal(pid)
		c.send(Command{Kind: CmdQuit}, fireAndForget())
	}
	if ctx, ok := c.backgroundJobs[pid]; ok {
		delete(c.backgroundJobs, pid)
		if ctx.Handler.Kind == HandlerBackgroundJob && ctx.Handler.Result != nil {
			ctx.Handler.Result(ctx.joinedLines(), code)
		}
		c.notify("job", fmt.Sprintf("terminate pid=%d code=%d", pid, code))
	}
}

func (c *Conductor) logTolerated(event, detail string) {
	if c.Log != nil {
		c.Log.Debug("conductor: unexpected event tolerated", "state", c.state.Kind.String(), "event", event, "detail", detail)
	}
}
