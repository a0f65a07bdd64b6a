package conductor

import "strings"

const chunkLimit = 128

// send appends a new pending context to the queue (§4.2). If the conductor
// is idle (ground or recovery) and the queue was empty, dequeue() runs
// immediately.
func (c *Conductor) send(cmd Command, h Handler) {
	ctx := newContext(cmd, h)
	wasEmpty := len(c.queue) == 0
	canRunNow := c.state.Kind == StateGround || c.state.Kind == StateRecovery
	c.queue = append(c.queue, ctx)
	if wasEmpty && canRunNow {
		c.dequeue()
	}
}

// dequeue is a no-op if a context is already in flight. If the delegate is
// absent, it drains the whole queue with abort instead of writing anything.
func (c *Conductor) dequeue() {
	if c.state.Kind == StateWillExecute || c.state.Kind == StateExecuting {
		return
	}
	if len(c.queue) == 0 {
		return
	}
	if c.Delegate == nil {
		c.drainQueueWithAbort()
		return
	}
	ctx := c.queue[0]
	c.queue = c.queue[1:]
	c.state = State{Kind: StateWillExecute, Ctx: ctx}
	c.writeCommand(ctx.Command)
}

// drainQueueWithAbort delivers the abort result to the in-flight context
// (if any) and to every queued handler's callback (where it has one):
// result callbacks get (nil, -1), poll callbacks get nil. It then resets
// state to ground.
func (c *Conductor) drainQueueWithAbort() {
	pending := c.queue
	if (c.state.Kind == StateWillExecute || c.state.Kind == StateExecuting) && c.state.Ctx != nil {
		pending = append([]*ExecutionContext{c.state.Ctx}, pending...)
	}
	c.queue = nil
	for _, ctx := range pending {
		c.abortContext(ctx)
	}
	c.state = State{Kind: StateGround}
}

func (c *Conductor) abortContext(ctx *ExecutionContext) {
	switch ctx.Handler.Kind {
	case HandlerFile, HandlerBackgroundJob, HandlerRunRemoteCommand:
		if ctx.Handler.Result != nil {
			ctx.Handler.Result(nil, -1)
		}
	case HandlerPoll:
		if ctx.Handler.Poll != nil {
			ctx.Handler.Poll(nil)
		}
	}
}

// writeCommand renders and chunks one command per §4.1, then writes it.
func (c *Conductor) writeCommand(cmd Command) {
	record := cmd.stringValue() + "\n"
	for _, chunk := range chunkRecord(record, cmd.Kind.IsFramer()) {
		c.write(chunk)
	}
}

// chunkRecord splits record into ≤128-byte pieces. Framer commands get a
// literal "\" continuation marker appended to every non-final chunk;
// non-framer commands use the empty continuation. Each returned string
// already carries its own trailing newline.
func chunkRecord(record string, framer bool) []string {
	if len(record) <= chunkLimit {
		return []string{record}
	}
	var chunks []string
	for len(record) > chunkLimit {
		piece := record[:chunkLimit]
		record = record[chunkLimit:]
		if framer {
			piece += "\\"
		}
		chunks = append(chunks, piece+"\n")
	}
	if record != "" {
		chunks = append(chunks, record)
	}
	return chunks
}

// write is the re-entrancy-guarded raw write path (§4.2, §5, §9). While
// draining is set, nested write attempts made as a side effect of this very
// write are suppressed from re-entering; in practice the conductor never
// calls write() from within write(), but the guard is kept because handler
// finalization can itself call write() (e.g. writeOnSuccess).
func (c *Conductor) write(s string) {
	if c.draining {
		return
	}
	c.draining = true
	defer func() { c.draining = false }()

	if c.Parent != nil {
		c.Parent.sendKeysFromChild(c, []byte(s))
		return
	}
	if c.Delegate != nil {
		_ = c.Delegate.ConductorWrite(s)
	}
}

// SendKeys writes raw interactive bytes. On a framing conductor it wraps
// them in a framerSend to the remote framer; on a non-framing conductor
// they go straight to the delegate.
func (c *Conductor) SendKeys(data []byte) {
	if !c.Framing() {
		c.write(string(data))
		return
	}
	c.send(Command{Kind: CmdFramerSend, Pid: *c.FramedPID, Bytes: data}, fireAndForget())
}

// sendKeysFromChild is the parent-side half of nested write routing (§4.8):
// a child's outgoing bytes are delivered to the remote as
// framerSend(bytes, pid=child.framedPID), recursively, until the root
// writes to its delegate.
func (c *Conductor) sendKeysFromChild(child *Conductor, data []byte) {
	if child.FramedPID == nil {
		return
	}
	c.send(Command{Kind: CmdFramerSend, Pid: *child.FramedPID, Bytes: data}, fireAndForget())
}

// fail implements the protocolViolation propagation policy (§7): reset
// state and queue on self and the parent chain, attempt a best-effort
// execLoginShell write so the user is not stranded, and notify the
// delegate.
func (c *Conductor) fail(reason string) {
	if c.Log != nil {
		c.Log.Warn("conductor: fatal failure", "reason", reason, "depth", c.Depth)
	}
	c.notify("error", reason)
	c.drainQueueWithAbort()
	c.draining = false
	if c.Delegate != nil {
		_ = c.Delegate.ConductorWrite("exec_login_shell\n")
		c.Delegate.ConductorAbort(reason)
	}
	if c.Parent != nil {
		c.Parent.fail(reason)
	}
}

// finalize runs the handler-specific response-consumption logic once a
// command-end boundary closes ctx, then allows dequeue() to proceed.
func (c *Conductor) finalize(ctx *ExecutionContext, status int) {
	switch ctx.Handler.Kind {
	case HandlerFailIfNonzeroStatus:
		if status != 0 {
			c.fail("unexpected non-zero status")
		}
	case HandlerFireAndForget:
		// nothing to do
	case HandlerCheckForPython:
		c.afterPythonCheck(ctx.joinedLines())
	case HandlerGetShell:
		c.afterGetShell(ctx.joinedLines())
	case HandlerFramerLogin:
		c.afterFramerLogin(ctx.joinedLines())
	case HandlerWriteOnSuccess:
		if status == 0 {
			c.write(string(ctx.Handler.WritePayload) + "\nEOF\n")
			c.afterFramerCodeWritten()
		} else {
			c.fail("framer code upload failed")
		}
	case HandlerRunRemoteCommand:
		c.afterRunRemoteCommandSpawned(ctx, status)
	case HandlerBackgroundJob:
		// background jobs finalize on terminate(), not on command-end;
		// reaching command-end here means the spawning shell itself
		// exited before the job did, which we tolerate silently.
	case HandlerPoll:
		if ctx.Handler.Poll != nil {
			ctx.Handler.Poll(ctx.joinedLines())
		}
	case HandlerFile:
		c.finalizeFile(ctx, status)
	}
}

// normalizeLines is a small helper some finalizers use to drop empty
// trailing blank lines produced by a trailing "\n" in joinedLines().
func normalizeLines(b []byte) []string {
	s := string(b)
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
