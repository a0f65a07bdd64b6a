package conductor

// routeDepth implements §4.8's demultiplex rule: an event tagged with a
// depth that doesn't match the receiving conductor is forwarded to parent,
// unchanged, as long as the receiver is currently framing; recursion
// terminates at the root (no parent), where the event is handled (or
// tolerated/discarded by the state machine) regardless of any remaining
// mismatch.
func routeDepth(c *Conductor, depth int) *Conductor {
	for c.Depth != depth && c.Framing() && c.Parent != nil {
		c = c.Parent
	}
	return c
}

// HandleLine implements Parser's consumed line event.
func (c *Conductor) HandleLine(depth int, line string) {
	routeDepth(c, depth).handleLineLocal(line)
}

// HandleUnhook implements Parser's consumed unhook event.
func (c *Conductor) HandleUnhook(depth int) {
	routeDepth(c, depth).handleUnhookLocal()
}

// HandleCommandBegin implements Parser's consumed command-begin event.
func (c *Conductor) HandleCommandBegin(depth int, id string) {
	routeDepth(c, depth).handleCommandBeginLocal(id)
}

// HandleCommandEnd implements Parser's consumed command-end event.
func (c *Conductor) HandleCommandEnd(depth int, id string, kind CommandEndKind, status int) {
	routeDepth(c, depth).handleCommandEndLocal(id, kind, status)
}

// HandleTerminate implements Parser's consumed process-terminate event.
func (c *Conductor) HandleTerminate(depth int, pid int, code int) {
	routeDepth(c, depth).handleTerminateLocal(pid, code)
}

// HandleSideChannelOutput implements Parser's consumed side-channel event.
func (c *Conductor) HandleSideChannelOutput(depth int, data string, pid int, channel int) {
	routeDepth(c, depth).handleSideChannelLocal(data, pid, channel)
}

// HandleRecovery implements Parser's consumed recovery-line event.
func (c *Conductor) HandleRecovery(depth int, line string) *ConductorRecovery {
	return routeDepth(c, depth).handleRecoveryLineLocal(line)
}

var _ Parser = (*Conductor)(nil)
