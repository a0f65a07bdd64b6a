package conductor

// RunRemoteCommand spawns cmdline on the remote host via the framer and
// tracks it as a background job (§4.6). If the framer has not been
// launched yet, it fails synchronously with (empty, -1) rather than
// queuing anything.
func (c *Conductor) RunRemoteCommand(cmdline string, cb ResultCallback) {
	if c.FramedPID == nil {
		if cb != nil {
			cb(nil, -1)
		}
		return
	}
	c.send(Command{Kind: CmdFramerRun, CmdLine: cmdline}, handleRunRemoteCommand(cb))
}

// afterRunRemoteCommandSpawned consumes the first response line (the
// spawned PID) and promotes the job into backgroundJobs with a
// handleBackgroundJob handler so later side-channel lines and the eventual
// terminate event route to it.
func (c *Conductor) afterRunRemoteCommandSpawned(ctx *ExecutionContext, status int) {
	lines := normalizeLines(ctx.joinedLines())
	if len(lines) == 0 {
		c.fail("runRemoteCommand produced no pid")
		return
	}
	pid, err := parsePositiveInt(lines[0])
	if err != nil {
		c.fail("runRemoteCommand returned malformed pid")
		return
	}
	jobCtx := newContext(ctx.Command, handleBackgroundJob(ctx.Handler.Result))
	c.backgroundJobs[pid] = jobCtx
	c.notify("job", "spawned")
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, errParseInt
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errParseInt
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

var errParseInt = wrapf(ErrProtocolViolation, "expected a decimal pid")
