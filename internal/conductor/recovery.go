package conductor

import (
	"strconv"
	"strings"
)

// recoveryFields are the banner fields required before :end-recovery can
// complete (§4.5).
var recoveryFields = []string{"login", "dcsID", "sshargs", "boolArgs", "clientUniqueID"}

// handleRecoveryLineLocal implements the :begin-recovery / :recovery: K V /
// :end-recovery banner grammar once a depth-matched conductor has been
// found by the nesting router.
func (c *Conductor) handleRecoveryLineLocal(line string) *ConductorRecovery {
	switch {
	case line == ":begin-recovery":
		armed := c.state.Kind == StateRecovery && c.state.RecoverySub == RecoverySubGround
		if c.state.Kind != StateGround && c.state.Kind != StateUnhooked && !armed {
			c.logTolerated("recovery-line", line)
			return nil
		}
		c.state = State{Kind: StateRecovery, RecoverySub: RecoverySubBuilding, RecoveryInfo: map[string]string{}}
		return nil
	case line == ":end-recovery":
		return c.finishRecovery()
	default:
		c.accumulateRecoveryField(line)
		return nil
	}
}

func (c *Conductor) accumulateRecoveryField(line string) {
	if c.state.Kind != StateRecovery || c.state.RecoverySub != RecoverySubBuilding {
		return
	}
	rest, ok := strings.CutPrefix(line, ":recovery: ")
	if !ok {
		return
	}
	k, v, found := strings.Cut(rest, " ")
	if !found {
		k, v = rest, ""
	}
	c.state.RecoveryInfo[k] = v
}

func (c *Conductor) finishRecovery() *ConductorRecovery {
	if c.state.Kind != StateRecovery || c.state.RecoverySub != RecoverySubBuilding {
		return nil
	}
	info := c.state.RecoveryInfo
	for _, f := range recoveryFields {
		if _, ok := info[f]; !ok {
			c.abandonRecovery()
			return nil
		}
	}
	pid, err := strconv.Atoi(info["login"])
	if err != nil || pid <= 0 {
		c.abandonRecovery()
		return nil
	}

	c.FramedPID = &pid
	c.DCSID = info["dcsID"]
	c.SSHArgs = info["sshargs"]
	c.BoolArgs = info["boolArgs"]
	c.ClientUniqueID = info["clientUniqueID"]
	c.state = State{Kind: StateGround}
	registerGlobal(pid, c)
	c.notify("lifecycle", "recovered")

	return &ConductorRecovery{
		PID:            pid,
		DCSID:          info["dcsID"],
		SSHArgs:        info["sshargs"],
		BoolArgs:       info["boolArgs"],
		ClientUniqueID: info["clientUniqueID"],
	}
}

func (c *Conductor) abandonRecovery() {
	c.Quit()
	c.state = State{Kind: StateGround}
}
