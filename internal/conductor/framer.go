package conductor

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

//go:embed framer/framer.py.tmpl
var framerSourceTemplate string

// SSHOutputAutopollPID is the reserved sentinel PID side-channel output is
// tagged with while an autopoll round is in flight.
const SSHOutputAutopollPID = -2

// MinimumPythonVersion is the lowest remote python3 the framer will launch
// under; below this, the conductor falls back to a plain login shell.
const MinimumPythonVersion = "3.7"

// afterGetShell consumes the three getshell response lines (shell, home,
// version — §9 Open Question 2: guard len(parts) >= 3, leave version empty
// otherwise) and queues the rest of the static launch sequence.
func (c *Conductor) afterGetShell(raw []byte) {
	lines := normalizeLines(raw)
	if len(lines) >= 1 {
		c.remoteShell = lines[0]
	}
	if len(lines) >= 2 {
		c.remoteHome = lines[1]
	}
	if len(lines) >= 3 {
		c.remoteShellVersion = strings.Join(lines[2:], "\n")
	}

	c.computeShellIntegration()

	vars := c.ModifiedVars
	if len(vars) == 0 {
		vars = c.VarsToSend
	}
	for _, k := range sortedKeys(vars) {
		c.send(Command{Kind: CmdSetEnv, EnvKey: k, EnvValue: vars[k]}, failIfNonzeroStatus())
	}

	for _, p := range c.Payloads {
		dest := NormalizeDestination(p.Destination, c.remoteHome)
		c.send(Command{Kind: CmdWrite, Destination: dest, Payload: p.Content}, failIfNonzeroStatus())
	}

	if c.InitialDirectory != "" {
		c.send(Command{Kind: CmdCd, Path: c.InitialDirectory}, failIfNonzeroStatus())
	}

	c.send(Command{Kind: CmdShell, CmdLine: "python3 -V"}, handleCheckForPython())
}

// shellIsEligibleForIntegration implements §6's wire-constant rule: zsh and
// fish are always eligible; bash is eligible unless it is exactly macOS's
// ancient stock build.
func shellIsEligibleForIntegration(shell, versionLine string) bool {
	base := shell
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	switch base {
	case "zsh", "fish":
		return true
	case "bash":
		if strings.Contains(versionLine, "GNU bash, version 3.2.57") && strings.Contains(versionLine, "apple-darwin") {
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Conductor) computeShellIntegration() {
	if !c.ShouldInjectShellIntegration {
		return
	}
	if !shellIsEligibleForIntegration(c.remoteShell, c.remoteShellVersion) {
		c.ShouldInjectShellIntegration = false
		return
	}
	// The actual shell-integration script body is generated by an external
	// collaborator (§1); here we only carry the vars/argv it would modify
	// through unchanged when no injector is wired, so the launch sequence
	// still has well-formed modified* fields to send.
	if len(c.ModifiedVars) == 0 {
		c.ModifiedVars = c.VarsToSend
	}
	if len(c.ModifiedCommandArgs) == 0 {
		c.ModifiedCommandArgs = c.ParsedArgs.CommandArgs
	}
}

// afterPythonCheck parses "Python X.Y.Z" and branches to framer launch or
// plain login (§4.4 step 5).
func (c *Conductor) afterPythonCheck(raw []byte) {
	lines := normalizeLines(raw)
	line := ""
	if len(lines) > 0 {
		line = lines[len(lines)-1]
	}
	const prefix = "Python "
	if !strings.HasPrefix(line, prefix) {
		c.execLoginShell()
		return
	}
	v, err := version.NewVersion(strings.TrimSpace(strings.TrimPrefix(line, prefix)))
	if err != nil {
		c.execLoginShell()
		return
	}
	min, _ := version.NewVersion(MinimumPythonVersion)
	if v.LessThan(min) {
		c.execLoginShell()
		return
	}
	c.launchFramer()
}

func (c *Conductor) execLoginShell() {
	c.send(Command{Kind: CmdExecLoginShell}, fireAndForget())
}

func (c *Conductor) launchFramer() {
	code := strings.Replace(framerSourceTemplate, "#{SUB}", fmt.Sprintf("DEPTH=%d", c.Depth), 1)
	c.send(Command{Kind: CmdRunPython}, writeOnSuccess([]byte(code)))
}

// afterFramerCodeWritten continues the launch sequence with framerSave once
// the python source has been delivered (§4.4 step 7).
func (c *Conductor) afterFramerCodeWritten() {
	fields := map[string]string{
		"dcsID":          c.DCSID,
		"sshargs":        c.SSHArgs,
		"boolArgs":       c.BoolArgs,
		"clientUniqueID": c.ClientUniqueID,
	}
	c.send(Command{Kind: CmdFramerSave, SaveFields: fields}, fireAndForget())

	argv := c.ModifiedCommandArgs
	if len(argv) == 0 {
		argv = c.ParsedArgs.CommandArgs
	}
	c.send(Command{Kind: CmdFramerLogin, Cwd: c.InitialDirectory, Argv: argv}, handleFramerLogin())
}

// afterFramerLogin parses the spawned PID, arms framedPID, registers this
// conductor globally, and optionally starts the autopoll loop (§4.4 steps
// 8-9).
func (c *Conductor) afterFramerLogin(raw []byte) {
	lines := normalizeLines(raw)
	if len(lines) == 0 {
		c.fail("framer login produced no pid")
		return
	}
	pidStr := strings.TrimSpace(lines[len(lines)-1])
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		c.fail("framer login returned malformed pid")
		return
	}
	c.FramedPID = &pid
	registerGlobal(pid, c)
	c.notify("lifecycle", fmt.Sprintf("framed pid=%d", pid))

	if c.AutopollEnabled {
		c.send(Command{Kind: CmdFramerAutopoll}, fireAndForget())
	}
}

// NormalizeDestination implements §4.4's payload path normalization rule.
// It is idempotent: NormalizeDestination(NormalizeDestination(p, home), home)
// == NormalizeDestination(p, home).
func NormalizeDestination(dest, home string) string {
	switch {
	case dest == "~" || dest == "~/":
		dest = "/" + home
	case !strings.HasPrefix(dest, "/"):
		dest = "/" + home + "/" + dest
	}
	if len(dest) > 1 {
		dest = strings.TrimRight(dest, "/")
		if dest == "" {
			dest = "/"
		}
	}
	return dest
}
