package conductor

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/hopline/conductor/internal/conductor/conductortest"
	"github.com/stretchr/testify/require"
)

// Scenario 1 (§8): plain login when remote python is too old.
func TestScenario_PlainLoginWhenPythonTooOld(t *testing.T) {
	d := &conductortest.FakeDelegate{}
	c := New("user@host", "", nil)
	c.SetDelegate(d)

	c.Start()
	require.Equal(t, []string{"getshell\n"}, d.Writes)

	c.HandleLine(0, "/bin/bash")
	c.HandleLine(0, "/home/u")
	c.HandleLine(0, "")
	c.HandleCommandEnd(0, "1", EndNonFramer, 0)
	require.Equal(t, "shell python3 -V\n", d.Writes[len(d.Writes)-1])

	c.HandleLine(0, "Python 3.6.9")
	c.HandleCommandEnd(0, "2", EndNonFramer, 0)
	require.Equal(t, "exec_login_shell\n", d.Writes[len(d.Writes)-1])
	require.False(t, c.Framing())
}

// Scenario 2 (§8): framer launch happy path.
func TestScenario_FramerLaunchHappyPath(t *testing.T) {
	d := &conductortest.FakeDelegate{}
	c := New("user@host", "", nil)
	c.AutopollEnabled = true
	c.SetDelegate(d)

	c.Start()
	c.HandleLine(0, "/bin/zsh")
	c.HandleLine(0, "/home/u")
	c.HandleLine(0, "5.9")
	c.HandleCommandEnd(0, "1", EndNonFramer, 0)
	require.Equal(t, "shell python3 -V\n", d.Writes[len(d.Writes)-1])

	c.HandleLine(0, "Python 3.8.1")
	c.HandleCommandEnd(0, "2", EndNonFramer, 0)
	require.Equal(t, "runpython\n", d.Writes[len(d.Writes)-1])

	c.HandleCommandEnd(0, "3", EndFramer, 0)
	// finalize() for writeOnSuccess writes the python source + EOF sentinel,
	// then afterFramerCodeWritten immediately dispatches framerSave next.
	eofWrite := d.Writes[len(d.Writes)-2]
	require.True(t, strings.HasSuffix(eofWrite, "\nEOF\n"))
	require.Contains(t, eofWrite, "Injected remote helper")

	saveWrite := d.Writes[len(d.Writes)-1]
	require.True(t, strings.HasPrefix(saveWrite, "save\n"))
	require.Contains(t, saveWrite, "dcsID="+c.DCSID)
	require.Contains(t, saveWrite, "clientUniqueID="+c.ClientUniqueID)

	c.HandleCommandEnd(0, "4", EndFramer, 0) // framerSave ends
	require.True(t, strings.HasPrefix(d.Writes[len(d.Writes)-1], "login\n"))

	c.HandleLine(0, "4321")
	c.HandleCommandEnd(0, "5", EndFramer, 0) // framerLogin ends
	require.NotNil(t, c.FramedPID)
	require.Equal(t, 4321, *c.FramedPID)
	require.True(t, c.Framing())
	require.Equal(t, "autopoll\n", d.Writes[len(d.Writes)-1])
}

// Scenario 3 (§8): background run + termination.
func TestScenario_BackgroundRunAndTermination(t *testing.T) {
	d := &conductortest.FakeDelegate{}
	c := New("user@host", "", nil)
	c.SetDelegate(d)
	pid := 4321
	c.FramedPID = &pid

	var gotData []byte
	gotStatus := -99
	c.RunRemoteCommand("uptime", func(data []byte, status int) {
		gotData, gotStatus = data, status
	})
	require.Equal(t, "run\nuptime\n", d.Writes[len(d.Writes)-1])

	c.HandleLine(0, "5678")
	c.HandleCommandEnd(0, "1", EndFramer, 0)
	require.Contains(t, c.backgroundJobs, 5678)

	c.HandleSideChannelOutput(0, "load: 0.1", 5678, 1)
	c.HandleTerminate(0, 5678, 0)

	require.Equal(t, []byte("load: 0.1"), gotData)
	require.Equal(t, 0, gotStatus)
	require.NotContains(t, c.backgroundJobs, 5678)
}

// Scenario 4 (§8): poll coalescing — two poll() calls with no intervening
// dispatch enqueue exactly one, and only the first callback fires.
func TestScenario_PollCoalescing(t *testing.T) {
	d := &conductortest.FakeDelegate{}
	c := New("user@host", "", nil)
	c.SetDelegate(d)
	pid := 4321
	c.FramedPID = &pid

	// Force the conductor into "executing some other command" so the first
	// Poll() call is queued rather than dispatched immediately.
	c.state = State{Kind: StateExecuting, Ctx: newContext(Command{Kind: CmdFramerRun}, fireAndForget())}

	cb1Called, cb2Called := false, false
	c.Poll(func(data []byte) { cb1Called = true })
	c.Poll(func(data []byte) { cb2Called = true })

	require.Len(t, c.queue, 1)
	require.Equal(t, CmdFramerPoll, c.queue[0].Command.Kind)

	// Finish the in-flight command so the queued poll dispatches.
	c.HandleCommandEnd(0, "x", EndFramer, 0)
	require.Equal(t, "poll\n", d.Writes[len(d.Writes)-1])

	c.HandleLine(0, "")
	c.HandleCommandEnd(0, "y", EndFramer, 0)

	require.True(t, cb1Called)
	require.False(t, cb2Called)
}

// Scenario 5 (§8): recovery banner reconstructs identity.
func TestScenario_Recovery(t *testing.T) {
	c := New("", "", nil)
	events := []conductortest.ScriptedEvent{
		{Kind: "recovery", Line: ":begin-recovery"},
		{Kind: "recovery", Line: ":recovery: login 9999"},
		{Kind: "recovery", Line: ":recovery: dcsID abc"},
		{Kind: "recovery", Line: ":recovery: sshargs u@h"},
		{Kind: "recovery", Line: ":recovery: boolArgs "},
		{Kind: "recovery", Line: ":recovery: clientUniqueID x"},
		{Kind: "recovery", Line: ":end-recovery"},
	}
	recoveries := conductortest.Drive(c, events)
	require.Len(t, recoveries, 1)
	require.Equal(t, 9999, recoveries[0].PID)
	require.Equal(t, "abc", recoveries[0].DCSID)
	require.NotNil(t, c.FramedPID)
	require.Equal(t, 9999, *c.FramedPID)
	require.Equal(t, StateGround, c.State().Kind)
}

// Scenario 6 (§8): file round trip, including the not-found and abort paths.
//
// RequestFile's callback fires synchronously, on this same goroutine, the
// moment HandleCommandEnd closes the round trip — there is no completion
// channel to read from a second goroutine, which is the point: a single
// logical thread can enqueue a file request and keep dispatching other
// events (here, the scripted HandleLine/HandleCommandEnd calls) without
// ever blocking on its own later input.
func TestScenario_FileRoundTrip(t *testing.T) {
	d := &conductortest.FakeDelegate{}
	c := New("user@host", "", nil)
	c.SetDelegate(d)
	pid := 4321
	c.FramedPID = &pid

	var got FileResult
	c.RequestFile(FileSubcommand{Kind: FileLs, Path: []byte("/tmp"), Sort: SortByName}, func(r FileResult) {
		got = r
	})
	require.Equal(t, "file\nls\n"+b64([]byte("/tmp"))+"\nn\n", d.Writes[len(d.Writes)-1])

	c.HandleLine(0, `[{"name":"a","isDir":false}]`)
	c.HandleCommandEnd(0, "1", EndFramer, 0)

	require.NoError(t, FileStatusError(got.Status))
	var files []RemoteFile
	require.NoError(t, json.Unmarshal(got.Data, &files))
	require.Equal(t, []RemoteFile{{Name: "a"}}, files)
}

func TestScenario_FileRoundTrip_NotFound(t *testing.T) {
	d := &conductortest.FakeDelegate{}
	c := New("user@host", "", nil)
	c.SetDelegate(d)
	pid := 4321
	c.FramedPID = &pid

	var got FileResult
	c.RequestFile(FileSubcommand{Kind: FileLs, Path: []byte("/tmp"), Sort: SortByName}, func(r FileResult) {
		got = r
	})
	c.HandleCommandEnd(0, "1", EndFramer, 2)
	require.ErrorIs(t, FileStatusError(got.Status), ErrFileNotFound)
}

func TestScenario_FileRoundTrip_Abort(t *testing.T) {
	d := &conductortest.FakeDelegate{}
	c := New("user@host", "", nil)
	c.SetDelegate(d)
	pid := 4321
	c.FramedPID = &pid

	var got FileResult
	c.RequestFile(FileSubcommand{Kind: FileLs, Path: []byte("/tmp"), Sort: SortByName}, func(r FileResult) {
		got = r
	})
	c.SetDelegate(nil)
	c.drainQueueWithAbort()
	require.ErrorIs(t, FileStatusError(got.Status), ErrTransportClosed)
}
