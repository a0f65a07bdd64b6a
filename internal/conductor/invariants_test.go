package conductor

import (
	"testing"

	"github.com/hopline/conductor/internal/conductor/conductortest"
	"github.com/stretchr/testify/require"
)

// Invariant 6: depth equals the number of parent pointers to the root.
func TestInvariant_DepthMatchesAncestorChain(t *testing.T) {
	root := New("root@host", "", nil)
	child := New("mid@host", "", root)
	grandchild := New("leaf@host", "", child)

	require.Equal(t, 0, root.Depth)
	require.Equal(t, 1, child.Depth)
	require.Equal(t, 2, grandchild.Depth)

	depth := 0
	for c := grandchild; c.Parent != nil; c = c.Parent {
		depth++
	}
	require.Equal(t, grandchild.Depth, depth)
}

// Invariant 2: Framing() iff FramedPID is non-nil.
func TestInvariant_FramingMatchesFramedPID(t *testing.T) {
	c := New("user@host", "", nil)
	require.False(t, c.Framing())
	pid := 99
	c.FramedPID = &pid
	require.True(t, c.Framing())
	c.FramedPID = nil
	require.False(t, c.Framing())
}

// Invariant 1: at most one context is willExecute/executing, and that
// context is never simultaneously present in queue.
func TestInvariant_AtMostOneInFlightContext(t *testing.T) {
	d := &conductortest.FakeDelegate{}
	c := New("user@host", "", nil)
	c.SetDelegate(d)

	c.send(Command{Kind: CmdGetShell}, handleGetShell())
	c.send(Command{Kind: CmdShell, CmdLine: "echo hi"}, fireAndForget())

	require.Contains(t, []StateKind{StateWillExecute, StateExecuting}, c.state.Kind)
	require.Len(t, c.queue, 1)
	require.NotEqual(t, c.state.Ctx, c.queue[0])
}

// Invariant 4: background job removal happens exactly on terminate(pid).
func TestInvariant_BackgroundJobRemovedOnlyOnTerminate(t *testing.T) {
	d := &conductortest.FakeDelegate{}
	c := New("user@host", "", nil)
	c.SetDelegate(d)
	pid := 10
	c.FramedPID = &pid

	c.RunRemoteCommand("sleep 1", func([]byte, int) {})
	c.HandleLine(0, "777")
	c.HandleCommandEnd(0, "1", EndFramer, 0)
	require.Contains(t, c.backgroundJobs, 777)

	c.HandleSideChannelOutput(0, "still running", 777, 1)
	require.Contains(t, c.backgroundJobs, 777, "side-channel output must not remove the job")

	c.HandleTerminate(0, 777, 0)
	require.NotContains(t, c.backgroundJobs, 777)
}

// §8 boundary: runRemoteCommand with framedPID == nil returns synchronously.
func TestBoundary_RunRemoteCommandWithoutFramerPID(t *testing.T) {
	c := New("user@host", "", nil)
	var gotData []byte
	gotStatus := 1
	called := false
	c.RunRemoteCommand("uptime", func(data []byte, status int) {
		called = true
		gotData, gotStatus = data, status
	})
	require.True(t, called)
	require.Nil(t, gotData)
	require.Equal(t, -1, gotStatus)
	require.Empty(t, c.queue)
}

// §8 round-trip law: encode(decode(j)) == j modulo state/queue/backgroundJobs.
func TestRoundTrip_SerializationIsStable(t *testing.T) {
	root := New("root@host", "boolargs", nil)
	root.VarsToSend = map[string]string{"FOO": "bar"}
	child := New("child@host", "", root)
	child.InitialDirectory = "/work"
	pid := 42
	child.FramedPID = &pid

	j, err := child.JSONValue()
	require.NoError(t, err)

	decoded, err := DecodeConductor(j)
	require.NoError(t, err)
	require.True(t, decoded.Restored())

	j2, err := decoded.JSONValue()
	require.NoError(t, err)
	require.JSONEq(t, j, j2)

	require.Equal(t, child.Depth, decoded.Depth)
	require.Equal(t, child.InitialDirectory, decoded.InitialDirectory)
	require.NotNil(t, decoded.FramedPID)
	require.Equal(t, 42, *decoded.FramedPID)
	require.NotNil(t, decoded.Parent)
	require.Equal(t, root.SSHArgs, decoded.Parent.SSHArgs)
	require.Equal(t, StateGround, decoded.State().Kind)
	require.Empty(t, decoded.queue)
	require.Empty(t, decoded.backgroundJobs)
}

// §8 idempotence law: NormalizeDestination is idempotent.
func TestIdempotence_PathNormalization(t *testing.T) {
	cases := []struct{ dest, home string }{
		{"~", "u"},
		{"~/", "u"},
		{"relative/path", "u"},
		{"/absolute/path/", "u"},
		{"/", "u"},
	}
	for _, tc := range cases {
		once := NormalizeDestination(tc.dest, tc.home)
		twice := NormalizeDestination(once, tc.home)
		require.Equal(t, once, twice, "normalize(%q) not idempotent", tc.dest)
	}
}

// §8 chunking law: joining chunks (with continuation markers stripped)
// reproduces the original string. Every non-final chunk gets a synthetic
// trailing newline for wire transmission (plus a literal "\" before it for
// framer commands); the final chunk is the untouched tail of the record,
// which already carries the record's own single trailing newline.
func TestIdempotence_ChunkingRoundTrips(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "0123456789"
	}
	record := long + "\n"

	for _, framer := range []bool{true, false} {
		chunks := chunkRecord(record, framer)
		require.Greater(t, len(chunks), 1)

		var rebuilt string
		for i, piece := range chunks {
			if i == len(chunks)-1 {
				rebuilt += piece // final chunk: untouched tail, keep as-is
				continue
			}
			piece = piece[:len(piece)-1] // strip the synthetic trailing "\n"
			if framer {
				piece = piece[:len(piece)-1] // strip the "\" continuation marker
			}
			rebuilt += piece
		}
		require.Equal(t, record, rebuilt)
	}
}

// §8 boundary: a depth-mismatched event is forwarded to the parent while
// the child is framing.
func TestBoundary_DepthMismatchForwardsToParent(t *testing.T) {
	parent := New("parent@host", "", nil)
	child := New("child@host", "", parent)
	childPid := 5
	child.FramedPID = &childPid

	d := &conductortest.FakeDelegate{}
	parent.SetDelegate(d)
	parentPid := 1
	parent.FramedPID = &parentPid
	registerGlobal(parentPid, parent)

	// Event is addressed to depth 0 (parent's depth) but delivered through
	// child; child is framing, so routeDepth must climb to parent before
	// handling it locally.
	child.HandleTerminate(0, parentPid, 7)

	_, stillRegistered := LookupByFramedPID(parentPid)
	require.False(t, stillRegistered, "parent's own framer pid terminating deregisters it globally")
	require.Equal(t, "quit\n", d.Writes[len(d.Writes)-1], "terminate of the framer pid queues a quit")
}

// §8 boundary: sendKeys on a non-framing conductor writes raw bytes; on a
// framing conductor it emits framerSend.
func TestBoundary_SendKeysRouting(t *testing.T) {
	d := &conductortest.FakeDelegate{}
	c := New("user@host", "", nil)
	c.SetDelegate(d)

	c.SendKeys([]byte("hello"))
	require.Equal(t, []string{"hello"}, d.Writes)

	pid := 99
	c.FramedPID = &pid
	c.SendKeys([]byte("world"))
	require.Equal(t, "send\n99\n"+b64([]byte("world"))+"\n", d.Writes[len(d.Writes)-1])
}
