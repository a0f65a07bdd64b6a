package conductor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommand_SetEnvQuoting(t *testing.T) {
	cmd := Command{Kind: CmdSetEnv, EnvKey: "GREETING", EnvValue: `it's a $HOME \`+"`"+`test`+"`"+``}
	wire := cmd.stringValue()
	require.True(t, strings.HasPrefix(wire, "setenv\nGREETING="))
	// The escaped value must neutralize the shell metacharacters so the
	// remote shell doesn't expand or re-split it: the input's bare " $HOME"
	// must not survive unescaped.
	require.NotContains(t, wire[len("setenv\nGREETING="):], " $HOME")
	require.Contains(t, wire, `\$HOME`)
}

func TestCommand_FramerDeregisterSpelling(t *testing.T) {
	// §9 Open Question 3: the misspelling is intentional wire compatibility.
	cmd := Command{Kind: CmdFramerDeregister, Pid: 42}
	require.Equal(t, "dereigster\n42", cmd.stringValue())
}

func TestFileSubcommand_CreateChunksContentAt80Chars(t *testing.T) {
	content := make([]byte, 200)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	sub := FileSubcommand{Kind: FileCreate, Path: []byte("/tmp/f"), Content: content}
	wire := sub.stringValue()
	lines := strings.Split(wire, "\n")
	require.Equal(t, "create", lines[0])
	// lines[1] is the base64 path; remaining lines are ≤80-char continuation
	// chunks of the base64-encoded content.
	for _, l := range lines[2:] {
		require.LessOrEqual(t, len(l), 80)
	}
	joined := strings.Join(lines[2:], "")
	require.Equal(t, b64(content), joined)
}

func TestDispatcher_ChunkingAt128Bytes(t *testing.T) {
	cmdLine := strings.Repeat("x", 300)
	cmd := Command{Kind: CmdRun, CmdLine: cmdLine}
	record := cmd.stringValue() + "\n"
	chunks := chunkRecord(record, false)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), chunkLimit+1) // +1 for the appended "\n"
	}
	require.Greater(t, len(chunks), 1)
}

func TestFramerCommands_AreTaggedIsFramer(t *testing.T) {
	require.True(t, CmdFramerRun.IsFramer())
	require.True(t, CmdFramerFile.IsFramer())
	require.False(t, CmdRun.IsFramer())
	require.False(t, CmdQuit.IsFramer())
}
