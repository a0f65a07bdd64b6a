package hostprofile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hopline/conductor/internal/conductor"
)

func TestLoadFromYAML_VarsWildcard(t *testing.T) {
	p, err := LoadFromYAML([]byte("vars: \"*\"\n"))
	require.NoError(t, err)
	require.True(t, p.Vars.All)
}

func TestLoadFromYAML_VarsMap(t *testing.T) {
	p, err := LoadFromYAML([]byte("vars:\n  FOO: bar\n  BAZ: qux\n"))
	require.NoError(t, err)
	require.False(t, p.Vars.All)
	require.Equal(t, map[string]string{"FOO": "bar", "BAZ": "qux"}, p.Vars.Values)
}

func TestLoadFromYAML_VarsInvalidScalar(t *testing.T) {
	_, err := LoadFromYAML([]byte("vars: yes\n"))
	require.Error(t, err)
}

func TestLoadFromYAML_PayloadsBareList(t *testing.T) {
	p, err := LoadFromYAML([]byte("payloads:\n  - /etc/hosts\n  - /tmp/x\n"))
	require.NoError(t, err)
	require.Equal(t, PayloadsField{{Path: "/etc/hosts"}, {Path: "/tmp/x"}}, p.Payloads)
}

func TestLoadFromYAML_PayloadsObjectList(t *testing.T) {
	p, err := LoadFromYAML([]byte(`
payloads:
  - path: /etc/hosts
    destination: /remote/etc
  - /tmp/bare
`))
	require.NoError(t, err)
	require.Equal(t, PayloadsField{
		{Path: "/etc/hosts", Destination: "/remote/etc"},
		{Path: "/tmp/bare"},
	}, p.Payloads)
}

func TestLoad_MissingFileIsEmptyProfile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	p, err := Load("no-such-host")
	require.NoError(t, err)
	require.Equal(t, &Profile{}, p)
}

func TestApplyTo_DoesNotOverrideCallerSuppliedFields(t *testing.T) {
	p := &Profile{InitialDirectory: "/profile/dir"}
	c := conductor.New("user@host", "", nil)
	c.InitialDirectory = "/caller/dir"

	p.ApplyTo(c, nil)
	require.Equal(t, "/caller/dir", c.InitialDirectory)
}

func TestApplyTo_FillsZeroValuedFields(t *testing.T) {
	inject := true
	p := &Profile{
		InitialDirectory:             "/profile/dir",
		ShouldInjectShellIntegration: &inject,
	}
	c := conductor.New("user@host", "", nil)

	p.ApplyTo(c, nil)
	require.Equal(t, "/profile/dir", c.InitialDirectory)
	require.True(t, c.ShouldInjectShellIntegration)
}

func TestApplyTo_VarsWildcardCopiesLocalEnv(t *testing.T) {
	p := &Profile{Vars: VarsField{All: true}}
	c := conductor.New("user@host", "", nil)

	p.ApplyTo(c, map[string]string{"PATH": "/bin", "HOME": "/home/u"})
	require.Equal(t, map[string]string{"PATH": "/bin", "HOME": "/home/u"}, c.VarsToSend)
}

func TestApplyTo_PayloadsAreQueuedOnConductor(t *testing.T) {
	// ApplyTo does not populate c.Payloads: it hands the profile's entries
	// to the conductor's unexported payload builder via c.Add, and only that
	// builder's Build (payload.go) fills c.Payloads. The builder is not
	// visible from this package, so this only checks that ApplyTo accepts
	// the entries without panicking when c.Payloads is still empty.
	p := &Profile{Payloads: PayloadsField{{Path: "/etc/hosts", Destination: "/remote"}}}
	c := conductor.New("user@host", "", nil)

	require.NotPanics(t, func() { p.ApplyTo(c, nil) })
}

func TestApplyTo_NilProfileIsNoop(t *testing.T) {
	var p *Profile
	c := conductor.New("user@host", "", nil)
	require.NotPanics(t, func() { p.ApplyTo(c, nil) })
}
