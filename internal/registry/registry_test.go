package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hopline/conductor/internal/conductor"
)

func TestAdd_RejectsNonRootConductor(t *testing.T) {
	r, err := New(t.TempDir())
	require.NoError(t, err)

	root := conductor.New("user@host", "", nil)
	child := conductor.New("user@host", "", root)
	require.Error(t, r.Add(child))
}

func TestAddAndPersist_WritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir)
	require.NoError(t, err)

	c := conductor.New("user@host", "", nil)
	require.NoError(t, r.Add(c))

	path := filepath.Join(dir, c.ClientUniqueID+".json")
	_, err = os.Stat(path)
	require.NoError(t, err)

	got, ok := r.Get(c.ClientUniqueID)
	require.True(t, ok)
	require.Same(t, c, got)
}

func TestRemove_DeletesFileAndForgetsConductor(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir)
	require.NoError(t, err)

	c := conductor.New("user@host", "", nil)
	require.NoError(t, r.Add(c))
	require.NoError(t, r.Remove(c.ClientUniqueID))

	_, ok := r.Get(c.ClientUniqueID)
	require.False(t, ok)
	_, err = os.Stat(filepath.Join(dir, c.ClientUniqueID+".json"))
	require.True(t, os.IsNotExist(err))
}

func TestRemove_MissingFileIsNotAnError(t *testing.T) {
	r, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, r.Remove("never-added"))
}

func TestList_ReturnsSortedClientUniqueIDs(t *testing.T) {
	r, err := New(t.TempDir())
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		c := conductor.New("user@host", "", nil)
		require.NoError(t, r.Add(c))
		ids = append(ids, c.ClientUniqueID)
	}

	got := r.List()
	require.Len(t, got, 3)
	require.ElementsMatch(t, ids, got)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1], got[i])
	}
}

func TestLoadAll_RecoversTreeFromDisk(t *testing.T) {
	dir := t.TempDir()
	writer, err := New(dir)
	require.NoError(t, err)

	root := conductor.New("user@host", "", nil)
	root.InitialDirectory = "/work"
	pid := 42
	root.FramedPID = &pid
	require.NoError(t, writer.Add(root))

	reader, err := New(dir)
	require.NoError(t, err)
	recovered, errs := reader.LoadAll()
	require.Empty(t, errs)
	require.Len(t, recovered, 1)

	got := recovered[0]
	require.Equal(t, root.ClientUniqueID, got.ClientUniqueID)
	require.Equal(t, "/work", got.InitialDirectory)
	require.NotNil(t, got.FramedPID)
	require.Equal(t, 42, *got.FramedPID)
	require.Equal(t, conductor.StateRecovery, got.State().Kind)

	fromRegistry, ok := reader.Get(root.ClientUniqueID)
	require.True(t, ok)
	require.Same(t, got, fromRegistry)
}

func TestLoadAll_SkipsCorruptFilesButCollectsTheError(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir)
	require.NoError(t, err)

	good := conductor.New("user@host", "", nil)
	require.NoError(t, r.Add(good))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	recovered, errs := r.LoadAll()
	require.Len(t, recovered, 1)
	require.Len(t, errs, 1)
}

func TestPersistAll_WritesEverySnapshot(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir)
	require.NoError(t, err)

	c1 := conductor.New("a@host", "", nil)
	c2 := conductor.New("b@host", "", nil)
	require.NoError(t, r.Add(c1))
	require.NoError(t, r.Add(c2))

	c1.InitialDirectory = "/changed"
	require.NoError(t, r.PersistAll())

	data, err := os.ReadFile(filepath.Join(dir, c1.ClientUniqueID+".json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "/changed")
}
