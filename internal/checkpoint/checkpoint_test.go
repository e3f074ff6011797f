package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAbsentReturnsEmpty(t *testing.T) {
	store := NewStore(t.TempDir())

	url, err := store.Load("HG")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state"))

	require.NoError(t, store.Save("HG", "https://www.hlj.com/p/ban1234"))

	url, err := store.Load("HG")
	require.NoError(t, err)
	assert.Equal(t, "https://www.hlj.com/p/ban1234", url)
}

func TestSaveOverwrites(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save("MG", "https://www.hlj.com/p/old"))
	require.NoError(t, store.Save("MG", "https://www.hlj.com/p/new"))

	url, err := store.Load("MG")
	require.NoError(t, err)
	assert.Equal(t, "https://www.hlj.com/p/new", url)
}

func TestLoadTrimsContent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "RG.txt"), []byte("  https://www.hlj.com/p/ban5678\n\n"), 0o644))

	url, err := store.Load("RG")
	require.NoError(t, err)
	assert.Equal(t, "https://www.hlj.com/p/ban5678", url)
}

func TestGroupsAreIsolated(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save("HG", "https://www.hlj.com/p/hg"))

	url, err := store.Load("PG")
	require.NoError(t, err)
	assert.Empty(t, url)
}
