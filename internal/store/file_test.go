package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	fs, err := NewFileStore(path, nil)
	require.NoError(t, err)

	_, ok := fs.Get("missing")
	assert.False(t, ok)

	require.NoError(t, fs.Set("key", "value"))
	value, ok := fs.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", value)

	require.NoError(t, fs.Remove("key"))
	_, ok = fs.Get("key")
	assert.False(t, ok)
}

func TestFileStorePersistsAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	fs, err := NewFileStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, fs.Set("license", `{"status":"pro"}`))

	reopened, err := NewFileStore(path, nil)
	require.NoError(t, err)
	value, ok := reopened.Get("license")
	require.True(t, ok)
	assert.Equal(t, `{"status":"pro"}`, value)
}

func TestFileStoreCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0644))

	fs, err := NewFileStore(path, nil)
	require.NoError(t, err, "corrupt state must not be fatal")

	_, ok := fs.Get("anything")
	assert.False(t, ok)

	// The store keeps working after the reset.
	require.NoError(t, fs.Set("k", "v"))
	value, ok := fs.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", value)
}

func TestMemoryStore(t *testing.T) {
	ms := NewMemoryStore()

	require.NoError(t, ms.Set("a", "1"))
	value, ok := ms.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", value)

	require.NoError(t, ms.Remove("a"))
	_, ok = ms.Get("a")
	assert.False(t, ok)

	assert.NoError(t, ms.Remove("never-existed"))
}
