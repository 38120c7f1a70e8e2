package modelstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mediumContract exercises the behavior every Medium must provide.
func mediumContract(t *testing.T, m Medium) {
	t.Helper()

	_, ok := m.GetItem("absent")
	assert.False(t, ok)

	require.NoError(t, m.SetItem("alpha", "one"))
	require.NoError(t, m.SetItem("beta", "two"))

	v, ok := m.GetItem("alpha")
	require.True(t, ok)
	assert.Equal(t, "one", v)

	// Overwrite replaces the value.
	require.NoError(t, m.SetItem("alpha", "uno"))
	v, _ = m.GetItem("alpha")
	assert.Equal(t, "uno", v)

	keys, err := m.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, keys)

	require.NoError(t, m.RemoveItem("alpha"))
	_, ok = m.GetItem("alpha")
	assert.False(t, ok)

	// Removing an absent key is a no-op.
	require.NoError(t, m.RemoveItem("alpha"))

	keys, err = m.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, keys)
}

func TestMemoryMedium(t *testing.T) {
	mediumContract(t, NewMemoryMedium())
}

func TestFileMedium(t *testing.T) {
	m, err := NewFileMedium(t.TempDir())
	require.NoError(t, err)
	mediumContract(t, m)
}

func TestFileMediumKeysRoundTripThroughFileNames(t *testing.T) {
	m, err := NewFileMedium(t.TempDir())
	require.NoError(t, err)

	// Storage keys contain characters that are awkward in file names.
	key := "product_3d_model_7_Straßen/Modell (v2).glb"
	require.NoError(t, m.SetItem(key, "payload"))

	keys, err := m.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{key}, keys)

	v, ok := m.GetItem(key)
	require.True(t, ok)
	assert.Equal(t, "payload", v)
}

func TestFileMediumIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := NewFileMedium(dir)
	require.NoError(t, err)

	require.NoError(t, m.SetItem("mine", "value"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in valid==.kv"), []byte("x"), 0o644))

	keys, err := m.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, keys)
}

func TestFileMediumPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	m1, err := NewFileMedium(dir)
	require.NoError(t, err)
	require.NoError(t, m1.SetItem("durable", "value"))

	m2, err := NewFileMedium(dir)
	require.NoError(t, err)
	v, ok := m2.GetItem("durable")
	require.True(t, ok)
	assert.Equal(t, "value", v)
}
