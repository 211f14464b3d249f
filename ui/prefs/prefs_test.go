package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mri-viewer")
	p := LoadFrom(dir)
	assert.Equal(t, "", p.String(KeyLastDir))
	assert.Equal(t, 0.3, p.FloatWithFallback(KeySplitOffset, 0.3))

	p.SetString(KeyLastDir, "/scans")
	p.SetFloat(KeySplitOffset, 0.7)
	require.NoError(t, p.SaveIfChanged())

	q := LoadFrom(dir)
	assert.Equal(t, "/scans", q.String(KeyLastDir))
	assert.Equal(t, 0.7, q.FloatWithFallback(KeySplitOffset, 0.3))
}

func TestSaveIfChangedSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	p := LoadFrom(dir)
	require.NoError(t, p.SaveIfChanged())
	_, err := os.Stat(p.Path())
	assert.ErrorIs(t, err, os.ErrNotExist, "nothing to write")

	p.SetString(KeyLastImage, "a.png")
	require.NoError(t, p.SaveIfChanged())
	require.NoError(t, os.Remove(p.Path()))

	p.SetString(KeyLastImage, "a.png")
	require.NoError(t, p.SaveIfChanged())
	_, err = os.Stat(p.Path())
	assert.ErrorIs(t, err, os.ErrNotExist, "same value does not mark dirty")
}

func TestCorruptFileIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, prefsFile), []byte("{not json"), 0o644))
	p := LoadFrom(dir)
	assert.Equal(t, "", p.String(KeyLastDir))
}

func TestFailedSaveIsRetried(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// The prefs directory cannot be created while a file sits at its parent.
	p := LoadFrom(filepath.Join(blocker, "mri-viewer"))
	p.SetString(KeyLastImage, "a.png")
	require.Error(t, p.SaveIfChanged())

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, p.SaveIfChanged())
	assert.Equal(t, "a.png", LoadFrom(filepath.Join(blocker, "mri-viewer")).String(KeyLastImage))
}
