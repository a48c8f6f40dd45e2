package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o600))
	}
}

func TestLoadDirectoryImageFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "frame-10.jpg", "frame-2.png", "b.webp", "a.JPEG", "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	files, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f.Path))
	}
	assert.Equal(t, []string{"frame-2.png", "frame-10.jpg", "a.JPEG", "b.webp"}, names)
	assert.Equal(t, 2, files[0].Frame)
	assert.Equal(t, -1, files[2].Frame)
	assert.Equal(t, []byte("frame-2.png"), files[0].Data)
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "one.jpg", "two.png")
	single := filepath.Join(t.TempDir(), "three.webp")
	require.NoError(t, os.WriteFile(single, []byte("x"), 0o600))

	files, err := ExpandPaths([]string{single, dir})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, single, files[0].Path)

	_, err = ExpandPaths([]string{filepath.Join(dir, "missing.jpg")})
	assert.Error(t, err)

	writeFiles(t, dir, "readme.md")
	_, err = ExpandPaths([]string{filepath.Join(dir, "readme.md")})
	assert.Error(t, err)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("x/y.PNG"))
	assert.True(t, IsImage("y.webp"))
	assert.False(t, IsImage("y.bmp"))
	assert.False(t, IsImage("y"))
}
