package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root string, rel string, size int) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestMedia(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "clip_part1.mp4", 10)
	writeFile(t, root, "clip_part1.gif", 5)
	writeFile(t, root, "notes.txt", 3)
	writeFile(t, root, "season/episode.mp4", 20)

	files, err := Media(Options{Root: root})
	require.NoError(t, err)
	require.Len(t, files, 3)

	// Stable order: root-level before subdirectory, names ascending.
	require.Equal(t, "clip_part1.gif", files[0].Base)
	require.Equal(t, "clip_part1.mp4", files[1].Base)
	require.Equal(t, "episode.mp4", files[2].Base)

	require.Equal(t, ".", files[0].RelDir)
	require.Equal(t, "season", files[2].RelDir)
	require.Equal(t, int64(10), files[1].Size)
	require.Equal(t, ".mp4", files[1].Ext)
}

func TestMediaOnlyRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.mp4", 1)
	writeFile(t, root, "sub/b.mp4", 1)

	files, err := Media(Options{Root: root, OnlyRoot: true})
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "a.mp4", files[0].Base)
}

func TestMediaTypeSelection(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.mp4", 1)
	writeFile(t, root, "b.gif", 1)

	files, err := Media(Options{Root: root, Types: []string{TypeVideos}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "a.mp4", files[0].Base)

	files, err = Media(Options{Root: root, Types: []string{TypeGifs}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "b.gif", files[0].Base)

	files, err = Media(Options{Root: root, Types: []string{TypeAll}})
	require.NoError(t, err)
	require.Len(t, files, 2)
}
