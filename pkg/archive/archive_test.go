package archive

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestManager_CreateAndExtractAll(t *testing.T) {
	tempDir := t.TempDir()
	files := map[string]string{
		"bag/bagit.txt":           "BagIt-Version: 1.0\n",
		"bag/fetch.txt":           "https://ex.example/a 1 data/a\n",
		"bag/data/local/b.txt":    "local payload",
		"bag/manifest-md5.txt":    "",
		"bag/tagmanifest-md5.txt": "",
	}
	source := filepath.Join(tempDir, "source")
	writeTree(t, source, files)

	am := NewManager()
	archivePath := filepath.Join(tempDir, "bag.tar.gz")
	ctx := context.Background()
	require.NoError(t, am.Create(ctx, source, archivePath))
	require.FileExists(t, archivePath)

	isArchive, err := IsArchive(archivePath)
	require.NoError(t, err)
	assert.True(t, isArchive)

	extractDir := filepath.Join(tempDir, "extracted")
	require.NoError(t, am.ExtractAll(ctx, archivePath, extractDir))

	for path, want := range files {
		got, err := os.ReadFile(filepath.Join(extractDir, filepath.FromSlash(path)))
		require.NoError(t, err, path)
		assert.Equal(t, want, string(got), path)
	}
}

func TestManager_OpenDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"fetch.txt": "x"})

	isArchive, err := IsArchive(dir)
	require.NoError(t, err)
	assert.False(t, isArchive)

	fsys, closeFn, err := NewManager().Open(context.Background(), dir)
	require.NoError(t, err)
	defer func() { _ = closeFn() }()

	data, err := fs.ReadFile(fsys, "fetch.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestManager_OpenMissing(t *testing.T) {
	_, _, err := NewManager().Open(context.Background(), filepath.Join(t.TempDir(), "nope.zip"))
	assert.Error(t, err)
}
