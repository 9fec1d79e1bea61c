package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureFileDir(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name: "creates parent directory for file",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "parent", "file.txt")
			},
		},
		{
			name: "creates nested parent directories for file",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nested", "parent", "file.txt")
			},
		},
		{
			name: "succeeds when parent directory exists",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "file.txt")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filePath := tt.setup(t)
			dir := filepath.Dir(filePath)

			require.NoError(t, EnsureFileDir(filePath))
			assert.DirExists(t, dir)

			if runtime.GOOS != "windows" {
				info, err := os.Stat(dir)
				require.NoError(t, err)
				assert.True(t, info.IsDir())
			}
		})
	}
}

func TestEnsureDir_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}

	readonlyDir := filepath.Join(t.TempDir(), "readonly")
	require.NoError(t, os.Mkdir(readonlyDir, 0o555))

	err := EnsureDir(filepath.Join(readonlyDir, "shouldfail"))
	assert.Error(t, err)
}
