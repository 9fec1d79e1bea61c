// Package archive opens bags stored as directories or archives and writes
// bag archives.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mholt/archives"

	"github.com/glorpus-work/bagfetch/pkg/fsutil"
)

// Manager handles bag archive operations.
type Manager struct{}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// Open returns a read-only view of the bag at path, which may be a
// directory or any archive format mholt/archives identifies. The returned
// close function must be called when done.
func (am *Manager) Open(ctx context.Context, path string) (fs.FS, func() error, error) {
	fsys, err := archives.FileSystem(ctx, path, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open bag %s: %w", path, err)
	}
	closeFn := func() error { return nil }
	if closer, ok := fsys.(io.Closer); ok {
		closeFn = closer.Close
	}
	return fsys, closeFn, nil
}

// IsArchive reports whether path is a file rather than a bag directory.
func IsArchive(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

// ExtractAll extracts every file of the archive into destDir. Entries whose
// names are not local paths are rejected.
func (am *Manager) ExtractAll(ctx context.Context, archivePath, destDir string) error {
	fsys, closeFn, err := am.Open(ctx, archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	if err := fsutil.EnsureDir(destDir); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return am.extractEntry(fsys, path, destDir, d)
	})
}

// Create writes sourceDir as a gzip-compressed tarball.
func (am *Manager) Create(ctx context.Context, sourceDir, archivePath string) error {
	absolutePath, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for source directory: %w", err)
	}

	archiveFiles, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		absolutePath + string(os.PathSeparator): "",
	})
	if err != nil {
		return fmt.Errorf("failed to read files from disk: %w", err)
	}

	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", archivePath, err)
	}
	defer func() {
		_ = file.Sync()
		_ = file.Close()
	}()

	format := archives.CompressedArchive{
		Compression: archives.Gz{},
		Archival:    archives.Tar{},
	}
	if err := format.Archive(ctx, file, archiveFiles); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return nil
}

func (am *Manager) extractEntry(fsys fs.FS, path, destDir string, d fs.DirEntry) error {
	if path == "." {
		return nil
	}
	if !filepath.IsLocal(filepath.FromSlash(path)) {
		return fmt.Errorf("archive entry %q escapes the destination", path)
	}
	targetPath := filepath.Join(destDir, filepath.FromSlash(path))

	if d.IsDir() {
		return fsutil.EnsureDir(targetPath)
	}
	if !d.Type().IsRegular() {
		// Bags only carry regular files; links and devices are skipped.
		return nil
	}
	return am.writeRegularFile(fsys, path, targetPath)
}

func (am *Manager) writeRegularFile(fsys fs.FS, path, targetPath string) error {
	srcFile, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer func() { _ = srcFile.Close() }()

	part, err := fsutil.CreatePartFile(targetPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", targetPath, err)
	}
	defer part.Discard()

	if _, err := io.Copy(part, srcFile); err != nil {
		return fmt.Errorf("failed to copy file %s: %w", path, err)
	}
	return part.Commit()
}
