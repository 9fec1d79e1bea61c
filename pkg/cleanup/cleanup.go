// Package cleanup finds and removes the part files an interrupted fetch
// leaves under a destination root.
package cleanup

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/glorpus-work/bagfetch/pkg/fsutil"
)

// Options specifies what to clean.
type Options struct {
	// OlderThan skips part files modified more recently, so a fetch still
	// running against the same root is left alone.
	OlderThan time.Duration
	DryRun    bool
}

// Result lists what was (or, for a dry run, would be) removed.
type Result struct {
	Files []string
	Freed int64
}

// Info describes the part files under a root.
type Info struct {
	Directory string
	Files     int
	Size      int64
}

// Manager sweeps one destination root.
type Manager struct {
	directory string
	now       func() time.Time
}

// NewManager creates a manager for directory.
func NewManager(directory string) *Manager {
	return &Manager{directory: directory, now: time.Now}
}

// GetDirectory returns the destination root.
func (m *Manager) GetDirectory() string {
	return m.directory
}

// GetInfo counts the part files under the root.
func (m *Manager) GetInfo() (*Info, error) {
	info := &Info{Directory: m.directory}
	err := m.walk(func(_ string, fi fs.FileInfo) error {
		info.Files++
		info.Size += fi.Size()
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s", m.directory)
	}
	return info, nil
}

// Clean removes part files according to options.
func (m *Manager) Clean(options Options) (*Result, error) {
	result := &Result{}
	cutoff := m.now().Add(-options.OlderThan)

	err := m.walk(func(path string, fi fs.FileInfo) error {
		if options.OlderThan > 0 && fi.ModTime().After(cutoff) {
			return nil
		}
		if !options.DryRun {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "failed to remove %s", path)
			}
		}
		result.Files = append(result.Files, path)
		result.Freed += fi.Size()
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to clean %s", m.directory)
	}
	return result, nil
}

// walk calls fn for every regular part file under the root. A missing root
// has no part files.
func (m *Manager) walk(fn func(path string, fi fs.FileInfo) error) error {
	if m.directory == "" {
		return errors.ErrInvalidPath
	}
	if _, err := os.Stat(m.directory); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(m.directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !fsutil.IsPartFile(path) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return fn(path, fi)
	})
}
