package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PartFile is the temporary sibling a transport streams into before the
// payload is renamed onto its final path. Exactly one of Commit or Discard
// takes effect; calling Discard after Commit is a no-op, so transports can
// always `defer part.Discard()`.
type PartFile struct {
	*os.File
	target    string
	committed bool
	closed    bool
}

// CreatePartFile creates "<target>.<uuid>.part" next to target. The random
// component lets a crashed run leave its partial file behind without
// colliding with the next attempt.
func CreatePartFile(target string) (*PartFile, error) {
	if err := EnsureFileDir(target); err != nil {
		return nil, fmt.Errorf("could not create directory for %s: %w", target, err)
	}
	name := fmt.Sprintf("%s.%s%s", target, uuid.NewString()[:8], PartSuffix)
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FileModeDefault)
	if err != nil {
		return nil, fmt.Errorf("could not create temp file: %w", err)
	}
	return &PartFile{File: f, target: target}, nil
}

// Target returns the final path of the payload.
func (p *PartFile) Target() string { return p.target }

// Seal syncs and closes the part file so its contents can be checked
// before Commit. It is a no-op once the file is closed.
func (p *PartFile) Seal() error {
	if p.closed {
		return nil
	}
	if err := p.File.Sync(); err != nil {
		return fmt.Errorf("could not sync file: %w", err)
	}
	if err := p.close(); err != nil {
		return fmt.Errorf("could not close file: %w", err)
	}
	return nil
}

// Commit seals the part file and renames it onto the target.
func (p *PartFile) Commit() error {
	if p.committed {
		return nil
	}
	if err := p.Seal(); err != nil {
		return err
	}
	if err := Move(p.File.Name(), p.target); err != nil {
		return fmt.Errorf("could not finalize file: %w", err)
	}
	p.committed = true
	return nil
}

// Discard closes and removes the part file unless it was committed.
func (p *PartFile) Discard() {
	if p.committed {
		return
	}
	_ = p.close()
	_ = os.Remove(p.File.Name())
}

func (p *PartFile) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.File.Close()
}

// IsPartFile reports whether name looks like a leftover transfer file.
func IsPartFile(name string) bool {
	return strings.HasSuffix(filepath.Base(name), PartSuffix)
}
