// Package verify checks fetched files against manifest expectations.
package verify

import (
	"os"

	"github.com/glorpus-work/bagfetch/pkg/digest"
	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/glorpus-work/bagfetch/pkg/fsutil"
)

// Expectation is what the manifest promises about a file.
type Expectation struct {
	// Size is the expected length in bytes, or -1.
	Size int64
	// Digest is the expected digest; the zero value skips the check.
	Digest digest.Digest
}

// None returns an expectation that any regular file satisfies.
func None() Expectation { return Expectation{Size: -1} }

// Observation is what the transport saw while writing the file.
type Observation struct {
	// Digest was computed while streaming, if requested.
	Digest digest.Digest
	// DeclaredSize is the length the server announced, or -1.
	DeclaredSize int64
}

// Verifier checks files. The zero value is ready to use.
type Verifier struct {
	// KeepOnFailure leaves rejected files in place.
	KeepOnFailure bool
}

// New returns a verifier that deletes rejected files.
func New() *Verifier { return &Verifier{} }

// Verify checks path against exp and deletes it on mismatch.
func (v *Verifier) Verify(path string, exp Expectation) error {
	return v.VerifyObserved(path, exp, Observation{DeclaredSize: -1})
}

// VerifyObserved is Verify with transfer details: a digest computed while
// streaming is reused when its algorithm matches, and a size mismatch
// records whether the server-declared length matched what was written.
func (v *Verifier) VerifyObserved(path string, exp Expectation, obs Observation) error {
	err := Check(path, exp, obs)
	if err != nil && !v.KeepOnFailure {
		if fe, ok := errors.AsFetchError(err); ok && fe.Kind == errors.KindIntegrity {
			_ = os.Remove(path)
		}
	}
	return err
}

// Check runs the size check, then the digest check, without touching the
// file.
func Check(path string, exp Expectation, obs Observation) error {
	size, err := fsutil.FileSize(path)
	if err != nil {
		return errors.Permanent(0, errors.Wrap(err, "could not stat fetched file"))
	}

	if exp.Size >= 0 && size != exp.Size {
		lengthMatched := obs.DeclaredSize >= 0 && obs.DeclaredSize == size
		return errors.Integrity(errors.ReasonSize, lengthMatched,
			errors.Wrapf(errors.ErrFileSizeMismatch, "%s: expected %d bytes, got %d", path, exp.Size, size))
	}

	if exp.Digest.IsZero() {
		return nil
	}
	got := obs.Digest
	if got.IsZero() || got.Algorithm != exp.Digest.Algorithm {
		if got, err = digest.File(exp.Digest.Algorithm, path); err != nil {
			return errors.Permanent(0, err)
		}
	}
	if !got.Equal(exp.Digest) {
		return errors.Integrity(errors.ReasonDigest, false,
			errors.Wrapf(errors.ErrFileHashMismatch, "%s: expected %s, got %s", path, exp.Digest, got))
	}
	return nil
}
