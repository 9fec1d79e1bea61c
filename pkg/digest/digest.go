// Package digest parses "<alg>:<hex>" checksums and constructs the matching
// hash functions.
package digest

import (
	"crypto/md5"  //nolint:gosec // bag manifests still carry md5
	"crypto/sha1" //nolint:gosec // bag manifests still carry sha1
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/zeebo/blake3"
)

// Algorithm names a supported digest function.
type Algorithm string

// Supported algorithms.
const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	BLAKE3 Algorithm = "blake3"
)

// Algorithms lists every supported algorithm, strongest first.
var Algorithms = []Algorithm{SHA512, SHA256, BLAKE3, SHA1, MD5}

// ParseAlgorithm normalizes an algorithm tag such as "SHA-256" or "sha256".
func ParseAlgorithm(s string) (Algorithm, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	alg := Algorithm(norm)
	switch alg {
	case MD5, SHA1, SHA256, SHA512, BLAKE3:
		return alg, nil
	}
	return "", errors.ErrUnknownAlgorithmWithName(s)
}

// New returns a fresh hash for alg.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	}
	return nil, errors.ErrUnknownAlgorithmWithName(string(a))
}

// Digest is an expected or computed checksum.
type Digest struct {
	Algorithm Algorithm
	Hex       string
}

// Parse reads "<alg>:<hex>".
func Parse(s string) (Digest, error) {
	alg, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || value == "" {
		return Digest{}, fmt.Errorf("digest %q is not of the form <alg>:<hex>", s)
	}
	return New(alg, value)
}

// New validates alg and hex and returns the digest with a lower-case value.
func New(alg, value string) (Digest, error) {
	a, err := ParseAlgorithm(alg)
	if err != nil {
		return Digest{}, err
	}
	value = strings.ToLower(strings.TrimSpace(value))
	if _, err := hex.DecodeString(value); err != nil {
		return Digest{}, fmt.Errorf("digest value for %s is not hex: %w", a, err)
	}
	return Digest{Algorithm: a, Hex: value}, nil
}

func (d Digest) String() string {
	return string(d.Algorithm) + ":" + d.Hex
}

// IsZero reports whether d carries no value.
func (d Digest) IsZero() bool { return d.Hex == "" }

// Equal compares two digests; hex values are compared case-insensitively.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && strings.EqualFold(d.Hex, other.Hex)
}

// Sum returns the digest of h under algorithm alg.
func Sum(alg Algorithm, h hash.Hash) Digest {
	return Digest{Algorithm: alg, Hex: hex.EncodeToString(h.Sum(nil))}
}

// File computes the digest of the file at path.
func File(alg Algorithm, path string) (Digest, error) {
	h, err := alg.New()
	if err != nil {
		return Digest{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, errors.Wrap(err, "open for checksum")
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, errors.Wrap(err, "hashing")
	}
	return Sum(alg, h), nil
}
