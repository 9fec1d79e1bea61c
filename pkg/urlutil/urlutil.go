// Package urlutil splits fetch URLs into their parts and maps a manifest
// entry onto a path that is guaranteed to stay inside the destination root.
package urlutil

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/bagfetch/pkg/errors"
)

// Parts is a parsed fetch URL.
type Parts struct {
	Scheme   string
	User     *url.Userinfo
	Host     string // hostname without port
	Port     string
	Path     string // percent-decoded
	Query    string
	Fragment string
	URL      *url.URL
}

// Parse splits rawURL and rejects values that cannot name a remote resource.
// The scheme and host are lower-cased.
func Parse(rawURL string) (*Parts, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.InvalidTarget("empty URL")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.InvalidTarget("malformed URL %q: %v", rawURL, err)
	}
	if u.Scheme == "" {
		return nil, errors.InvalidTarget("URL %q is not absolute", rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Host == "" && u.Scheme != "file" {
		return nil, errors.InvalidTarget("URL %q has no host", rawURL)
	}
	return &Parts{
		Scheme:   u.Scheme,
		User:     u.User,
		Host:     u.Hostname(),
		Port:     u.Port(),
		Path:     u.Path,
		Query:    u.RawQuery,
		Fragment: u.Fragment,
		URL:      u,
	}, nil
}

// Origin returns scheme://host[:port] of u, lower-cased. Two URLs with the
// same origin may share credentials.
func Origin(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// SameOrigin reports whether a and b have equal origins.
func SameOrigin(a, b *url.URL) bool {
	return Origin(a) == Origin(b)
}

// Redact returns u as a string with any password masked.
func Redact(u *url.URL) string {
	return u.Redacted()
}

// EnsureValidOutputPath resolves requested under root and returns the
// absolute result. An empty requested path is derived from the last segment
// of the URL path, or from a hash of the URL when that segment is unusable.
// Absolute paths, ".." segments and anything that would resolve outside root
// fail with InvalidTarget.
func EnsureValidOutputPath(root, rawURL, requested string) (string, error) {
	if root == "" {
		return "", errors.InvalidTarget("destination root is empty")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", errors.InvalidTarget("destination root %q: %v", root, err)
	}
	parts, err := Parse(rawURL)
	if err != nil {
		return "", err
	}

	if requested == "" {
		requested = DeriveFilename(parts.URL)
	}
	if err := checkRelative(requested); err != nil {
		return "", err
	}

	joined := filepath.Join(absRoot, filepath.FromSlash(requested))
	rel, err := filepath.Rel(absRoot, joined)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.InvalidTarget("output path %q escapes %s", requested, absRoot)
	}
	return joined, nil
}

func checkRelative(p string) error {
	slashed := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return errors.InvalidTarget("output path %q is absolute", p)
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return errors.InvalidTarget("output path %q contains '..'", p)
		}
	}
	if strings.ContainsRune(p, 0) {
		return errors.InvalidTarget("output path contains NUL")
	}
	return nil
}

// DeriveFilename picks a local name for u: the percent-decoded last path
// segment, or the hex SHA-256 of the URL.
func DeriveFilename(u *url.URL) string {
	escaped := u.EscapedPath()
	if i := strings.LastIndex(escaped, "/"); i >= 0 {
		escaped = escaped[i+1:]
	}
	if name, err := url.PathUnescape(escaped); err == nil && usableName(name) {
		return name
	}
	sum := sha256.Sum256([]byte(u.String()))
	return hex.EncodeToString(sum[:])
}

func usableName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}
