// Package keychain loads credential entries and selects the best entry for a
// URL. Lookups are pure: no prompting, no I/O after load, no caching.
package keychain

import (
	"net/url"
	"strings"
)

// Skipped records an entry that was dropped while loading.
type Skipped struct {
	Index  int
	Reason string
}

// Keychain is an ordered, read-only collection of entries. It is safe for
// concurrent use.
type Keychain struct {
	entries []Entry
	skipped []Skipped
}

// New builds a keychain from entries, ignoring any that fail Validate.
func New(entries []Entry) *Keychain {
	kc := &Keychain{}
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			kc.skipped = append(kc.skipped, Skipped{Index: i, Reason: err.Error()})
			continue
		}
		kc.entries = append(kc.entries, e)
	}
	return kc
}

// Empty returns a keychain without entries.
func Empty() *Keychain { return &Keychain{} }

// Entries returns a copy of the usable entries in declared order.
func (k *Keychain) Entries() []Entry {
	if k == nil {
		return nil
	}
	out := make([]Entry, len(k.entries))
	copy(out, k.entries)
	return out
}

// Skipped returns the entries ignored at load time.
func (k *Keychain) Skipped() []Skipped {
	if k == nil {
		return nil
	}
	return k.skipped
}

// Len returns the number of usable entries.
func (k *Keychain) Len() int {
	if k == nil {
		return 0
	}
	return len(k.entries)
}

// CredentialsFor returns the entry whose pattern matches u most specifically.
// When types are given, only entries of those types are considered. Ties on
// pattern length go to the entry declared first.
func (k *Keychain) CredentialsFor(u *url.URL, types ...AuthType) (*Entry, bool) {
	if k == nil || u == nil {
		return nil, false
	}
	target := normalizeURL(u)
	best, bestLen := -1, -1
	for i, e := range k.entries {
		if len(types) > 0 && !e.Is(types...) {
			continue
		}
		n, ok := matchLength(e.URIPattern, target, u)
		if ok && n > bestLen {
			best, bestLen = i, n
		}
	}
	if best < 0 {
		return nil, false
	}
	e := k.entries[best]
	return &e, true
}

// matchLength reports whether pattern matches and how specific the match is.
// Patterns with a scheme are prefixes of the normalized URL; a pattern that
// stops inside the authority must end where the host does. Bare patterns
// name a host, optionally with a port.
func matchLength(pattern, target string, u *url.URL) (int, bool) {
	if strings.Contains(pattern, "://") {
		p := normalizePattern(pattern)
		if !strings.HasPrefix(target, p) {
			return 0, false
		}
		return len(p), endsAtHostBoundary(p, target)
	}
	if strings.EqualFold(pattern, u.Host) || strings.EqualFold(pattern, u.Hostname()) {
		return len(pattern), true
	}
	return 0, false
}

func normalizeURL(u *url.URL) string {
	v := *u
	v.User = nil
	v.Scheme = strings.ToLower(v.Scheme)
	v.Host = strings.ToLower(v.Host)
	return v.String()
}

// endsAtHostBoundary rejects https://ex.example matching https://ex.example.evil.
func endsAtHostBoundary(p, target string) bool {
	_, rest, _ := strings.Cut(p, "://")
	if strings.Contains(rest, "/") || len(target) == len(p) {
		return true
	}
	return strings.ContainsRune("/:?#", rune(target[len(p)]))
}

func normalizePattern(p string) string {
	scheme, rest, _ := strings.Cut(p, "://")
	host, path, hasPath := strings.Cut(rest, "/")
	out := strings.ToLower(scheme) + "://" + strings.ToLower(host)
	if hasPath {
		out += "/" + path
	}
	return out
}
