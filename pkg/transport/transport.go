//go:generate mockgen -destination=mocks/transport.go . Transport

// Package transport defines the contract every fetch protocol implements and
// the scheme registry the fetcher resolves transports from.
package transport

import (
	"context"
	"net/url"
	"time"

	"github.com/glorpus-work/bagfetch/pkg/digest"
	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/glorpus-work/bagfetch/pkg/keychain"
)

// Transport materializes one remote resource at a local path.
type Transport interface {
	// Fetch streams u into outputPath. The payload is written to a part
	// file which is checked with Hints.Verify and only then renamed onto
	// outputPath. On success the file is complete and Result.Bytes equals
	// its size. Failures are *errors.FetchError values; no partial file is
	// left behind and an existing outputPath is not touched.
	Fetch(ctx context.Context, u *url.URL, outputPath string, hints Hints) (Result, error)

	// Cleanup releases connections and temporary state. It is idempotent.
	Cleanup() error

	// Reusable reports whether one instance may serve several fetches.
	Reusable() bool
}

// Factory builds a transport for a scheme.
type Factory func(cfg Config, kc *keychain.Keychain) (Transport, error)

// Hints carries per-fetch information the fetcher already knows.
type Hints struct {
	// Credentials is the keychain entry selected for the original URL.
	Credentials *keychain.Entry
	// ExpectedSize is the manifest length, or -1.
	ExpectedSize int64
	// DigestAlgorithm requests a digest computed while streaming.
	DigestAlgorithm digest.Algorithm
	Progress        func(written, total int64)
	OnState         func(State)
	// Verify checks the completed part file before it is renamed onto the
	// output path. An error aborts the fetch and discards the part file.
	Verify func(partPath string, res Result) error
	// Keychain, when set, replaces the transport's own keychain for
	// credential lookups during this fetch, such as redirect hops.
	Keychain *keychain.Keychain
}

// NoHints returns hints without any expectations.
func NoHints() Hints {
	return Hints{ExpectedSize: -1}
}

// SetState reports s through OnState when it is set.
func (h Hints) SetState(s State) {
	if h.OnState != nil {
		h.OnState(s)
	}
}

// VerifyPart reports StateVerifying and runs Verify on the part file at
// path.
func (h Hints) VerifyPart(path string, res Result) error {
	h.SetState(StateVerifying)
	if h.Verify == nil {
		return nil
	}
	return h.Verify(path, res)
}

// KeychainOr returns the keychain to use for this fetch, falling back to kc.
func (h Hints) KeychainOr(kc *keychain.Keychain) *keychain.Keychain {
	if h.Keychain != nil {
		return h.Keychain
	}
	return kc
}

// Result describes the outcome of one fetch.
type Result struct {
	EntryID   string
	URL       string
	LocalPath string
	Bytes     int64
	Elapsed   time.Duration
	// DeclaredSize is the length announced by the server, or -1.
	DeclaredSize int64
	// Digest is set when Hints.DigestAlgorithm was honoured.
	Digest   digest.Digest
	Attempts int
	Skipped  bool
	Kind     errors.Kind
	Err      error
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool { return r.Err == nil }

// State is a step of the per-fetch state machine.
type State int

// Fetch states.
const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateVerifying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateVerifying:
		return "verifying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
