package download

import (
	"runtime"

	"github.com/glorpus-work/bagfetch/pkg/events"
	"github.com/glorpus-work/bagfetch/pkg/keychain"
	"github.com/glorpus-work/bagfetch/pkg/transport"
	"github.com/glorpus-work/bagfetch/pkg/verify"
)

// Options control the behavior of a Fetcher.
type Options struct {
	// Dest is the destination root. Every output path resolves inside it.
	Dest string
	// Workers is the number of parallel fetches; <=0 means DefaultWorkers.
	Workers   int
	Retry     transport.RetryPolicy
	Transport transport.Config
	// SkipExisting turns an entry into a no-op when its output file is
	// already present and verifies.
	SkipExisting bool
	Sink         events.Sink
	Verifier     *verify.Verifier
	// ReloadKeychain, when set, is consulted after an auth failure. The
	// entry is retried only if the reloaded keychain selects different
	// credentials.
	ReloadKeychain func() (*keychain.Keychain, error)
}

// DefaultWorkers returns min(8, 2×cores).
func DefaultWorkers() int {
	return min(8, 2*runtime.NumCPU())
}
