// Package file implements the file transport, which copies a local path
// through the same part-file and verification path as remote transports.
package file

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/glorpus-work/bagfetch/pkg/fsutil"
	"github.com/glorpus-work/bagfetch/pkg/keychain"
	"github.com/glorpus-work/bagfetch/pkg/transport"
)

// Transport copies file URLs. It holds no state.
type Transport struct {
	cfg transport.Config
}

// New creates a file transport.
func New(cfg transport.Config) *Transport {
	return &Transport{cfg: cfg.WithDefaults()}
}

// Factory is the transport.Factory for the file scheme.
func Factory(cfg transport.Config, _ *keychain.Keychain) (transport.Transport, error) {
	return New(cfg), nil
}

// Reusable returns true.
func (t *Transport) Reusable() bool { return true }

// Cleanup is a no-op.
func (t *Transport) Cleanup() error { return nil }

// Fetch copies the file named by u to outputPath.
func (t *Transport) Fetch(ctx context.Context, u *url.URL, outputPath string, hints transport.Hints) (transport.Result, error) {
	start := time.Now()
	res := transport.Result{URL: u.String(), LocalPath: outputPath, DeclaredSize: -1}
	fail := func(err error) (transport.Result, error) {
		res.Elapsed = time.Since(start)
		res.Kind = errors.KindOf(err)
		res.Err = err
		hints.SetState(transport.StateFailed)
		return res, err
	}

	hints.SetState(transport.StateRequesting)
	src, err := LocalPath(u)
	if err != nil {
		return fail(err)
	}
	if filepath.Clean(src) == filepath.Clean(outputPath) {
		return fail(errors.InvalidTarget("source and destination are the same file: %s", src))
	}

	size, err := fsutil.FileSize(src)
	if err != nil {
		return fail(errors.Permanent(0, errors.Wrapf(errors.ErrNotRegularFile, "%s: %v", src, err)))
	}
	res.DeclaredSize = size

	in, err := os.Open(src)
	if err != nil {
		return fail(errors.Permanent(0, err))
	}
	defer func() { _ = in.Close() }()

	part, err := fsutil.CreatePartFile(outputPath)
	if err != nil {
		return fail(errors.Permanent(0, err))
	}
	defer part.Discard()

	hints.SetState(transport.StateStreaming)
	sr, err := transport.Stream(ctx, part, in, transport.StreamOptions{
		ChunkSize: t.cfg.ChunkSize,
		Total:     size,
		Progress:  hints.Progress,
		Algorithm: hints.DigestAlgorithm,
	})
	res.Bytes = sr.Bytes
	if err != nil {
		if errors.KindOf(err) == errors.KindNetwork {
			err = errors.Permanent(0, err)
		}
		return fail(err)
	}
	if err := part.Seal(); err != nil {
		return fail(errors.Permanent(0, err))
	}
	res.Digest = sr.Digest
	if err := hints.VerifyPart(part.Name(), res); err != nil {
		return fail(err)
	}
	if err := part.Commit(); err != nil {
		return fail(errors.Permanent(0, err))
	}
	res.Elapsed = time.Since(start)
	hints.SetState(transport.StateDone)
	return res, nil
}

// LocalPath converts a file URL into a filesystem path. Only local hosts
// are accepted.
func LocalPath(u *url.URL) (string, error) {
	switch strings.ToLower(u.Host) {
	case "", "localhost":
	default:
		return "", errors.InvalidTarget("file URL with remote host %q", u.Host)
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if p == "" {
		return "", errors.InvalidTarget("file URL names no path")
	}
	if runtime.GOOS == "windows" && strings.HasPrefix(p, "/") && len(p) > 2 && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p), nil
}
