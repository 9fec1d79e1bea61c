// Package download is the fetch facade: it turns manifest entries into files
// under a destination root, choosing credentials, transports and retries.
package download

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/glorpus-work/bagfetch/pkg/events"
	"github.com/glorpus-work/bagfetch/pkg/keychain"
	"github.com/glorpus-work/bagfetch/pkg/manifest"
	"github.com/glorpus-work/bagfetch/pkg/transport"
	"github.com/glorpus-work/bagfetch/pkg/urlutil"
	"github.com/glorpus-work/bagfetch/pkg/verify"
)

// progressInterval throttles streaming events.
const progressInterval = 500 * time.Millisecond

// Fetcher orchestrates URL parsing, credential lookup, transport resolution,
// retries and verification. It is safe for concurrent use.
type Fetcher struct {
	opts     Options
	dest     string
	registry *transport.Registry
	sink     events.Sink
	verifier *verify.Verifier
	sleep    func(ctx context.Context, d time.Duration) error

	kcMu     sync.RWMutex
	keychain *keychain.Keychain

	mu     sync.Mutex
	shared map[string]transport.Transport
	closed bool
}

// NewFetcher creates a fetcher. A nil registry means DefaultRegistry and a
// nil keychain means no credentials. The registry is frozen.
func NewFetcher(opts Options, registry *transport.Registry, kc *keychain.Keychain) (*Fetcher, error) {
	if opts.Dest == "" {
		return nil, errors.Wrap(errors.ErrInvalidPath, "destination directory is required")
	}
	dest, err := filepath.Abs(opts.Dest)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidPath, "%s: %v", opts.Dest, err)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = transport.DefaultRetryPolicy().MaxAttempts
	}
	if opts.Retry.MaxDelay <= 0 {
		opts.Retry.MaxDelay = transport.DefaultRetryPolicy().MaxDelay
	}
	opts.Transport = opts.Transport.WithDefaults()
	if registry == nil {
		registry = DefaultRegistry()
	}
	registry.Freeze()
	if kc == nil {
		kc = keychain.Empty()
	}
	sink := opts.Sink
	if sink == nil {
		sink = events.Discard
	}
	verifier := opts.Verifier
	if verifier == nil {
		verifier = verify.New()
	}

	return &Fetcher{
		opts:     opts,
		dest:     dest,
		registry: registry,
		sink:     sink,
		verifier: verifier,
		sleep:    sleepContext,
		keychain: kc,
		shared:   make(map[string]transport.Transport),
	}, nil
}

// Dest returns the absolute destination root.
func (f *Fetcher) Dest() string { return f.dest }

// FetchAll fetches entries with a pool of workers. Duplicate output paths
// reject the whole batch before any I/O.
func (f *Fetcher) FetchAll(ctx context.Context, entries []manifest.Entry) Batch {
	if err := f.checkDuplicates(entries); err != nil {
		return Batch{Rejected: err}
	}

	results := make([]transport.Result, len(entries))
	tasks := make(chan int)
	var wg sync.WaitGroup

	workers := min(f.opts.Workers, max(1, len(entries)))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				results[i] = f.FetchOne(ctx, entries[i])
			}
		}()
	}

	for i := range entries {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	return Batch{Results: results}
}

// checkDuplicates resolves every output path that can be resolved and
// reports the first collision. Unresolvable paths fail later, per entry.
func (f *Fetcher) checkDuplicates(entries []manifest.Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		out, err := urlutil.EnsureValidOutputPath(f.dest, e.URL, e.Filename)
		if err != nil {
			continue
		}
		if _, ok := seen[out]; ok {
			rel, _ := filepath.Rel(f.dest, out)
			return errors.ErrDuplicateOutputPathWithName(rel)
		}
		seen[out] = struct{}{}
	}
	return nil
}

// FetchOne runs the whole pipeline for one entry. Failures are reported in
// the result, never as a panic or a separate error.
func (f *Fetcher) FetchOne(ctx context.Context, entry manifest.Entry) transport.Result {
	start := time.Now()
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	res := transport.Result{EntryID: id, URL: redactRaw(entry.URL), DeclaredSize: -1}
	f.emit(events.Event{EntryID: id, URL: res.URL, Phase: events.PhaseQueued, Total: entry.ExpectedSize()})

	finish := func(err error) transport.Result {
		res.Elapsed = time.Since(start)
		if err == nil {
			res.Kind, res.Err = errors.KindNone, nil
			phase := events.PhaseDone
			if res.Skipped {
				phase = events.PhaseSkipped
			}
			f.emit(events.Event{EntryID: id, URL: res.URL, Phase: phase, Attempt: res.Attempts, Bytes: res.Bytes, Elapsed: res.Elapsed})
			return res
		}
		res.Kind, res.Err = errors.KindOf(err), err
		f.emit(events.Event{EntryID: id, URL: res.URL, Phase: events.PhaseFailed, Attempt: res.Attempts,
			Bytes: res.Bytes, Elapsed: res.Elapsed, Kind: res.Kind, Err: err})
		return res
	}

	if err := ctx.Err(); err != nil {
		return finish(errors.Cancelled(err))
	}
	if f.isClosed() {
		return finish(errors.Permanent(0, errors.Wrap(errors.ErrDownloadFailed, "fetcher closed")))
	}

	parts, err := urlutil.Parse(entry.URL)
	if err != nil {
		return finish(err)
	}
	res.URL = parts.URL.Redacted()
	out, err := urlutil.EnsureValidOutputPath(f.dest, entry.URL, entry.Filename)
	if err != nil {
		return finish(err)
	}
	res.LocalPath = out
	factory, err := f.registry.Resolve(parts.Scheme)
	if err != nil {
		return finish(err)
	}

	exp := expectation(entry)
	if f.opts.SkipExisting && verify.Check(out, exp, verify.Observation{DeclaredSize: -1}) == nil {
		res.Skipped = true
		return finish(nil)
	}

	tr, release, err := f.acquire(parts.Scheme, factory)
	if err != nil {
		return finish(err)
	}
	defer release()

	return finish(f.fetchWithRetry(ctx, tr, parts.URL, out, entry, exp, &res))
}

// fetchWithRetry runs attempts until one succeeds or the retry policy
// gives up. It fills res with the last attempt's details.
func (f *Fetcher) fetchWithRetry(ctx context.Context, tr transport.Transport, u *url.URL, out string,
	entry manifest.Entry, exp verify.Expectation, res *transport.Result) error {
	creds := f.credentialsFor(u)
	bo := f.opts.Retry.NewBackOff()
	sizeRetried := false

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		r, err := f.attempt(ctx, tr, u, out, entry, exp, creds, res.EntryID, attempt)
		res.Bytes, res.DeclaredSize, res.Digest = r.Bytes, r.DeclaredSize, r.Digest
		if err == nil {
			return nil
		}

		fe := errors.Classify(err)
		if attempt >= f.opts.Retry.MaxAttempts {
			return fe
		}
		var delay time.Duration
		switch fe.Kind {
		case errors.KindNetwork:
			next := bo.NextBackOff()
			if next == backoff.Stop {
				return fe
			}
			delay = min(next, f.opts.Retry.MaxDelay)
			if fe.RetryAfter > delay {
				delay = fe.RetryAfter
			}
		case errors.KindAuth:
			fresh, changed := f.reloadCredentials(u, creds)
			if !changed {
				return fe
			}
			creds = fresh
		case errors.KindIntegrity:
			if fe.Reason != errors.ReasonSize || fe.LengthMatched || sizeRetried {
				return fe
			}
			sizeRetried = true
		default:
			return fe
		}

		f.emit(events.Event{EntryID: res.EntryID, URL: res.URL, Phase: events.PhaseRetrying, Attempt: attempt,
			Bytes: res.Bytes, Delay: delay, Kind: fe.Kind, Err: fe})
		if delay > 0 {
			if err := f.sleep(ctx, delay); err != nil {
				return errors.Cancelled(err)
			}
		}
	}
}

// attempt performs one transport fetch followed by verification.
func (f *Fetcher) attempt(ctx context.Context, tr transport.Transport, u *url.URL, out string,
	entry manifest.Entry, exp verify.Expectation, creds *keychain.Entry, id string, attempt int) (transport.Result, error) {
	urlStr := u.Redacted()
	total := entry.ExpectedSize()
	var lastProgress time.Time

	hints := transport.Hints{
		Credentials:  creds,
		ExpectedSize: total,
		Progress: func(written, reported int64) {
			now := time.Now()
			if now.Sub(lastProgress) < progressInterval && written != reported {
				return
			}
			lastProgress = now
			f.emit(events.Event{EntryID: id, URL: urlStr, Phase: events.PhaseStreaming, Attempt: attempt, Bytes: written, Total: reported})
		},
		OnState: func(s transport.State) {
			switch s {
			case transport.StateRequesting:
				f.emit(events.Event{EntryID: id, URL: urlStr, Phase: events.PhaseRequesting, Attempt: attempt, Total: total})
			case transport.StateStreaming:
				f.emit(events.Event{EntryID: id, URL: urlStr, Phase: events.PhaseStreaming, Attempt: attempt, Total: total})
			case transport.StateVerifying:
				f.emit(events.Event{EntryID: id, URL: urlStr, Phase: events.PhaseVerifying, Attempt: attempt, Total: total})
			}
		},
		Keychain: f.currentKeychain(),
	}
	if entry.Digest != nil {
		hints.DigestAlgorithm = entry.Digest.Algorithm
	}
	verified := false
	hints.Verify = func(partPath string, r transport.Result) error {
		verified = true
		return f.verifier.VerifyObserved(partPath, exp, verify.Observation{Digest: r.Digest, DeclaredSize: r.DeclaredSize})
	}

	r, err := tr.Fetch(ctx, u, out, hints)
	if err != nil || verified {
		return r, err
	}

	// The transport committed without calling Verify; check the output in place.
	f.emit(events.Event{EntryID: id, URL: urlStr, Phase: events.PhaseVerifying, Attempt: attempt, Bytes: r.Bytes, Total: total})
	err = f.verifier.VerifyObserved(out, exp, verify.Observation{Digest: r.Digest, DeclaredSize: r.DeclaredSize})
	return r, err
}

// acquire returns the transport for scheme and a release function that
// must be called when the entry is finished. Reusable transports are shared
// and cleaned up by Close; the others are cleaned up by release, once.
func (f *Fetcher) acquire(scheme string, factory transport.Factory) (transport.Transport, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, nil, errors.Permanent(0, errors.Wrap(errors.ErrDownloadFailed, "fetcher closed"))
	}
	if tr, ok := f.shared[scheme]; ok {
		return tr, func() {}, nil
	}

	tr, err := factory(f.opts.Transport, f.currentKeychain())
	if err != nil {
		return nil, nil, errors.Permanent(0, errors.Wrapf(err, "could not create %s transport", scheme))
	}
	if tr.Reusable() {
		f.shared[scheme] = tr
		return tr, func() {}, nil
	}
	var once sync.Once
	return tr, func() { once.Do(func() { _ = tr.Cleanup() }) }, nil
}

// Close cleans up every shared transport exactly once. Later fetches fail.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	var result *multierror.Error
	for scheme, tr := range f.shared {
		if err := tr.Cleanup(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "cleanup %s transport", scheme))
		}
	}
	f.shared = nil
	return result.ErrorOrNil()
}

func (f *Fetcher) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fetcher) currentKeychain() *keychain.Keychain {
	f.kcMu.RLock()
	defer f.kcMu.RUnlock()
	return f.keychain
}

func (f *Fetcher) credentialsFor(u *url.URL) *keychain.Entry {
	if e, ok := f.currentKeychain().CredentialsFor(u); ok {
		return e
	}
	return nil
}

// reloadCredentials re-reads the keychain, if a reloader is configured, and
// reports whether the selection for u changed.
func (f *Fetcher) reloadCredentials(u *url.URL, previous *keychain.Entry) (*keychain.Entry, bool) {
	if f.opts.ReloadKeychain == nil {
		return previous, false
	}
	kc, err := f.opts.ReloadKeychain()
	if err != nil || kc == nil {
		return previous, false
	}
	f.kcMu.Lock()
	f.keychain = kc
	f.kcMu.Unlock()

	fresh := f.credentialsFor(u)
	switch {
	case fresh == nil && previous == nil:
		return nil, false
	case fresh == nil || previous == nil:
		return fresh, true
	default:
		return fresh, !fresh.Equal(*previous)
	}
}

func (f *Fetcher) emit(e events.Event) {
	f.sink.Emit(e)
}

func expectation(entry manifest.Entry) verify.Expectation {
	exp := verify.Expectation{Size: entry.ExpectedSize()}
	if entry.Digest != nil {
		exp.Digest = *entry.Digest
	}
	return exp
}

func redactRaw(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
