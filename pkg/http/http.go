// Package http implements the http and https transports.
package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/glorpus-work/bagfetch/pkg/auth"
	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/glorpus-work/bagfetch/pkg/fsutil"
	"github.com/glorpus-work/bagfetch/pkg/keychain"
	"github.com/glorpus-work/bagfetch/pkg/transport"
	"github.com/glorpus-work/bagfetch/pkg/urlutil"
	"golang.org/x/net/publicsuffix"
)

// Transport fetches http and https URLs. One instance is shared by every
// fetch of a batch so connections and cookies are reused.
type Transport struct {
	cfg    transport.Config
	kc     *keychain.Keychain
	client *http.Client

	mu     sync.RWMutex
	closed bool
}

// New creates an HTTP transport. kc may be nil.
func New(cfg transport.Config, kc *keychain.Keychain) (*Transport, error) {
	cfg = cfg.WithDefaults()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "could not create cookie jar")
	}
	if kc == nil {
		kc = keychain.Empty()
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	rt := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.FirstByteTimeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &Transport{
		cfg: cfg,
		kc:  kc,
		client: &http.Client{
			Transport: rt,
			Jar:       jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Factory is the transport.Factory for http and https.
func Factory(cfg transport.Config, kc *keychain.Keychain) (transport.Transport, error) {
	return New(cfg, kc)
}

// Reusable returns true.
func (t *Transport) Reusable() bool { return true }

// Cleanup closes idle connections and drops the cookie jar. It waits for
// running fetches to finish.
func (t *Transport) Cleanup() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.client.CloseIdleConnections()
	t.client.Jar = nil
	return nil
}

// Fetch downloads u to outputPath.
func (t *Transport) Fetch(ctx context.Context, u *url.URL, outputPath string, hints transport.Hints) (transport.Result, error) {
	start := time.Now()
	res := transport.Result{URL: urlutil.Redact(u), LocalPath: outputPath, DeclaredSize: -1}
	fail := func(err error) (transport.Result, error) {
		res.Elapsed = time.Since(start)
		res.Kind = errors.KindOf(err)
		res.Err = err
		hints.SetState(transport.StateFailed)
		return res, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return fail(errors.Permanent(0, errors.Wrap(errors.ErrDownloadFailed, "transport closed")))
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hints.SetState(transport.StateRequesting)
	resp, err := t.get(reqCtx, u, hints.Credentials, hints.KeychainOr(t.kc))
	if err != nil {
		return fail(err)
	}
	defer func() { _ = resp.Body.Close() }()
	res.DeclaredSize = resp.ContentLength

	part, err := fsutil.CreatePartFile(outputPath)
	if err != nil {
		return fail(errors.Permanent(0, err))
	}
	defer part.Discard()

	hints.SetState(transport.StateStreaming)
	total := resp.ContentLength
	if total < 0 {
		total = hints.ExpectedSize
	}
	sr, err := transport.Stream(ctx, part, resp.Body, transport.StreamOptions{
		ChunkSize:    t.cfg.ChunkSize,
		Total:        total,
		Progress:     hints.Progress,
		ChunkTimeout: t.cfg.ChunkTimeout,
		Abort:        cancel,
		Algorithm:    hints.DigestAlgorithm,
	})
	res.Bytes = sr.Bytes
	if err != nil {
		return fail(err)
	}
	if resp.ContentLength >= 0 && sr.Bytes != resp.ContentLength {
		return fail(errors.Integrity(errors.ReasonSize, false,
			errors.Wrapf(errors.ErrTransferTruncated, "received %d of %d bytes", sr.Bytes, resp.ContentLength)))
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

// get performs the request and follows redirects by hand so that every hop
// gets its own credential decision. On success the returned response has a
// 2xx status.
func (t *Transport) get(ctx context.Context, u *url.URL, override *keychain.Entry, kc *keychain.Keychain) (*http.Response, error) {
	if override != nil && !override.Is(keychain.HTTPTypes...) {
		override = nil
	}
	current := u
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), http.NoBody)
		if err != nil {
			return nil, errors.InvalidTarget("could not create request: %v", err)
		}
		req.Header.Set("User-Agent", t.cfg.UserAgent)
		if a := authenticatorFor(kc, u, current, override); a != nil {
			if err := a.Apply(req); err != nil {
				return nil, errors.Auth(0, err)
			}
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, classifyRequestError(ctx, err)
		}
		if !isRedirect(resp.StatusCode) {
			if err := statusError(resp); err != nil {
				drain(resp)
				return nil, err
			}
			return resp, nil
		}

		next, err := resp.Location()
		drain(resp)
		if err != nil {
			return nil, errors.Permanent(resp.StatusCode, errors.Wrap(err, "redirect without usable Location"))
		}
		if hop >= t.cfg.MaxRedirects {
			return nil, errors.Permanent(resp.StatusCode, errors.Wrapf(errors.ErrTooManyRedirects, "stopped after %d", t.cfg.MaxRedirects))
		}
		current = next
	}
}

// authenticatorFor picks the credentials for one hop. The entry selected for
// the original URL is only sent to that URL's origin; other origins get a
// fresh keychain match.
func authenticatorFor(kc *keychain.Keychain, origin, current *url.URL, override *keychain.Entry) auth.Authenticator {
	entry := override
	if entry == nil || !urlutil.SameOrigin(origin, current) {
		entry = nil
		if e, ok := kc.CredentialsFor(current, keychain.HTTPTypes...); ok {
			entry = e
		}
	}
	if entry == nil {
		return nil
	}
	a, ok := entry.Authenticator()
	if !ok {
		return nil
	}
	return a
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// drain discards a bounded amount of the body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, 64*1024)
	_ = resp.Body.Close()
}
