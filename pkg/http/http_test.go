package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glorpus-work/bagfetch/pkg/digest"
	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/glorpus-work/bagfetch/pkg/keychain"
	"github.com/glorpus-work/bagfetch/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransport(t *testing.T, kc *keychain.Keychain, mutate ...func(*transport.Config)) *Transport {
	t.Helper()
	cfg := transport.DefaultConfig()
	cfg.ChunkSize = 16
	for _, m := range mutate {
		m(&cfg)
	}
	tr, err := New(cfg, kc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Cleanup() })
	return tr
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func assertNoPartFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".part"), "leftover %s", e.Name())
	}
}

func TestFetch_Success(t *testing.T) {
	body := strings.Repeat("payload-", 20)
	var gotUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "sub", "a.txt")
	var states []transport.State
	var lastWritten int64

	tr := newTransport(t, nil)
	res, err := tr.Fetch(context.Background(), mustParse(t, server.URL+"/a.txt"), out, transport.Hints{
		ExpectedSize:    int64(len(body)),
		DigestAlgorithm: digest.SHA256,
		Progress:        func(written, _ int64) { lastWritten = written },
		OnState:         func(s transport.State) { states = append(states, s) },
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	assert.Equal(t, int64(len(body)), res.Bytes)
	assert.Equal(t, int64(len(body)), res.DeclaredSize)
	assert.Equal(t, int64(len(body)), lastWritten)
	assert.Equal(t, []transport.State{
		transport.StateRequesting, transport.StateStreaming, transport.StateVerifying, transport.StateDone,
	}, states)
	assert.Equal(t, transport.DefaultUserAgent, gotUA.Load())

	sum := sha256.Sum256([]byte(body))
	assert.Equal(t, hex.EncodeToString(sum[:]), res.Digest.Hex)
	assert.True(t, tr.Reusable())
	assertNoPartFiles(t, filepath.Join(dir, "sub"))
}

func TestFetch_Credentials(t *testing.T) {
	tests := []struct {
		name  string
		entry keychain.Entry
		check func(t *testing.T, r *http.Request)
	}{
		{
			name: "basic",
			entry: keychain.Entry{AuthType: keychain.HTTPBasic,
				Params: map[string]string{keychain.ParamUsername: "u", keychain.ParamPassword: "p"}},
			check: func(t *testing.T, r *http.Request) {
				user, pass, ok := r.BasicAuth()
				assert.True(t, ok)
				assert.Equal(t, "u", user)
				assert.Equal(t, "p", pass)
			},
		},
		{
			name: "bearer",
			entry: keychain.Entry{AuthType: keychain.HTTPBearer,
				Params: map[string]string{keychain.ParamToken: "tok"}},
			check: func(t *testing.T, r *http.Request) {
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			},
		},
		{
			name: "cookie",
			entry: keychain.Entry{AuthType: keychain.HTTPCookie,
				Params: map[string]string{keychain.ParamCookieName: "session", keychain.ParamCookieValue: "abc"}},
			check: func(t *testing.T, r *http.Request) {
				c, err := r.Cookie("session")
				require.NoError(t, err)
				assert.Equal(t, "abc", c.Value)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(chan *http.Request, 1)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen <- r.Clone(context.Background())
				_, _ = w.Write([]byte("ok"))
			}))
			defer server.Close()

			entry := tt.entry
			entry.URIPattern = server.URL + "/"
			kc := keychain.New([]keychain.Entry{entry})

			tr := newTransport(t, kc)
			_, err := tr.Fetch(context.Background(), mustParse(t, server.URL+"/x"), filepath.Join(t.TempDir(), "x"), transport.NoHints())
			require.NoError(t, err)
			tt.check(t, <-seen)
		})
	}
}

func TestFetch_RedirectDropsCredentialsAcrossOrigins(t *testing.T) {
	var otherAuth atomic.Value
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		otherAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("moved"))
	}))
	defer other.Close()

	var originAuth atomic.Value
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originAuth.Store(r.Header.Get("Authorization"))
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/hop", http.StatusFound)
			return
		}
		http.Redirect(w, r, other.URL+"/final", http.StatusTemporaryRedirect)
	}))
	defer origin.Close()

	creds := &keychain.Entry{URIPattern: origin.URL + "/", AuthType: keychain.HTTPBearer,
		Params: map[string]string{keychain.ParamToken: "secret"}}
	tr := newTransport(t, nil)

	out := filepath.Join(t.TempDir(), "f")
	hints := transport.NoHints()
	hints.Credentials = creds
	_, err := tr.Fetch(context.Background(), mustParse(t, origin.URL+"/start"), out, hints)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", originAuth.Load())
	assert.Equal(t, "", otherAuth.Load())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "moved", string(data))
}

func TestFetch_RedirectRematchesKeychain(t *testing.T) {
	var otherAuth atomic.Value
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		otherAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer other.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, other.URL+"/data", http.StatusMovedPermanently)
	}))
	defer origin.Close()

	kc := keychain.New([]keychain.Entry{{URIPattern: other.URL + "/data", AuthType: keychain.HTTPBearer,
		Params: map[string]string{keychain.ParamToken: "other-token"}}})
	tr := newTransport(t, kc)

	_, err := tr.Fetch(context.Background(), mustParse(t, origin.URL+"/"), filepath.Join(t.TempDir(), "f"), transport.NoHints())
	require.NoError(t, err)
	assert.Equal(t, "Bearer other-token", otherAuth.Load())
}

func TestFetch_HintsKeychainReplacesTransportKeychain(t *testing.T) {
	var otherAuth atomic.Value
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		otherAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer other.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, other.URL+"/data", http.StatusFound)
	}))
	defer origin.Close()

	tr := newTransport(t, keychain.Empty())
	hints := transport.NoHints()
	hints.Keychain = keychain.New([]keychain.Entry{{URIPattern: other.URL + "/", AuthType: keychain.HTTPBearer,
		Params: map[string]string{keychain.ParamToken: "reloaded"}}})

	_, err := tr.Fetch(context.Background(), mustParse(t, origin.URL+"/"), filepath.Join(t.TempDir(), "f"), hints)
	require.NoError(t, err)
	assert.Equal(t, "Bearer reloaded", otherAuth.Load())
}

func TestFetch_VerifyRunsBeforeRename(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer server.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(out, []byte("original"), 0o644))

	rejected := errors.Integrity(errors.ReasonDigest, false, errors.ErrFileHashMismatch)
	var checked string
	hints := transport.NoHints()
	hints.Verify = func(partPath string, res transport.Result) error {
		checked = partPath
		data, err := os.ReadFile(partPath)
		require.NoError(t, err)
		assert.Equal(t, "tampered", string(data))
		assert.Equal(t, int64(8), res.Bytes)

		current, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "original", string(current))
		return rejected
	}

	tr := newTransport(t, nil)
	res, err := tr.Fetch(context.Background(), mustParse(t, server.URL+"/f.bin"), out, hints)
	require.ErrorIs(t, err, errors.ErrFileHashMismatch)
	assert.Equal(t, errors.KindIntegrity, res.Kind)
	assert.NotEqual(t, out, checked)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
	assertNoPartFiles(t, dir)
}

func TestFetch_TooManyRedirects(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer server.Close()

	tr := newTransport(t, nil, func(c *transport.Config) { c.MaxRedirects = 3 })
	res, err := tr.Fetch(context.Background(), mustParse(t, server.URL+"/"), filepath.Join(t.TempDir(), "f"), transport.NoHints())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTooManyRedirects)
	assert.Equal(t, errors.KindPermanent, res.Kind)
	assert.Equal(t, int32(4), hits.Load())
}

func TestFetch_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     map[string]string
		kind       errors.Kind
		retryAfter time.Duration
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, kind: errors.KindAuth},
		{name: "proxy auth", status: http.StatusProxyAuthRequired, kind: errors.KindAuth},
		{name: "not found", status: http.StatusNotFound, kind: errors.KindPermanent},
		{name: "forbidden", status: http.StatusForbidden, kind: errors.KindPermanent},
		{name: "request timeout", status: http.StatusRequestTimeout, kind: errors.KindNetwork},
		{name: "server error", status: http.StatusBadGateway, kind: errors.KindNetwork},
		{name: "rate limited", status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "7"},
			kind: errors.KindNetwork, retryAfter: 7 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			dir := t.TempDir()
			out := filepath.Join(dir, "f")
			tr := newTransport(t, nil)
			res, err := tr.Fetch(context.Background(), mustParse(t, server.URL+"/f"), out, transport.NoHints())
			require.Error(t, err)
			assert.Equal(t, tt.kind, res.Kind)

			fe, ok := errors.AsFetchError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, fe.Status)
			assert.Equal(t, tt.retryAfter, fe.RetryAfter)
			assert.NoFileExists(t, out)
			assertNoPartFiles(t, dir)
		})
	}
}

func TestFetch_TruncatedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, buf, err := hj.Hijack()
		require.NoError(t, err)
		_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\nonly a few bytes")
		_ = buf.Flush()
		_ = conn.Close()
	}))
	defer server.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "f")
	tr := newTransport(t, nil)
	res, err := tr.Fetch(context.Background(), mustParse(t, server.URL+"/f"), out, transport.NoHints())
	require.Error(t, err)

	fe, ok := errors.AsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindIntegrity, fe.Kind)
	assert.Equal(t, errors.ReasonSize, fe.Reason)
	assert.False(t, fe.LengthMatched)
	assert.Equal(t, int64(100), res.DeclaredSize)
	assert.NoFileExists(t, out)
	assertNoPartFiles(t, dir)
}

func TestFetch_CancelRemovesPartFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte(strings.Repeat("x", 32)))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	out := filepath.Join(dir, "f")
	hints := transport.NoHints()
	hints.Progress = func(int64, int64) { cancel() }

	tr := newTransport(t, nil)
	res, err := tr.Fetch(ctx, mustParse(t, server.URL+"/f"), out, hints)
	require.Error(t, err)
	assert.Equal(t, errors.KindCancelled, res.Kind)
	assert.NoFileExists(t, out)
	assertNoPartFiles(t, dir)
}

func TestFetch_FirstByteTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	tr := newTransport(t, nil, func(c *transport.Config) { c.FirstByteTimeout = 50 * time.Millisecond })
	res, err := tr.Fetch(context.Background(), mustParse(t, server.URL+"/f"), filepath.Join(t.TempDir(), "f"), transport.NoHints())
	require.Error(t, err)
	assert.Equal(t, errors.KindNetwork, res.Kind)
}

func TestFetch_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	tr := newTransport(t, nil)
	res, err := tr.Fetch(context.Background(), mustParse(t, addr+"/f"), filepath.Join(t.TempDir(), "f"), transport.NoHints())
	require.Error(t, err)
	assert.Equal(t, errors.KindNetwork, res.Kind)
}

func TestCleanup(t *testing.T) {
	tr := newTransport(t, nil)
	require.NoError(t, tr.Cleanup())
	require.NoError(t, tr.Cleanup())

	_, err := tr.Fetch(context.Background(), mustParse(t, "http://127.0.0.1:1/f"), filepath.Join(t.TempDir(), "f"), transport.NoHints())
	assert.Equal(t, errors.KindPermanent, errors.KindOf(err))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}
