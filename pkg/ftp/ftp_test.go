package ftp

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glorpus-work/bagfetch/pkg/digest"
	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/glorpus-work/bagfetch/pkg/keychain"
	"github.com/glorpus-work/bagfetch/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func newTransport(kc *keychain.Keychain) *Transport {
	cfg := transport.DefaultConfig()
	cfg.ChunkSize = 8
	return New(cfg, kc)
}

func TestFetch_Anonymous(t *testing.T) {
	payload := []byte(strings.Repeat("ftp-data", 10))
	srv := newFakeServer(t, map[string][]byte{"/pub/f.bin": payload})

	out := filepath.Join(t.TempDir(), "f.bin")
	tr := newTransport(nil)
	hints := transport.NoHints()
	hints.DigestAlgorithm = digest.MD5

	res, err := tr.Fetch(context.Background(), mustParse(t, srv.URL("/pub/f.bin")), out, hints)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, int64(len(payload)), res.Bytes)
	assert.Equal(t, int64(len(payload)), res.DeclaredSize)
	assert.Equal(t, digest.MD5, res.Digest.Algorithm)
	assert.Equal(t, [][2]string{{"anonymous", "anonymous@"}}, srv.Logins())
	assert.False(t, tr.Reusable())
	assert.NoError(t, tr.Cleanup())
}

func TestFetch_CredentialSources(t *testing.T) {
	payload := []byte("secret payload")

	tests := []struct {
		name  string
		raw   func(srv *fakeServer) string
		kc    func(srv *fakeServer) *keychain.Keychain
		hint  *keychain.Entry
		login [2]string
	}{
		{
			name:  "hint",
			raw:   func(srv *fakeServer) string { return srv.URL("/f") },
			hint:  &keychain.Entry{AuthType: keychain.FTPBasic, Params: map[string]string{"username": "alice", "password": "pw"}},
			login: [2]string{"alice", "pw"},
		},
		{
			name: "keychain",
			raw:  func(srv *fakeServer) string { return srv.URL("/f") },
			kc: func(srv *fakeServer) *keychain.Keychain {
				return keychain.New([]keychain.Entry{{URIPattern: srv.URL("/"), AuthType: keychain.FTPBasic,
					Params: map[string]string{"username": "bob", "password": "pw"}}})
			},
			login: [2]string{"bob", "pw"},
		},
		{
			name:  "userinfo",
			raw:   func(srv *fakeServer) string { return strings.Replace(srv.URL("/f"), "ftp://", "ftp://carol:pw@", 1) },
			login: [2]string{"carol", "pw"},
		},
		{
			name:  "http hint ignored",
			raw:   func(srv *fakeServer) string { return srv.URL("/f") },
			hint:  &keychain.Entry{AuthType: keychain.HTTPBearer, Params: map[string]string{"token": "x"}},
			login: [2]string{"anonymous", "anonymous@"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t, map[string][]byte{"/f": payload})
			var kc *keychain.Keychain
			if tt.kc != nil {
				kc = tt.kc(srv)
			}
			hints := transport.NoHints()
			hints.Credentials = tt.hint

			_, err := newTransport(kc).Fetch(context.Background(), mustParse(t, tt.raw(srv)), filepath.Join(t.TempDir(), "f"), hints)
			require.NoError(t, err)
			assert.Equal(t, [][2]string{tt.login}, srv.Logins())
		})
	}
}

func TestFetch_LoginRejected(t *testing.T) {
	srv := newFakeServer(t, map[string][]byte{"/f": []byte("x")}, func(s *fakeServer) {
		s.user, s.pass = "alice", "right"
	})

	hints := transport.NoHints()
	hints.Credentials = &keychain.Entry{AuthType: keychain.FTPBasic, Params: map[string]string{"username": "alice", "password": "wrong"}}

	res, err := newTransport(nil).Fetch(context.Background(), mustParse(t, srv.URL("/f")), filepath.Join(t.TempDir(), "f"), hints)
	require.Error(t, err)
	assert.Equal(t, errors.KindAuth, res.Kind)

	fe, ok := errors.AsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, 530, fe.Status)
}

func TestFetch_MissingFile(t *testing.T) {
	srv := newFakeServer(t, map[string][]byte{})
	dir := t.TempDir()
	out := filepath.Join(dir, "f")

	res, err := newTransport(nil).Fetch(context.Background(), mustParse(t, srv.URL("/missing")), out, transport.NoHints())
	require.Error(t, err)
	assert.Equal(t, errors.KindPermanent, res.Kind)
	assert.NoFileExists(t, out)
}

func TestFetch_MissingFileWithoutSize(t *testing.T) {
	srv := newFakeServer(t, map[string][]byte{}, func(s *fakeServer) { s.noSize = true })

	res, err := newTransport(nil).Fetch(context.Background(), mustParse(t, srv.URL("/missing")), filepath.Join(t.TempDir(), "f"), transport.NoHints())
	require.Error(t, err)
	assert.Equal(t, errors.KindPermanent, res.Kind)
}

func TestFetch_ShortTransfer(t *testing.T) {
	srv := newFakeServer(t, map[string][]byte{"/f": []byte("short")}, func(s *fakeServer) { s.sizes["/f"] = 50 })

	dir := t.TempDir()
	out := filepath.Join(dir, "f")
	res, err := newTransport(nil).Fetch(context.Background(), mustParse(t, srv.URL("/f")), out, transport.NoHints())
	require.Error(t, err)

	fe, ok := errors.AsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindIntegrity, fe.Kind)
	assert.Equal(t, errors.ReasonSize, fe.Reason)
	assert.Equal(t, int64(5), res.Bytes)
	assert.NoFileExists(t, out)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := newFakeServer(t, nil)
	raw := srv.URL("/f")
	require.NoError(t, srv.ln.Close())

	res, err := newTransport(nil).Fetch(context.Background(), mustParse(t, raw), filepath.Join(t.TempDir(), "f"), transport.NoHints())
	require.Error(t, err)
	assert.Equal(t, errors.KindNetwork, res.Kind)
}

func TestFetch_Cancelled(t *testing.T) {
	srv := newFakeServer(t, map[string][]byte{"/f": []byte("data")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTransport(nil).Fetch(ctx, mustParse(t, srv.URL("/f")), filepath.Join(t.TempDir(), "f"), transport.NoHints())
	require.Error(t, err)
	assert.Equal(t, errors.KindCancelled, res.Kind)
}

func TestFetch_NoPath(t *testing.T) {
	res, err := newTransport(nil).Fetch(context.Background(), mustParse(t, "ftp://127.0.0.1/"), filepath.Join(t.TempDir(), "f"), transport.NoHints())
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidTarget, res.Kind)
}
