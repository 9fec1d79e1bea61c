// Package ftp implements the ftp and ftps transports on top of
// github.com/jlaffaye/ftp. Every fetch opens its own control connection.
package ftp

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"sync"
	"time"

	goftp "github.com/jlaffaye/ftp"

	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/glorpus-work/bagfetch/pkg/fsutil"
	"github.com/glorpus-work/bagfetch/pkg/keychain"
	"github.com/glorpus-work/bagfetch/pkg/transport"
	"github.com/glorpus-work/bagfetch/pkg/urlutil"
)

// DefaultPort is used when the URL has none.
const DefaultPort = "21"

// Transport fetches one ftp or ftps URL.
type Transport struct {
	cfg transport.Config
	kc  *keychain.Keychain

	mu   sync.Mutex
	conn *goftp.ServerConn
}

// New creates an FTP transport. kc may be nil.
func New(cfg transport.Config, kc *keychain.Keychain) *Transport {
	if kc == nil {
		kc = keychain.Empty()
	}
	return &Transport{cfg: cfg.WithDefaults(), kc: kc}
}

// Factory is the transport.Factory for ftp and ftps.
func Factory(cfg transport.Config, kc *keychain.Keychain) (transport.Transport, error) {
	return New(cfg, kc), nil
}

// Reusable returns false: the control connection is tied to one login.
func (t *Transport) Reusable() bool { return false }

// Cleanup closes a control connection left open by an interrupted fetch.
func (t *Transport) Cleanup() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Quit(); err != nil && !isClosedConn(err) {
		return errors.Wrap(err, "could not close ftp connection")
	}
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

	if u.Path == "" || u.Path == "/" {
		return fail(errors.InvalidTarget("ftp URL %s names no file", res.URL))
	}

	cs := &connSet{handshake: t.cfg.FirstByteTimeout}
	stop := context.AfterFunc(ctx, cs.abort)
	defer stop()

	hints.SetState(transport.StateRequesting)
	conn, err := t.dial(ctx, u, cs)
	if err != nil {
		return fail(classify(ctx, err))
	}
	t.setConn(conn)
	defer func() { _ = t.Cleanup() }()

	user, pass := t.credentials(u, hints.Credentials, hints.KeychainOr(t.kc))
	if err := conn.Login(user, pass); err != nil {
		return fail(classifyLogin(ctx, err))
	}

	size, err := conn.FileSize(u.Path)
	switch {
	case err == nil:
		res.DeclaredSize = size
	case statusCode(err) == goftp.StatusFileUnavailable:
		return fail(errors.Permanent(goftp.StatusFileUnavailable, err))
	case ctx.Err() != nil || isNetError(err):
		return fail(classify(ctx, err))
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return fail(classify(ctx, err))
	}
	cs.clearDeadlines()

	part, err := fsutil.CreatePartFile(outputPath)
	if err != nil {
		_ = resp.Close()
		return fail(errors.Permanent(0, err))
	}
	defer part.Discard()

	hints.SetState(transport.StateStreaming)
	total := res.DeclaredSize
	if total < 0 {
		total = hints.ExpectedSize
	}
	sr, err := transport.Stream(ctx, part, resp, transport.StreamOptions{
		ChunkSize:    t.cfg.ChunkSize,
		Total:        total,
		Progress:     hints.Progress,
		ChunkTimeout: t.cfg.ChunkTimeout,
		Abort:        cs.abort,
		Algorithm:    hints.DigestAlgorithm,
	})
	res.Bytes = sr.Bytes
	if err != nil {
		_ = resp.Close()
		return fail(err)
	}
	if err := resp.Close(); err != nil {
		return fail(classify(ctx, err))
	}
	if res.DeclaredSize >= 0 && sr.Bytes != res.DeclaredSize {
		return fail(errors.Integrity(errors.ReasonSize, false,
			errors.Wrapf(errors.ErrTransferTruncated, "received %d of %d bytes", sr.Bytes, res.DeclaredSize)))
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

func (t *Transport) dial(ctx context.Context, u *url.URL, cs *connSet) (*goftp.ServerConn, error) {
	port := u.Port()
	if port == "" {
		port = DefaultPort
	}
	addr := net.JoinHostPort(u.Hostname(), port)

	dialer := &net.Dialer{Timeout: t.cfg.ConnectTimeout}
	opts := []goftp.DialOption{
		goftp.DialWithDialFunc(cs.dialFunc(ctx, dialer)),
		goftp.DialWithDisabledEPSV(t.cfg.FTPDisableEPSV),
	}
	if u.Scheme == "ftps" {
		opts = append(opts, goftp.DialWithExplicitTLS(&tls.Config{
			ServerName: u.Hostname(),
			MinVersion: tls.VersionTLS12,
		}))
	}
	return goftp.Dial(addr, opts...)
}

func (t *Transport) setConn(conn *goftp.ServerConn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
}

// credentials picks the login: an ftp-basic hint, then a keychain match,
// then userinfo embedded in the URL, then anonymous.
func (t *Transport) credentials(u *url.URL, hint *keychain.Entry, kc *keychain.Keychain) (string, string) {
	if hint != nil && hint.Is(keychain.FTPTypes...) {
		return hint.Username(), hint.Password()
	}
	if e, ok := kc.CredentialsFor(u, keychain.FTPTypes...); ok {
		return e.Username(), e.Password()
	}
	if u.User != nil && u.User.Username() != "" {
		pass, _ := u.User.Password()
		return u.User.Username(), pass
	}
	return t.cfg.FTPAnonymousUser, t.cfg.FTPAnonymousPassword
}

// connSet tracks every socket the client opens so cancellation and chunk
// timeouts can unblock whichever one is in use.
type connSet struct {
	handshake time.Duration

	mu      sync.Mutex
	conns   []net.Conn
	aborted bool
}

func (c *connSet) dialFunc(ctx context.Context, d *net.Dialer) func(network, address string) (net.Conn, error) {
	return func(network, address string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		switch {
		case c.aborted:
			_ = conn.SetDeadline(time.Now())
		case c.handshake > 0:
			_ = conn.SetDeadline(time.Now().Add(c.handshake))
		}
		c.conns = append(c.conns, conn)
		return conn, nil
	}
}

// clearDeadlines lifts the handshake deadline before streaming starts.
func (c *connSet) clearDeadlines() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted {
		return
	}
	for _, conn := range c.conns {
		_ = conn.SetDeadline(time.Time{})
	}
}

func (c *connSet) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
	for _, conn := range c.conns {
		_ = conn.SetDeadline(time.Now())
	}
}

func statusCode(err error) int {
	var tpErr *textproto.Error
	if stderrors.As(err, &tpErr) {
		return tpErr.Code
	}
	return 0
}

func isNetError(err error) bool {
	var netErr net.Error
	return stderrors.As(err, &netErr) || stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF)
}

func isClosedConn(err error) bool {
	return stderrors.Is(err, net.ErrClosed) || isNetError(err)
}

// classify maps an FTP client error. Reply codes decide when the server sent
// one; 4xx replies are transient by definition.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Cancelled(ctxErr)
	}
	code := statusCode(err)
	switch {
	case code == goftp.StatusNotLoggedIn:
		return errors.Auth(code, err)
	case code == goftp.StatusFileUnavailable:
		return errors.Permanent(code, err)
	case code >= 400 && code < 500:
		return errors.NetworkStatus(code, 0, err)
	case code >= 500:
		return errors.Permanent(code, err)
	}
	return errors.Network(err)
}

// classifyLogin treats every rejection during login as an auth failure
// unless the connection itself broke.
func classifyLogin(ctx context.Context, err error) error {
	if ctx.Err() != nil || isNetError(err) {
		return classify(ctx, err)
	}
	if code := statusCode(err); code >= 400 && code < 500 && code != goftp.StatusNotLoggedIn {
		return classify(ctx, err)
	}
	return errors.Auth(statusCode(err), err)
}
