package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/bagfetch/pkg/errors"
)

// statusError maps a final response status onto the fetch error kinds.
func statusError(resp *http.Response) error {
	code := resp.StatusCode
	err := fmt.Errorf("unexpected status: %s", resp.Status)
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized, code == http.StatusProxyAuthRequired:
		return errors.Auth(code, err)
	case code == http.StatusTooManyRequests, code == http.StatusServiceUnavailable:
		return errors.NetworkStatus(code, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()), err)
	case code == http.StatusRequestTimeout, code >= 500:
		return errors.NetworkStatus(code, 0, err)
	default:
		return errors.Permanent(code, err)
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// classifyRequestError maps a client.Do failure. Certificate problems cannot
// be fixed by retrying; everything else on the wire is transient.
func classifyRequestError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Cancelled(ctxErr)
	}
	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if stderrors.As(err, &certErr) || stderrors.As(err, &unknownAuthority) || stderrors.As(err, &hostnameErr) {
		return errors.Permanent(0, err)
	}
	return errors.Network(err)
}
