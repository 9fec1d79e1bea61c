package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Kind classifies a fetch failure. The set is closed: every error that leaves
// a transport or the fetcher maps to exactly one Kind.
type Kind int

// Fetch error kinds.
const (
	KindNone Kind = iota
	KindInvalidTarget
	KindUnsupportedScheme
	KindAuth
	KindNetwork
	KindIntegrity
	KindPermanent
	KindCancelled
)

var kindNames = map[Kind]string{
	KindNone:              "",
	KindInvalidTarget:     "InvalidTarget",
	KindUnsupportedScheme: "UnsupportedScheme",
	KindAuth:              "AuthError",
	KindNetwork:           "NetworkError",
	KindIntegrity:         "IntegrityError",
	KindPermanent:         "PermanentError",
	KindCancelled:         "Cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IntegrityReason tells which verification step rejected a file.
type IntegrityReason string

// Integrity reasons.
const (
	ReasonSize   IntegrityReason = "size"
	ReasonDigest IntegrityReason = "digest"
)

// FetchError is the typed error returned at transport and fetcher boundaries.
type FetchError struct {
	Kind   Kind
	Reason IntegrityReason // set for KindIntegrity
	Status int             // protocol status code, when one was received
	// RetryAfter is the server-requested delay before the next attempt.
	RetryAfter time.Duration
	// LengthMatched reports that the server-declared length equalled the bytes
	// received, so a size mismatch cannot be blamed on truncation.
	LengthMatched bool
	Err           error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Reason != "" {
		fmt.Fprintf(&b, "(%s)", e.Reason)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " [status %d]", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InvalidTarget reports a bad URL or an unsafe output path.
func InvalidTarget(format string, args ...interface{}) error {
	return &FetchError{Kind: KindInvalidTarget, Err: fmt.Errorf(format, args...)}
}

// UnsupportedScheme reports a scheme without a registered transport.
func UnsupportedScheme(scheme string) error {
	return &FetchError{Kind: KindUnsupportedScheme, Err: fmt.Errorf("no transport registered for scheme %q", scheme)}
}

// Network wraps a transient failure.
func Network(err error) error {
	return &FetchError{Kind: KindNetwork, Err: err}
}

// NetworkStatus wraps a retryable protocol status.
func NetworkStatus(status int, retryAfter time.Duration, err error) error {
	return &FetchError{Kind: KindNetwork, Status: status, RetryAfter: retryAfter, Err: err}
}

// Auth wraps a credential rejection.
func Auth(status int, err error) error {
	return &FetchError{Kind: KindAuth, Status: status, Err: err}
}

// Permanent wraps a failure that no retry can fix.
func Permanent(status int, err error) error {
	return &FetchError{Kind: KindPermanent, Status: status, Err: err}
}

// Integrity wraps a verification failure.
func Integrity(reason IntegrityReason, lengthMatched bool, err error) error {
	return &FetchError{Kind: KindIntegrity, Reason: reason, LengthMatched: lengthMatched, Err: err}
}

// Cancelled wraps a cooperative cancellation.
func Cancelled(err error) error {
	if err == nil {
		err = context.Canceled
	}
	return &FetchError{Kind: KindCancelled, Err: err}
}

// AsFetchError extracts the FetchError carried by err, if any.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if stderrors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf classifies err. Untyped errors are mapped conservatively: context
// cancellation is Cancelled, deadlines and net errors are NetworkError and
// anything else is PermanentError.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	if fe, ok := AsFetchError(err); ok {
		return fe.Kind
	}
	switch {
	case stderrors.Is(err, context.Canceled):
		return KindCancelled
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, os.ErrDeadlineExceeded):
		return KindNetwork
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return KindNetwork
	}
	return KindPermanent
}

// Classify returns err as a *FetchError, wrapping untyped errors with KindOf.
func Classify(err error) *FetchError {
	if err == nil {
		return nil
	}
	if fe, ok := AsFetchError(err); ok {
		return fe
	}
	return &FetchError{Kind: KindOf(err), Err: err}
}
