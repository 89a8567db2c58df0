package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/Chapsvision-dev/remote-backup/internal/model"
	"github.com/Chapsvision-dev/remote-backup/internal/transfer"
)

// Kind is the caller-visible category of a failure.
type Kind string

const (
	// Recoverable failures (timeouts, throttling, transient 5xx) may be retried unchanged.
	Recoverable Kind = "recoverable"
	// Fatal failures need external remediation (re-authentication, missing object, quota).
	Fatal Kind = "fatal"
	// Unauthenticated means no valid, sufficiently scoped session; no network call was made.
	Unauthenticated Kind = "unauthenticated"
	// InvalidArgument means the caller passed an entry, path or string this client cannot use.
	InvalidArgument Kind = "invalid_argument"
	// Cancelled means the caller cancelled an in-flight operation.
	Cancelled Kind = "cancelled"
	// InternalState means the client was used before it was ready.
	InternalState Kind = "internal_state"
)

// Error is the only error type returned by adapters and the storage client.
type Error struct {
	Kind     Kind
	Op       string
	Provider string
	Err      error
}

// Sentinels for errors.Is(err, provider.ErrFatal) style checks. They match any
// *Error of the same kind.
var (
	ErrRecoverable     = &Error{Kind: Recoverable}
	ErrFatal           = &Error{Kind: Fatal}
	ErrUnauthenticated = &Error{Kind: Unauthenticated}
	ErrInvalidArgument = &Error{Kind: InvalidArgument}
	ErrCancelled       = &Error{Kind: Cancelled}
	ErrInternalState   = &Error{Kind: InternalState}
)

// E builds an *Error.
func E(kind Kind, op, provider string, err error) *Error {
	return &Error{Kind: kind, Op: op, Provider: provider, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, provider, format string, args ...any) *Error {
	return E(kind, op, provider, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Provider != "" {
		msg = e.Provider + " " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels (an *Error with only Kind set).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Provider == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsRecoverable(err error) bool     { return KindOf(err) == Recoverable }
func IsFatal(err error) bool           { return KindOf(err) == Fatal }
func IsUnauthenticated(err error) bool { return KindOf(err) == Unauthenticated }
func IsInvalidArgument(err error) bool { return KindOf(err) == InvalidArgument }
func IsCancelled(err error) bool       { return KindOf(err) == Cancelled }

// CommonKind classifies failures that look the same whatever the provider:
// cancellation, deadlines, network timeouts, dropped connections and bad
// local targets. ok is false when err needs provider-specific inspection.
func CommonKind(err error) (kind Kind, ok bool) {
	if k := KindOf(err); k != "" {
		return k, true
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Cancelled, true
	case errors.Is(err, context.DeadlineExceeded):
		return Recoverable, true
	case errors.Is(err, transfer.ErrInvalidTarget), errors.Is(err, model.ErrDecode):
		return InvalidArgument, true
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return Recoverable, true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Recoverable, true
	}
	return "", false
}

// KindForStatus maps an HTTP status returned by a provider API.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return Recoverable
	case code >= 500 && code <= 599:
		return Recoverable
	default:
		return Fatal
	}
}

// Wrap converts err into an *Error. Existing *Error values are returned
// unchanged; otherwise CommonKind decides, falling back to fallback.
func Wrap(op, provider string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if k, ok := CommonKind(err); ok {
		return E(k, op, provider, err)
	}
	return E(fallback, op, provider, err)
}
