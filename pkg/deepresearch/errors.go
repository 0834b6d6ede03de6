package deepresearch

import (
	"errors"
	"fmt"
)

// Kind classifies a deepresearch error per the taxonomy in the design doc.
type Kind string

const (
	KindCancelled      Kind = "cancelled"
	KindRateLimited    Kind = "rate_limited"
	KindTransient      Kind = "transient"
	KindUnauthenticated Kind = "unauthenticated"
	KindInvalidInput   Kind = "invalid_input"
	KindFatal          Kind = "fatal"
	KindProviderError  Kind = "provider_error"
	KindBadResponse    Kind = "bad_response"
	KindEmpty          Kind = "empty"
)

// Error wraps an underlying error with a Kind so callers can branch on
// recovery strategy with errors.Is / errors.As without string matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, deepresearch.ErrCancelled) match any *Error with
// the same Kind, regardless of the wrapped detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// newError builds a *Error of the given kind wrapping err. Callers
// branching on kind use errors.Is against the sentinels below, errors.As
// to inspect Kind, or the IsKind helper.
func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WrapError attaches kind to err, or replaces the kind if err is already a
// *Error, so retry loops can escalate a generic error into the taxonomy.
func WrapError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return newError(kind, err)
}

// IsKind reports whether err (or any error it wraps) is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == k
	}
	return false
}

// Sentinel errors for direct comparison where no extra context is needed.
var (
	ErrCancelled      = newError(KindCancelled, errors.New("session cancelled"))
	ErrRateLimited    = newError(KindRateLimited, errors.New("rate limited"))
	ErrTransient      = newError(KindTransient, errors.New("transient failure"))
	ErrUnauthenticated = newError(KindUnauthenticated, errors.New("unauthenticated"))
	ErrInvalidInput   = newError(KindInvalidInput, errors.New("invalid input"))
	ErrFatal          = newError(KindFatal, errors.New("fatal error"))
)
