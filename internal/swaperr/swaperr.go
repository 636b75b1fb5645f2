package swaperr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories attached at the point of
// failure. Presentation layers map kinds to user text instead of sniffing
// error strings.
type Kind int

const (
	// KindUnknown covers errors that did not originate in this module.
	KindUnknown Kind = iota
	// KindConfig marks a fatal per-attempt configuration problem, such as a
	// missing signed-order bundle. Not retryable by fixing anything on-chain.
	KindConfig
	// KindChain marks an on-chain call failure: revert, RPC error, missing
	// event. Retryable on the next scheduler cycle.
	KindChain
	// KindStore marks a persistence failure.
	KindStore
	// KindFunds marks an expected, user-actionable precondition failure
	// (insufficient balance or allowance).
	KindFunds
	// KindNotFound marks a lookup miss in the store.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindChain:
		return "chain"
	case KindStore:
		return "store"
	case KindFunds:
		return "funds"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a kinded error from a format string.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap annotates err with an operation name and a kind. If err already
// carries a kind it is preserved.
func Wrap(kind Kind, op string, err error) *Error {
	var inner *Error
	if errors.As(err, &inner) {
		kind = inner.Kind
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
