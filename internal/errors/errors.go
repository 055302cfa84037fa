// Package errors provides the structured error domain for Miller.
//
// Kinds map to recovery policy: NotFound and IndexError are recovered
// locally (empty results), ValidationError surfaces to the caller,
// StoreError{Busy} is retried with bounded backoff, EmbedderError degrades
// semantic search to text, WatcherError downgrades the backend, and
// ProtocolError drops the offending frame.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the domain-level error classification.
type Kind string

const (
	// KindNotFound means a requested symbol, file, or workspace does not
	// exist. Searches never raise it; an empty list is the no-match signal.
	KindNotFound Kind = "NOT_FOUND"
	// KindValidation means malformed input (depth out of range, unknown
	// direction or mode). Always surfaced to the caller.
	KindValidation Kind = "VALIDATION"
	// KindStore means metadata store I/O, corruption, or FK violation.
	KindStore Kind = "STORE"
	// KindIndex means the full-text index rejected a query; recovered by
	// returning an empty result set with a warning log.
	KindIndex Kind = "INDEX"
	// KindEmbedder means the external embedder is unavailable or slow;
	// semantic and hybrid methods degrade to text.
	KindEmbedder Kind = "EMBEDDER"
	// KindWatcher means the native watch backend failed; the watcher
	// auto-switches to the polled fallback.
	KindWatcher Kind = "WATCHER"
	// KindProtocol means an invalid JSON-RPC frame; discarded.
	KindProtocol Kind = "PROTOCOL"
	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = "INTERNAL"
)

// StoreKind subdivides KindStore for retry and fatality decisions.
type StoreKind string

const (
	StoreIntegrityViolation StoreKind = "INTEGRITY_VIOLATION"
	StoreBusy               StoreKind = "BUSY"
	StoreCorrupt            StoreKind = "CORRUPT"
	StoreIo                 StoreKind = "IO"
)

// Error is the structured error type carried across component boundaries.
type Error struct {
	Kind      Kind
	StoreKind StoreKind // set only when Kind == KindStore
	Message   string
	Cause     error
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StoreKind != "" {
		return fmt.Sprintf("[%s/%s] %s", e.Kind, e.StoreKind, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches by Kind (and StoreKind when both are set).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	if t.StoreKind != "" {
		return e.StoreKind == t.StoreKind
	}
	return true
}

// New creates an Error with the given kind and message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a kind. Returns nil for nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// NotFound creates a NOT_FOUND error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Validation creates a VALIDATION error.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// Store creates a STORE error of the given sub-kind. Busy errors are
// retryable.
func Store(sk StoreKind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:      KindStore,
		StoreKind: sk,
		Message:   fmt.Sprintf(format, args...),
		Cause:     err,
		Retryable: sk == StoreBusy,
	}
}

// Embedder creates an EMBEDDER error (retryable).
func Embedder(err error, format string, args ...any) *Error {
	e := Wrap(KindEmbedder, err, format, args...)
	if e == nil {
		e = New(KindEmbedder, format, args...)
	}
	e.Retryable = true
	return e
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsStoreKind reports whether err is a STORE error of the given sub-kind.
func IsStoreKind(err error, sk StoreKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindStore && e.StoreKind == sk
	}
	return false
}

// IsRetryable reports whether the operation may be retried.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
