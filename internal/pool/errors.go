package pool

import (
	"errors"
	"strconv"
)

// Kind classifies pool errors.
type Kind int

const (
	KindArtifactNotFound Kind = iota + 1
	KindArtifactCorrupt
	KindPoolExhausted
	KindAcquireTimeout
	KindInferenceFailed
	KindHandleNotFound
	KindPoolClosed
)

func (k Kind) String() string {
	switch k {
	case KindArtifactNotFound:
		return "artifact not found"
	case KindArtifactCorrupt:
		return "artifact corrupt"
	case KindPoolExhausted:
		return "pool exhausted"
	case KindAcquireTimeout:
		return "acquire timeout"
	case KindInferenceFailed:
		return "inference failed"
	case KindHandleNotFound:
		return "handle not found"
	case KindPoolClosed:
		return "pool closed"
	default:
		return "unknown pool error"
	}
}

// Error is returned by every pool operation that fails for a pool-level
// reason. Compare with errors.Is against the Err* sentinels.
type Error struct {
	Kind Kind
	Op   string
	// Handle is the handle ordinal involved, or -1.
	Handle int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Handle >= 0 {
		msg += " (handle " + strconv.Itoa(e.Handle) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrArtifactNotFound = &Error{Kind: KindArtifactNotFound, Handle: -1}
	ErrArtifactCorrupt  = &Error{Kind: KindArtifactCorrupt, Handle: -1}
	ErrPoolExhausted    = &Error{Kind: KindPoolExhausted, Handle: -1}
	ErrAcquireTimeout   = &Error{Kind: KindAcquireTimeout, Handle: -1}
	ErrInferenceFailed  = &Error{Kind: KindInferenceFailed, Handle: -1}
	ErrHandleNotFound   = &Error{Kind: KindHandleNotFound, Handle: -1}
	ErrPoolClosed       = &Error{Kind: KindPoolClosed, Handle: -1}
)

func newError(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Handle: -1, Err: err}
}

func handleError(k Kind, op string, handle int, err error) *Error {
	return &Error{Kind: k, Op: op, Handle: handle, Err: err}
}

// KindOf returns the pool error kind carried by err, or 0.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// IsArtifactNotFound reports whether pool creation failed to locate the artifact.
func IsArtifactNotFound(err error) bool { return errors.Is(err, ErrArtifactNotFound) }

// IsArtifactCorrupt reports whether the backend could not parse the artifact.
func IsArtifactCorrupt(err error) bool { return errors.Is(err, ErrArtifactCorrupt) }

// IsPoolExhausted reports a non-blocking Acquire with no idle handle (return 503).
func IsPoolExhausted(err error) bool { return errors.Is(err, ErrPoolExhausted) }

// IsAcquireTimeout reports a blocking Acquire that ran out of time (return 504).
func IsAcquireTimeout(err error) bool { return errors.Is(err, ErrAcquireTimeout) }

// IsInferenceFailed reports a rejected input or backend failure (return 422).
func IsInferenceFailed(err error) bool { return errors.Is(err, ErrInferenceFailed) }

// IsHandleNotFound reports a nil, foreign or unheld handle.
func IsHandleNotFound(err error) bool { return errors.Is(err, ErrHandleNotFound) }

// IsPoolClosed reports use of a pool after Close.
func IsPoolClosed(err error) bool { return errors.Is(err, ErrPoolClosed) }

// dependencyUnavailableError signals a missing inference runtime (e.g. a
// binary built without the onnx tag) so the HTTP layer can return 503.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}
