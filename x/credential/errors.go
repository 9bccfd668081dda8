package credential

import (
	"errors"
	"fmt"
)

// Kind classifies credential errors. Kinds are stable and surfaced to callers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindInvalidState
	KindAlreadyClaimed
	KindReplayRejected
	KindRelayTimeout
	KindRelayFailure
	KindPrecondition
)

// String returns the stable code of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidState:
		return "invalid_state"
	case KindAlreadyClaimed:
		return "already_claimed"
	case KindReplayRejected:
		return "replay_rejected"
	case KindRelayTimeout:
		return "relay_timeout"
	case KindRelayFailure:
		return "relay_failure"
	case KindPrecondition:
		return "precondition"
	default:
		return "internal"
	}
}

// Retryable reports whether a claim tries again with a fresh authorization.
// Only a timeout leaves the mint outcome unknown; every other kind is final.
func (k Kind) Retryable() bool {
	return k == KindRelayTimeout
}

// Error is the structured error returned by every credential component.
type Error struct {
	Kind          Kind
	Message       string
	Cause         error
	Context       map[string]interface{}
	AchievementID string
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.AchievementID != "" {
		prefix = fmt.Sprintf("%s [achievement %s]", prefix, e.AchievementID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so errors.Is(err, ErrAlreadyClaimed) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.AchievementID == ""
}

// NewError creates an error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// Errorf creates an error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// WithCause adds a cause error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithContext adds context information
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAchievement binds the error to an achievement id
func (e *Error) WithAchievement(id string) *Error {
	e.AchievementID = id
	return e
}

// Sentinels for errors.Is comparisons; they carry only a kind.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrUnauthorized   = &Error{Kind: KindUnauthorized}
	ErrInvalidState   = &Error{Kind: KindInvalidState}
	ErrAlreadyClaimed = &Error{Kind: KindAlreadyClaimed}
	ErrReplayRejected = &Error{Kind: KindReplayRejected}
	ErrRelayTimeout   = &Error{Kind: KindRelayTimeout}
	ErrRelayFailure   = &Error{Kind: KindRelayFailure}
	ErrPrecondition   = &Error{Kind: KindPrecondition}
)

func Validation(format string, args ...interface{}) *Error {
	return Errorf(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return Errorf(KindNotFound, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return Errorf(KindUnauthorized, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return Errorf(KindInvalidState, format, args...)
}

func AlreadyClaimed(format string, args ...interface{}) *Error {
	return Errorf(KindAlreadyClaimed, format, args...)
}

func ReplayRejected(format string, args ...interface{}) *Error {
	return Errorf(KindReplayRejected, format, args...)
}

func RelayTimeout(format string, args ...interface{}) *Error {
	return Errorf(KindRelayTimeout, format, args...)
}

func RelayFailure(format string, args ...interface{}) *Error {
	return Errorf(KindRelayFailure, format, args...)
}

func Precondition(format string, args ...interface{}) *Error {
	return Errorf(KindPrecondition, format, args...)
}

func Internal(format string, args ...interface{}) *Error {
	return Errorf(KindInternal, format, args...)
}

// KindOf extracts the kind of err; errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// InvalidTransition builds the error returned when a compare-and-set precondition fails.
func InvalidTransition(id string, current Status, op string) *Error {
	return InvalidState("cannot %s achievement in status %q", op, current).
		WithAchievement(id).
		WithContext("status", string(current))
}
