package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKind classifies a failure for recovery decisions: retry, fallback,
// provider removal, or surfacing to the caller.
type ErrKind int

const (
	ErrKindUnknown ErrKind = iota
	ErrKindTransport
	ErrKindRateLimit
	ErrKindAuth
	ErrKindParse
	ErrKindCapacity
	ErrKindSkill
	ErrKindValidation
	ErrKindQueue
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindTransport:
		return "transport"
	case ErrKindRateLimit:
		return "rate_limit"
	case ErrKindAuth:
		return "auth"
	case ErrKindParse:
		return "parse"
	case ErrKindCapacity:
		return "capacity"
	case ErrKindSkill:
		return "skill"
	case ErrKindValidation:
		return "validation"
	case ErrKindQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// Error carries an ErrKind alongside the wrapped cause.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a classified error wrapping an optional cause.
func NewError(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf extracts the ErrKind from an error chain. Plain errors are
// heuristically classified by message so that raw provider failures still
// route through the right recovery path.
func KindOf(err error) ErrKind {
	if err == nil {
		return ErrKindUnknown
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"):
		return ErrKindRateLimit
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "api key"):
		return ErrKindAuth
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"), strings.Contains(msg, "connection"), strings.Contains(msg, "request failed"), strings.Contains(msg, "eof"):
		return ErrKindTransport
	default:
		return ErrKindUnknown
	}
}

// IsRetryable reports whether the retry primitive should engage.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrKindTransport, ErrKindRateLimit:
		return true
	default:
		return false
	}
}
