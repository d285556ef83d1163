// Package apperrors implements the typed error hierarchy shared by the CDP
// adapter and the action primitives, generalizing the base AppError pattern
// the rest of this codebase already uses for HTTP-facing errors.
package apperrors

import "fmt"

// AppError is the base application error type: a code, a message, and an
// optional wrapped cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// AdapterErrorKind enumerates the CDP adapter's error taxonomy (spec.md §4.1).
type AdapterErrorKind string

const (
	KindTargetNotFound AdapterErrorKind = "TARGET_NOT_FOUND"
	KindOptionNotFound AdapterErrorKind = "OPTION_NOT_FOUND"
	KindNavTimeout     AdapterErrorKind = "NAV_TIMEOUT"
	KindPolicyDenied   AdapterErrorKind = "POLICY_DENIED"
	KindCdpIo          AdapterErrorKind = "CDP_IO"
	KindInternal       AdapterErrorKind = "INTERNAL"
)

// AdapterError is the error type returned by internal/cdpadapter. Hint is an
// optional human-readable explanation.
type AdapterError struct {
	AppError
	Kind AdapterErrorKind
	Hint string
}

// NewAdapterError builds an AdapterError of the given kind.
func NewAdapterError(kind AdapterErrorKind, message string, cause error) *AdapterError {
	return &AdapterError{
		AppError: AppError{Code: string(kind), Message: message, Cause: cause},
		Kind:     kind,
	}
}

// WithHint attaches a human-readable hint and returns the error for chaining.
func (e *AdapterError) WithHint(hint string) *AdapterError {
	e.Hint = hint
	return e
}

// TargetNotFound builds a TargetNotFound AdapterError.
func TargetNotFound(message string) *AdapterError {
	return NewAdapterError(KindTargetNotFound, message, nil)
}

// NavTimeout builds a NavTimeout AdapterError.
func NavTimeout(cause error) *AdapterError {
	return NewAdapterError(KindNavTimeout, "navigation timed out", cause)
}

// PolicyDenied builds a PolicyDenied AdapterError.
func PolicyDenied(reason string) *AdapterError {
	return NewAdapterError(KindPolicyDenied, reason, nil)
}

// CdpIo builds a CdpIo AdapterError wrapping a transport failure.
func CdpIo(cause error) *AdapterError {
	return NewAdapterError(KindCdpIo, "CDP transport error", cause)
}

// OptionNotFound builds an OptionNotFound AdapterError.
func OptionNotFound(message string) *AdapterError {
	return NewAdapterError(KindOptionNotFound, message, nil)
}

// Internal builds an Internal AdapterError.
func Internal(message string, cause error) *AdapterError {
	return NewAdapterError(KindInternal, message, cause)
}

// ActionErrorKind enumerates the action-primitive error taxonomy (spec.md
// §4.5).
type ActionErrorKind string

const (
	ActInterrupted    ActionErrorKind = "INTERRUPTED"
	ActWaitTimeout    ActionErrorKind = "WAIT_TIMEOUT"
	ActAnchorNotFound ActionErrorKind = "ANCHOR_NOT_FOUND"
	ActNotClickable   ActionErrorKind = "NOT_CLICKABLE"
	ActNotEnabled     ActionErrorKind = "NOT_ENABLED"
	ActOptionNotFound ActionErrorKind = "OPTION_NOT_FOUND"
	ActPolicyDenied   ActionErrorKind = "POLICY_DENIED"
	ActCdpIo          ActionErrorKind = "CDP_IO"
	ActInternal       ActionErrorKind = "INTERNAL"
)

// PrimitiveError is the error type returned by internal/primitives.
type PrimitiveError struct {
	AppError
	Kind ActionErrorKind
}

// NewPrimitiveError builds a PrimitiveError of the given kind.
func NewPrimitiveError(kind ActionErrorKind, message string, cause error) *PrimitiveError {
	return &PrimitiveError{
		AppError: AppError{Code: string(kind), Message: message, Cause: cause},
		Kind:     kind,
	}
}

// Interrupted builds an Interrupted PrimitiveError.
func Interrupted() *PrimitiveError {
	return NewPrimitiveError(ActInterrupted, "action was cancelled", nil)
}

// WaitTimeout builds a WaitTimeout PrimitiveError.
func WaitTimeout(message string) *PrimitiveError {
	return NewPrimitiveError(ActWaitTimeout, message, nil)
}

// AnchorNotFound builds an AnchorNotFound PrimitiveError.
func AnchorNotFound(message string) *PrimitiveError {
	return NewPrimitiveError(ActAnchorNotFound, message, nil)
}

// NotClickable builds a NotClickable PrimitiveError.
func NotClickable(message string) *PrimitiveError {
	return NewPrimitiveError(ActNotClickable, message, nil)
}

// NotEnabled builds a NotEnabled PrimitiveError.
func NotEnabled(message string) *PrimitiveError {
	return NewPrimitiveError(ActNotEnabled, message, nil)
}

// FromAdapterError maps an AdapterErrorKind onto its corresponding
// ActionErrorKind, per the mapping table in spec.md §4.5.
func FromAdapterError(err *AdapterError) *PrimitiveError {
	switch err.Kind {
	case KindTargetNotFound:
		return NewPrimitiveError(ActAnchorNotFound, err.Message, err)
	case KindOptionNotFound:
		return NewPrimitiveError(ActOptionNotFound, err.Message, err)
	case KindNavTimeout:
		return NewPrimitiveError(ActWaitTimeout, err.Message, err)
	case KindPolicyDenied:
		return NewPrimitiveError(ActPolicyDenied, err.Message, err)
	default:
		return NewPrimitiveError(ActCdpIo, err.Message, err)
	}
}

// IsRetryable reports whether the flow interpreter's Retry failure strategy
// may reasonably re-attempt a step that failed with this error kind. Policy
// denials and interruptions are never retried (spec.md §7).
func (k ActionErrorKind) IsRetryable() bool {
	switch k {
	case ActPolicyDenied, ActInterrupted:
		return false
	default:
		return true
	}
}
