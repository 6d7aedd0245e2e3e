// Package domainerrors defines the code-tagged error family used at service
// boundaries. Lower layers return sentinel errors (pkg/platform/sentinel);
// services wrap them exactly once into an Error carrying a Code, a caller-safe
// message, and optionally an ordered list of per-field validation failures.
// Transports translate Code to a status via ToHTTPStatus instead of matching
// on concrete error types.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code classifies an error for boundary translation.
type Code string

const (
	// CodeValidation marks client-fixable input problems: bad fields,
	// expired or unmatched verification codes, exhausted retries.
	CodeValidation Code = "validation"
	// CodeUnauthorized marks missing or unusable credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks authenticated callers lacking the required role.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks lookups that resolved to nothing.
	CodeNotFound Code = "not_found"
	// CodeConflict marks collisions with existing state: duplicate rows,
	// already-consumed codes, invalid references.
	CodeConflict Code = "conflict"
	// CodeLocked marks optimistic-concurrency losers; the operation is
	// retryable with fresh state.
	CodeLocked Code = "locked"
	// CodeTooManyRequests marks rate-limited callers.
	CodeTooManyRequests Code = "too_many_requests"
	// CodeDependency marks downstream infrastructure failures.
	CodeDependency Code = "dependency"
	// CodeTimeout marks operations abandoned on a deadline.
	CodeTimeout Code = "timeout"
	// CodeInternal marks unclassified service failures.
	CodeInternal Code = "internal"
)

// FieldError is a single field-level validation failure. Order is
// significant: it matches the declaration order of the rules that produced it.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the boundary error type.
type Error struct {
	Code    Code
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		return strings.Join(parts, "; ")
	}
	return string(e.Code)
}

// Unwrap exposes the wrapped cause so errors.Is keeps working against
// sentinels buried beneath the boundary wrap.
func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with a code and caller-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to a cause. A nil cause yields nil so
// callers can wrap unconditionally.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// WithFields builds a validation Error from ordered field failures.
func WithFields(code Code, message string, fields []FieldError) *Error {
	return &Error{Code: code, Message: message, Fields: fields}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// boundary error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// FieldsOf returns the field failures carried by err, if any.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

var httpStatus = map[Code]int{
	CodeValidation:      http.StatusBadRequest,
	CodeUnauthorized:    http.StatusUnauthorized,
	CodeForbidden:       http.StatusForbidden,
	CodeNotFound:        http.StatusNotFound,
	CodeConflict:        http.StatusConflict,
	CodeLocked:          http.StatusLocked,
	CodeTooManyRequests: http.StatusTooManyRequests,
	CodeDependency:      http.StatusBadGateway,
	CodeTimeout:         http.StatusGatewayTimeout,
	CodeInternal:        http.StatusInternalServerError,
}

// ToHTTPStatus maps a code to its transport status. Unknown codes map to 500.
func ToHTTPStatus(code Code) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
