// Package apierror normalizes failures of the back-office REST API into one typed error.
package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrorCode represents a specific error type for API operations.
type ErrorCode string

const (
	// ErrCodeTransport indicates the request never reached the server or no response was received.
	ErrCodeTransport ErrorCode = "TRANSPORT"
	// ErrCodeValidation indicates the server rejected the payload.
	ErrCodeValidation ErrorCode = "VALIDATION"
	// ErrCodeUnauthorized indicates a missing or expired credential.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeForbidden indicates the credential lacks permission.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrCodeNotFound indicates the targeted record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeConflict indicates the write collides with existing state.
	ErrCodeConflict ErrorCode = "CONFLICT"
	// ErrCodeRateLimited indicates the server throttled the caller.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeInternal indicates a 5xx response or an undecodable body.
	ErrCodeInternal ErrorCode = "INTERNAL"
	// ErrCodeCanceled indicates the caller canceled the operation.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// GenericTransportMessage is reported when a request failed without a server response.
const GenericTransportMessage = "unable to reach the server"

// Error represents a structured error for API operations.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	// Fields holds field-level validation messages when the server supplies them.
	Fields map[string]string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// FromResponse builds an error from a non-2xx status and its raw body.
// The server message is kept verbatim; a generic status text is used when absent.
// Message and field values may be a string or a list of strings.
func FromResponse(status int, raw []byte) *Error {
	e := &Error{Code: CodeForStatus(status), Status: status}

	var envelope map[string]json.RawMessage
	if len(raw) > 0 && json.Unmarshal(raw, &envelope) == nil {
		e.Message = text(envelope["message"])
		if e.Message == "" {
			e.Message = text(envelope["error"])
		}
		var fields map[string]json.RawMessage
		if errs, ok := envelope["errors"]; ok && json.Unmarshal(errs, &fields) == nil {
			for name, value := range fields {
				if msg := text(value); msg != "" {
					if e.Fields == nil {
						e.Fields = make(map[string]string, len(fields))
					}
					e.Fields[name] = msg
				}
			}
		}
	}
	if e.Message == "" {
		if statusText := http.StatusText(status); statusText != "" {
			e.Message = strings.ToLower(statusText)
		} else {
			e.Message = fmt.Sprintf("unexpected status %d", status)
		}
	}
	return e
}

// text reads a JSON string or list of strings; lists are joined with "; ".
func text(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

// CodeForStatus maps an HTTP status to an error code.
func CodeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case status == http.StatusForbidden:
		return ErrCodeForbidden
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusConflict:
		return ErrCodeConflict
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status >= 400 && status < 500:
		return ErrCodeValidation
	default:
		return ErrCodeInternal
	}
}

// Transport creates a transport error for a request that got no response.
func Transport(cause error) *Error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return &Error{Code: ErrCodeCanceled, Message: "request canceled", Cause: cause}
	}
	return &Error{Code: ErrCodeTransport, Message: GenericTransportMessage, Cause: cause}
}

// Validation creates a validation error raised before any request is sent.
func Validation(msg string, fields map[string]string) *Error {
	return &Error{Code: ErrCodeValidation, Status: http.StatusBadRequest, Message: msg, Fields: fields}
}

// Internal wraps a local failure such as an undecodable body.
func Internal(msg string, cause error) *Error {
	return &Error{Code: ErrCodeInternal, Message: msg, Cause: cause}
}

// As extracts an *Error from any error chain.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if apiErr, ok := As(err); ok {
		return apiErr.Code == code
	}
	return false
}

// CodeOf extracts the error code from any error.
// Returns the provided default code if the error is not an *Error.
func CodeOf(err error, defaultCode ErrorCode) ErrorCode {
	if apiErr, ok := As(err); ok {
		return apiErr.Code
	}
	return defaultCode
}

func IsNotFound(err error) bool     { return IsCode(err, ErrCodeNotFound) }
func IsValidation(err error) bool   { return IsCode(err, ErrCodeValidation) }
func IsUnauthorized(err error) bool { return IsCode(err, ErrCodeUnauthorized) }
func IsTransport(err error) bool    { return IsCode(err, ErrCodeTransport) }
