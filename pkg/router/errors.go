package router

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for registry misuse.
var (
	// ErrPageWithoutID is returned when a page route is registered with
	// an empty chunk id.
	ErrPageWithoutID = errors.New("router: page route requires a non-empty id")

	// ErrRegistrySealed is returned when registration is attempted after
	// the registry has been sorted and sealed for serving.
	ErrRegistrySealed = errors.New("router: registry is sealed")

	// ErrNoLoader is returned when an unresolved route has no loader to
	// upgrade it with.
	ErrNoLoader = errors.New("router: unresolved route has no loader")
)

// Error is an HTTP-coded failure. Controllers raise it directly or let
// arbitrary errors be wrapped at the engine boundary; either way the
// resolution engine maps it to an error route and the caller's
// negotiated format.
type Error struct {
	// Code is the HTTP status code. Code 0 is reserved for client-side
	// transport failures (offline).
	Code int

	// Message is the user-facing message. For 500-class failures in
	// production builds the engine replaces it with a generic string.
	Message string

	// Details carries optional structured context, serialized for
	// JSON-accepting callers.
	Details any

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code for this error.
func (e *Error) StatusCode() int {
	return e.Code
}

// NotFound creates a 404 failure. Raised by the engine when the scan is
// exhausted, or by controllers that looked something up and missed.
func NotFound(message ...string) *Error {
	return coded(http.StatusNotFound, "not found", message)
}

// Unauthorized creates a 401 failure: authentication required.
func Unauthorized(message ...string) *Error {
	return coded(http.StatusUnauthorized, "authentication required", message)
}

// Forbidden creates a 403 failure: authenticated but not allowed.
func Forbidden(message ...string) *Error {
	return coded(http.StatusForbidden, "forbidden", message)
}

// BadRequest creates a 400 failure for invalid controller input.
func BadRequest(message ...string) *Error {
	return coded(http.StatusBadRequest, "bad request", message)
}

// BadRequestf creates a 400 failure with a formatted message.
func BadRequestf(format string, args ...any) *Error {
	return &Error{Code: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected error as a 500 failure.
func Internal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: http.StatusInternalServerError, Message: msg, Err: err}
}

// NetworkError wraps a client-side transport failure. Its code is 0:
// there is no HTTP status because the request never completed.
func NetworkError(err error) *Error {
	return &Error{Code: 0, Message: "network unreachable", Err: err}
}

func coded(code int, def string, message []string) *Error {
	msg := def
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	return &Error{Code: code, Message: msg}
}

// CodeOf resolves any error to an HTTP status code. Coded errors report
// their own code; everything else is an anomaly and maps to 500.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// AsError normalizes any error into *Error, wrapping anomalies as 500.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
