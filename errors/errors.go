package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidCredentials = New(CodeUnauthenticated, "invalid credentials")
	ErrUserAlreadyExists  = New(CodeAlreadyExists, "username already taken")
	ErrInvalidPassword    = New(CodeInvalidArgument, "password does not meet complexity rules")
	ErrTokenGeneration    = New(CodeInternal, "token generation failed")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrSinkClosed         = fmt.Errorf("sink closed")
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthenticated, msg)
}

func Forbidden(msg string) error {
	return New(CodePermissionDenied, msg)
}

func FailedPrecondition(msg string) error {
	return New(CodeFailedPrecondition, msg)
}

// Store wraps a durable-store failure. The cause is kept for logs but
// never reaches the wire.
func Store(op string, cause error) error {
	return Wrap(CodeInternal, op+" failed", cause)
}

// CodeOf extracts the taxonomy code, defaulting to UNKNOWN.
func CodeOf(err error) Code {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return CodeUnknown
}

// WireMessage is the error text exposed to clients. Internal failures
// are flattened to a generic message so store details do not leak.
func WireMessage(err error) string {
	var app *AppError
	if errors.As(err, &app) && app.Code != CodeInternal {
		return app.Message
	}
	return "internal error"
}

// HTTPStatus maps the taxonomy onto the REST fallback surface.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeFailedPrecondition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
