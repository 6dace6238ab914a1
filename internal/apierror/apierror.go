// Package apierror defines the typed error taxonomy shared by every
// gateway component and the uniform JSON envelope rendered to callers.
package apierror

import (
	"errors"
	"net/http"
)

// Kind identifies the class of a gateway error. Each kind maps to a fixed
// HTTP status and envelope name.
type Kind int

const (
	KindBadRequest Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindTooManyRequests
	KindUpstream
	KindConfiguration
	KindInternal
)

// Error is the single error type crossing component boundaries. Message is
// rendered to the caller; Status overrides the kind's default HTTP status
// for upstream passthrough errors.
type Error struct {
	Kind    Kind
	Message any
	Status  int
	cause   error
}

func (e *Error) Error() string {
	if s, ok := e.Message.(string); ok {
		return s
	}
	return e.Name()
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Name returns the envelope name for the error kind.
func (e *Error) Name() string {
	switch e.Kind {
	case KindBadRequest:
		return "BadRequestError"
	case KindUnauthorized:
		return "UnauthorizedError"
	case KindForbidden:
		return "ForbiddenError"
	case KindNotFound:
		return "NotFoundError"
	case KindTooManyRequests:
		return "TooManyRequestsError"
	case KindUpstream:
		return "UpstreamError"
	case KindConfiguration:
		return "ConfigurationError"
	default:
		return "InternalServerError"
	}
}

// StatusCode returns the HTTP status for the error. An explicit Status
// (set when mirroring an upstream response) wins over the kind default.
func (e *Error) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Envelope is the JSON error shape returned to callers.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    any    `json:"message"`
}

// ToEnvelope converts any error into the uniform envelope. Untyped errors
// are rendered as a generic 500 without leaking internals.
func ToEnvelope(err error) Envelope {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return Envelope{
			StatusCode: apiErr.StatusCode(),
			Name:       apiErr.Name(),
			Message:    apiErr.Message,
		}
	}
	return Envelope{
		StatusCode: http.StatusInternalServerError,
		Name:       "InternalServerError",
		Message:    "Something went wrong",
	}
}

// BadRequest builds a 400 error.
func BadRequest(msg any) *Error { return &Error{Kind: KindBadRequest, Message: msg} }

// Unauthorized builds a 401 error.
func Unauthorized(msg any) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

// Forbidden builds a 403 error.
func Forbidden(msg any) *Error { return &Error{Kind: KindForbidden, Message: msg} }

// NotFound builds a 404 error.
func NotFound(msg any) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// TooManyRequests builds a 429 error.
func TooManyRequests(msg any) *Error { return &Error{Kind: KindTooManyRequests, Message: msg} }

// Upstream builds an error mirroring an upstream failure. status may be 0
// when the upstream was unreachable, in which case the envelope carries 500.
func Upstream(status int, msg any) *Error {
	if status == 0 {
		return &Error{Kind: KindUpstream, Message: msg, Status: http.StatusInternalServerError}
	}
	return &Error{Kind: KindUpstream, Message: msg, Status: status}
}

// Configuration builds a startup-fatal configuration error.
func Configuration(msg any) *Error { return &Error{Kind: KindConfiguration, Message: msg} }

// Wrap attaches a cause to an Error for logging and errors.Is chains.
func Wrap(e *Error, cause error) *Error {
	e.cause = cause
	return e
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}
