package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"bad request", BadRequest("x"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("x"), http.StatusUnauthorized},
		{"forbidden", Forbidden("x"), http.StatusForbidden},
		{"not found", NotFound("x"), http.StatusNotFound},
		{"too many requests", TooManyRequests("x"), http.StatusTooManyRequests},
		{"upstream with status", Upstream(503, "x"), http.StatusServiceUnavailable},
		{"upstream unreachable", Upstream(0, "x"), http.StatusInternalServerError},
		{"configuration", Configuration("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.StatusCode(); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestToEnvelope(t *testing.T) {
	env := ToEnvelope(Forbidden("not enough credits"))
	if env.StatusCode != http.StatusForbidden {
		t.Errorf("statusCode = %d, want 403", env.StatusCode)
	}
	if env.Name != "ForbiddenError" {
		t.Errorf("name = %q, want ForbiddenError", env.Name)
	}
	if env.Message != "not enough credits" {
		t.Errorf("message = %v", env.Message)
	}
}

func TestToEnvelopeUntypedError(t *testing.T) {
	env := ToEnvelope(errors.New("sqlite: disk I/O error"))
	if env.StatusCode != http.StatusInternalServerError {
		t.Errorf("statusCode = %d, want 500", env.StatusCode)
	}
	if env.Message != "Something went wrong" {
		t.Errorf("internal details leaked: %v", env.Message)
	}
}

func TestToEnvelopeWrappedError(t *testing.T) {
	inner := NotFound("no account found")
	wrapped := fmt.Errorf("resolving identity: %w", inner)
	env := ToEnvelope(wrapped)
	if env.StatusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, want 404", env.StatusCode)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("cipher: message authentication failed")
	err := Wrap(BadRequest("malformed project key"), cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
}

func TestIsKind(t *testing.T) {
	if !IsKind(TooManyRequests("x"), KindTooManyRequests) {
		t.Error("IsKind should match")
	}
	if IsKind(errors.New("plain"), KindTooManyRequests) {
		t.Error("IsKind matched a plain error")
	}
}
