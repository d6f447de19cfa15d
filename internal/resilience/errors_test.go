package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_TransientError(t *testing.T) {
	err := NewTransientError(errors.New("rate limited"), 429)
	if !IsTransient(err) {
		t.Error("TransientError should be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("server error"), 503)
	wrapped := fmt.Errorf("calling model: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	cases := []string{
		"read tcp: connection reset by peer",
		"write: broken pipe",
		"dial tcp: i/o timeout",
		"net/http: TLS handshake timeout",
	}
	for _, msg := range cases {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("expected transient: %q", msg)
		}
	}
}

func TestIsTransient_PermanentError(t *testing.T) {
	if IsTransient(errors.New("invalid request body")) {
		t.Error("permanent error should not be transient")
	}
}

func TestIsRunFatal(t *testing.T) {
	cases := []struct {
		err   error
		fatal bool
	}{
		{&QuotaExceededError{Err: errors.New("credit balance too low")}, true},
		{&UnauthorizedError{Service: "sheets", Err: errors.New("403")}, true},
		{&SchemaMismatchError{Detail: "expected 5 columns, sheet has 3"}, true},
		{fmt.Errorf("run: %w", &QuotaExceededError{Err: errors.New("out of credit")}), true},
		{&SchemaViolationError{Detail: "bad json"}, false},
		{NewTransientError(errors.New("503"), 503), false},
		{errors.New("plain"), false},
	}
	for _, c := range cases {
		if got := IsRunFatal(c.err); got != c.fatal {
			t.Errorf("IsRunFatal(%v) = %v, want %v", c.err, got, c.fatal)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}
