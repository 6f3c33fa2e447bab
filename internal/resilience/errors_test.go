package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient error", NewTransientError(errors.New("503"), 503), true},
		{"wrapped transient", fmt.Errorf("outer: %w", NewTransientError(errors.New("boom"), 500)), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"substring io timeout", errors.New("read tcp 1.2.3.4: i/o timeout"), true},
		{"substring no such host", errors.New("dial tcp: lookup graph.internal: no such host"), true},
		{"plain error", errors.New("validation failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	sentinel := errors.New("root cause")
	te := NewTransientError(sentinel, 502)
	if !errors.Is(te, sentinel) {
		t.Error("expected TransientError to unwrap to the root cause")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be transient", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 409, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be non-transient", code)
		}
	}
}
