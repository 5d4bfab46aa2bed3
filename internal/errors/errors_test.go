// Package errors tests for error code definitions and error handling.
package errors

import (
	"errors"
	"fmt"
	"testing"
)

// TestErrorCodeValues verifies all error codes have non-empty values.
func TestErrorCodeValues(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
	}{
		{"internal", ErrInternal},
		{"not found", ErrNotFound},
		{"validation", ErrValidation},
		{"storage", ErrStorage},
		{"migration", ErrMigration},
		{"network", ErrNetwork},
		{"malformed", ErrMalformedResponse},
		{"session expired", ErrSessionExpired},
		{"throttled", ErrThrottled},
		{"offline", ErrOffline},
		{"remote rejected", ErrRemoteRejected},
		{"sync in progress", ErrSyncInProgress},
		{"sync failed", ErrSyncFailed},
		{"sync timeout", ErrSyncTimeout},
		{"no session", ErrNoSession},
		{"upload failed", ErrUploadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code == "" {
				t.Errorf("ErrorCode %q should not be empty", tt.name)
			}
		})
	}
}

// TestAppError_Error verifies error message formatting.
func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "error without underlying error",
			appError: &AppError{Code: ErrInternal, Message: "something failed"},
			want:     "[INTERNAL_ERROR] something failed",
		},
		{
			name:     "error with underlying error",
			appError: &AppError{Code: ErrStorage, Message: "insert failed", Err: errors.New("disk full")},
			want:     "[STORAGE_ERROR] insert failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appError.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestWrap_unwrap verifies the underlying error stays reachable.
func TestWrap_unwrap(t *testing.T) {
	base := errors.New("connection reset")
	err := Wrap(ErrNetwork, "GET jobtypes.php", base)

	if !errors.Is(err, base) {
		t.Error("errors.Is should find the wrapped error")
	}
	if err.Unwrap() != base {
		t.Error("Unwrap() should return the wrapped error")
	}
}

// TestIs verifies code matching through wrapping layers.
func TestIs(t *testing.T) {
	inner := New(ErrSessionExpired, "401 from server")
	outer := fmt.Errorf("prefetch jobs: %w", inner)
	nested := Wrap(ErrSyncFailed, "sync job", inner)

	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"direct match", inner, ErrSessionExpired, true},
		{"through fmt wrap", outer, ErrSessionExpired, true},
		{"outer code", nested, ErrSyncFailed, true},
		{"inner code through AppError", nested, ErrSessionExpired, true},
		{"no match", inner, ErrNetwork, false},
		{"plain error", errors.New("x"), ErrInternal, false},
		{"nil error", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is(%v, %s) = %v, want %v", tt.err, tt.code, got, tt.want)
			}
		})
	}
}

// TestCodeOf verifies the outermost code is reported.
func TestCodeOf(t *testing.T) {
	if got := CodeOf(Wrap(ErrStorage, "x", New(ErrNotFound, "y"))); got != ErrStorage {
		t.Errorf("CodeOf() = %s, want %s", got, ErrStorage)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternal {
		t.Errorf("CodeOf(plain) = %s, want %s", got, ErrInternal)
	}
}

// TestHelpers verifies the convenience predicates.
func TestHelpers(t *testing.T) {
	if !IsSessionExpired(New(ErrSessionExpired, "x")) {
		t.Error("IsSessionExpired() should be true")
	}
	for _, code := range []ErrorCode{ErrNetwork, ErrOffline, ErrThrottled} {
		if !IsNetwork(New(code, "x")) {
			t.Errorf("IsNetwork(%s) should be true", code)
		}
	}
	if IsNetwork(New(ErrMalformedResponse, "x")) {
		t.Error("IsNetwork(malformed) should be false")
	}
}
