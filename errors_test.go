package guda

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestStructuredErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
		wantOp   string
		wantMsg  string
		checkFn  func(error) bool
	}{
		{
			name:     "Invalid Size Error",
			err:      ErrInvalidSize,
			wantType: ErrTypeInvalidValue,
			wantOp:   "Malloc",
			wantMsg:  "size must not be negative",
			checkFn:  IsInvalidValue,
		},
		{
			name:     "Invalid Device Error",
			err:      ErrInvalidDevice,
			wantType: ErrTypeInvalidValue,
			wantOp:   "SetDevice",
			wantMsg:  "invalid device ID",
			checkFn:  IsInvalidValue,
		},
		{
			name:     "Double Free Error",
			err:      ErrDoubleFree,
			wantType: ErrTypeAlreadyDestroyed,
			wantOp:   "Free",
			wantMsg:  "double free detected",
			checkFn:  IsAlreadyDestroyed,
		},
		{
			name:     "Launch Error",
			err:      NewLaunchError("LaunchKernel", "block (0,0,0) faulted", errors.New("boom")),
			wantType: ErrTypeLaunchFailure,
			wantOp:   "LaunchKernel",
			wantMsg:  "block (0,0,0) faulted",
			checkFn:  IsLaunchFailure,
		},
		{
			name:     "Not Ready",
			err:      NewNotReadyError("StreamQuery", "stream 3 has 2 pending tasks"),
			wantType: ErrTypeNotReady,
			wantOp:   "StreamQuery",
			wantMsg:  "stream 3 has 2 pending tasks",
			checkFn:  IsNotReady,
		},
		{
			name:     "Out Of Memory",
			err:      NewMemoryError("Malloc", "limit reached", nil),
			wantType: ErrTypeOutOfMemory,
			wantOp:   "Malloc",
			wantMsg:  "limit reached",
			checkFn:  IsMemoryError,
		},
		{
			name:     "Unsupported",
			err:      NewUnsupportedError("ModuleLoad", "module loading"),
			wantType: ErrTypeUnsupported,
			wantOp:   "ModuleLoad",
			wantMsg:  "module loading is not supported on the CPU backend",
			checkFn:  IsUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gErr *GUDAError
			if !errors.As(tt.err, &gErr) {
				t.Fatalf("Expected GUDAError, got %T", tt.err)
			}
			if gErr.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", gErr.Type, tt.wantType)
			}
			if gErr.Op != tt.wantOp {
				t.Errorf("Op = %v, want %v", gErr.Op, tt.wantOp)
			}
			if gErr.Message != tt.wantMsg {
				t.Errorf("Message = %v, want %v", gErr.Message, tt.wantMsg)
			}
			if !tt.checkFn(tt.err) {
				t.Errorf("Check function returned false for %v", tt.err)
			}
			if got := ErrorTypeOf(tt.err); got != tt.wantType {
				t.Errorf("ErrorTypeOf = %v, want %v", got, tt.wantType)
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := errors.New("underlying error")
	wrapped := NewLaunchError("LaunchKernel", "kernel faulted", baseErr)

	if !errors.Is(wrapped, baseErr) {
		t.Error("errors.Is failed to find base error")
	}
	if errors.Unwrap(wrapped) != baseErr {
		t.Error("Unwrap didn't return base error")
	}

	errStr := wrapped.Error()
	if !strings.Contains(errStr, "caused by") || !strings.Contains(errStr, "underlying error") {
		t.Errorf("Error string missing cause: %s", errStr)
	}

	outer := fmt.Errorf("stream 4: %w", wrapped)
	if !IsLaunchFailure(outer) {
		t.Error("IsLaunchFailure failed through fmt.Errorf wrapping")
	}
}

func TestErrorIs(t *testing.T) {
	err := NewInvalidValueError("LaunchKernel", "invalid block dimensions")

	if !errors.Is(err, ErrInvalidValue) {
		t.Error("errors.Is(ErrInvalidValue) failed")
	}
	if errors.Is(err, ErrNotReady) {
		t.Error("errors.Is matched a different type")
	}
	// Sentinels carrying an Op only match errors of that operation.
	if errors.Is(err, ErrInvalidSize) {
		t.Error("errors.Is matched a sentinel of another operation")
	}
	if !errors.Is(NewInvalidValueError("Malloc", "other"), ErrInvalidSize) {
		t.Error("errors.Is failed for the same type and operation")
	}
}

func TestErrorTypeOf(t *testing.T) {
	if got := ErrorTypeOf(nil); got != Success {
		t.Errorf("nil: got %v", got)
	}
	if got := ErrorTypeOf(errors.New("plain")); got != ErrTypeLaunchFailure {
		t.Errorf("plain error: got %v", got)
	}
	if got := ErrorType(99).String(); got != "Unknown" {
		t.Errorf("unknown type string: %q", got)
	}
}
