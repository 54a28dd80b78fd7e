// Package guda structured error types for better error handling
package guda

import (
	"errors"
	"fmt"
)

// ErrorType represents categories of errors
type ErrorType int

const (
	// Success is the type reported for a nil error
	Success ErrorType = iota
	// Malformed dimensions, missing required values, limits exceeded
	ErrTypeInvalidValue
	// Allocation failures
	ErrTypeOutOfMemory
	// Kernel body or task faulted, or a barrier usage violation
	ErrTypeLaunchFailure
	// Non-blocking query on unfinished work
	ErrTypeNotReady
	// Handle used after destruction
	ErrTypeAlreadyDestroyed
	// Intentionally unimplemented features
	ErrTypeUnsupported
)

// GUDAError represents a structured error with context
type GUDAError struct {
	Type    ErrorType
	Op      string      // Operation that failed
	Message string      // Human-readable message
	Err     error       // Underlying error if any
	Context interface{} // Additional context
}

// Error implements the error interface
func (e *GUDAError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("GUDA %s error in %s: %s (caused by: %v)",
			e.Type.String(), e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("GUDA %s error in %s: %s",
		e.Type.String(), e.Op, e.Message)
}

// Unwrap allows error chain inspection
func (e *GUDAError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a GUDAError of the same type. A target with
// an Op only matches errors from that operation.
func (e *GUDAError) Is(target error) bool {
	t, ok := target.(*GUDAError)
	if !ok {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

// String returns the error type as a string
func (t ErrorType) String() string {
	switch t {
	case Success:
		return "Success"
	case ErrTypeInvalidValue:
		return "InvalidValue"
	case ErrTypeOutOfMemory:
		return "OutOfMemory"
	case ErrTypeLaunchFailure:
		return "LaunchFailure"
	case ErrTypeNotReady:
		return "NotReady"
	case ErrTypeAlreadyDestroyed:
		return "AlreadyDestroyed"
	case ErrTypeUnsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Common error constructors

// NewInvalidValueError creates an invalid value error
func NewInvalidValueError(op string, message string) error {
	return &GUDAError{
		Type:    ErrTypeInvalidValue,
		Op:      op,
		Message: message,
	}
}

// NewMemoryError creates an out-of-memory error
func NewMemoryError(op string, message string, err error) error {
	return &GUDAError{
		Type:    ErrTypeOutOfMemory,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewLaunchError creates a launch failure wrapping the fault of a kernel
// body or task
func NewLaunchError(op string, message string, err error) error {
	return &GUDAError{
		Type:    ErrTypeLaunchFailure,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewNotReadyError creates a not-ready status
func NewNotReadyError(op string, message string) error {
	return &GUDAError{
		Type:    ErrTypeNotReady,
		Op:      op,
		Message: message,
	}
}

// NewDestroyedError creates an already-destroyed error
func NewDestroyedError(op string, message string) error {
	return &GUDAError{
		Type:    ErrTypeAlreadyDestroyed,
		Op:      op,
		Message: message,
	}
}

// NewUnsupportedError creates an unsupported feature error
func NewUnsupportedError(op string, feature string) error {
	return &GUDAError{
		Type:    ErrTypeUnsupported,
		Op:      op,
		Message: feature + " is not supported on the CPU backend",
	}
}

// Common pre-defined errors. errors.Is matches any error of the same type
// against these.

var (
	// ErrInvalidValue matches every invalid value error
	ErrInvalidValue = &GUDAError{Type: ErrTypeInvalidValue, Message: "invalid value"}

	// ErrOutOfMemory indicates memory allocation failure
	ErrOutOfMemory = &GUDAError{Type: ErrTypeOutOfMemory, Message: "out of memory"}

	// ErrLaunchFailure matches every failed launch or task
	ErrLaunchFailure = &GUDAError{Type: ErrTypeLaunchFailure, Message: "launch failure"}

	// ErrNotReady matches every not-ready status
	ErrNotReady = &GUDAError{Type: ErrTypeNotReady, Message: "not ready"}

	// ErrAlreadyDestroyed matches every use of a destroyed handle
	ErrAlreadyDestroyed = &GUDAError{Type: ErrTypeAlreadyDestroyed, Message: "already destroyed"}

	// ErrUnsupported matches every unsupported feature error
	ErrUnsupported = &GUDAError{Type: ErrTypeUnsupported, Message: "unsupported"}

	// ErrInvalidSize indicates invalid size parameter
	ErrInvalidSize = NewInvalidValueError("Malloc", "size must not be negative")

	// ErrNullPointer indicates null pointer access
	ErrNullPointer = NewInvalidValueError("Memory", "null pointer")

	// ErrDoubleFree indicates double free attempt
	ErrDoubleFree = NewDestroyedError("Free", "double free detected")

	// ErrInvalidDevice indicates invalid device ID
	ErrInvalidDevice = NewInvalidValueError("SetDevice", "invalid device ID")
)

// ErrorTypeOf returns the type of err, Success for nil. Errors that are not
// GUDAErrors are reported as launch failures.
func ErrorTypeOf(err error) ErrorType {
	if err == nil {
		return Success
	}
	var e *GUDAError
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrTypeLaunchFailure
}

func isType(err error, t ErrorType) bool {
	var e *GUDAError
	return errors.As(err, &e) && e.Type == t
}

// IsInvalidValue checks if an error is an invalid value error
func IsInvalidValue(err error) bool {
	return isType(err, ErrTypeInvalidValue)
}

// IsMemoryError checks if an error is an out-of-memory error
func IsMemoryError(err error) bool {
	return isType(err, ErrTypeOutOfMemory)
}

// IsLaunchFailure checks if an error is a launch failure
func IsLaunchFailure(err error) bool {
	return isType(err, ErrTypeLaunchFailure)
}

// IsNotReady checks if an error is a not-ready status
func IsNotReady(err error) bool {
	return isType(err, ErrTypeNotReady)
}

// IsAlreadyDestroyed checks if an error reports a destroyed handle
func IsAlreadyDestroyed(err error) bool {
	return isType(err, ErrTypeAlreadyDestroyed)
}

// IsUnsupported checks if an error is an unsupported feature error
func IsUnsupported(err error) bool {
	return isType(err, ErrTypeUnsupported)
}
