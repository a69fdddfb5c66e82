// Package slaberrors provides structured error handling for slabpool with
// rich context, stack traces, and error categorization.
//
// # Overview
//
// The slaberrors package extends Go's standard error handling with:
//   - Error categorization through ErrorType
//   - Structured context with key-value details
//   - Automatic stack trace capture
//   - Error wrapping with cause preservation
//   - Retryability detection
//
// # Basic Usage
//
//	// Create a new error
//	err := slaberrors.New(slaberrors.ErrorTypeValidation, "objects per chunk must be a power of two")
//
//	// Add context
//	err = err.WithDetail("objects_per_chunk", 3)
//
//	// Wrap existing errors
//	if buf, err := alloc.Alloc(size); err != nil {
//	    return slaberrors.Wrap(err, slaberrors.ErrorTypeOutOfMemory, "chunk allocation failed").
//	        WithDetail("chunk_bytes", size)
//	}
//
// # Error Types
//
// Errors are categorized by type, which helps with:
//   - Flow control (resource exhaustion is retryable, validation is not)
//   - Monitoring and alerting
//   - Debugging and troubleshooting
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Create new
// instances or use WithDetail before sharing across goroutines.
package slaberrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error, used for flow control,
// monitoring, and debugging.
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents invalid creation arguments
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeOutOfMemory represents bulk allocation failures
	ErrorTypeOutOfMemory ErrorType = "out_of_memory"
	// ErrorTypeResourceExhausted represents a pool at its hard object cap.
	// This is normal flow control, not a defect: the caller waits for the
	// non-empty notification or polls.
	ErrorTypeResourceExhausted ErrorType = "resource_exhausted"
	// ErrorTypeUsage represents caller contract violations (double free,
	// stale handle reuse). Only raised by debug builds.
	ErrorTypeUsage ErrorType = "usage"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// Error represents a structured error with context, providing rich debugging
// information and enabling error handling strategies based on category.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack, capturing
// the function name, file path, and line number for debugging.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning a formatted error message
// that includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error, providing additional
// context for debugging. This method can be chained for multiple details.
//
// Example:
//
//	err := slaberrors.New(slaberrors.ErrorTypeValidation, "invalid sizing").
//	    WithDetail("objects_per_chunk", perChunk).
//	    WithDetail("max_objects", maxObjects)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if the input error is nil.
//
// Example:
//
//	buf, err := alloc.Alloc(n)
//	if err != nil {
//	    return slaberrors.Wrap(err, slaberrors.ErrorTypeOutOfMemory, "chunk allocation failed").
//	        WithDetail("bytes", n)
//	}
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if the error is retryable based on its type.
// Resource exhaustion is the normal "pool is full" flow-control signal;
// callers either wait for the non-empty notification or poll. Out-of-memory
// may clear if the process frees memory elsewhere, so it is retryable too.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeResourceExhausted, ErrorTypeOutOfMemory:
		return true
	case ErrorTypeInternal, ErrorTypeValidation, ErrorTypeUsage, ErrorTypeConfig:
		return false
	default:
		return false
	}
}

// IsType checks if the error is of the given type.
//
// Example:
//
//	obj, err := pool.Get()
//	if slaberrors.IsType(err, slaberrors.ErrorTypeResourceExhausted) {
//	    // Pool is at capacity; wait for the non-empty callback.
//	    return nil
//	}
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
