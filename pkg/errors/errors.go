// Package errors provides the error taxonomy shared by the importers and the
// exporter. Errors carry a code for programmatic handling and an ordered set of
// context fields (element path, byte offset, line, record id) that locate the
// offending input.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code identifies an error class.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound      Code = "E101"
	CodeUnsupportedFormat Code = "E102"
	CodeIO                Code = "E103"

	// Parse errors (2xx)
	CodeStructural     Code = "E201"
	CodeUnexpectedEOF  Code = "E202"
	CodeTimestampParse Code = "E203"
	CodeValueParse     Code = "E204"

	// Data-quality conditions (3xx)
	CodeReferentialIntegrity Code = "E301"
	CodeTypeUnification      Code = "E302"
	CodeDuplicateID          Code = "E303"
	CodeConflictingValues    Code = "E304"

	// Output errors (4xx)
	CodeWriteFailed Code = "E401"

	// System errors (5xx)
	CodeContextCanceled Code = "E501"

	CodeUnknown Code = "E999"
)

// Sentinel errors usable as errors.Is targets; matching is by code.
var (
	ErrStructural           = &Error{Code: CodeStructural}
	ErrUnexpectedEOF        = &Error{Code: CodeUnexpectedEOF}
	ErrTimestampParse       = &Error{Code: CodeTimestampParse}
	ErrValueParse           = &Error{Code: CodeValueParse}
	ErrReferentialIntegrity = &Error{Code: CodeReferentialIntegrity}
	ErrDuplicateID          = &Error{Code: CodeDuplicateID}
	ErrUnsupportedFormat    = &Error{Code: CodeUnsupportedFormat}
	ErrFileNotFound         = &Error{Code: CodeFileNotFound}
	ErrWriteFailed          = &Error{Code: CodeWriteFailed}
)

// Field is a single context entry.
type Field struct {
	Key   string
	Value interface{}
}

// Error is the base error type for all logtables errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    []Field
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		for i, f := range e.Context {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", f.Key, f.Value)
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext appends a context field. A repeated key replaces the earlier value.
func (e *Error) WithContext(key string, value interface{}) *Error {
	for i := range e.Context {
		if e.Context[i].Key == key {
			e.Context[i].Value = value
			return e
		}
	}
	e.Context = append(e.Context, Field{Key: key, Value: value})
	return e
}

// Get returns the value of a context field.
func (e *Error) Get(key string) (interface{}, bool) {
	for _, f := range e.Context {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		fmt.Fprintf(&sb, "  at %s\n    %s:%d\n", f.Function, f.File, f.Line)
	}
	return sb.String()
}

// --- Convenience constructors ---

// Structural reports malformed input or a missing mandatory element/key.
func Structural(message string) *Error {
	return &Error{Code: CodeStructural, Message: message, StackTrace: captureStack(2)}
}

// Structuralf is Structural with a formatted message.
func Structuralf(format string, args ...interface{}) *Error {
	return &Error{Code: CodeStructural, Message: fmt.Sprintf(format, args...), StackTrace: captureStack(2)}
}

// UnexpectedEOF reports input that ends inside an open element or value.
func UnexpectedEOF(cause error) *Error {
	return &Error{Code: CodeUnexpectedEOF, Message: "unexpected end of input", Cause: cause, StackTrace: captureStack(2)}
}

// InvalidTimestamp reports a timestamp no known layout could parse.
func InvalidTimestamp(value string) *Error {
	return New(CodeTimestampParse, "failed to parse timestamp").WithContext("value", value)
}

// DanglingReference reports a relation pointing at an undeclared id.
func DanglingReference(kind, from, to string) *Error {
	return New(CodeReferentialIntegrity, "reference to undeclared object").
		WithContext("relation", kind).
		WithContext("from", from).
		WithContext("to", to)
}

// FileNotFound creates a file not found error.
func FileNotFound(path string) *Error {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// UnsupportedFormat reports an unknown log format name.
func UnsupportedFormat(name string) *Error {
	return New(CodeUnsupportedFormat, "unsupported format").WithContext("format", name)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string, cause error) *Error {
	return Wrap(cause, CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Warning is a non-fatal condition surfaced next to a successful result.
type Warning struct {
	Code    Code
	Message string
	Context []Field
}

// String renders the warning like an Error without a cause.
func (w Warning) String() string {
	e := Error{Code: w.Code, Message: w.Message, Context: w.Context}
	return e.Error()
}

// NewWarning creates a warning with ordered context pairs (key, value, ...).
func NewWarning(code Code, message string, kv ...interface{}) Warning {
	w := Warning{Code: code, Message: message}
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		w.Context = append(w.Context, Field{Key: key, Value: kv[i+1]})
	}
	return w
}
