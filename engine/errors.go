package engine

import (
	"errors"
	"fmt"
)

// Code tags an engine failure with its place in the taxonomy.
type Code string

const (
	CodeBootstrapFailed Code = "BOOTSTRAP_FAILED"
	CodeLoadFailed      Code = "LOAD_FAILED"
	CodeConvertFailed   Code = "CONVERT_FAILED"
	CodeEmptyQuery      Code = "EMPTY_QUERY"
	CodeExecutionFailed Code = "EXECUTION_FAILED"
)

// Error wraps an underlying failure with its taxonomy code.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapCode tags err with code, passing nil through.
func wrapCode(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

// codeErrorf builds a coded error from a format string.
func codeErrorf(code Code, format string, args ...any) error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the taxonomy code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
