// Package oceanerr defines the typed error codes adapters branch on
// (spec §7). It lives apart from the public ocean package so every
// internal package can produce these errors without importing the root
// package and creating an import cycle; ocean/errors.go re-exports the
// same types under the public API.
package oceanerr

import "fmt"

// Code is one of the error kinds an adapter can branch on.
type Code string

const (
	CodeRBWViolation              Code = "RBW_VIOLATION"
	CodeStorageReadAlreadyCalled  Code = "STORAGE_READ_ALREADY_CALLED"
	CodeStorageWriteAlreadyCalled Code = "STORAGE_WRITE_ALREADY_CALLED"
	CodeStorageWriteBeforeRead    Code = "STORAGE_WRITE_BEFORE_READ"
	CodeInvalidScope              Code = "INVALID_SCOPE"
	CodeUnknownTool               Code = "UNKNOWN_TOOL"
	CodeUnknownEndpoint           Code = "UNKNOWN_ENDPOINT"
	CodeUnknownClog               Code = "UNKNOWN_CLOG"
	CodeClogCallCycle             Code = "CLOG_CALL_CYCLE"
)

// Error is a structured, adapter-branchable failure: a stable Code plus
// a human message and optional machine-readable Details. It satisfies
// the standard error interface.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs an *Error with the given code and message.
func New(code Code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, and
// reports whether one was found.
func CodeOf(err error) (Code, bool) {
	var oe *Error
	if ok := asError(err, &oe); ok {
		return oe.Code, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if oe, ok := err.(*Error); ok {
			*target = oe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
