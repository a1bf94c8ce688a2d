package ocean

import "github.com/erhathaway/ocean/internal/oceanerr"

// Code is one of the error kinds an adapter can branch on when a tool
// call fails (spec §7).
type Code = oceanerr.Code

// Re-exported so adapters never need to import the internal package.
const (
	CodeRBWViolation              = oceanerr.CodeRBWViolation
	CodeStorageReadAlreadyCalled  = oceanerr.CodeStorageReadAlreadyCalled
	CodeStorageWriteAlreadyCalled = oceanerr.CodeStorageWriteAlreadyCalled
	CodeStorageWriteBeforeRead    = oceanerr.CodeStorageWriteBeforeRead
	CodeInvalidScope              = oceanerr.CodeInvalidScope
	CodeUnknownTool               = oceanerr.CodeUnknownTool
	CodeUnknownEndpoint           = oceanerr.CodeUnknownEndpoint
	CodeUnknownClog               = oceanerr.CodeUnknownClog
	CodeClogCallCycle             = oceanerr.CodeClogCallCycle
)

// Error is the structured, adapter-branchable failure type tool calls
// return. See CodeOf to extract a Code from an arbitrary error.
type Error = oceanerr.Error

// CodeOf extracts the Code from err if it is (or wraps) an *Error.
func CodeOf(err error) (Code, bool) {
	return oceanerr.CodeOf(err)
}
