package hash

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("HashError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// CodeOf extracts the RetCode from an error. A nil error maps to
// RetCSuccess; errors without a code map to RetCInternalError.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// IsConflict reports whether an error is a version conflict.
func IsConflict(err error) bool {
	return CodeOf(err) == RetCVersionConflict
}

// IsBounds reports whether an error is an overflow or min/max violation.
func IsBounds(err error) bool {
	return CodeOf(err) == RetCOutOfBounds
}

// IsTypeMismatch reports whether an error reports a non-numeric value in
// a numeric operation.
func IsTypeMismatch(err error) bool {
	return CodeOf(err) == RetCTypeMismatch
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCVersionConflict                     // 1: Versioned write rejected, stored version differs.
	RetCOutOfBounds                         // 2: Increment overflows or violates min/max bounds.
	RetCTypeMismatch                        // 3: Stored value has the wrong type for the operation.
	RetCUnsupportedOperation                // 4: Operation is not supported by the engine.
	RetCInvalidOperation                    // 5: Invalid operation or arguments.
	RetCInternalError                       // 6: Command failed due to an internal error.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCVersionConflict:
		return "VersionConflict"
	case RetCOutOfBounds:
		return "OutOfBounds"
	case RetCTypeMismatch:
		return "TypeMismatch"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}
