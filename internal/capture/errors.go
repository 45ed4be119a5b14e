package capture

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the kind of a capture failure.
type ErrorCode string

// Error codes.
const (
	// ErrCodeBadState means the operation is not valid in the current state. No side effect.
	ErrCodeBadState ErrorCode = "BAD_STATE"
	// ErrCodeCannotOpen means the device is missing, busy or not a capture device.
	ErrCodeCannotOpen ErrorCode = "CANNOT_OPEN"
	// ErrCodeWrongPixelFormat means the device rejected the session's pixel format.
	ErrCodeWrongPixelFormat ErrorCode = "WRONG_PIXEL_FORMAT"
	// ErrCodeDifferentSize means negotiation succeeded with a size other than the one requested.
	ErrCodeDifferentSize ErrorCode = "DIFFERENT_SIZE"
	// ErrCodeDeviceError covers every other device command, mapping or unmapping failure.
	ErrCodeDeviceError ErrorCode = "DEVICE_ERROR"
)

// Error is a capture failure of a known kind.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: [%s] %s: %v", e.Op, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: [%s] %s", e.Op, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HasCode checks if the error matches a specific code.
func (e *Error) HasCode(code ErrorCode) bool {
	return e.Code == code
}

func newError(code ErrorCode, op, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

func badState(op string, state State) *Error {
	return newError(ErrCodeBadState, op, fmt.Sprintf("not allowed while %s", state), nil)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var capErr *Error
	if errors.As(err, &capErr) {
		return capErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsDifferentSize reports whether err only signals that the device granted
// a different frame size. Such an error leaves the session usable.
func IsDifferentSize(err error) bool {
	return IsCode(err, ErrCodeDifferentSize)
}
