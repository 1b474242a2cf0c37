package wire

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrCode classifies errors returned by this package and the adb package.
type ErrCode byte

const (
	// AssertionError is returned when a caller violates an API contract.
	AssertionError ErrCode = iota
	// ParseError is returned when a server response cannot be parsed.
	ParseError
	// NetworkError covers raw transport faults (the server probably died).
	NetworkError
	// UnexpectedEOF is returned when the stream ends before a full message was read.
	UnexpectedEOF
	// ConnectionRefused is returned when no adb server listens on the address.
	ConnectionRefused
	// Timeout is returned when a read or write made no progress in time.
	Timeout
	// AdbError is returned when the server answered FAIL.
	AdbError
	// MalformedLength is returned when a hex length field is not valid hex.
	MalformedLength
	// DeviceNotFound is an AdbError whose message says the device is unknown.
	DeviceNotFound
	// FileNoExistError is returned by sync stat-like requests on missing paths.
	FileNoExistError
)

func (c ErrCode) String() string {
	switch c {
	case AssertionError:
		return "AssertionError"
	case ParseError:
		return "ParseError"
	case NetworkError:
		return "NetworkError"
	case UnexpectedEOF:
		return "UnexpectedEOF"
	case ConnectionRefused:
		return "ConnectionRefused"
	case Timeout:
		return "Timeout"
	case AdbError:
		return "AdbError"
	case MalformedLength:
		return "MalformedLength"
	case DeviceNotFound:
		return "DeviceNotFound"
	case FileNoExistError:
		return "FileNoExistError"
	default:
		return fmt.Sprintf("ErrCode(%d)", byte(c))
	}
}

// ErrorResponseDetails holds the request and the server diagnostic of a FAIL response.
type ErrorResponseDetails struct {
	Request   string
	ServerMsg string
}

// Err is the error type carried through every layer of this module.
type Err struct {
	Code    ErrCode
	Message string
	// Details is an optional value with more information, e.g. *ErrorResponseDetails.
	Details interface{}
	// Cause is the underlying error, if any.
	Cause error
}

var _ error = &Err{}

func (e *Err) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != nil {
		msg = fmt.Sprintf("%s (%+v)", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes the cause to errors.Is and errors.As. errors.Cause stops at
// the *Err.
func (e *Err) Unwrap() error {
	return e.Cause
}

// Errorf returns a new *Err without a cause.
func Errorf(code ErrCode, format string, args ...interface{}) error {
	return &Err{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapErrorf returns a new *Err wrapping cause, or nil if cause is nil.
// A cause that already is an *Err of the same code only gets a message added.
func WrapErrorf(cause error, code ErrCode, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	if HasErrCode(cause, code) {
		return errors.WithMessage(cause, fmt.Sprintf(format, args...))
	}
	return &Err{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// AdbErrorf returns an AdbError for a FAIL response to request, or a
// DeviceNotFound error if the server message says so.
func AdbErrorf(request, serverMsg string) error {
	code := AdbError
	if DeviceNotFoundMessagePattern.MatchString(serverMsg) {
		code = DeviceNotFound
	}
	return &Err{
		Code:    code,
		Message: fmt.Sprintf("server error for %s request: %s", request, serverMsg),
		Details: &ErrorResponseDetails{
			Request:   request,
			ServerMsg: serverMsg,
		},
	}
}

// HasErrCode reports whether any *Err in the chain of err has the given code.
func HasErrCode(err error, code ErrCode) bool {
	for err != nil {
		var e *Err
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// ServerMessage returns the server diagnostic carried by err, if any.
func ServerMessage(err error) (string, bool) {
	var e *Err
	if !errors.As(err, &e) {
		return "", false
	}
	if d, ok := e.Details.(*ErrorResponseDetails); ok {
		return d.ServerMsg, true
	}
	return "", false
}
