package adb

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/d1ced/goadb/wire"
)

// Sentinel error values used by this package
var (
	// ErrCancelled is returned when a receiver or progress monitor asked to stop.
	ErrCancelled = errors.New("operation cancelled")
	// ErrMonitorStopped is reported by DeviceMonitor.Err when the tracking
	// connection died without Close being called.
	ErrMonitorStopped = errors.New("device monitor stopped unexpectedly")
	// ErrMonitorUsed is returned when Start is called on a monitor that already ran.
	ErrMonitorUsed = errors.New("device monitor can only be started once")
)

// IsDeviceNotFound reports whether the server did not know the device.
func IsDeviceNotFound(err error) bool {
	return wire.HasErrCode(err, wire.DeviceNotFound)
}

// ShellErrCode classifies well known failure messages in shell output.
type ShellErrCode uint8

const (
	CommandNotFound ShellErrCode = iota + 1
	FileNotFound
	UnknownOption
	CommandAborting
	PermissionDenied
)

func (c ShellErrCode) String() string {
	switch c {
	case CommandNotFound:
		return "CommandNotFound"
	case FileNotFound:
		return "FileNotFound"
	case UnknownOption:
		return "UnknownOption"
	case CommandAborting:
		return "CommandAborting"
	case PermissionDenied:
		return "PermissionDenied"
	default:
		return fmt.Sprintf("ShellErrCode(%d)", uint8(c))
	}
}

// ShellError is returned by ExecuteRemoteCommand when the output of the
// command contains a well known failure message.
type ShellError struct {
	Code    ShellErrCode
	Command string
	// Output is the chunk of output the message was found in.
	Output string
}

func (s *ShellError) Error() string {
	return fmt.Sprintf("shell %q: %s: %s", s.Command, s.Code, s.Output)
}

// ShellExitError is returned by Cmd when the command exited with a non-zero code.
type ShellExitError struct {
	Command  string
	ExitCode int
}

func (s ShellExitError) Error() string {
	return fmt.Sprintf("shell %q exit code %d", s.Command, s.ExitCode)
}

// HasShellErrCode reports whether err is a *ShellError with the given code.
func HasShellErrCode(err error, code ShellErrCode) bool {
	var se *ShellError
	return errors.As(err, &se) && se.Code == code
}
