package adb

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/d1ced/goadb/wire"
)

// shellChunkSize is how much output is read from the device at once.
const shellChunkSize = 16 * 1024

// shellTailSize is how much of an unterminated line is held back for error
// detection.
const shellTailSize = 1024

var deniedRegex = regexp.MustCompile(`(?i)(permission|access) denied`)

// ExecuteRemoteCommand runs command in the device's shell and hands its output
// to receiver as it arrives. The call returns once the device closed the
// stream, the receiver cancelled, or no output arrived for timeout. A timeout
// of 0 waits forever.
//
// Unless receiver.ParsesErrors is true, output lines containing a well known
// failure message are not delivered and a *ShellError is returned instead.
// receiver.Flush is called in every case.
func (d *Device) ExecuteRemoteCommand(command string, receiver ShellOutputReceiver, timeout time.Duration) error {
	defer receiver.Flush()

	conn, err := d.client.openTransport(d.descriptor)
	if err != nil {
		return errors.WithMessage(err, "ExecuteRemoteCommand")
	}
	defer conn.Close()

	req := "shell:" + command
	d.client.log.WithField("request", req).Debug("request")
	if err := conn.RoundTripNoResponse(req); err != nil {
		return errors.WithMessagef(err, "shell %q", command)
	}

	conn.SetTimeout(timeout)
	return readShellOutput(conn, command, receiver)
}

// readShellOutput forwards the output of a shell service to receiver. Unless
// the receiver parses errors itself, output is held back until a line is
// complete so failure messages split across reads are still recognised.
func readShellOutput(conn *wire.Conn, command string, receiver ShellOutputReceiver) error {
	scan := !receiver.ParsesErrors()
	check := func(out []byte) error {
		if code, ok := detectShellError(command, string(out)); ok {
			return &ShellError{Code: code, Command: command, Output: string(out)}
		}
		return nil
	}

	buf := make([]byte, shellChunkSize)
	var pending []byte
	for {
		if receiver.IsCancelled() {
			return ErrCancelled
		}
		n, err := conn.Read(buf)
		switch {
		case n == 0:
		case !scan:
			receiver.AddOutput(buf[:n])
		default:
			pending = append(pending, buf[:n]...)
			cut := bytes.LastIndexByte(pending, '\n') + 1
			if cut == 0 && len(pending) >= shellChunkSize {
				// A long line is handed on, but its tail is scanned
				// again together with the next read.
				if serr := check(pending); serr != nil {
					return serr
				}
				cut = len(pending) - shellTailSize
			} else if serr := check(pending[:cut]); serr != nil {
				return serr
			}
			if cut > 0 {
				receiver.AddOutput(pending[:cut])
				pending = append([]byte(nil), pending[cut:]...)
			}
		}
		if err == io.EOF {
			if serr := check(pending); serr != nil {
				return serr
			}
			if len(pending) > 0 {
				receiver.AddOutput(pending)
			}
			return nil
		}
		if err != nil {
			return errors.WithMessagef(err, "shell %q", command)
		}
	}
}

// detectShellError looks for the messages toolbox, toybox and busybox print
// when a command fails.
func detectShellError(command, output string) (ShellErrCode, bool) {
	name := commandName(command)
	switch {
	case name != "" && strings.Contains(output, name+": not found"),
		strings.Contains(output, "applet not found"):
		return CommandNotFound, true
	case strings.Contains(output, "No such file or directory"):
		return FileNotFound, true
	case strings.Contains(output, "Unknown option"):
		return UnknownOption, true
	case strings.HasSuffix(strings.TrimSpace(output), "Aborting."):
		return CommandAborting, true
	case deniedRegex.MatchString(output):
		return PermissionDenied, true
	}
	return 0, false
}

// RunCommand runs the specified commands on the device and returns its output.
// Arguments containing whitespace are quoted, arguments containing a double
// quote are rejected.
func (d *Device) RunCommand(cmd string, args ...string) (string, error) {
	cmd, err := prepareCommandLine(cmd, args...)
	if err != nil {
		return "", errors.WithMessage(err, "RunCommand")
	}
	var receiver CollectingOutputReceiver
	if err := d.ExecuteRemoteCommand(cmd, &receiver, d.client.config.Timeout); err != nil {
		return receiver.Output(), err
	}
	return receiver.Output(), nil
}

// RunLogService streams the device log buffer name (e.g. "main", "events")
// to receiver until the receiver cancels or the device closes the stream.
// The log service never triggers error detection.
func (d *Device) RunLogService(name string, receiver ShellOutputReceiver) error {
	defer receiver.Flush()

	conn, err := d.client.openTransport(d.descriptor)
	if err != nil {
		return errors.WithMessage(err, "RunLogService")
	}
	defer conn.Close()

	req := "log:" + name
	d.client.log.WithField("request", req).Debug("request")
	if err := conn.RoundTripNoResponse(req); err != nil {
		return errors.WithMessage(err, "RunLogService")
	}

	conn.SetTimeout(0)
	buf := make([]byte, shellChunkSize)
	for {
		if receiver.IsCancelled() {
			return ErrCancelled
		}
		n, err := conn.Read(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.WithMessage(err, "RunLogService")
		}
		receiver.AddOutput(buf[:n])
	}
}
