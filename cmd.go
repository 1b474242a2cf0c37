package adb

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/d1ced/goadb/wire"
)

// exitMarker is appended to every command line so the exit status of the
// remote shell ends up as the last line of the output.
const exitMarker = "; echo :$?"

var (
	errCmdStarted    = errors.New("command already started")
	errCmdNotStarted = errors.New("command not started")
)

// Cmd is a shell command prepared for one device, modelled on exec.Cmd.
type Cmd struct {
	Path string
	Args []string
	// Timeout is the longest the command may stay silent. 0 waits forever.
	Timeout time.Duration

	device   *Device
	conn     *wire.Conn
	output   []byte
	exitCode int
}

// exitCodeReceiver collects raw output; shell error scanning would trip over
// the trailing exit status line.
type exitCodeReceiver struct {
	CollectingOutputReceiver
}

func (*exitCodeReceiver) ParsesErrors() bool { return true }

// Command prepares name with args for d. Arguments holding whitespace are
// double quoted; args itself is left untouched.
func (d *Device) Command(name string, args ...string) *Cmd {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = quoteIfNeeded(arg)
	}
	return &Cmd{
		Path:     name,
		Args:     quoted,
		Timeout:  d.client.config.Timeout,
		device:   d,
		exitCode: -1,
	}
}

func quoteIfNeeded(arg string) string {
	quoted := len(arg) >= 2 && strings.HasPrefix(arg, `"`) && strings.HasSuffix(arg, `"`)
	if quoted || !containsWhitespace(arg) {
		return arg
	}
	return `"` + arg + `"`
}

func (c *Cmd) line() string {
	return strings.TrimSpace(strings.Join(append([]string{c.Path}, c.Args...), " "))
}

// Start opens the shell service and sends the command without waiting for it.
func (c *Cmd) Start() error {
	if c.conn != nil {
		return errCmdStarted
	}
	client := c.device.client
	conn, err := client.openTransport(c.device.descriptor)
	if err != nil {
		return err
	}
	req := "shell:" + c.line() + exitMarker
	client.log.WithField("request", req).Debug("request")
	if err = conn.RoundTripNoResponse(req); err != nil {
		conn.Close()
		return err
	}
	conn.SetTimeout(c.Timeout)
	c.conn = conn
	return nil
}

// Wait reads the output until the device closes the stream. A non-zero exit
// status comes back as a ShellExitError, with the output still kept.
func (c *Cmd) Wait() error {
	conn := c.conn
	if conn == nil {
		return errCmdNotStarted
	}
	c.conn = nil
	defer conn.Close()

	var r exitCodeReceiver
	if err := readShellOutput(conn, c.line(), &r); err != nil {
		return err
	}
	c.output, c.exitCode = splitExitCode(r.Bytes())
	if c.exitCode == 0 {
		return nil
	}
	return ShellExitError{Command: c.line(), ExitCode: c.exitCode}
}

// splitExitCode cuts the trailing ":<status>" off b. The status is -1 when
// no such line is found.
func splitExitCode(b []byte) ([]byte, int) {
	i := bytes.LastIndexByte(b, ':')
	if i < 0 {
		return b, -1
	}
	code, err := strconv.Atoi(string(bytes.TrimSpace(b[i+1:])))
	if err != nil {
		return b, -1
	}
	return b[:i], code
}

// Run is Start followed by Wait.
func (c *Cmd) Run() error {
	if err := c.Start(); err != nil {
		return err
	}
	return c.Wait()
}

// Output runs the command unless it already ran, and returns what it printed.
func (c *Cmd) Output() ([]byte, error) {
	if c.output != nil {
		return c.output, nil
	}
	if c.conn == nil {
		if err := c.Start(); err != nil {
			return nil, err
		}
	}
	err := c.Wait()
	return c.output, err
}

// ExitCode is -1 until the command finished.
func (c *Cmd) ExitCode() int { return c.exitCode }
