package wire

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultTimeout is the stall threshold for reads and writes.
	DefaultTimeout = 5 * time.Second

	// waitTime is the pause between two attempts that made no progress.
	waitTime = 5 * time.Millisecond
)

// AdbResponse is the decoded status of a request.
// IOSuccess reports whether the status could be read at all, independent of
// whether the server accepted the request (Okay).
type AdbResponse struct {
	IOSuccess bool
	Okay      bool
	Message   string
}

/*
Conn is a normal connection to an adb server.

For most cases, usage looks something like:

	conn := wire.NewConn(transport, wire.DefaultTimeout)
	conn.SendRequest("host:version")
	conn.ReadStatus("host:version")
	conn.ReadString()
	conn.Close()

For some services (shell:, log:) the server streams raw bytes after the
status until it closes the connection; use Read until it returns io.EOF.

Conn is not reentrant: one request is in flight at a time. The official
client closes a connection immediately after it read the response, in most
cases, so callers open one Conn per request.

Any transport fault closes the transport. The returned errors are *Err.
*/
type Conn struct {
	t       Transport
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps t. A timeout of zero waits forever.
func NewConn(t Transport, timeout time.Duration) *Conn {
	return &Conn{t: t, timeout: timeout}
}

// Dial opens a new Conn to address using dial.
func Dial(dial Dialer, address string, timeout time.Duration) (*Conn, error) {
	if dial == nil {
		dial = TCPDial
	}
	t, err := dial(address)
	if err != nil {
		if _, ok := errors.Cause(err).(*Err); ok {
			return nil, err
		}
		return nil, WrapErrorf(err, NetworkError, "error dialing %s", address)
	}
	return NewConn(t, timeout), nil
}

// SetTimeout changes the stall threshold for subsequent reads and writes.
func (c *Conn) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Timeout returns the current stall threshold.
func (c *Conn) Timeout() time.Duration {
	return c.timeout
}

// Close closes the transport. It is safe to call Close more than once and
// from another goroutine; a blocked read returns with an error.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.t.Close()
	})
	return WrapErrorf(c.closeErr, NetworkError, "error closing connection")
}

// fail closes the transport and returns err.
func (c *Conn) fail(err error) error {
	c.Close()
	return err
}

func (c *Conn) deadline() time.Time {
	if c.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.timeout)
}

// stalled reports whether a call that has made no progress since since
// waited longer than the timeout.
func (c *Conn) stalled(since time.Time) bool {
	return c.timeout > 0 && time.Since(since) > c.timeout
}

// Write writes all of b. Writes that make no progress are retried every 5ms
// until the timeout expires.
func (c *Conn) Write(b []byte) error {
	lastProgress := time.Now()
	for len(b) > 0 {
		c.t.SetWriteDeadline(c.deadline())
		n, err := c.t.Write(b)
		b = b[n:]
		if err != nil {
			if isTimeout(err) {
				return c.fail(WrapErrorf(err, Timeout, "write timed out after %s", c.timeout))
			}
			return c.fail(WrapErrorf(err, NetworkError, "error writing to server"))
		}
		if n > 0 {
			lastProgress = time.Now()
			continue
		}
		if c.stalled(lastProgress) {
			return c.fail(Errorf(Timeout, "write made no progress for %s", c.timeout))
		}
		time.Sleep(waitTime)
	}
	return nil
}

// Read reads at most len(b) bytes. It returns io.EOF once the server closed
// the stream. Reads that make no progress are retried until the timeout expires.
func (c *Conn) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	lastProgress := time.Now()
	for {
		c.t.SetReadDeadline(c.deadline())
		n, err := c.t.Read(b)
		if n > 0 {
			return n, nil
		}
		if err == io.EOF {
			return 0, io.EOF
		}
		if err != nil {
			if isTimeout(err) {
				return 0, c.fail(WrapErrorf(err, Timeout, "read timed out after %s", c.timeout))
			}
			return 0, c.fail(WrapErrorf(err, NetworkError, "error reading from server"))
		}
		if c.stalled(lastProgress) {
			return 0, c.fail(Errorf(Timeout, "read made no progress for %s", c.timeout))
		}
		time.Sleep(waitTime)
	}
}

// ReadExact fills b. Reaching the end of the stream first is an UnexpectedEOF error.
func (c *Conn) ReadExact(b []byte) error {
	read := 0
	for read < len(b) {
		n, err := c.Read(b[read:])
		read += n
		if err == io.EOF {
			return c.fail(Errorf(UnexpectedEOF, "stream ended after %d of %d bytes", read, len(b)))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadExactN reads exactly n bytes.
func (c *Conn) ReadExactN(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := c.ReadExact(b); err != nil {
		return nil, err
	}
	return b, nil
}

// SendRequest frames service and writes it.
func (c *Conn) SendRequest(service string) error {
	req, err := FormRequest(service)
	if err != nil {
		return err
	}
	return c.Write(req)
}

// ReadHexLength reads a 4 digit hex length.
func (c *Conn) ReadHexLength() (int, error) {
	b, err := c.ReadExactN(4)
	if err != nil {
		return 0, err
	}
	n, err := ParseHexLength(b)
	if err != nil {
		return 0, c.fail(err)
	}
	return n, nil
}

// ReadString reads a hex length prefixed message and decodes it as Latin-1.
func (c *Conn) ReadString() (string, error) {
	b, err := c.ReadMessage()
	if err != nil {
		return "", err
	}
	return DecodeString(b), nil
}

// ReadMessage reads a hex length prefixed message.
func (c *Conn) ReadMessage() ([]byte, error) {
	n, err := c.ReadHexLength()
	if err != nil {
		return nil, err
	}
	return c.ReadExactN(n)
}

// ReadResponse reads the 4 byte status. Any status other than OKAY is
// followed by a diagnostic message; readDiagnostic forces reading it after
// OKAY too. If the read itself fails, IOSuccess is false and err is set.
func (c *Conn) ReadResponse(readDiagnostic bool) (AdbResponse, error) {
	var resp AdbResponse
	status, err := c.ReadExactN(4)
	if err != nil {
		return resp, err
	}
	resp.Okay = IsOkay(status)
	resp.IOSuccess = true
	if resp.Okay && !readDiagnostic {
		return resp, nil
	}

	msg, err := c.ReadString()
	if err != nil {
		resp.IOSuccess = false
		if !resp.Okay && !IsFail(status) {
			return resp, WrapErrorf(err, ParseError,
				"unexpected status %q and no readable diagnostic", status)
		}
		return resp, WrapErrorf(err, NetworkError,
			"server returned %s, but couldn't read the message", status)
	}
	resp.Message = msg
	return resp, nil
}

// ReadStatus reads the response to request and converts a FAIL into an
// AdbError, or DeviceNotFound if the server doesn't know the device.
func (c *Conn) ReadStatus(request string) error {
	resp, err := c.ReadResponse(false)
	if err != nil {
		return errors.WithMessagef(err, "error reading status for %s", request)
	}
	if !resp.Okay {
		return AdbErrorf(request, resp.Message)
	}
	return nil
}

// RoundTripSingleResponse sends a request to the server, and reads a single
// message response. If the response has a failure status code, returns it as an error.
func (c *Conn) RoundTripSingleResponse(request string) (string, error) {
	if err := c.SendRequest(request); err != nil {
		return "", err
	}
	if err := c.ReadStatus(request); err != nil {
		return "", err
	}
	return c.ReadString()
}

// RoundTripNoResponse sends a request and only checks its status.
func (c *Conn) RoundTripNoResponse(request string) error {
	if err := c.SendRequest(request); err != nil {
		return err
	}
	return c.ReadStatus(request)
}
