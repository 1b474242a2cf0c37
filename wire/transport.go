package wire

import (
	"io"
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// DefaultDialTimeout bounds how long TCPDial waits for the server to accept.
const DefaultDialTimeout = 5 * time.Second

// Transport is a raw duplex byte stream to the adb server. A net.Conn is a Transport.
// Close must be safe to call from another goroutine and must unblock a pending Read.
type Transport interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

var _ Transport = (net.Conn)(nil)

// Dialer knows how to create transports to an adb server.
type Dialer func(address string) (Transport, error)

// TCPDial connects to the adb server listening on address.
func TCPDial(address string) (Transport, error) {
	netConn, err := net.DialTimeout("tcp", address, DefaultDialTimeout)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, WrapErrorf(err, ConnectionRefused,
				"no adb server listening on %s", address)
		}
		return nil, WrapErrorf(err, NetworkError, "error dialing %s", address)
	}
	return netConn, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
