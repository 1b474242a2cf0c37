package adb

import (
	"github.com/pkg/errors"

	"github.com/d1ced/goadb/wire"
)

// openConn dials the server. The caller owns the returned connection.
func (c *Client) openConn() (*wire.Conn, error) {
	conn, err := wire.Dial(c.config.Dialer, c.config.Address(), c.config.Timeout)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// roundTripSingleResponse sends a message to the server, and reads a single
// message response. If the reponse has a failure status code, returns it as an error.
// The connection is closed.
func (c *Client) roundTripSingleResponse(req string) (string, error) {
	conn, err := c.openConn()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	c.log.WithField("request", req).Debug("request")
	return conn.RoundTripSingleResponse(req)
}

// roundTripSingleNoResponse sends req and only checks the status.
func (c *Client) roundTripSingleNoResponse(req string) error {
	conn, err := c.openConn()
	if err != nil {
		return err
	}
	defer conn.Close()

	c.log.WithField("request", req).Debug("request")
	return conn.RoundTripNoResponse(req)
}

// openTransport opens a connection and switches it to the device described
// by d. Every request sent afterwards goes to the adb daemon on the device.
func (c *Client) openTransport(d DeviceDescriptor) (*wire.Conn, error) {
	conn, err := c.openConn()
	if err != nil {
		return nil, err
	}
	if err := setDevice(conn, d); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func setDevice(conn *wire.Conn, d DeviceDescriptor) error {
	req := "host:" + d.transportDescriptor()
	if err := conn.RoundTripNoResponse(req); err != nil {
		return errors.WithMessagef(err, "error connecting to device '%s'", d)
	}
	return nil
}
