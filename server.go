package adb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/d1ced/goadb/wire"
)

// Client talks to an adb server. It holds no connection: every call opens
// its own, so a Client is safe for concurrent use.
// Use New or NewDefault to create one.
type Client struct {
	config Config
	log    logrus.FieldLogger
}

// NewDefault creates a new Client that uses the configuration from ConfigFromEnv.
func NewDefault() *Client {
	return New(ConfigFromEnv())
}

// New creates a new Client. Zero fields of cfg take their defaults.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		config: cfg,
		log:    cfg.Logger.WithField("adb", cfg.Address()),
	}
}

// Address returns the host:port of the server.
func (c *Client) Address() string {
	return c.config.Address()
}

// Version asks the adb server for its internal version number.
func (c *Client) Version() (int, error) {
	resp, err := c.roundTripSingleResponse("host:version")
	if err != nil {
		return 0, errors.WithMessage(err, "Version")
	}
	v, err := strconv.ParseUint(resp, 16, 32)
	if err != nil {
		return 0, wire.WrapErrorf(err, wire.ParseError, "malformed version %q", resp)
	}
	return int(v), nil
}

// Kill tells the server to quit immediately.
func (c *Client) Kill() error {
	return errors.WithMessage(c.roundTripSingleNoResponse("host:kill"), "Kill")
}

// ListDevices returns the list of connected devices.
func (c *Client) ListDevices() ([]DeviceData, error) {
	resp, err := c.roundTripSingleResponse("host:devices-l")
	if err != nil {
		return nil, errors.WithMessage(err, "ListDevices")
	}
	return parseDeviceList(resp)
}

// ListDeviceSerials returns the serial numbers of all attached devices.
func (c *Client) ListDeviceSerials() ([]string, error) {
	resp, err := c.roundTripSingleResponse("host:devices")
	if err != nil {
		return nil, errors.WithMessage(err, "ListDeviceSerials")
	}
	devices, err := parseDeviceList(resp)
	if err != nil {
		return nil, err
	}

	serials := make([]string, len(devices))
	for i, dev := range devices {
		serials[i] = dev.Serial
	}
	return serials, nil
}

// ListForwards returns the forwards of all devices.
func (c *Client) ListForwards() ([]ForwardData, error) {
	resp, err := c.roundTripSingleResponse("host:list-forward")
	if err != nil {
		return nil, errors.WithMessage(err, "ListForwards")
	}
	return parseForwardList(resp)
}

// Connect asks the server to connect to a device over TCP/IP.
func (c *Client) Connect(host string, port int) error {
	resp, err := c.roundTripSingleResponse(fmt.Sprintf("host:connect:%s:%d", host, port))
	if err != nil {
		return errors.WithMessage(err, "Connect")
	}
	// The server answers OKAY and reports the outcome as text.
	if !strings.HasPrefix(resp, "connected to") && !strings.HasPrefix(resp, "already connected to") {
		return wire.Errorf(wire.AdbError, "connect %s:%d: %s", host, port, resp)
	}
	return nil
}

// Disconnect asks the server to drop a TCP/IP device.
func (c *Client) Disconnect(host string, port int) error {
	resp, err := c.roundTripSingleResponse(fmt.Sprintf("host:disconnect:%s:%d", host, port))
	if err != nil {
		return errors.WithMessage(err, "Disconnect")
	}
	if strings.HasPrefix(resp, "error") || strings.HasPrefix(resp, "no such device") {
		return wire.Errorf(wire.AdbError, "disconnect %s:%d: %s", host, port, resp)
	}
	return nil
}

// Device takes a devices serial number and returns it.
func (c *Client) Device(serial string) *Device {
	return &Device{
		client:     c,
		descriptor: AnyDeviceSerial(serial),
	}
}

// AnyDevice returns a Device that talks to the only connected device.
func (c *Client) AnyDevice() *Device {
	return &Device{
		client:     c,
		descriptor: AnyDevice,
	}
}

// NewDeviceMonitor returns a DeviceMonitor that is not started yet.
func (c *Client) NewDeviceMonitor() *DeviceMonitor {
	return newDeviceMonitor(c)
}
