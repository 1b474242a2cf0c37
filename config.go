package adb

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/d1ced/goadb/wire"
)

const (
	// DefaultHost is the address the adb server listens on.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the default port for the ADB-Server to listens on.
	DefaultPort = 5037
)

// Environment variables understood by ConfigFromEnv. They are the ones the
// adb command line tool reads.
const (
	EnvServerAddress = "ANDROID_ADB_SERVER_ADDRESS"
	EnvServerPort    = "ANDROID_ADB_SERVER_PORT"
	EnvServerSocket  = "ADB_SERVER_SOCKET"
)

// Config describes how to reach the adb server.
type Config struct {
	Host string
	Port int

	// Timeout is the stall threshold for every read and write.
	// Zero means wire.DefaultTimeout.
	Timeout time.Duration

	// Dialer creates transports to the server. Defaults to wire.TCPDial.
	Dialer wire.Dialer

	// Logger receives request traces. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

// DefaultConfig returns the configuration for a local server on 127.0.0.1:5037.
func DefaultConfig() Config {
	return Config{
		Host:    DefaultHost,
		Port:    DefaultPort,
		Timeout: wire.DefaultTimeout,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by the adb environment variables.
// ADB_SERVER_SOCKET takes the form tcp:<host>:<port> or tcp:<port>.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if host := os.Getenv(EnvServerAddress); host != "" {
		cfg.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv(EnvServerPort)); err == nil && port > 0 {
		cfg.Port = port
	}
	if socket := os.Getenv(EnvServerSocket); strings.HasPrefix(socket, "tcp:") {
		spec := strings.TrimPrefix(socket, "tcp:")
		if host, portString, err := net.SplitHostPort(spec); err == nil {
			if port, err := strconv.Atoi(portString); err == nil {
				cfg.Host, cfg.Port = host, port
			}
		} else if port, err := strconv.Atoi(spec); err == nil {
			cfg.Port = port
		}
	}
	return cfg
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout == 0 {
		c.Timeout = wire.DefaultTimeout
	}
	if c.Dialer == nil {
		c.Dialer = wire.TCPDial
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}
