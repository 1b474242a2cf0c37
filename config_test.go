package adb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/d1ced/goadb/wire"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1:5037", cfg.Address())
	assert.Equal(t, wire.DefaultTimeout, cfg.Timeout)
}

func TestConfigFromEnv(t *testing.T) {
	var tests = []struct {
		name    string
		address string
		port    string
		socket  string
		want    string
	}{
		{"Empty", "", "", "", "127.0.0.1:5037"},
		{"Address", "10.0.0.1", "", "", "10.0.0.1:5037"},
		{"Port", "", "5038", "", "127.0.0.1:5038"},
		{"BadPort", "", "nope", "", "127.0.0.1:5037"},
		{"Socket", "10.0.0.1", "5038", "tcp:192.168.1.2:6000", "192.168.1.2:6000"},
		{"SocketPort", "", "", "tcp:6000", "127.0.0.1:6000"},
		{"SocketUnix", "", "", "localfilesystem:/tmp/adb", "127.0.0.1:5037"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv(EnvServerAddress, test.address)
			t.Setenv(EnvServerPort, test.port)
			t.Setenv(EnvServerSocket, test.socket)
			assert.Equal(t, test.want, ConfigFromEnv().Address())
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.NotNil(t, cfg.Dialer)
	assert.NotNil(t, cfg.Logger)

	client := New(Config{Host: "::1", Port: 1234})
	assert.Equal(t, "[::1]:1234", client.Address())
}
