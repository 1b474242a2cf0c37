package adb

import (
	"net"
	"strings"
)

func containsWhitespace(s string) bool {
	return strings.ContainsAny(s, " \t\v\n\r")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// getFreePort asks the kernel for an unused loopback TCP port.
func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// commandName returns the first word of a shell command line.
func commandName(cmd string) string {
	if fields := strings.Fields(cmd); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
