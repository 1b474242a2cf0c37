package adb

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/d1ced/goadb/wire"
)

// ForwardSpec protocols
const (
	FProtocolTCP        = "tcp"
	FProtocolLocal      = "local"
	FProtocolJDWP       = "jdwp"
	FProtocolAbstract   = "localabstract"
	FProtocolReserved   = "localreserved"
	FProtocolFilesystem = "localfilesystem"
)

// ForwardSpec is one end of a forward, e.g. "tcp:8080", "local:/tmp/sock" or "jdwp:1234".
type ForwardSpec string

// TCPForwardSpec returns "tcp:<port>".
func TCPForwardSpec(port int) ForwardSpec {
	return ForwardSpec(FProtocolTCP + ":" + strconv.Itoa(port))
}

// Port returns -1 if the endpoint has no port.
func (f ForwardSpec) Port() int {
	fields := strings.SplitN(string(f), ":", 2)
	if len(fields) < 2 || fields[0] != FProtocolTCP {
		return -1
	}
	p, err := strconv.Atoi(fields[1])
	if err != nil {
		return -1
	}
	return p
}

// Protocol returns the part before the first colon.
func (f ForwardSpec) Protocol() string {
	return strings.SplitN(string(f), ":", 2)[0]
}

// ParseForwardSpec validates s.
func ParseForwardSpec(s string) (ForwardSpec, error) {
	fields := strings.SplitN(s, ":", 2)
	if len(fields) != 2 || fields[1] == "" {
		return "", wire.Errorf(wire.ParseError, "malformed forward spec: %q", s)
	}
	switch fields[0] {
	case FProtocolTCP, FProtocolJDWP:
		if _, err := strconv.Atoi(fields[1]); err != nil {
			return "", wire.Errorf(wire.ParseError, "malformed pid or port: %s", fields[1])
		}
		return ForwardSpec(s), nil
	case FProtocolLocal, FProtocolAbstract, FProtocolReserved, FProtocolFilesystem:
		return ForwardSpec(s), nil
	default:
		return "", wire.Errorf(wire.ParseError, "unrecognized protocol: %s", fields[0])
	}
}

// ForwardData is one forward as listed by the server. The server owns the
// forward table, this is only a copy of one row.
type ForwardData struct {
	Serial string
	Local  ForwardSpec
	Remote ForwardSpec
}

// parseForwardList parses the list-forward payload: one
// "<serial> <local> <remote>" triple per line.
func parseForwardList(resp string) ([]ForwardData, error) {
	fields := strings.Fields(resp)
	if len(fields)%3 != 0 {
		return nil, wire.Errorf(wire.ParseError, "list forward parse error: %q", resp)
	}
	fs := make([]ForwardData, 0, len(fields)/3)
	for i := 0; i < len(fields); i += 3 {
		local, err := ParseForwardSpec(fields[i+1])
		if err != nil {
			return nil, err
		}
		remote, err := ParseForwardSpec(fields[i+2])
		if err != nil {
			return nil, err
		}
		fs = append(fs, ForwardData{fields[i], local, remote})
	}
	return fs, nil
}

// ListForward returns the forwards of this device.
func (d *Device) ListForward() ([]ForwardData, error) {
	resp, err := d.requestResponseString("list-forward")
	if err != nil {
		return nil, errors.WithMessage(err, "ListForward")
	}
	all, err := parseForwardList(resp)
	if err != nil {
		return nil, err
	}
	serial := d.descriptor.Serial()
	if serial == "" {
		return all, nil
	}
	// older servers list the forwards of every device
	fs := make([]ForwardData, 0, len(all))
	for _, fw := range all {
		if fw.Serial == serial {
			fs = append(fs, fw)
		}
	}
	return fs, nil
}

// RemoveForward removes the forward listening on local.
func (d *Device) RemoveForward(local ForwardSpec) error {
	return errors.WithMessage(d.send("killforward:"+string(local)), "RemoveForward")
}

// RemoveAllForwards cancels all forwards of this device.
func (d *Device) RemoveAllForwards() error {
	return errors.WithMessage(d.send("killforward-all"), "RemoveAllForwards")
}

// CreateForward forwards local connections to remote on the device.
// Without rebind, a local endpoint that is already forwarded is an error.
func (d *Device) CreateForward(local, remote ForwardSpec, rebind bool) error {
	req := "forward:"
	if !rebind {
		req += "norebind:"
	}
	req += string(local) + ";" + string(remote)
	return errors.WithMessage(d.send(req), "CreateForward")
}

// ForwardToFreePort forwards a free local TCP port to remote and returns it.
// If remote is already forwarded to a TCP port, that port is returned.
func (d *Device) ForwardToFreePort(remote ForwardSpec) (int, error) {
	fws, err := d.ListForward()
	if err != nil {
		return 0, err
	}
	for _, fw := range fws {
		if fw.Remote == remote {
			if fw.Local.Port() == -1 {
				return 0, errors.Errorf("%s is forwarded to %s, not a tcp port", remote, fw.Local)
			}
			return fw.Local.Port(), nil
		}
	}
	port, err := getFreePort()
	if err != nil {
		return 0, errors.Wrap(err, "ForwardToFreePort")
	}
	return port, d.CreateForward(TCPForwardSpec(port), remote, false)
}
