package adb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/d1ced/goadb/wire"
)

// Reboot targets accepted by Device.Reboot.
const (
	RebootSystem     = ""
	RebootBootloader = "bootloader"
	RebootRecovery   = "recovery"
	RebootSideload   = "sideload"
)

// Device communicates with a specific Android device.
// To get an instance, call Device() on a Client.
type Device struct {
	client     *Client
	descriptor DeviceDescriptor
}

func (d *Device) String() string {
	return d.descriptor.String()
}

// Serial returns the serial the device was selected with, or "" for AnyDevice.
func (d *Device) Serial() string {
	return d.descriptor.Serial()
}

// SerialNo asks the server for the serial number of the device.
func (d *Device) SerialNo() (string, error) {
	attr, err := d.requestResponseString("get-serialno")
	return attr, errors.WithMessage(err, "SerialNo")
}

// DevicePath returns the usb path of the device, e.g. "usb:1-4".
func (d *Device) DevicePath() (string, error) {
	attr, err := d.requestResponseString("get-devpath")
	return attr, errors.WithMessage(err, "DevicePath")
}

// State asks the server for the current state of the device.
func (d *Device) State() (DeviceState, error) {
	attr, err := d.requestResponseString("get-state")
	if err != nil {
		return StateUnknown, errors.WithMessage(err, "State")
	}
	return deviceStateFromString(attr), nil
}

// DeviceInfo returns the entry of this device in the device list.
func (d *Device) DeviceInfo() (DeviceData, error) {
	// adb doesn't actually provide a way to get this for an individual device,
	// so we have to just list devices and find ourselves.
	serial := d.Serial()
	if serial == "" {
		var err error
		if serial, err = d.SerialNo(); err != nil {
			return DeviceData{}, errors.WithMessage(err, "DeviceInfo")
		}
	}

	devices, err := d.client.ListDevices()
	if err != nil {
		return DeviceData{}, errors.WithMessage(err, "DeviceInfo")
	}
	for _, deviceInfo := range devices {
		if deviceInfo.Serial == serial {
			return deviceInfo, nil
		}
	}
	return DeviceData{}, wire.Errorf(wire.DeviceNotFound,
		"device list doesn't contain serial %s", serial)
}

// Reboot reboots the device into the given mode. RebootSystem is a normal reboot.
func (d *Device) Reboot(into string) error {
	conn, err := d.client.openTransport(d.descriptor)
	if err != nil {
		return errors.WithMessage(err, "Reboot")
	}
	defer conn.Close()

	req := "reboot:" + into
	d.client.log.WithField("request", req).Debug("request")
	return errors.WithMessage(conn.RoundTripNoResponse(req), "Reboot")
}

// JdwpProcesses returns the pids of the processes on the device that can be
// debugged. It reads one snapshot of track-jdwp.
func (d *Device) JdwpProcesses() ([]int, error) {
	conn, err := d.client.openTransport(d.descriptor)
	if err != nil {
		return nil, errors.WithMessage(err, "JdwpProcesses")
	}
	defer conn.Close()

	resp, err := conn.RoundTripSingleResponse("track-jdwp")
	if err != nil {
		return nil, errors.WithMessage(err, "JdwpProcesses")
	}
	pids := []int{}
	for _, field := range strings.Fields(resp) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			return nil, wire.WrapErrorf(err, wire.ParseError, "malformed pid %q", field)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// OpenSync opens a connection in sync mode. The returned service owns the
// connection until it is closed.
func (d *Device) OpenSync() (*SyncService, error) {
	conn, err := d.client.openTransport(d.descriptor)
	if err != nil {
		return nil, errors.WithMessage(err, "OpenSync")
	}
	if err := conn.RoundTripNoResponse("sync:"); err != nil {
		conn.Close()
		return nil, errors.WithMessage(err, "OpenSync")
	}
	return newSyncService(d, conn), nil
}

// send runs <host-prefix>:<req> and only checks the status.
func (d *Device) send(req string) error {
	return d.client.roundTripSingleNoResponse(fmt.Sprintf("%s:%s", d.descriptor.hostPrefix(), req))
}

// requestResponseString returns the first message returned by the server by running
// <host-prefix>:<attr>, where host-prefix is determined from the DeviceDescriptor.
func (d *Device) requestResponseString(attr string) (string, error) {
	return d.client.roundTripSingleResponse(fmt.Sprintf("%s:%s", d.descriptor.hostPrefix(), attr))
}

// prepareCommandLine validates the command and argument strings, quotes
// arguments if required, and joins them into a valid adb command string.
func prepareCommandLine(cmd string, args ...string) (string, error) {
	if isBlank(cmd) {
		return "", wire.Errorf(wire.AssertionError, "command cannot be empty")
	}

	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, cmd)
	for i, arg := range args {
		if strings.ContainsRune(arg, '"') {
			return "", wire.Errorf(wire.ParseError,
				"arg at index %d contains an invalid double quote: %s", i, arg)
		}
		if containsWhitespace(arg) {
			arg = fmt.Sprintf("\"%s\"", arg)
		}
		quoted = append(quoted, arg)
	}
	return strings.Join(quoted, " "), nil
}
