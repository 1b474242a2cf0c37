package adb

import "fmt"

type descriptorKind uint8

const (
	anyKind descriptorKind = iota
	usbKind
	localKind
	serialKind
)

// DeviceDescriptor selects which device a request is routed to: the only
// device, the only USB device, the only emulator, or one serial.
type DeviceDescriptor struct {
	kind   descriptorKind
	serial string
}

var (
	// AnyDevice routes through host:transport-any and host:<request>.
	AnyDevice = DeviceDescriptor{kind: anyKind}
	// AnyUSBDevice routes through host:transport-usb and host-usb:<request>.
	AnyUSBDevice = DeviceDescriptor{kind: usbKind}
	// AnyLocalDevice routes through host:transport-local and host-local:<request>.
	AnyLocalDevice = DeviceDescriptor{kind: localKind}
)

// AnyDeviceSerial routes through host:transport:<serial> and host-serial:<serial>:<request>.
func AnyDeviceSerial(serial string) DeviceDescriptor {
	return DeviceDescriptor{kind: serialKind, serial: serial}
}

// descriptorNames holds, per kind, the String form, the prefix of host
// requests and the transport request.
var descriptorNames = [...]struct{ name, prefix, transport string }{
	anyKind:   {"Device", "host", "transport-any"},
	usbKind:   {"DeviceUSB", "host-usb", "transport-usb"},
	localKind: {"DeviceLocal", "host-local", "transport-local"},
}

// Serial returns the serial of a serial descriptor, or "".
func (d DeviceDescriptor) Serial() string {
	return d.serial
}

func (d DeviceDescriptor) String() string {
	if d.kind == serialKind {
		return fmt.Sprintf("DeviceSerial[%s]", d.serial)
	}
	return descriptorNames[d.kind].name
}

func (d DeviceDescriptor) hostPrefix() string {
	if d.kind == serialKind {
		return "host-serial:" + d.serial
	}
	return descriptorNames[d.kind].prefix
}

func (d DeviceDescriptor) transportDescriptor() string {
	if d.kind == serialKind {
		return "transport:" + d.serial
	}
	return descriptorNames[d.kind].transport
}
