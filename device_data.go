package adb

import (
	"regexp"
	"strings"

	"github.com/d1ced/goadb/wire"
)

// DeviceData describes a device as listed by the server.
type DeviceData struct {
	// Always set.
	Serial string
	State  DeviceState
	// Product, model and name are not set in the short form.
	Product string
	Model   string
	Name    string
	// Features reported by newer servers.
	Features []string
	// Only set for devices connected via USB.
	USB         string
	TransportID string
}

// IsUSB returns true if the device is connected via USB.
func (d DeviceData) IsUSB() bool {
	return d.USB != ""
}

// IsOnline returns true if commands can be sent to the device.
func (d DeviceData) IsOnline() bool {
	return d.State == StateOnline
}

func (d DeviceData) equal(o DeviceData) bool {
	if d.Serial != o.Serial || d.State != o.State || d.Product != o.Product ||
		d.Model != o.Model || d.Name != o.Name || d.USB != o.USB ||
		d.TransportID != o.TransportID || len(d.Features) != len(o.Features) {
		return false
	}
	for i := range d.Features {
		if d.Features[i] != o.Features[i] {
			return false
		}
	}
	return true
}

// attributeRegex matches the key:value tokens following the state column.
var attributeRegex = regexp.MustCompile(`^[a-z_]+:`)

// parseDeviceList parses the payload of host:devices, host:devices-l and
// host:track-devices. Lines are separated by LF or CRLF.
func parseDeviceList(list string) ([]DeviceData, error) {
	devices := []DeviceData{}
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		device, err := parseDeviceLine(line)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, nil
}

// parseDeviceLine parses one device line, e.g.
//
//	emulator-5554 device product:sdk model:sdk_phone device:generic transport_id:7
//
// The fields before the first key:value token are the serial and the state.
// The state may span several words ("no permissions ...").
func parseDeviceLine(line string) (DeviceData, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return DeviceData{}, wire.Errorf(wire.ParseError, "malformed device line: %q", line)
	}

	i := 1
	for ; i < len(fields); i++ {
		if attributeRegex.MatchString(fields[i]) {
			break
		}
	}
	dev := DeviceData{
		Serial: fields[0],
		State:  deviceStateFromString(strings.Join(fields[1:i], " ")),
	}

	for key, val := range parseDeviceAttributes(fields[i:]) {
		switch key {
		case "product":
			dev.Product = val
		case "model":
			dev.Model = val
		case "device":
			dev.Name = val
		case "usb":
			dev.USB = val
		case "transport_id":
			dev.TransportID = val
		case "features":
			dev.Features = strings.Split(val, ",")
		}
	}
	return dev, nil
}

func deviceStateFromString(s string) DeviceState {
	switch {
	case s == "device":
		return StateOnline
	case strings.HasPrefix(s, "no permissions"):
		return StateNoPermissions
	default:
		return parseDeviceState(s)
	}
}

func parseDeviceAttributes(fields []string) map[string]string {
	attrs := map[string]string{}
	for _, field := range fields {
		key, val := parseKeyVal(field)
		if key != "" {
			attrs[key] = val
		}
	}
	return attrs
}

// Parses a key:val pair and returns key, val.
func parseKeyVal(pair string) (string, string) {
	split := strings.SplitN(pair, ":", 2)
	if len(split) != 2 {
		return "", ""
	}
	return split[0], split[1]
}
