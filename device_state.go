package adb

// DeviceState is the state adb reports for a device.
// A device can be communicated with when it's in StateOnline.
// A USB device will make the following state transitions:
//
//	Plugged in: StateDisconnected->StateOffline->StateOnline
//	Unplugged:  StateOnline->StateDisconnected
type DeviceState uint8

const (
	StateUnknown DeviceState = iota
	StateDisconnected
	StateOffline
	StateOnline
	StateBootloader
	StateRecovery
	StateSideload
	StateUnauthorized
	StateAuthorizing
	StateConnecting
	StateNoPermissions
	StateHost
	StateDownload
)

var deviceStateStrings = map[string]DeviceState{
	"offline":        StateOffline,
	"device":         StateOnline,
	"bootloader":     StateBootloader,
	"recovery":       StateRecovery,
	"sideload":       StateSideload,
	"unauthorized":   StateUnauthorized,
	"authorizing":    StateAuthorizing,
	"connecting":     StateConnecting,
	"no permissions": StateNoPermissions,
	"host":           StateHost,
	"download":       StateDownload,
}

// parseDeviceState maps the state column of adb's device list. Unknown
// strings map to StateUnknown.
func parseDeviceState(str string) DeviceState {
	return deviceStateStrings[str]
}

func (s DeviceState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateOnline:
		return "device"
	case StateUnknown:
		return "unknown"
	}
	for name, state := range deviceStateStrings {
		if state == s {
			return name
		}
	}
	return "unknown"
}
