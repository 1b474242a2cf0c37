package adb

// HostServices are the requests answered by the adb server itself.
type HostServices interface {
	Version() (int, error)
	Kill() error
	ListDevices() ([]DeviceData, error)
	ListDeviceSerials() ([]string, error)
	ListForwards() ([]ForwardData, error)
	Connect(host string, port int) error
	Disconnect(host string, port int) error
	NewDeviceMonitor() *DeviceMonitor

	Device(serial string) *Device
	AnyDevice() *Device
}

var _ HostServices = (*Client)(nil)
