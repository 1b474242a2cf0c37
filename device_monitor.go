package adb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/d1ced/goadb/wire"
)

// MonitorState is the lifecycle state of a DeviceMonitor.
// A monitor goes Stopped->Starting->Tracking->Stopped and cannot be restarted.
type MonitorState uint8

const (
	MonitorStopped MonitorState = iota
	MonitorStarting
	MonitorTracking
)

func (s MonitorState) String() string {
	switch s {
	case MonitorStopped:
		return "stopped"
	case MonitorStarting:
		return "starting"
	case MonitorTracking:
		return "tracking"
	default:
		return fmt.Sprintf("MonitorState(%d)", uint8(s))
	}
}

// DeviceEventType tells what happened to a device.
type DeviceEventType uint8

const (
	DeviceConnected DeviceEventType = iota + 1
	DeviceChanged
	DeviceDisconnected
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceConnected:
		return "connected"
	case DeviceChanged:
		return "changed"
	case DeviceDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("DeviceEventType(%d)", uint8(t))
	}
}

// DeviceEvent is published by a DeviceMonitor.
// For DeviceDisconnected, Device is the last known entry of the device.
type DeviceEvent struct {
	Type     DeviceEventType
	Device   DeviceData
	OldState DeviceState
}

// NewState returns the state the device is in after the event.
func (e DeviceEvent) NewState() DeviceState {
	if e.Type == DeviceDisconnected {
		return StateDisconnected
	}
	return e.Device.State
}

// CameOnline returns true if this event represents a device coming online.
func (e DeviceEvent) CameOnline() bool {
	return e.OldState != StateOnline && e.NewState() == StateOnline
}

// WentOffline returns true if this event represents a device going offline.
func (e DeviceEvent) WentOffline() bool {
	return e.OldState == StateOnline && e.NewState() != StateOnline
}

func (e DeviceEvent) String() string {
	return fmt.Sprintf("%s %s (%s->%s)", e.Device.Serial, e.Type, e.OldState, e.NewState())
}

// monitorBuffer is the capacity of the channel returned by C.
const monitorBuffer = 64

// DeviceMonitor keeps the list of attached devices up to date with
// host:track-devices and publishes every change.
// It does not reconnect: if the server goes away, C is closed and Err says why.
//
// Events queue up without limit until they are read from C, so the device
// list keeps tracking the server even when nobody reads C.
type DeviceMonitor struct {
	client *Client
	log    logrus.FieldLogger

	// mu guards everything below.
	mu       sync.Mutex
	state    MonitorState
	used     bool
	conn     *wire.Conn
	devices  map[string]DeviceData
	err      error
	startErr error
	// pending holds events not yet handed to the channel.
	pending     []DeviceEvent
	ended       bool
	dispatching bool

	wake      chan struct{}
	events    chan DeviceEvent
	stop      chan struct{}
	stopOnce  sync.Once
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

func newDeviceMonitor(c *Client) *DeviceMonitor {
	return &DeviceMonitor{
		client:  c,
		log:     c.log.WithField("component", "device-monitor"),
		devices: map[string]DeviceData{},
		wake:    make(chan struct{}, 1),
		events:  make(chan DeviceEvent, monitorBuffer),
		stop:    make(chan struct{}),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start connects to the server and returns once the first device list has
// been received, so Devices is complete when Start returns.
func (m *DeviceMonitor) Start() error {
	m.mu.Lock()
	if m.used {
		m.mu.Unlock()
		return ErrMonitorUsed
	}
	m.used = true
	m.state = MonitorStarting
	m.mu.Unlock()

	conn, err := m.client.openConn()
	if err == nil {
		m.log.WithField("request", "host:track-devices").Debug("request")
		err = conn.RoundTripNoResponse("host:track-devices")
	}
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		m.finish(nil)
		return err
	}
	// Snapshots only arrive when something changes.
	conn.SetTimeout(0)

	m.mu.Lock()
	select {
	case <-m.stop:
		m.mu.Unlock()
		conn.Close()
		m.finish(nil)
		return ErrMonitorStopped
	default:
	}
	m.conn = conn
	m.dispatching = true
	m.mu.Unlock()

	go m.dispatch()
	go m.run(conn)

	<-m.ready
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startErr
}

func (m *DeviceMonitor) run(conn *wire.Conn) {
	defer conn.Close()
	for {
		list, err := conn.ReadString()
		var snapshot []DeviceData
		if err == nil {
			snapshot, err = parseDeviceList(list)
		}
		if err != nil {
			select {
			case <-m.stop:
				m.finish(nil)
			default:
				m.finish(err)
			}
			return
		}

		m.mu.Lock()
		var events []DeviceEvent
		m.devices, events = reconcileDevices(m.devices, snapshot)
		m.state = MonitorTracking
		m.pending = append(m.pending, events...)
		m.mu.Unlock()
		m.readyOnce.Do(func() { close(m.ready) })

		for _, ev := range events {
			m.log.WithField("event", ev.String()).Debug("device event")
		}
		m.notify()
	}
}

func (m *DeviceMonitor) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// dispatch moves queued events to the channel. After an unexpected stop the
// queue is drained before the channel is closed; Close drops what is left.
func (m *DeviceMonitor) dispatch() {
	defer close(m.events)
	for {
		m.mu.Lock()
		batch, ended := m.pending, m.ended
		m.pending = nil
		m.mu.Unlock()

		for _, ev := range batch {
			select {
			case m.events <- ev:
			case <-m.stop:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		if ended {
			return
		}
		select {
		case <-m.wake:
		case <-m.stop:
			return
		}
	}
}

// finish moves the monitor to its terminal state. A nil err means it was
// asked to stop.
func (m *DeviceMonitor) finish(err error) {
	m.mu.Lock()
	m.state = MonitorStopped
	m.ended = true
	dispatching := m.dispatching
	if err != nil {
		m.err = errors.Wrap(ErrMonitorStopped, err.Error())
		m.log.WithError(err).Warn("device monitor stopped")
	}
	started := false
	select {
	case <-m.ready:
		started = true
	default:
	}
	if !started {
		if m.err != nil {
			m.startErr = m.err
		} else {
			m.startErr = ErrMonitorStopped
		}
	}
	m.mu.Unlock()

	m.readyOnce.Do(func() { close(m.ready) })
	if dispatching {
		m.notify()
	} else {
		close(m.events)
	}
	close(m.done)
}

// C returns the channel events are published on. It is closed when the
// monitor stops.
func (m *DeviceMonitor) C() <-chan DeviceEvent {
	return m.events
}

// Done is closed once the monitor stopped.
func (m *DeviceMonitor) Done() <-chan struct{} {
	return m.done
}

// Devices returns the devices known from the last snapshot, sorted by serial.
func (m *DeviceMonitor) Devices() []DeviceData {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := make([]DeviceData, 0, len(m.devices))
	for _, dev := range m.devices {
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Serial < devices[j].Serial })
	return devices
}

// State returns the lifecycle state.
func (m *DeviceMonitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns why the monitor stopped on its own. It is nil while the monitor
// runs and after Close. A non-nil error matches ErrMonitorStopped with errors.Is.
func (m *DeviceMonitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close stops the monitor and waits for it to finish. Events not yet read
// from C are dropped. It is safe to call more than once, and on a monitor
// that was never started.
func (m *DeviceMonitor) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	if !m.used {
		m.used = true
		m.mu.Unlock()
		m.finish(nil)
		return nil
	}
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		// Start is still connecting and will see stop.
		<-m.done
		return nil
	}
	// Interrupts the blocking read in run.
	conn.Close()
	<-m.done
	return nil
}

// reconcileDevices compares the known devices with a new snapshot and returns
// the new collection along with the events that lead to it. current is not
// modified. Disconnections come first, ordered by serial, followed by
// connections and changes in snapshot order.
func reconcileDevices(current map[string]DeviceData, snapshot []DeviceData) (map[string]DeviceData, []DeviceEvent) {
	next := make(map[string]DeviceData, len(snapshot))
	for _, dev := range snapshot {
		next[dev.Serial] = dev
	}

	var events []DeviceEvent
	var gone []string
	for serial := range current {
		if _, ok := next[serial]; !ok {
			gone = append(gone, serial)
		}
	}
	sort.Strings(gone)
	for _, serial := range gone {
		old := current[serial]
		events = append(events, DeviceEvent{Type: DeviceDisconnected, Device: old, OldState: old.State})
	}

	seen := make(map[string]bool, len(snapshot))
	for _, dev := range snapshot {
		if seen[dev.Serial] {
			continue
		}
		seen[dev.Serial] = true
		dev = next[dev.Serial]
		old, ok := current[dev.Serial]
		switch {
		case !ok:
			events = append(events, DeviceEvent{Type: DeviceConnected, Device: dev, OldState: StateDisconnected})
		case !old.equal(dev):
			events = append(events, DeviceEvent{Type: DeviceChanged, Device: dev, OldState: old.State})
		}
	}
	return next, events
}
