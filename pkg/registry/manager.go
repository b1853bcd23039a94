package registry

import (
	"sync"
	"time"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	"github.com/hidlink-protocol/hidlink-go/pkg/transport"
)

// Device describes one known peripheral.
type Device struct {
	// Address is the peripheral hardware address.
	Address hid.DeviceAddress

	// Name is a human-readable label (may be empty).
	Name string

	// AddedAt is when the device became known.
	AddedAt time.Time
}

// pairState holds the channel state for one device pair.
type pairState struct {
	control   transport.Conn
	interrupt transport.Conn
	connected bool
}

// Manager is the in-memory device registry. All operations are safe to
// call from any goroutine.
type Manager struct {
	mu sync.Mutex

	// known holds all recognized peripherals keyed by address.
	known map[hid.DeviceAddress]*Device

	// pairs holds per-pair channel state.
	pairs map[pairKey]*pairState

	// callbacks for device events.
	onConnected    func(src, dst hid.DeviceAddress)
	onDisconnected func(src, dst hid.DeviceAddress)
}

// NewManager creates an empty device registry.
func NewManager() *Manager {
	return &Manager{
		known: make(map[hid.DeviceAddress]*Device),
		pairs: make(map[pairKey]*pairState),
	}
}

// AddDevice makes a peripheral known to the registry.
// Returns ErrDeviceExists if the device is already known.
func (m *Manager) AddDevice(addr hid.DeviceAddress, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.known[addr]; exists {
		return ErrDeviceExists
	}

	m.known[addr] = &Device{
		Address: addr,
		Name:    name,
		AddedAt: time.Now(),
	}
	return nil
}

// restoreDevice makes a persisted peripheral known again, keeping its
// stored AddedAt. Returns ErrDeviceExists if the device is already known.
func (m *Manager) restoreDevice(d Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.known[d.Address]; exists {
		return ErrDeviceExists
	}

	if d.AddedAt.IsZero() {
		d.AddedAt = time.Now()
	}
	m.known[d.Address] = &d
	return nil
}

// RemoveDevice forgets a peripheral.
// Returns ErrDeviceNotFound if the device is not known.
func (m *Manager) RemoveDevice(addr hid.DeviceAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.known[addr]; !exists {
		return ErrDeviceNotFound
	}
	delete(m.known, addr)
	return nil
}

// IsKnown reports whether the peripheral is recognized.
func (m *Manager) IsKnown(addr hid.DeviceAddress) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.known[addr]
	return exists
}

// KnownDevices returns all recognized peripherals.
func (m *Manager) KnownDevices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]Device, 0, len(m.known))
	for _, d := range m.known {
		devices = append(devices, *d)
	}
	return devices
}

// RegisterChannel records an accepted channel for a device pair.
// Returns false if the destination device is not known. A channel of the
// same kind already registered for the pair is closed and replaced.
func (m *Manager) RegisterChannel(src, dst hid.DeviceAddress, kind hid.ChannelKind, conn transport.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.known[dst]; !exists {
		return false
	}

	key := pairKey{src: src, dst: dst}
	state, exists := m.pairs[key]
	if !exists {
		state = &pairState{}
		m.pairs[key] = state
	}

	switch kind {
	case hid.ChannelControl:
		if state.control != nil {
			_ = state.control.Close()
		}
		state.control = conn
	case hid.ChannelInterrupt:
		if state.interrupt != nil {
			_ = state.interrupt.Close()
		}
		state.interrupt = conn
	}

	return true
}

// CompleteConnection marks an authorized device pair as connected and
// hands it off to input handling via the OnDeviceConnected callback.
func (m *Manager) CompleteConnection(src, dst hid.DeviceAddress) {
	m.mu.Lock()
	key := pairKey{src: src, dst: dst}
	state, exists := m.pairs[key]
	if !exists || state.connected {
		m.mu.Unlock()
		return
	}
	state.connected = true
	callback := m.onConnected
	m.mu.Unlock()

	if callback != nil {
		callback(src, dst)
	}
}

// CloseChannels closes all channels associated with a device pair and
// clears its state. Safe to call for pairs with no registered channels.
func (m *Manager) CloseChannels(src, dst hid.DeviceAddress) {
	m.mu.Lock()
	key := pairKey{src: src, dst: dst}
	state, exists := m.pairs[key]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.pairs, key)

	if state.control != nil {
		_ = state.control.Close()
	}
	if state.interrupt != nil {
		_ = state.interrupt.Close()
	}

	wasConnected := state.connected
	callback := m.onDisconnected
	m.mu.Unlock()

	if wasConnected && callback != nil {
		callback(src, dst)
	}
}

// IsConnected reports whether the pair completed connection setup.
func (m *Manager) IsConnected(src, dst hid.DeviceAddress) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, exists := m.pairs[pairKey{src: src, dst: dst}]
	return exists && state.connected
}

// ChannelCount returns how many channels are registered for the pair.
func (m *Manager) ChannelCount(src, dst hid.DeviceAddress) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.pairs[pairKey{src: src, dst: dst}]
	if !exists {
		return 0
	}
	count := 0
	if state.control != nil {
		count++
	}
	if state.interrupt != nil {
		count++
	}
	return count
}

// OnDeviceConnected sets a callback for when a pair completes connection.
func (m *Manager) OnDeviceConnected(fn func(src, dst hid.DeviceAddress)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDeviceDisconnected sets a callback for when a connected pair is torn down.
func (m *Manager) OnDeviceDisconnected(fn func(src, dst hid.DeviceAddress)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// Compile-time check: *Manager implements Registry.
var _ Registry = (*Manager)(nil)
