package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// deviceState is the on-disk form of the known-device list.
type deviceState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Devices are the known peripherals.
	Devices []deviceEntry `json:"devices,omitempty"`
}

// deviceEntry is one known peripheral on disk.
type deviceEntry struct {
	Address string    `json:"address"`
	Name    string    `json:"name,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// Store persists the known-device list to a JSON file.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the known-device list. A missing file is not an error and
// yields an empty list.
func (s *Store) Load() ([]Device, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read device state: %w", err)
	}

	var state deviceState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse device state: %w", err)
	}
	if state.Version != StateVersion {
		return nil, fmt.Errorf("unsupported device state version %d", state.Version)
	}

	devices := make([]Device, 0, len(state.Devices))
	for _, entry := range state.Devices {
		addr, err := hid.ParseDeviceAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("device state entry %q: %w", entry.Address, err)
		}
		devices = append(devices, Device{
			Address: addr,
			Name:    entry.Name,
			AddedAt: entry.AddedAt,
		})
	}
	return devices, nil
}

// Save writes the known-device list atomically (write to temp file,
// then rename).
func (s *Store) Save(devices []Device) error {
	state := deviceState{
		Version: StateVersion,
		SavedAt: time.Now(),
		Devices: make([]deviceEntry, 0, len(devices)),
	}
	for _, d := range devices {
		state.Devices = append(state.Devices, deviceEntry{
			Address: d.Address.String(),
			Name:    d.Name,
			AddedAt: d.AddedAt,
		})
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode device state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".devices-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write device state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace device state: %w", err)
	}
	return nil
}

// LoadInto loads the persisted device list into the manager, keeping
// each device's stored AddedAt. Devices already known to the manager
// are kept as-is.
func (s *Store) LoadInto(m *Manager) error {
	devices, err := s.Load()
	if err != nil {
		return err
	}
	for _, d := range devices {
		if err := m.restoreDevice(d); err != nil && err != ErrDeviceExists {
			return err
		}
	}
	return nil
}
