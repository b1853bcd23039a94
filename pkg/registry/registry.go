package registry

import (
	"errors"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	"github.com/hidlink-protocol/hidlink-go/pkg/transport"
)

// Registry errors.
var (
	ErrDeviceExists   = errors.New("device already known")
	ErrDeviceNotFound = errors.New("device not known")
)

// Registry defines the device-registry operations consumed by the
// connection acceptor and the authorization broker. It is satisfied
// by *Manager.
type Registry interface {
	// RegisterChannel records an accepted channel for a device pair.
	// It returns false if the destination device is not known; the
	// caller then owns closing the channel.
	RegisterChannel(src, dst hid.DeviceAddress, kind hid.ChannelKind, conn transport.Conn) bool

	// CompleteConnection finishes connection setup for an authorized
	// device pair and hands it off to input handling.
	CompleteConnection(src, dst hid.DeviceAddress)

	// CloseChannels closes all channels associated with a device pair.
	CloseChannels(src, dst hid.DeviceAddress)
}

// pairKey identifies one (source, destination) connection context.
type pairKey struct {
	src hid.DeviceAddress
	dst hid.DeviceAddress
}
