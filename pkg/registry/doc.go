// Package registry tracks known HID devices and their channel state.
//
// The registry is the authority on which peripherals the adapter
// recognizes. The connection acceptor registers each accepted channel
// here; registration fails for unknown devices, which is what triggers
// the virtual-cable unplug on the control endpoint. Once both channels
// of a device pair are up and authorization succeeds, CompleteConnection
// hands the device off to input handling; CloseChannels tears down both
// channels of a pair.
//
// The known-device list can be persisted as a JSON state file so the
// daemon recognizes its devices across restarts. Authorization decisions
// themselves are never persisted.
package registry
