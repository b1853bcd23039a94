// Package hid defines the identity types shared by the HIDLink stack.
//
// A HID link consists of two channels between the local adapter and a
// peripheral: a control channel (PSM 17) and an interrupt channel (PSM 19).
// Devices are identified by a fixed-size 6-byte hardware address, printed
// as colon-separated hex ("AA:BB:CC:DD:EE:FF").
//
// The package also carries the HID service identifier used in authorization
// requests and the wire-level constants of the HID profile that this
// fragment needs (the virtual cable unplug code).
package hid
