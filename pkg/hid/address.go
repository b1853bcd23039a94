package hid

import (
	"errors"
	"fmt"
	"strings"
)

// AddressSize is the size of a device hardware address in bytes.
const AddressSize = 6

// ErrInvalidAddress indicates a malformed device address string.
var ErrInvalidAddress = errors.New("invalid device address")

// DeviceAddress is a fixed-size link-layer hardware address.
// It is immutable and always copied by value.
type DeviceAddress [AddressSize]byte

// String renders the address as colon-separated uppercase hex.
func (a DeviceAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsZero reports whether the address is the all-zero address.
// The zero address is never a valid peer identity.
func (a DeviceAddress) IsZero() bool {
	return a == DeviceAddress{}
}

// ParseDeviceAddress parses a colon-separated hex address string.
// Both upper and lower case hex digits are accepted.
func ParseDeviceAddress(s string) (DeviceAddress, error) {
	var addr DeviceAddress

	parts := strings.Split(s, ":")
	if len(parts) != AddressSize {
		return DeviceAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	for i, part := range parts {
		if len(part) != 2 {
			return DeviceAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		var b byte
		if _, err := fmt.Sscanf(part, "%02x", &b); err != nil {
			return DeviceAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		addr[i] = b
	}

	return addr, nil
}
