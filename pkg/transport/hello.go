package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
)

// helloSize is the size of the channel hello frame: 1-byte PSM followed
// by the 6-byte peripheral address.
const helloSize = 1 + hid.AddressSize

// Hello errors.
var (
	// ErrHelloTruncated indicates the peer closed before sending a full hello.
	ErrHelloTruncated = errors.New("hello truncated")

	// ErrHelloPSMMismatch indicates the hello named a different endpoint
	// than the one the connection arrived on.
	ErrHelloPSMMismatch = errors.New("hello PSM mismatch")

	// ErrHelloZeroAddress indicates the hello carried the all-zero address.
	ErrHelloZeroAddress = errors.New("hello carries zero address")
)

// writeHello sends the channel hello identifying the local device.
func writeHello(w io.Writer, kind hid.ChannelKind, addr hid.DeviceAddress) error {
	var buf [helloSize]byte
	buf[0] = kind.PSM()
	copy(buf[1:], addr[:])

	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("failed to write hello: %w", err)
	}
	return nil
}

// readHello reads and validates the channel hello, returning the
// peripheral address it carries.
func readHello(r io.Reader, want hid.ChannelKind) (hid.DeviceAddress, error) {
	var buf [helloSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return hid.DeviceAddress{}, ErrHelloTruncated
		}
		return hid.DeviceAddress{}, fmt.Errorf("failed to read hello: %w", err)
	}

	kind, ok := hid.KindForPSM(buf[0])
	if !ok || kind != want {
		return hid.DeviceAddress{}, fmt.Errorf("%w: got PSM %d, want %d",
			ErrHelloPSMMismatch, buf[0], want.PSM())
	}

	var addr hid.DeviceAddress
	copy(addr[:], buf[1:])
	if addr.IsZero() {
		return hid.DeviceAddress{}, ErrHelloZeroAddress
	}

	return addr, nil
}
