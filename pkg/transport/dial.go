package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
)

// Dial opens one HID channel to a listening endpoint, identifying the
// caller as the peripheral with the given address. Used by the peripheral
// simulator and by tests; the daemon side only listens.
func Dial(ctx context.Context, address string, kind hid.ChannelKind, peripheral hid.DeviceAddress) (net.Conn, error) {
	if peripheral.IsZero() {
		return nil, fmt.Errorf("peripheral address is required")
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s endpoint: %w", kind, err)
	}

	if err := writeHello(conn, kind, peripheral); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}
