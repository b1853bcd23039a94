package transport

import (
	"io"
	"net"
	"sync"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
)

// Conn is one accepted HID channel: a duplex byte stream between the local
// adapter and a peripheral, tagged with the peer addresses and the endpoint
// it arrived on.
type Conn interface {
	io.ReadWriteCloser

	// ConnID returns the unique connection identifier.
	ConnID() string

	// SourceAddr returns the local adapter address.
	SourceAddr() hid.DeviceAddress

	// DestAddr returns the remote peripheral address.
	DestAddr() hid.DeviceAddress

	// Kind returns which HID endpoint accepted the connection.
	Kind() hid.ChannelKind

	// RemoteAddr returns the peer network address.
	RemoteAddr() net.Addr
}

// channelConn wraps an accepted network connection with HID identity.
type channelConn struct {
	conn   net.Conn
	connID string
	src    hid.DeviceAddress
	dst    hid.DeviceAddress
	kind   hid.ChannelKind

	closeOnce sync.Once
	closeErr  error
}

func (c *channelConn) ConnID() string                { return c.connID }
func (c *channelConn) SourceAddr() hid.DeviceAddress { return c.src }
func (c *channelConn) DestAddr() hid.DeviceAddress   { return c.dst }
func (c *channelConn) Kind() hid.ChannelKind         { return c.kind }
func (c *channelConn) RemoteAddr() net.Addr          { return c.conn.RemoteAddr() }

func (c *channelConn) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

func (c *channelConn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// Close closes the underlying connection. Safe to call multiple times.
func (c *channelConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Compile-time interface satisfaction check.
var _ Conn = (*channelConn)(nil)
