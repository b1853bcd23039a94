package server

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidlink-protocol/hidlink-go/pkg/auth"
	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	"github.com/hidlink-protocol/hidlink-go/pkg/registry"
	"github.com/hidlink-protocol/hidlink-go/pkg/transport"
)

var stranger = hid.DeviceAddress{0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC}

// startedService brings up a service with the peripheral known and the
// given agent, listening on ephemeral ports.
func startedService(t *testing.T, agent auth.Agent) (*Service, *registry.Manager) {
	t.Helper()

	reg := registry.NewManager()
	require.NoError(t, reg.AddDevice(peripheral, "test keyboard"))

	svc, err := NewService(Config{
		ControlAddress:   "127.0.0.1:0",
		InterruptAddress: "127.0.0.1:0",
		LocalAddr:        adapter,
	}, reg, agent)
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background(), nil))
	t.Cleanup(func() { svc.Stop() })
	return svc, reg
}

func grantingAgent() *auth.FuncAgent {
	return &auth.FuncAgent{
		Decide: func(hid.DeviceAddress, hid.DeviceAddress, string) error { return nil },
	}
}

func dialChannel(t *testing.T, svc *Service, kind hid.ChannelKind, from hid.DeviceAddress) net.Conn {
	t.Helper()

	var addr net.Addr
	if kind == hid.ChannelControl {
		addr = svc.ControlAddr()
	} else {
		addr = svc.InterruptAddr()
	}
	require.NotNil(t, addr)

	conn, err := transport.Dial(context.Background(), addr.String(), kind, from)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readOutcome reads the channel until it closes and returns what
// arrived before the close.
func readOutcome(t *testing.T, conn net.Conn) []byte {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := io.ReadAll(conn)
	require.NoError(t, err, "channel was not closed by the server")
	return data
}

func TestServiceLifecycle(t *testing.T) {
	reg := registry.NewManager()
	svc, err := NewService(Config{
		ControlAddress:   "127.0.0.1:0",
		InterruptAddress: "127.0.0.1:0",
		LocalAddr:        adapter,
	}, reg, grantingAgent())
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background(), nil))
	assert.True(t, svc.Running())
	assert.NotNil(t, svc.ControlAddr())
	assert.NotNil(t, svc.InterruptAddr())

	assert.Error(t, svc.Start(context.Background(), nil), "double start must fail")

	require.NoError(t, svc.Stop())
	assert.False(t, svc.Running())
	assert.Nil(t, svc.ControlAddr())
	assert.Nil(t, svc.InterruptAddr())

	assert.NoError(t, svc.Stop(), "stop must be idempotent")

	// The service comes back up after a stop.
	require.NoError(t, svc.Start(context.Background(), nil))
	assert.True(t, svc.Running())
	svc.Stop()
}

func TestServiceRejectsZeroAdapterAddress(t *testing.T) {
	_, err := NewService(Config{}, registry.NewManager(), grantingAgent())
	assert.Error(t, err)
}

func TestInterruptStartFailureReleasesControl(t *testing.T) {
	// Occupy a port so the interrupt endpoint cannot bind.
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer blocker.Close()

	reg := registry.NewManager()
	svc, err := NewService(Config{
		ControlAddress:   "127.0.0.1:0",
		InterruptAddress: blocker.Addr().String(),
		LocalAddr:        adapter,
	}, reg, grantingAgent())
	require.NoError(t, err)

	assert.Error(t, svc.Start(context.Background(), nil))
	assert.False(t, svc.Running())
	assert.Nil(t, svc.ControlAddr())
}

func TestKnownDeviceGrantedCompletesConnection(t *testing.T) {
	svc, reg := startedService(t, grantingAgent())

	connected := make(chan struct{})
	reg.OnDeviceConnected(func(src, dst hid.DeviceAddress) {
		assert.Equal(t, adapter, src)
		assert.Equal(t, peripheral, dst)
		close(connected)
	})

	dialChannel(t, svc, hid.ChannelControl, peripheral)
	dialChannel(t, svc, hid.ChannelInterrupt, peripheral)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("device never completed connection")
	}
	assert.True(t, reg.IsConnected(adapter, peripheral))
}

func TestUnknownDeviceControlReceivesUnplug(t *testing.T) {
	svc, reg := startedService(t, grantingAgent())

	conn := dialChannel(t, svc, hid.ChannelControl, stranger)

	data := readOutcome(t, conn)
	require.Len(t, data, 1, "control rejection carries exactly the unplug byte")
	assert.Equal(t, hid.UnplugVirtualCable, data[0])
	assert.Zero(t, reg.ChannelCount(adapter, stranger))
}

func TestUnknownDeviceInterruptClosedWithoutUnplug(t *testing.T) {
	svc, reg := startedService(t, grantingAgent())

	conn := dialChannel(t, svc, hid.ChannelInterrupt, stranger)

	data := readOutcome(t, conn)
	assert.Empty(t, data, "interrupt rejection must not carry the unplug byte")
	assert.Zero(t, reg.ChannelCount(adapter, stranger))
}

func TestAgentDenialClosesBothChannels(t *testing.T) {
	denying := &auth.FuncAgent{
		Decide: func(hid.DeviceAddress, hid.DeviceAddress, string) error {
			return auth.ErrDenied
		},
	}
	svc, reg := startedService(t, denying)

	control := dialChannel(t, svc, hid.ChannelControl, peripheral)
	require.Eventually(t, func() bool {
		return reg.ChannelCount(adapter, peripheral) == 1
	}, 2*time.Second, 10*time.Millisecond)
	interrupt := dialChannel(t, svc, hid.ChannelInterrupt, peripheral)

	assert.Empty(t, readOutcome(t, control))
	assert.Empty(t, readOutcome(t, interrupt))

	assert.False(t, reg.IsConnected(adapter, peripheral))
	assert.Zero(t, reg.ChannelCount(adapter, peripheral))
}

func TestAuthorizationStartFailureClosesChannels(t *testing.T) {
	// Agent unavailable and no policy client attached: authorization
	// cannot even start, so the pair is torn down synchronously.
	svc, reg := startedService(t, &auth.FuncAgent{})

	control := dialChannel(t, svc, hid.ChannelControl, peripheral)
	require.Eventually(t, func() bool {
		return reg.ChannelCount(adapter, peripheral) == 1
	}, 2*time.Second, 10*time.Millisecond)
	interrupt := dialChannel(t, svc, hid.ChannelInterrupt, peripheral)

	assert.Empty(t, readOutcome(t, control))
	assert.Empty(t, readOutcome(t, interrupt))
	assert.Zero(t, reg.ChannelCount(adapter, peripheral))
}

func TestReplacedChannelIsClosed(t *testing.T) {
	svc, reg := startedService(t, grantingAgent())

	first := dialChannel(t, svc, hid.ChannelControl, peripheral)
	require.Eventually(t, func() bool {
		return reg.ChannelCount(adapter, peripheral) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A second control channel from the same pair replaces the first.
	dialChannel(t, svc, hid.ChannelControl, peripheral)

	assert.Empty(t, readOutcome(t, first), "replaced channel must be closed")
}
