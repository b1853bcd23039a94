package server

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidlink-protocol/hidlink-go/pkg/auth"
	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	"github.com/hidlink-protocol/hidlink-go/pkg/policy"
	"github.com/hidlink-protocol/hidlink-go/pkg/registry"
	"github.com/hidlink-protocol/hidlink-go/pkg/transport"
)

var (
	adapter    = hid.DeviceAddress{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	peripheral = hid.DeviceAddress{0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB}
)

// fakeConn is a transport.Conn test double recording writes and closes.
type fakeConn struct {
	mu      sync.Mutex
	id      string
	src     hid.DeviceAddress
	dst     hid.DeviceAddress
	kind    hid.ChannelKind
	written []byte
	closed  bool
}

func newFakeConn(src, dst hid.DeviceAddress, kind hid.ChannelKind) *fakeConn {
	return &fakeConn{id: "conn-" + kind.String(), src: src, dst: dst, kind: kind}
}

func (c *fakeConn) ConnID() string                { return c.id }
func (c *fakeConn) SourceAddr() hid.DeviceAddress { return c.src }
func (c *fakeConn) DestAddr() hid.DeviceAddress   { return c.dst }
func (c *fakeConn) Kind() hid.ChannelKind         { return c.kind }
func (c *fakeConn) RemoteAddr() net.Addr          { return nil }
func (c *fakeConn) Read([]byte) (int, error)      { return 0, nil }

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) bytesWritten() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written...)
}

var _ transport.Conn = (*fakeConn)(nil)

// stubPolicy is a PolicyAuthorizer test double. The test resolves the
// captured continuation by hand.
type stubPolicy struct {
	mu          sync.Mutex
	dispatchErr error
	fn          policy.ResultFunc
	requests    int
	cancels     int
}

func (s *stubPolicy) RequestAuthorization(dst hid.DeviceAddress, serviceID string, fn policy.ResultFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if s.dispatchErr != nil {
		return s.dispatchErr
	}
	s.fn = fn
	return nil
}

func (s *stubPolicy) CancelAuthorization(dst hid.DeviceAddress, serviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func (s *stubPolicy) resolve(t *testing.T, err error) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	require.NotNil(t, fn, "no request reached the policy tier")
	fn(err)
}

func (s *stubPolicy) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

// registeredPair returns a registry with the peripheral known and both
// channels registered, plus the channel conns for inspection.
func registeredPair(t *testing.T) (*registry.Manager, *fakeConn, *fakeConn) {
	t.Helper()

	reg := registry.NewManager()
	require.NoError(t, reg.AddDevice(peripheral, "test keyboard"))

	control := newFakeConn(adapter, peripheral, hid.ChannelControl)
	interrupt := newFakeConn(adapter, peripheral, hid.ChannelInterrupt)
	require.True(t, reg.RegisterChannel(adapter, peripheral, hid.ChannelControl, control))
	require.True(t, reg.RegisterChannel(adapter, peripheral, hid.ChannelInterrupt, interrupt))
	return reg, control, interrupt
}

func TestBrokerAgentGrantCompletesConnection(t *testing.T) {
	reg, _, _ := registeredPair(t)

	agent := &auth.FuncAgent{
		Decide: func(hid.DeviceAddress, hid.DeviceAddress, string) error { return nil },
	}
	broker := NewBroker(reg, agent, "", nil)

	connected := make(chan struct{})
	reg.OnDeviceConnected(func(hid.DeviceAddress, hid.DeviceAddress) { close(connected) })

	require.NoError(t, broker.Authorize(adapter, peripheral))

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never completed")
	}
	assert.True(t, reg.IsConnected(adapter, peripheral))
}

func TestBrokerAgentDenialClosesChannels(t *testing.T) {
	reg, control, interrupt := registeredPair(t)

	cancels := 0
	agent := &auth.FuncAgent{
		Decide: func(hid.DeviceAddress, hid.DeviceAddress, string) error {
			return auth.ErrDenied
		},
		OnCancel: func(hid.DeviceAddress, string) { cancels++ },
	}
	broker := NewBroker(reg, agent, "", nil)

	require.NoError(t, broker.Authorize(adapter, peripheral))

	require.Eventually(t, control.isClosed, 2*time.Second, 10*time.Millisecond)
	assert.True(t, interrupt.isClosed())
	assert.Zero(t, reg.ChannelCount(adapter, peripheral))
	assert.False(t, reg.IsConnected(adapter, peripheral))
	assert.Zero(t, cancels, "explicit denial must not trigger cancellation")
}

func TestBrokerAgentNoReplyCancelsOnce(t *testing.T) {
	reg, control, interrupt := registeredPair(t)

	var mu sync.Mutex
	cancels := 0
	agent := &auth.FuncAgent{
		Decide: func(hid.DeviceAddress, hid.DeviceAddress, string) error {
			return auth.ErrNoReply
		},
		OnCancel: func(d hid.DeviceAddress, serviceID string) {
			mu.Lock()
			cancels++
			mu.Unlock()
			assert.Equal(t, peripheral, d)
			assert.Equal(t, hid.ServiceUUID, serviceID)
		},
	}
	broker := NewBroker(reg, agent, "", nil)

	require.NoError(t, broker.Authorize(adapter, peripheral))

	require.Eventually(t, control.isClosed, 2*time.Second, 10*time.Millisecond)
	assert.True(t, interrupt.isClosed())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, cancels)
}

func TestBrokerFallsBackWhenAgentUnavailable(t *testing.T) {
	reg, _, _ := registeredPair(t)

	stub := &stubPolicy{}
	broker := NewBroker(reg, &auth.FuncAgent{}, "", nil)
	broker.SetPolicyClient(stub)

	require.NoError(t, broker.Authorize(adapter, peripheral))
	stub.resolve(t, nil)

	assert.True(t, reg.IsConnected(adapter, peripheral))
	assert.Zero(t, stub.cancelCount())
}

// saturatedAgent is an auth.Agent double whose dispatch always fails
// with a caller-supplied error.
type saturatedAgent struct {
	err error
}

func (a *saturatedAgent) RequestAuthorization(src, dst hid.DeviceAddress, serviceID string, fn auth.ResultFunc) error {
	return a.err
}

func (a *saturatedAgent) CancelAuthorization(hid.DeviceAddress, string) {}

var _ auth.Agent = (*saturatedAgent)(nil)

func TestBrokerFallsBackOnAnyAgentDispatchError(t *testing.T) {
	reg, _, _ := registeredPair(t)

	// Not the unavailable sentinel: a failed dispatch of any shape means
	// the agent never took the request, so the policy tier must be asked.
	agent := &saturatedAgent{err: errors.New("agent queue full")}
	stub := &stubPolicy{}
	broker := NewBroker(reg, agent, "", nil)
	broker.SetPolicyClient(stub)

	require.NoError(t, broker.Authorize(adapter, peripheral))
	assert.Equal(t, 1, stub.requests)

	stub.resolve(t, nil)
	assert.True(t, reg.IsConnected(adapter, peripheral))
}

func TestBrokerFallbackNoReplyCancelsViaPolicy(t *testing.T) {
	reg, control, interrupt := registeredPair(t)

	stub := &stubPolicy{}
	broker := NewBroker(reg, &auth.FuncAgent{}, "", nil)
	broker.SetPolicyClient(stub)

	require.NoError(t, broker.Authorize(adapter, peripheral))
	stub.resolve(t, policy.ErrNoReply)

	assert.True(t, control.isClosed())
	assert.True(t, interrupt.isClosed())
	assert.Equal(t, 1, stub.cancelCount())
}

func TestBrokerFallbackDenialDoesNotCancel(t *testing.T) {
	reg, control, _ := registeredPair(t)

	stub := &stubPolicy{}
	broker := NewBroker(reg, &auth.FuncAgent{}, "", nil)
	broker.SetPolicyClient(stub)

	require.NoError(t, broker.Authorize(adapter, peripheral))
	stub.resolve(t, policy.ErrDenied)

	assert.True(t, control.isClosed())
	assert.Zero(t, stub.cancelCount())
}

func TestBrokerNoPolicyClientFailsFallback(t *testing.T) {
	reg, _, _ := registeredPair(t)

	broker := NewBroker(reg, &auth.FuncAgent{}, "", nil)

	err := broker.Authorize(adapter, peripheral)
	assert.ErrorIs(t, err, policy.ErrTransportUnavailable)
	// Synchronous failure: the caller owns teardown, the broker must not
	// have touched the channels.
	assert.Equal(t, 2, reg.ChannelCount(adapter, peripheral))
}

func TestBrokerFallbackDispatchFailure(t *testing.T) {
	reg, _, _ := registeredPair(t)

	stub := &stubPolicy{dispatchErr: policy.ErrTransportUnavailable}
	broker := NewBroker(reg, &auth.FuncAgent{}, "", nil)
	broker.SetPolicyClient(stub)

	err := broker.Authorize(adapter, peripheral)
	assert.ErrorIs(t, err, policy.ErrTransportUnavailable)
	assert.Equal(t, 1, stub.requests)
}

func TestBrokerDetachedClientAfterStop(t *testing.T) {
	reg, _, _ := registeredPair(t)

	stub := &stubPolicy{}
	broker := NewBroker(reg, &auth.FuncAgent{}, "", nil)
	broker.SetPolicyClient(stub)
	broker.SetPolicyClient(nil)

	err := broker.Authorize(adapter, peripheral)
	assert.ErrorIs(t, err, policy.ErrTransportUnavailable)
	assert.Zero(t, stub.requests)
}

func TestAgentAndPolicyNoReplyAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(auth.ErrNoReply, policy.ErrNoReply))
	assert.False(t, errors.Is(policy.ErrNoReply, auth.ErrNoReply))
}
