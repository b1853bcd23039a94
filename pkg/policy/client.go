package policy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	"github.com/hidlink-protocol/hidlink-go/pkg/log"
	"github.com/hidlink-protocol/hidlink-go/pkg/transport"
	"github.com/hidlink-protocol/hidlink-go/pkg/wire"
)

// Client errors.
var (
	// ErrTransportUnavailable indicates the request could not be sent;
	// no continuation will ever fire and the caller must tear down the
	// device's channels itself.
	ErrTransportUnavailable = errors.New("policy service transport unavailable")

	// ErrCannotAllocate indicates the request could not be constructed.
	ErrCannotAllocate = errors.New("unable to build authorization request")

	// ErrNoReply indicates the policy service (or the party it asked)
	// never answered. Callers issue a one-shot cancellation on this error.
	ErrNoReply = errors.New("no reply from policy service")

	// ErrDenied indicates an explicit denial from the policy service.
	ErrDenied = errors.New("authorization denied by policy service")

	// ErrClientClosed indicates the client was closed.
	ErrClientClosed = errors.New("policy client closed")
)

// ResultFunc receives the outcome of one authorization request.
// A nil error admits the device. Called exactly once per request that
// was accepted by RequestAuthorization.
type ResultFunc func(err error)

// ClientConfig configures a policy service client.
type ClientConfig struct {
	// Address of the policy service (host:port).
	Address string

	// TLSConfig enables TLS on the link when non-nil.
	TLSConfig *tls.Config

	// ConnectTimeout is the dial timeout (default 10s).
	ConnectTimeout time.Duration

	// RequestTimeout is the per-request no-reply timeout (default 30s).
	RequestTimeout time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger
}

// pendingCall is one in-flight authorization request.
type pendingCall struct {
	dst   hid.DeviceAddress
	fn    ResultFunc
	timer *time.Timer
}

// Client is an asynchronous RPC client for the policy service.
type Client struct {
	config ClientConfig

	mu      sync.Mutex
	conn    net.Conn
	framer  *transport.Framer
	connID  string
	nextID  uint32
	pending map[uint32]*pendingCall
	closed  bool

	ctx     context.Context
	cancel  context.CancelFunc
	backoff *Backoff
	wg      sync.WaitGroup
}

// NewClient creates a policy client. Call Connect before issuing requests.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("policy service address is required")
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}

	return &Client{
		config:  config,
		nextID:  1,
		pending: make(map[uint32]*pendingCall),
		backoff: NewBackoff(),
	}, nil
}

// Connect establishes the policy link and starts the reply dispatcher.
// The link reconnects with exponential backoff if it drops; Close stops it.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("policy client already connected")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	conn, framer, connID, err := c.dial(c.ctx)
	if err != nil {
		c.cancel()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.framer = framer
	c.connID = connID
	c.mu.Unlock()

	c.logLinkState("", "CONNECTED", "")

	c.wg.Add(1)
	go c.readLoop(framer)

	return nil
}

// Close tears down the link and fails all in-flight requests.
// Idempotent - safe to call when never connected.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.framer = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}

	c.failPending(fmt.Errorf("%w: %w", ErrTransportUnavailable, ErrClientClosed))
	c.wg.Wait()
	return nil
}

// Connected reports whether the link is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// PendingCount returns the number of in-flight requests.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// RequestAuthorization sends an asynchronous authorization request for
// the peripheral. A nil return means the request is in flight and fn
// will be called exactly once with the outcome. A non-nil return means
// nothing was sent and fn will never be called.
func (c *Client) RequestAuthorization(dst hid.DeviceAddress, serviceID string, fn ResultFunc) error {
	c.mu.Lock()

	if c.closed || c.framer == nil {
		c.mu.Unlock()
		return ErrTransportUnavailable
	}

	id := c.nextID
	c.nextID++
	if c.nextID == wire.CancelMessageID {
		c.nextID = 1
	}

	data, err := wire.EncodeRequest(&wire.Request{
		MessageID: id,
		Operation: wire.OpAuthorize,
		Address:   dst.String(),
		ServiceID: serviceID,
	})
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrCannotAllocate, err)
	}

	call := &pendingCall{dst: dst, fn: fn}
	c.pending[id] = call
	framer := c.framer
	c.mu.Unlock()

	if err := framer.WriteFrame(data); err != nil {
		// Nothing reached the wire; withdraw the pending call so the
		// continuation never fires.
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	call.timer = time.AfterFunc(c.config.RequestTimeout, func() {
		c.resolve(id, fmt.Errorf("%w after %v", ErrNoReply, c.config.RequestTimeout))
	})

	c.logAuth(dst, log.StageRequested, "")
	return nil
}

// CancelAuthorization sends a fire-and-forget cancellation notice for
// the peripheral. Send failures are logged, never surfaced, and the
// notice is never retried.
func (c *Client) CancelAuthorization(dst hid.DeviceAddress, serviceID string) {
	c.mu.Lock()
	framer := c.framer
	c.mu.Unlock()

	if framer == nil {
		c.logError("cancel authorization", ErrTransportUnavailable)
		return
	}

	data, err := wire.EncodeRequest(&wire.Request{
		MessageID: wire.CancelMessageID,
		Operation: wire.OpCancel,
		Address:   dst.String(),
		ServiceID: serviceID,
	})
	if err != nil {
		c.logError("cancel authorization", err)
		return
	}

	if err := framer.WriteFrame(data); err != nil {
		c.logError("cancel authorization", err)
		return
	}

	c.logAuth(dst, log.StageCancelled, "")
}

// dial opens one connection to the policy service.
func (c *Client) dial(ctx context.Context) (net.Conn, *transport.Framer, string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", c.config.Address)
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	if c.config.TLSConfig != nil {
		tlsConn := tls.Client(conn, c.config.TLSConfig)
		if err := tlsConn.HandshakeContext(dialCtx); err != nil {
			conn.Close()
			return nil, nil, "", fmt.Errorf("%w: TLS handshake: %w", ErrTransportUnavailable, err)
		}
		conn = tlsConn
	}

	connID := uuid.New().String()
	framer := transport.NewFramer(conn)
	if c.config.Logger != nil {
		framer.SetLogger(c.config.Logger, connID)
	}

	return conn, framer, connID, nil
}

// readLoop dispatches replies to pending calls until the link drops.
func (c *Client) readLoop(framer *transport.Framer) {
	defer c.wg.Done()

	for {
		data, err := framer.ReadFrame()
		if err != nil {
			c.onLinkDown(err)
			return
		}

		resp, err := wire.DecodeResponse(data)
		if err != nil {
			c.logError("decode policy response", err)
			continue
		}

		c.resolve(resp.MessageID, outcomeError(resp))
	}
}

// onLinkDown fails in-flight requests and starts reconnecting.
func (c *Client) onLinkDown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.framer = nil
	}
	c.mu.Unlock()

	c.logLinkState("CONNECTED", "DISCONNECTED", cause.Error())
	c.failPending(fmt.Errorf("%w: link dropped: %w", ErrTransportUnavailable, cause))

	c.wg.Add(1)
	go c.reconnectLoop()
}

// reconnectLoop re-establishes the link with exponential backoff.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	for {
		delay := c.backoff.Next()
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}

		conn, framer, connID, err := c.dial(c.ctx)
		if err != nil {
			c.logError("reconnect policy service", err)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.framer = framer
		c.connID = connID
		c.mu.Unlock()

		c.backoff.Reset()
		c.logLinkState("DISCONNECTED", "CONNECTED", "")

		c.wg.Add(1)
		go c.readLoop(framer)
		return
	}
}

// resolve completes a pending call exactly once. Unknown IDs (already
// resolved, or a stray reply) are ignored.
func (c *Client) resolve(id uint32, err error) {
	c.mu.Lock()
	call, exists := c.pending[id]
	if !exists {
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	c.mu.Unlock()

	if call.timer != nil {
		call.timer.Stop()
	}

	if err == nil {
		c.logAuth(call.dst, log.StageGranted, "")
	} else {
		c.logAuth(call.dst, log.StageDenied, err.Error())
	}

	call.fn(err)
}

// failPending resolves every in-flight request with err.
func (c *Client) failPending(err error) {
	c.mu.Lock()
	calls := c.pending
	c.pending = make(map[uint32]*pendingCall)
	c.mu.Unlock()

	for _, call := range calls {
		if call.timer != nil {
			call.timer.Stop()
		}
		c.logAuth(call.dst, log.StageDenied, err.Error())
		call.fn(err)
	}
}

// outcomeError maps a policy response to the client error taxonomy.
func outcomeError(resp *wire.Response) error {
	switch resp.Status {
	case wire.StatusSuccess:
		return nil
	case wire.StatusNoReply:
		if resp.Message != "" {
			return fmt.Errorf("%w: %s", ErrNoReply, resp.Message)
		}
		return ErrNoReply
	default:
		if resp.Message != "" {
			return fmt.Errorf("%w: %s (%s)", ErrDenied, resp.Message, resp.Status)
		}
		return fmt.Errorf("%w (%s)", ErrDenied, resp.Status)
	}
}

// logAuth emits an authorization progress event for the policy tier.
func (c *Client) logAuth(dst hid.DeviceAddress, stage log.AuthStage, reason string) {
	if c.config.Logger == nil {
		return
	}
	c.mu.Lock()
	connID := c.connID
	c.mu.Unlock()

	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerService,
		Category:     log.CategoryAuth,
		DestAddr:     dst.String(),
		Auth: &log.AuthEvent{
			Tier:   log.TierPolicy,
			Stage:  stage,
			Reason: reason,
		},
	})
}

// logLinkState emits a policy-link state change event.
func (c *Client) logLinkState(oldState, newState, reason string) {
	if c.config.Logger == nil {
		return
	}
	c.mu.Lock()
	connID := c.connID
	c.mu.Unlock()

	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityPolicyLink,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// logError emits an error event.
func (c *Client) logError(context string, err error) {
	if c.config.Logger == nil {
		return
	}
	c.config.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerWire,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: context,
		},
	})
}
