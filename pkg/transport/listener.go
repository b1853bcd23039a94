package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	"github.com/hidlink-protocol/hidlink-go/pkg/log"
)

// DefaultHelloTimeout bounds how long an accepted connection may take to
// identify itself before it is dropped.
const DefaultHelloTimeout = 5 * time.Second

// AcceptFunc is called once per accepted connection. On accept-level
// failure it is called with a nil conn and the error; the callback owns
// the connection afterwards in the success case.
type AcceptFunc func(conn Conn, err error)

// ListenerConfig configures one endpoint listener.
type ListenerConfig struct {
	// Address to listen on (e.g., ":17017" or "127.0.0.1:0").
	Address string

	// Kind identifies the HID endpoint this listener serves.
	Kind hid.ChannelKind

	// LocalAddr is the adapter address reported as the source of every
	// accepted channel. Must be non-zero.
	LocalAddr hid.DeviceAddress

	// HelloTimeout bounds the wait for the channel hello (default 5s).
	HelloTimeout time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger

	// OnConnection is called for each accepted connection or accept error.
	OnConnection AcceptFunc
}

// Listener is a passive endpoint listener for one HID channel kind.
type Listener struct {
	config ListenerConfig
	ln     net.Listener

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewListener creates a listener for the configured endpoint.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.OnConnection == nil {
		return nil, fmt.Errorf("OnConnection is required")
	}
	if config.LocalAddr.IsZero() {
		return nil, fmt.Errorf("LocalAddr is required")
	}
	if config.HelloTimeout == 0 {
		config.HelloTimeout = DefaultHelloTimeout
	}

	return &Listener{config: config}, nil
}

// Start opens the listening socket and begins accepting connections.
func (l *Listener) Start(ctx context.Context) error {
	if l.running.Load() {
		return fmt.Errorf("listener already running")
	}

	l.ctx, l.cancel = context.WithCancel(ctx)

	ln, err := net.Listen("tcp", l.config.Address)
	if err != nil {
		l.cancel()
		return fmt.Errorf("failed to listen on %s endpoint: %w", l.config.Kind, err)
	}
	l.ln = ln

	l.running.Store(true)
	l.logState("", "LISTENING")

	l.wg.Add(1)
	go l.acceptLoop()

	return nil
}

// Stop closes the listening socket and waits for in-flight accepts.
// Idempotent - safe to call when already stopped.
func (l *Listener) Stop() error {
	if !l.running.Load() {
		return nil
	}

	l.running.Store(false)
	l.cancel()

	if l.ln != nil {
		l.ln.Close()
	}

	l.wg.Wait()
	l.logState("LISTENING", "STOPPED")

	return nil
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr {
	if l.ln != nil {
		return l.ln.Addr()
	}
	return nil
}

// Kind returns the HID endpoint this listener serves.
func (l *Listener) Kind() hid.ChannelKind {
	return l.config.Kind
}

// acceptLoop accepts incoming connections.
func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for l.running.Load() {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.running.Load() {
				l.config.OnConnection(nil, fmt.Errorf("accept on %s endpoint: %w", l.config.Kind, err))
			}
			continue
		}

		l.wg.Add(1)
		go l.handleConnection(conn)
	}
}

// handleConnection reads the channel hello and hands the identified
// connection to the accept callback.
func (l *Listener) handleConnection(conn net.Conn) {
	defer l.wg.Done()

	conn.SetReadDeadline(time.Now().Add(l.config.HelloTimeout))
	peer, err := readHello(conn, l.config.Kind)
	if err != nil {
		conn.Close()
		l.config.OnConnection(nil, fmt.Errorf("%s endpoint hello: %w", l.config.Kind, err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	cc := &channelConn{
		conn:   conn,
		connID: uuid.New().String(),
		src:    l.config.LocalAddr,
		dst:    peer,
		kind:   l.config.Kind,
	}

	if l.config.Logger != nil {
		l.config.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: cc.connID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerTransport,
			Category:     log.CategoryState,
			SourceAddr:   cc.src.String(),
			DestAddr:     cc.dst.String(),
			Channel:      l.config.Kind.String(),
			RemoteAddr:   conn.RemoteAddr().String(),
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityChannel,
				NewState: "CONNECTED",
			},
		})
	}

	l.config.OnConnection(cc, nil)
}

// logState emits a listener state change event.
func (l *Listener) logState(oldState, newState string) {
	if l.config.Logger == nil {
		return
	}
	l.config.Logger.Log(log.Event{
		Timestamp:  time.Now(),
		Layer:      log.LayerTransport,
		Category:   log.CategoryState,
		SourceAddr: l.config.LocalAddr.String(),
		Channel:    l.config.Kind.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityListener,
			OldState: oldState,
			NewState: newState,
		},
	})
}
