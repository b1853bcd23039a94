package server

import (
	"time"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	"github.com/hidlink-protocol/hidlink-go/pkg/log"
	"github.com/hidlink-protocol/hidlink-go/pkg/registry"
	"github.com/hidlink-protocol/hidlink-go/pkg/transport"
)

// Acceptor turns accepted endpoint connections into registered channels
// and kicks off authorization once the interrupt channel arrives.
type Acceptor struct {
	registry registry.Registry
	broker   *Broker
	logger   log.Logger
}

// NewAcceptor creates an acceptor feeding the given registry and broker.
func NewAcceptor(reg registry.Registry, broker *Broker, logger log.Logger) *Acceptor {
	return &Acceptor{
		registry: reg,
		broker:   broker,
		logger:   logger,
	}
}

// AcceptFunc returns the listener callback for one endpoint kind.
func (a *Acceptor) AcceptFunc(kind hid.ChannelKind) transport.AcceptFunc {
	return func(conn transport.Conn, err error) {
		a.OnConnectionEvent(conn, err, kind)
	}
}

// OnConnectionEvent handles one accepted connection or accept error for
// the given endpoint kind.
//
// Accept errors are logged and dropped; the listener keeps running.
// Unknown devices are rejected: on the control channel the rejection
// carries a best-effort virtual cable unplug byte so the peripheral
// forgets the pairing, then the connection is closed. A registered
// interrupt channel triggers authorization; if authorization cannot
// even be started, both of the pair's channels are closed.
func (a *Acceptor) OnConnectionEvent(conn transport.Conn, err error, kind hid.ChannelKind) {
	if err != nil {
		a.logError(kind, err)
		return
	}

	src, dst := conn.SourceAddr(), conn.DestAddr()

	if !a.registry.RegisterChannel(src, dst, kind, conn) {
		if kind == hid.ChannelControl {
			// Failure to deliver the unplug is acceptable; the close
			// that follows rejects the device either way.
			_, _ = conn.Write([]byte{hid.UnplugVirtualCable})
		}
		_ = conn.Close()
		a.logRejected(conn, kind)
		return
	}

	if kind != hid.ChannelInterrupt {
		return
	}

	if err := a.broker.Authorize(src, dst); err != nil {
		a.logError(kind, err)
		a.registry.CloseChannels(src, dst)
	}
}

// logRejected emits a state event for an unknown-device rejection.
func (a *Acceptor) logRejected(conn transport.Conn, kind hid.ChannelKind) {
	if a.logger == nil {
		return
	}
	a.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.ConnID(),
		Layer:        log.LayerService,
		Category:     log.CategoryState,
		SourceAddr:   conn.SourceAddr().String(),
		DestAddr:     conn.DestAddr().String(),
		Channel:      kind.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityChannel,
			OldState: "CONNECTED",
			NewState: "REJECTED",
			Reason:   "unknown device",
		},
	})
}

// logError emits an error event for the endpoint.
func (a *Acceptor) logError(kind hid.ChannelKind, err error) {
	if a.logger == nil {
		return
	}
	a.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerService,
		Category:  log.CategoryError,
		Channel:   kind.String(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerService,
			Message: err.Error(),
		},
	})
}
