package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hidlink-protocol/hidlink-go/pkg/auth"
	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	"github.com/hidlink-protocol/hidlink-go/pkg/log"
	"github.com/hidlink-protocol/hidlink-go/pkg/registry"
	"github.com/hidlink-protocol/hidlink-go/pkg/transport"
)

// Config configures the acceptance service.
type Config struct {
	// ControlAddress is the control endpoint listen address.
	ControlAddress string

	// InterruptAddress is the interrupt endpoint listen address.
	InterruptAddress string

	// LocalAddr is the adapter address. Must be non-zero.
	LocalAddr hid.DeviceAddress

	// ServiceID identifies the HID service in authorization requests
	// (default hid.ServiceUUID).
	ServiceID string

	// HelloTimeout bounds the channel hello wait (default 5s).
	HelloTimeout time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger
}

// Service owns the two endpoint listeners and the authorization broker.
// Start brings the endpoints up; Stop tears them down. The policy
// client handle is attached for the lifetime of one Start/Stop window.
type Service struct {
	config   Config
	registry registry.Registry
	broker   *Broker
	acceptor *Acceptor

	mu        sync.Mutex
	control   *transport.Listener
	interrupt *transport.Listener
	running   bool
}

// NewService creates the acceptance service.
func NewService(config Config, reg registry.Registry, agent auth.Agent) (*Service, error) {
	if config.LocalAddr.IsZero() {
		return nil, fmt.Errorf("adapter address is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if agent == nil {
		return nil, fmt.Errorf("authorization agent is required")
	}

	broker := NewBroker(reg, agent, config.ServiceID, config.Logger)
	return &Service{
		config:   config,
		registry: reg,
		broker:   broker,
		acceptor: NewAcceptor(reg, broker, config.Logger),
	}, nil
}

// Start opens the control endpoint, then the interrupt endpoint, and
// attaches the policy client for the fallback authorization path. If
// the interrupt endpoint fails to open the control endpoint is released
// again and the service stays down. client may be nil, in which case
// the fallback path is unavailable.
func (s *Service) Start(ctx context.Context, client PolicyAuthorizer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("service already running")
	}

	s.broker.SetPolicyClient(client)

	control, err := s.startListener(ctx, s.config.ControlAddress, hid.ChannelControl)
	if err != nil {
		s.broker.SetPolicyClient(nil)
		return err
	}

	interrupt, err := s.startListener(ctx, s.config.InterruptAddress, hid.ChannelInterrupt)
	if err != nil {
		_ = control.Stop()
		s.broker.SetPolicyClient(nil)
		return err
	}

	s.control = control
	s.interrupt = interrupt
	s.running = true
	return nil
}

// Stop releases the endpoints in reverse order of Start and detaches
// the policy client. Idempotent - safe to call when not running.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.interrupt != nil {
		_ = s.interrupt.Stop()
		s.interrupt = nil
	}
	if s.control != nil {
		_ = s.control.Stop()
		s.control = nil
	}

	s.broker.SetPolicyClient(nil)
	s.running = false
	return nil
}

// Running reports whether the endpoints are up.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ControlAddr returns the control endpoint's bound address, or nil when
// the service is down.
func (s *Service) ControlAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.control == nil {
		return nil
	}
	return s.control.Addr()
}

// InterruptAddr returns the interrupt endpoint's bound address, or nil
// when the service is down.
func (s *Service) InterruptAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interrupt == nil {
		return nil
	}
	return s.interrupt.Addr()
}

// startListener builds and starts one endpoint listener.
func (s *Service) startListener(ctx context.Context, address string, kind hid.ChannelKind) (*transport.Listener, error) {
	listener, err := transport.NewListener(transport.ListenerConfig{
		Address:      address,
		Kind:         kind,
		LocalAddr:    s.config.LocalAddr,
		HelloTimeout: s.config.HelloTimeout,
		Logger:       s.config.Logger,
		OnConnection: s.acceptor.AcceptFunc(kind),
	})
	if err != nil {
		return nil, err
	}
	if err := listener.Start(ctx); err != nil {
		return nil, err
	}
	return listener, nil
}
