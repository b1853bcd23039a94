package server

import (
	"errors"
	"sync"
	"time"

	"github.com/hidlink-protocol/hidlink-go/pkg/auth"
	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
	"github.com/hidlink-protocol/hidlink-go/pkg/log"
	"github.com/hidlink-protocol/hidlink-go/pkg/policy"
	"github.com/hidlink-protocol/hidlink-go/pkg/registry"
)

// PolicyAuthorizer is the slice of the policy client the broker needs
// for its fallback path.
type PolicyAuthorizer interface {
	RequestAuthorization(dst hid.DeviceAddress, serviceID string, fn policy.ResultFunc) error
	CancelAuthorization(dst hid.DeviceAddress, serviceID string)
}

// Compile-time check: the policy client serves as the fallback tier.
var _ PolicyAuthorizer = (*policy.Client)(nil)

// Broker runs the two-tier authorization flow for accepted device
// pairs. The in-process agent is asked first; the remote policy service
// only when the agent could not take the request. At most one
// continuation fires per Authorize call that returned nil.
type Broker struct {
	registry  registry.Registry
	agent     auth.Agent
	serviceID string
	logger    log.Logger

	mu     sync.Mutex
	client PolicyAuthorizer
}

// NewBroker creates an authorization broker. The policy client handle
// is attached later, by the service lifecycle.
func NewBroker(reg registry.Registry, agent auth.Agent, serviceID string, logger log.Logger) *Broker {
	if serviceID == "" {
		serviceID = hid.ServiceUUID
	}
	return &Broker{
		registry:  reg,
		agent:     agent,
		serviceID: serviceID,
		logger:    logger,
	}
}

// SetPolicyClient attaches (or detaches, with nil) the fallback policy
// client. Authorization attempted while no client is attached fails the
// fallback with ErrTransportUnavailable.
func (b *Broker) SetPolicyClient(client PolicyAuthorizer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.client = client
}

func (b *Broker) policyClient() PolicyAuthorizer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// Authorize starts the authorization flow for a device pair. A nil
// return means a request is in flight on one of the two tiers and the
// outcome will drive the registry asynchronously. A non-nil return
// means neither tier accepted the request, no continuation will ever
// fire, and the caller must tear the pair's channels down itself.
//
// Concurrent Authorize calls for the same pair each run their own
// request; the registry absorbs duplicate outcomes (CompleteConnection
// and CloseChannels are idempotent per pair).
func (b *Broker) Authorize(src, dst hid.DeviceAddress) error {
	err := b.agent.RequestAuthorization(src, dst, b.serviceID, func(err error) {
		b.finish(src, dst, log.TierAgent, err)
	})
	if err == nil {
		b.logAuth(src, dst, log.TierAgent, log.StageRequested, "")
		return nil
	}

	// Any dispatch error means the agent never took the request and its
	// continuation will not fire, so falling back cannot double up
	// continuations.
	client := b.policyClient()
	if client == nil {
		return policy.ErrTransportUnavailable
	}

	err = client.RequestAuthorization(dst, b.serviceID, func(err error) {
		b.finish(src, dst, log.TierPolicy, err)
	})
	if err != nil {
		return err
	}

	b.logAuth(src, dst, log.TierPolicy, log.StageRequested, "")
	return nil
}

// finish is the single continuation for both tiers.
func (b *Broker) finish(src, dst hid.DeviceAddress, tier log.AuthTier, err error) {
	if err == nil {
		b.logAuth(src, dst, tier, log.StageGranted, "")
		b.registry.CompleteConnection(src, dst)
		return
	}

	// A no-reply outcome leaves a dangling request on the asked tier;
	// withdraw it once, best-effort, before tearing the pair down.
	switch tier {
	case log.TierAgent:
		if errors.Is(err, auth.ErrNoReply) {
			b.agent.CancelAuthorization(dst, b.serviceID)
			b.logAuth(src, dst, tier, log.StageCancelled, err.Error())
		}
	case log.TierPolicy:
		if errors.Is(err, policy.ErrNoReply) {
			if client := b.policyClient(); client != nil {
				client.CancelAuthorization(dst, b.serviceID)
			}
			b.logAuth(src, dst, tier, log.StageCancelled, err.Error())
		}
	}

	b.logAuth(src, dst, tier, log.StageDenied, err.Error())
	b.registry.CloseChannels(src, dst)
}

// logAuth emits an authorization progress event.
func (b *Broker) logAuth(src, dst hid.DeviceAddress, tier log.AuthTier, stage log.AuthStage, reason string) {
	if b.logger == nil {
		return
	}
	b.logger.Log(log.Event{
		Timestamp:  time.Now(),
		Layer:      log.LayerService,
		Category:   log.CategoryAuth,
		SourceAddr: src.String(),
		DestAddr:   dst.String(),
		Auth: &log.AuthEvent{
			Tier:   tier,
			Stage:  stage,
			Reason: reason,
		},
	})
}
