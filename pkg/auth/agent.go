package auth

import (
	"errors"

	"github.com/hidlink-protocol/hidlink-go/pkg/hid"
)

// Agent errors.
var (
	// ErrAgentUnavailable indicates the request could not be dispatched;
	// the caller should fall back to the remote policy service.
	ErrAgentUnavailable = errors.New("authorization agent unavailable")

	// ErrNoReply indicates the party asked to confirm never answered.
	// Callers issue a cancellation when they see this error.
	ErrNoReply = errors.New("no reply from authorization agent")

	// ErrDenied indicates an explicit denial.
	ErrDenied = errors.New("authorization denied")
)

// ResultFunc receives the outcome of one authorization request.
// A nil error admits the device.
type ResultFunc func(err error)

// Agent is the in-process authorization service asked first for every
// interrupt-channel connection.
type Agent interface {
	// RequestAuthorization dispatches an authorization request for the
	// device pair. The call is non-blocking: a nil return only means the
	// request was accepted for processing and fn will be called exactly
	// once with the outcome. A non-nil return means the request could
	// not be dispatched and fn will never be called.
	RequestAuthorization(src, dst hid.DeviceAddress, serviceID string, fn ResultFunc) error

	// CancelAuthorization withdraws a dangling request for the device so
	// the agent does not retain it. Best-effort, fire-and-forget.
	CancelAuthorization(dst hid.DeviceAddress, serviceID string)
}

// DecideFunc produces an authorization outcome for a device pair.
// Return nil to admit, ErrDenied (or any error) to reject.
type DecideFunc func(src, dst hid.DeviceAddress, serviceID string) error

// FuncAgent adapts a decision function into an Agent. The decision runs
// on its own goroutine so dispatch never blocks the accept path. A
// FuncAgent with a nil decision function reports ErrAgentUnavailable on
// every dispatch, which exercises the policy-service fallback.
type FuncAgent struct {
	// Decide produces the outcome. Nil makes the agent unavailable.
	Decide DecideFunc

	// OnCancel is invoked for every cancellation notice (optional).
	OnCancel func(dst hid.DeviceAddress, serviceID string)
}

// RequestAuthorization dispatches the decision function.
func (a *FuncAgent) RequestAuthorization(src, dst hid.DeviceAddress, serviceID string, fn ResultFunc) error {
	if a.Decide == nil {
		return ErrAgentUnavailable
	}

	go func() {
		fn(a.Decide(src, dst, serviceID))
	}()
	return nil
}

// CancelAuthorization forwards the cancellation notice, if anyone listens.
func (a *FuncAgent) CancelAuthorization(dst hid.DeviceAddress, serviceID string) {
	if a.OnCancel != nil {
		a.OnCancel(dst, serviceID)
	}
}

// Compile-time interface satisfaction check.
var _ Agent = (*FuncAgent)(nil)
