package wire

import (
	"fmt"
)

// CBOR map keys for message encoding.
// All policy-link messages use integer keys for efficiency.
const (
	// Common message keys
	KeyMessageID  = 1
	KeyOpOrStatus = 2 // Operation (request) or Status (response)
	KeyAddress    = 3
	KeyServiceID  = 4
	KeyMessage    = 5 // Response only: denial/error text
)

// CancelMessageID is the reserved message ID for fire-and-forget cancel
// requests, which never receive a response.
const CancelMessageID uint32 = 0

// Operation identifies what a request asks the policy service to do.
type Operation uint8

const (
	// OpAuthorize asks whether the named device may use the HID service.
	OpAuthorize Operation = 1

	// OpCancel withdraws an earlier authorization request for the device.
	OpCancel Operation = 2
)

// IsValid reports whether the operation is a known request operation.
func (o Operation) IsValid() bool {
	return o == OpAuthorize || o == OpCancel
}

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpAuthorize:
		return "AUTHORIZE"
	case OpCancel:
		return "CANCEL"
	default:
		return "UNKNOWN"
	}
}

// Request represents a message from the daemon to the policy service.
//
// CBOR encoding:
//
//	{
//	  1: messageId,   // uint32: 0 for Cancel, non-zero for Authorize
//	  2: operation,   // uint8: 1=Authorize, 2=Cancel
//	  3: address,     // string: peripheral address "AA:BB:CC:DD:EE:FF"
//	  4: serviceId    // string: HID service UUID
//	}
type Request struct {
	MessageID uint32    `cbor:"1,keyasint"`
	Operation Operation `cbor:"2,keyasint"`
	Address   string    `cbor:"3,keyasint"`
	ServiceID string    `cbor:"4,keyasint"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	if r.Operation == OpAuthorize && r.MessageID == CancelMessageID {
		return fmt.Errorf("messageId 0 is reserved for cancel requests")
	}
	if r.Operation == OpCancel && r.MessageID != CancelMessageID {
		return fmt.Errorf("cancel requests must carry messageId 0")
	}
	if r.Address == "" {
		return fmt.Errorf("address is required")
	}
	if r.ServiceID == "" {
		return fmt.Errorf("serviceId is required")
	}
	return nil
}

// Response represents an authorization outcome from the policy service.
//
// CBOR encoding:
//
//	{
//	  1: messageId,   // uint32: matches the Authorize request
//	  2: status,      // uint8: 0=success, or error code
//	  3: message      // string: denial/error text (if not success)
//	}
type Response struct {
	MessageID uint32 `cbor:"1,keyasint"`
	Status    Status `cbor:"2,keyasint"`
	Message   string `cbor:"3,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates the device is authorized.
func (r *Response) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the device is authorized.
	StatusSuccess Status = 0

	// StatusDenied indicates the policy service rejected the device.
	StatusDenied Status = 1

	// StatusNoReply indicates the party asked to confirm never answered.
	// This is the timeout-shaped denial that triggers cancellation.
	StatusNoReply Status = 2

	// StatusUnknownDevice indicates the policy service has no record of
	// the device.
	StatusUnknownDevice Status = 3

	// StatusInternal indicates a policy service internal failure.
	StatusInternal Status = 4
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusDenied:
		return "DENIED"
	case StatusNoReply:
		return "NO_REPLY"
	case StatusUnknownDevice:
		return "UNKNOWN_DEVICE"
	case StatusInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}
