package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// SourceAddr is the local adapter address ("AA:BB:..").
	SourceAddr string `cbor:"6,keyasint,omitempty"`

	// DestAddr is the peripheral address ("AA:BB:..").
	DestAddr string `cbor:"7,keyasint,omitempty"`

	// Channel names the HID endpoint ("CONTROL" or "INTERRUPT"), when the
	// event concerns one of the two link channels.
	Channel string `cbor:"8,keyasint,omitempty"`

	// RemoteAddr is the peer network address (IP:port), when known.
	RemoteAddr string `cbor:"9,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Channel/connection state
	Auth        *AuthEvent        `cbor:"12,keyasint,omitempty"` // Authorization progress
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerService is the acceptance/authorization layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol message.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryAuth indicates authorization progress.
	CategoryAuth Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryAuth:
		return "AUTH"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures channel and connection lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityChannel indicates an HID channel state change.
	StateEntityChannel StateEntity = 0
	// StateEntityDevice indicates a device connection state change.
	StateEntityDevice StateEntity = 1
	// StateEntityPolicyLink indicates a policy-service link state change.
	StateEntityPolicyLink StateEntity = 2
	// StateEntityListener indicates an endpoint listener state change.
	StateEntityListener StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityChannel:
		return "CHANNEL"
	case StateEntityDevice:
		return "DEVICE"
	case StateEntityPolicyLink:
		return "POLICY_LINK"
	case StateEntityListener:
		return "LISTENER"
	default:
		return "UNKNOWN"
	}
}

// AuthEvent captures progress of one authorization attempt.
type AuthEvent struct {
	// Tier indicates which authorization mechanism produced the event.
	Tier AuthTier `cbor:"1,keyasint"`

	// Stage is the point in the authorization flow.
	Stage AuthStage `cbor:"2,keyasint"`

	// Reason carries the denial or error message, if any.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// AuthTier indicates which of the two authorization mechanisms is involved.
type AuthTier uint8

const (
	// TierAgent is the in-process authorization agent (primary path).
	TierAgent AuthTier = 0
	// TierPolicy is the remote policy service (fallback path).
	TierPolicy AuthTier = 1
)

// String returns the tier name.
func (t AuthTier) String() string {
	switch t {
	case TierAgent:
		return "AGENT"
	case TierPolicy:
		return "POLICY"
	default:
		return "UNKNOWN"
	}
}

// AuthStage is a point in the authorization flow.
type AuthStage uint8

const (
	// StageRequested indicates the request was dispatched.
	StageRequested AuthStage = 0
	// StageGranted indicates the device was admitted.
	StageGranted AuthStage = 1
	// StageDenied indicates the device was rejected.
	StageDenied AuthStage = 2
	// StageCancelled indicates a dangling request was cancelled.
	StageCancelled AuthStage = 3
)

// String returns the stage name.
func (s AuthStage) String() string {
	switch s {
	case StageRequested:
		return "REQUESTED"
	case StageGranted:
		return "GRANTED"
	case StageDenied:
		return "DENIED"
	case StageCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
