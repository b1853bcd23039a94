package hid

// ServiceUUID is the HID service identifier carried in authorization
// requests to the local agent and the remote policy service.
const ServiceUUID = "00001124-0000-1000-8000-00805f9b34fb"

// UnplugVirtualCable is the one-byte HID control code sent on the control
// channel to tell an unrecognized peripheral to drop its virtual link.
const UnplugVirtualCable byte = 0x15

// ChannelKind identifies which of the two fixed service endpoints a
// connection belongs to.
type ChannelKind uint8

const (
	// ChannelControl is the HID control channel (PSM 17).
	ChannelControl ChannelKind = 0

	// ChannelInterrupt is the low-latency HID data channel (PSM 19).
	ChannelInterrupt ChannelKind = 1
)

// PSM values of the two HID service endpoints.
const (
	PSMControl   uint8 = 17
	PSMInterrupt uint8 = 19
)

// PSM returns the protocol/service multiplexer value for the channel.
func (k ChannelKind) PSM() uint8 {
	if k == ChannelInterrupt {
		return PSMInterrupt
	}
	return PSMControl
}

// String returns the channel name.
func (k ChannelKind) String() string {
	switch k {
	case ChannelControl:
		return "CONTROL"
	case ChannelInterrupt:
		return "INTERRUPT"
	default:
		return "UNKNOWN"
	}
}

// KindForPSM maps a PSM value back to its channel kind.
// The second return value is false for PSMs outside the HID profile.
func KindForPSM(psm uint8) (ChannelKind, bool) {
	switch psm {
	case PSMControl:
		return ChannelControl, true
	case PSMInterrupt:
		return ChannelInterrupt, true
	default:
		return ChannelControl, false
	}
}
