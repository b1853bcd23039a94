// Package transport provides the HIDLink link transport.
//
// The transport emulates the two fixed L2CAP service endpoints of a HID
// link over TCP: a control channel (PSM 17) and an interrupt channel
// (PSM 19). Each endpoint is a passive listener; an inbound connection
// opens with a 7-byte hello frame (1-byte PSM followed by the 6-byte
// peripheral address) that identifies the remote device before any
// payload flows. The local adapter address is fixed per listener.
//
// Accepted connections are delivered to an accept callback together with
// the peer addresses; accept-level failures are delivered to the same
// callback with a nil connection.
//
// The package also provides length-prefixed framing (4-byte big-endian
// prefix) used on the policy-service link, where CBOR messages are
// exchanged.
package transport
