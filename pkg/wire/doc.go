// Package wire defines the CBOR wire format for the policy service link.
//
// HIDLink talks to the central policy service over a single framed
// connection carrying CBOR (RFC 8949) messages with integer keys.
//
// # Message Types
//
// There are two message shapes:
//   - Request: daemon to policy service (Authorize or Cancel)
//   - Response: policy service to daemon (authorization outcome)
//
// Authorize requests carry a non-zero message ID and receive exactly one
// response correlated by that ID. Cancel requests are fire-and-forget:
// they carry message ID 0 and never receive a response.
//
// # CBOR Integer Keys
//
// All maps use integer keys for compactness. The key mappings are
// defined as constants in this package.
package wire
