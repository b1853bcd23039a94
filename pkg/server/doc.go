// Package server implements the HID connection acceptance service: two
// endpoint listeners (control and interrupt), channel registration
// against the device registry, and the two-tier authorization broker
// that decides whether an accepted device pair may complete its
// connection.
//
// Authorization is asked on the interrupt channel, once both channels
// are expected to be up. The in-process agent is the primary path; when
// it cannot be reached the broker falls back to the remote policy
// service. Whichever tier answers, the outcome drives the registry:
// success completes the connection, failure closes both channels. A
// no-reply outcome additionally withdraws the dangling request with a
// single best-effort cancellation before teardown.
package server
