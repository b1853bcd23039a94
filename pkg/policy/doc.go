// Package policy implements the client for the central policy service.
//
// The policy service is the fallback authorization path, consulted when
// the in-process agent cannot be reached. The client multiplexes
// authorization requests over one framed connection carrying CBOR
// messages (see pkg/wire). Requests are asynchronous: RequestAuthorization
// returns as soon as the request is on the wire and the outcome arrives
// later through a continuation, correlated by message ID.
//
// Every in-flight request carries a no-reply timer; if the service does
// not answer in time the continuation fires with ErrNoReply, which is the
// signal for the caller to send a one-shot cancellation.
//
// The link reconnects with exponential backoff after a drop. Requests
// in flight when the link drops fail with ErrTransportUnavailable; they
// are never retried.
package policy
