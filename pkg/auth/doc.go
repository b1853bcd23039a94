// Package auth defines the in-process authorization agent interface.
//
// The agent is the primary authorization path: a low-latency local
// service (typically backed by a user prompt or a trust database) asked
// first whether a peripheral may use the HID service. Dispatch is
// non-blocking; the outcome arrives later through a continuation. When
// the agent cannot even accept the request, the caller falls back to the
// remote policy service.
package auth
