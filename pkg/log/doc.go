// Package log provides structured protocol logging for HIDLink.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, service).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable trace of connection acceptance and
// authorization decisions for debugging and analysis.
//
// # Basic Usage
//
// Components take a Logger and emit events as connections and
// authorizations progress:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/hidlink/server.hlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frame traffic on the policy link (FrameEvent)
//   - Service: channel and connection state changes (StateChangeEvent)
//   - Service: authorization progress (AuthEvent)
//   - Any: errors (ErrorEventData)
//
// File output is CBOR-encoded with integer keys, one event per record.
package log
