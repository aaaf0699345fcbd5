package main

import "time"

// Protocol and operational defaults. Named constants for values that would
// otherwise be scattered across the codec, session, and channel files.
const (
	// protocolVersion is the only accepted Envelope.ProtocolVersion.
	protocolVersion uint32 = 1

	// maxFrameBytesDefault is the default frame ceiling enforced by the codec.
	maxFrameBytesDefault = 1 << 20 // 1 MiB

	// helloTimeoutDefault bounds how long a session may sit in AwaitingHello.
	helloTimeoutDefault = 3 * time.Second

	// sendTelemetryTimeoutDefault bounds a single latest-only channel delivery attempt.
	sendTelemetryTimeoutDefault = 200 * time.Millisecond

	// sendActionTimeoutDefault bounds how long an ordered-channel enqueue may wait for space.
	sendActionTimeoutDefault = 500 * time.Millisecond

	// transportSendTimeoutDefault bounds a single transport write before the session is closed.
	transportSendTimeoutDefault = 2 * time.Second

	// actionDefaultTTLDefault is used when an ActionRequest carries no expires_at_unix_ms.
	actionDefaultTTLDefault = 10 * time.Second

	// actionQueueDepthDefault is the bounded FIFO depth of the ordered channel.
	actionQueueDepthDefault = 64

	// duplicateSuppressionCapacity bounds the terminal-request_id LRU.
	duplicateSuppressionCapacity = 1024

	// duplicateSuppressionHorizon is how long a terminal request_id is remembered.
	duplicateSuppressionHorizon = 60 * time.Second

	// stopAllTTL is the expiry window given to a synthesized STOP_ALL action.
	stopAllTTL = time.Second

	// circuitBreakerThreshold is the number of consecutive outbound send
	// failures before a destination session's breaker opens.
	circuitBreakerThreshold uint32 = 20

	// circuitBreakerProbeInterval sets the probe cadence while the breaker
	// is open: every circuitBreakerProbeInterval-th send attempt is let
	// through as a probe, the others are skipped.
	circuitBreakerProbeInterval uint32 = 10

	// controlRateLimitDefault caps non-telemetry, non-action control frames
	// (timesync, malformed retries) per session per second.
	controlRateLimitDefault = 20

	// bindAddrDefault is the default WebTransport listen address.
	bindAddrDefault = "0.0.0.0:40100"
)
