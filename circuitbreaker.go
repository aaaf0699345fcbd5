package main

import "sync/atomic"

// sendBreaker tracks a destination session's outbound send health and
// implements a lightweight circuit breaker so the relay stops wasting
// effort on a peer whose transport is persistently failing, ahead of the
// hard transport_send_ms stall timeout: a consecutive-failure threshold
// trips the breaker, after which only a periodic probe attempt is let
// through, covering both the latest-only and ordered outbound paths.
type sendBreaker struct {
	failures atomic.Uint32
	skips    atomic.Uint32
}

// shouldSkip reports whether the breaker is open and this call does not
// land on a probe attempt.
func (b *sendBreaker) shouldSkip() bool {
	if b.failures.Load() < circuitBreakerThreshold {
		return false
	}
	s := b.skips.Add(1)
	return s%circuitBreakerProbeInterval != 0
}

// recordFailure increments the consecutive-failure counter.
func (b *sendBreaker) recordFailure() uint32 {
	return b.failures.Add(1)
}

// recordSuccess resets the breaker. It reports whether the breaker had
// been open (i.e. this success was a recovery probe).
func (b *sendBreaker) recordSuccess() bool {
	wasTripped := b.failures.Swap(0) >= circuitBreakerThreshold
	if wasTripped {
		b.skips.Store(0)
	}
	return wasTripped
}

// open reports whether the breaker currently considers the destination
// unhealthy (ignoring probe cadence).
func (b *sendBreaker) open() bool {
	return b.failures.Load() >= circuitBreakerThreshold
}
