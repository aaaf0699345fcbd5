package main

import (
	"golang.org/x/time/rate"
)

// controlRateLimiter throttles non-telemetry, non-action control traffic
// (timesync requests, malformed-frame retries) per session, protecting the
// correlator and router from a misbehaving peer.
type controlRateLimiter struct {
	limiter *rate.Limiter
}

func newControlRateLimiter(perSecond int) *controlRateLimiter {
	if perSecond <= 0 {
		perSecond = controlRateLimitDefault
	}
	return &controlRateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// allow reports whether the caller may process one more control message
// this instant.
func (l *controlRateLimiter) allow() bool {
	return l.limiter.Allow()
}
