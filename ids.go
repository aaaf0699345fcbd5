package main

import "github.com/google/uuid"

// newHandshakeID generates a fresh server-owned handshake nonce.
func newHandshakeID() string {
	return uuid.NewString()
}

// newSessionID generates a fresh session_id for an accepted connection.
func newSessionID() string {
	return uuid.NewString()
}

// newRequestID generates a fresh request_id, used by the emergency-stop
// coordinator when synthesizing STOP_ALL and as a fallback if a
// caller needs one outside the wire path.
func newRequestID() string {
	return uuid.NewString()
}
