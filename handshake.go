package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// bridgeVersion is reported in the legacy-handshake Hello reply's
// client_version field.
const bridgeVersion = "bridge/1.0"

// runSession drives one session's entire lifecycle: handshake gate,
// Established routing, and cleanup on exit. It owns two reader
// goroutines (stream + datagram) feeding a single envelope channel so that
// route() always runs on runSession's own goroutine — inbound envelopes
// for a given session are therefore processed strictly in arrival order.
func runSession(ctx context.Context, s *Session, registry *sessionRegistry, corr *Correlator, rt *router, serverCaps CapabilitySet, log *slog.Logger) {
	defer s.closeSession("", "")

	go s.runOutbound(ctx)

	type inboundMsg struct {
		env *Envelope
		err error
	}
	inbound := make(chan inboundMsg, 64)

	go func() {
		br := bufio.NewReader(s.transport)
		for {
			env, err := decodeEnvelope(br, s.cfg.Limits.MaxFrameBytes)
			select {
			case inbound <- inboundMsg{env, err}:
			case <-s.done:
				return
			}
			if err != nil {
				var unsupported *unsupportedPayloadError
				if errors.As(err, &unsupported) {
					continue // the whole frame was consumed; keep reading
				}
				return
			}
		}
	}()

	go func() {
		for {
			data, err := s.transport.ReceiveDatagram(ctx)
			if err != nil {
				return
			}
			env, decErr := decodeEnvelopeBody(data)
			select {
			case inbound <- inboundMsg{env, decErr}:
			case <-s.done:
				return
			}
		}
	}()

	helloTimer := time.NewTimer(s.cfg.helloTimeout())
	defer helloTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-helloTimer.C:
			if s.currentState() == stateAwaitingHello {
				s.closeSession(ErrHelloTimeout, "hello_timeout elapsed")
				return
			}
		case m := <-inbound:
			if m.err != nil {
				if errors.Is(m.err, io.EOF) {
					return
				}
				if isCodecError(m.err) {
					rt.sendError(s, ErrCodecError, m.err.Error())
					continue
				}
				var unsupported *unsupportedPayloadError
				if errors.As(m.err, &unsupported) {
					rt.sendError(s, ErrUnsupportedPayload, m.err.Error())
					continue
				}
				return // transport-level read failure
			}

			if s.currentState() == stateAwaitingHello {
				handleHandshake(s, m.env, registry, serverCaps, log)
				continue
			}
			rt.route(m.env, s)
		}
	}
}

// handleHandshake implements the AwaitingHello -> Established transition.
func handleHandshake(s *Session, env *Envelope, registry *sessionRegistry, serverCaps CapabilitySet, log *slog.Logger) {
	hello, ok := env.Payload.(Hello)
	if !ok {
		s.closeSession(ErrHandshakeRequired, "first envelope must be Hello")
		return
	}
	if !validRole(hello.Role) {
		s.closeSession(ErrHandshakeRequired, "unknown role")
		return
	}
	if hello.AgentID == "" {
		s.closeSession(ErrHandshakeRequired, "agent_id required")
		return
	}

	s.role = hello.Role
	s.agentID = hello.AgentID
	s.proposedHandshakeID = hello.ProposedHandshakeID
	s.handshakeID = newHandshakeID()

	clientCaps := newCapabilitySet(hello.Capabilities...)
	s.caps = clientCaps.intersect(serverCaps)

	if clientCaps.has(CapHelloAckV1) {
		s.enqueueOrdered(s.buildEnvelope(HelloAck{
			Accepted:     true,
			HandshakeID:  s.handshakeID,
			Capabilities: s.caps.names(),
		}))
	} else {
		s.enqueueOrdered(s.buildEnvelope(Hello{
			AgentID:       "bridge",
			Role:          s.role,
			Capabilities:  s.caps.names(),
			ClientVersion: bridgeVersion,
		}))
	}

	s.setState(stateEstablished)
	registry.register(s)
	log.Info("session established", "session_id", s.id, "role", s.role, "agent_id", s.agentID,
		"handshake_id", s.handshakeID, "capabilities", s.caps.names())
}
