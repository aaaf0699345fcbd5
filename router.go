package main

import (
	"errors"
	"log/slog"
)

// router dispatches inbound envelopes on an Established session per
// payload kind. It is stateless itself; all state lives in the registry,
// the correlator, and the sessions it's given.
type router struct {
	registry   *sessionRegistry
	correlator *Correlator
	log        *slog.Logger
}

func newRouter(registry *sessionRegistry, correlator *Correlator, log *slog.Logger) *router {
	return &router{registry: registry, correlator: correlator, log: log.With("component", "router")}
}

// route validates and dispatches one inbound envelope from an Established
// session. Decode/protocol errors surface as ErrorFrame without
// closing the session unless fatal (sendError applies the
// ErrorCode.fatalToSession classification).
func (r *router) route(env *Envelope, from *Session) {
	if env.ProtocolVersion != protocolVersion {
		from.closeSession(ErrVersionMismatch, "unsupported protocol_version")
		return
	}
	if rewound := from.observeInboundSeq(env.Seq); rewound {
		r.sendError(from, ErrUnexpectedPayload, "seq rewind")
		return
	}
	from.touchRx()

	switch p := env.Payload.(type) {
	case TelemetryFrame:
		r.routeTelemetry(p, from)
	case ActionRequest:
		r.routeActionRequest(p, from)
	case ActionAck:
		r.routeActionAck(p, from)
	case ActionResult:
		r.routeActionResult(p, from)
	case TimeSyncRequest:
		if !from.rateLimit.allow() {
			r.sendError(from, ErrRateLimited, "timesync rate exceeded")
			return
		}
		r.routeTimeSync(p, from)
	case ErrorFrame:
		if !from.rateLimit.allow() {
			r.sendError(from, ErrRateLimited, "error-frame rate exceeded")
			return
		}
		r.log.Warn("peer error frame", "session_id", from.id, "code", p.Code, "message", p.Message)
	case Hello, HelloAck:
		r.sendError(from, ErrUnexpectedPayload, "handshake payload after Established")
	default:
		if !from.rateLimit.allow() {
			r.sendError(from, ErrRateLimited, "malformed-frame retry rate exceeded")
			return
		}
		r.sendError(from, ErrUnsupportedPayload, "unrecognized payload")
	}
}

func (r *router) routeTelemetry(t TelemetryFrame, from *Session) {
	if from.role != RoleGameClient {
		r.sendError(from, ErrRoleViolation, "only GAME_CLIENT may send telemetry")
		return
	}
	if err := t.validate(); err != nil {
		r.sendError(from, ErrUnexpectedPayload, err.Error())
		return
	}
	prev := from.lastStateVersion.Load()
	if t.StateVersion <= prev && prev != 0 {
		r.log.Debug("non-increasing state_version dropped", "session_id", from.id, "state_version", t.StateVersion)
		return
	}
	from.lastStateVersion.Store(t.StateVersion)

	for _, dest := range r.registry.orchestrators() {
		dest.pushTelemetry(from.id, dest.buildEnvelope(t))
	}
}

func (r *router) routeActionRequest(req ActionRequest, from *Session) {
	if from.role != RoleOrchestrator {
		r.sendError(from, ErrRoleViolation, "only ORCHESTRATOR may send action requests")
		return
	}

	var target *Session
	var err error
	if req.TargetAgentID == "" {
		target, err = r.registry.uniqueGameClient()
	} else {
		target = r.registry.byAgent(RoleGameClient, req.TargetAgentID)
		if target == nil {
			err = errTargetUnroutable
		}
	}
	if err != nil || target == nil {
		replyActionAck(from, req.RequestID, false, "no unique target")
		replyActionResult(from, req.RequestID, ActionStatusRejected, "no unique target")
		return
	}

	r.correlator.submitRelay(req, from, target)
}

var errTargetUnroutable = errors.New("router: target unroutable")

func (r *router) routeActionAck(ack ActionAck, from *Session) {
	if from.role != RoleGameClient {
		r.sendError(from, ErrRoleViolation, "only GAME_CLIENT may send action acks")
		return
	}
	r.correlator.submitAck(ack, from)
}

func (r *router) routeActionResult(result ActionResult, from *Session) {
	if from.role != RoleGameClient {
		r.sendError(from, ErrRoleViolation, "only GAME_CLIENT may send action results")
		return
	}
	r.correlator.submitResult(result, from)
}

func (r *router) routeTimeSync(req TimeSyncRequest, from *Session) {
	resp := TimeSyncResponse{
		ServerMonoMs:     nowMonoMs(),
		ServerWallUnixMs: nowWallMs(),
		Echo:             req,
	}
	from.enqueueOrdered(from.buildEnvelope(resp))
}

func (r *router) sendError(s *Session, code ErrorCode, msg string) {
	if code.fatalToSession() {
		s.closeSession(code, msg)
		return
	}
	s.enqueueOrdered(s.buildEnvelope(ErrorFrame{Code: code, Message: msg}))
}
