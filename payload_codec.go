package main

import "io"

// encodePayload writes the wire body of p (excluding the kind byte, which
// the caller already wrote) to w.
func encodePayload(w io.Writer, p Payload) error {
	switch v := p.(type) {
	case Hello:
		return encodeHello(w, v)
	case HelloAck:
		return encodeHelloAck(w, v)
	case TelemetryFrame:
		return encodeTelemetryFrame(w, v)
	case ActionRequest:
		return encodeActionRequest(w, v)
	case ActionAck:
		return encodeActionAck(w, v)
	case ActionResult:
		return encodeActionResult(w, v)
	case TimeSyncRequest:
		return encodeTimeSyncRequest(w, v)
	case TimeSyncResponse:
		return encodeTimeSyncResponse(w, v)
	case ErrorFrame:
		return encodeErrorFrame(w, v)
	default:
		return newCodecError("encode: unknown payload type %T", p)
	}
}

// decodePayload reads the wire body for the given kind. An unrecognized
// kind is returned as *unsupportedPayloadError so callers can downgrade to
// ErrorFrame{UNSUPPORTED_PAYLOAD} instead of treating it as a codec failure
// that must close the session.
func decodePayload(r io.Reader, kind PayloadKind) (Payload, error) {
	switch kind {
	case PayloadHello:
		return decodeHello(r)
	case PayloadHelloAck:
		return decodeHelloAck(r)
	case PayloadTelemetryFrame:
		return decodeTelemetryFrame(r)
	case PayloadActionRequest:
		return decodeActionRequest(r)
	case PayloadActionAck:
		return decodeActionAck(r)
	case PayloadActionResult:
		return decodeActionResult(r)
	case PayloadTimeSyncRequest:
		return decodeTimeSyncRequest(r)
	case PayloadTimeSyncResponse:
		return decodeTimeSyncResponse(r)
	case PayloadErrorFrame:
		return decodeErrorFrame(r)
	default:
		return nil, &unsupportedPayloadError{kind: uint8(kind)}
	}
}

func encodeHello(w io.Writer, h Hello) error {
	if err := writeString(w, h.AgentID); err != nil {
		return err
	}
	if err := writeString(w, string(h.Role)); err != nil {
		return err
	}
	if err := writeStringSlice(w, h.Capabilities); err != nil {
		return err
	}
	if err := writeString(w, h.ClientVersion); err != nil {
		return err
	}
	return writeString(w, h.ProposedHandshakeID)
}

func decodeHello(r io.Reader) (Payload, error) {
	var h Hello
	var err error
	if h.AgentID, err = readString(r); err != nil {
		return nil, newCodecError("hello.agent_id: %v", err)
	}
	var role string
	if role, err = readString(r); err != nil {
		return nil, newCodecError("hello.role: %v", err)
	}
	h.Role = Role(role)
	if h.Capabilities, err = readStringSlice(r); err != nil {
		return nil, newCodecError("hello.capabilities: %v", err)
	}
	if h.ClientVersion, err = readString(r); err != nil {
		return nil, newCodecError("hello.client_version: %v", err)
	}
	if h.ProposedHandshakeID, err = readString(r); err != nil {
		return nil, newCodecError("hello.handshake_id: %v", err)
	}
	return h, nil
}

func encodeHelloAck(w io.Writer, h HelloAck) error {
	if err := writeBool(w, h.Accepted); err != nil {
		return err
	}
	if err := writeString(w, h.Reason); err != nil {
		return err
	}
	if err := writeString(w, h.HandshakeID); err != nil {
		return err
	}
	return writeStringSlice(w, h.Capabilities)
}

func decodeHelloAck(r io.Reader) (Payload, error) {
	var h HelloAck
	var err error
	if h.Accepted, err = readBool(r); err != nil {
		return nil, newCodecError("hello_ack.accepted: %v", err)
	}
	if h.Reason, err = readString(r); err != nil {
		return nil, newCodecError("hello_ack.reason: %v", err)
	}
	if h.HandshakeID, err = readString(r); err != nil {
		return nil, newCodecError("hello_ack.handshake_id: %v", err)
	}
	if h.Capabilities, err = readStringSlice(r); err != nil {
		return nil, newCodecError("hello_ack.capabilities: %v", err)
	}
	return h, nil
}

func encodeTelemetryFrame(w io.Writer, t TelemetryFrame) error {
	for _, f := range []func() error{
		func() error { return writeUint64(w, t.StateVersion) },
		func() error { return writeFloat64(w, t.X) },
		func() error { return writeFloat64(w, t.Y) },
		func() error { return writeFloat64(w, t.Z) },
		func() error { return writeFloat32(w, t.Yaw) },
		func() error { return writeFloat32(w, t.Pitch) },
		func() error { return writeFloat32(w, t.HP) },
		func() error { return writeFloat32(w, t.Hunger) },
		func() error { return writeUint32(w, uint32(t.Air)) },
		func() error { return writeBool(w, t.Sprinting) },
		func() error { return writeBool(w, t.Sneaking) },
		func() error { return writeBool(w, t.OnGround) },
		func() error { return writeString(w, string(t.Dimension)) },
		func() error { return writeUint64(w, t.WorldTick) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

func decodeTelemetryFrame(r io.Reader) (Payload, error) {
	var t TelemetryFrame
	var err error
	if t.StateVersion, err = readUint64(r); err != nil {
		return nil, newCodecError("telemetry.state_version: %v", err)
	}
	if t.X, err = readFloat64(r); err != nil {
		return nil, newCodecError("telemetry.x: %v", err)
	}
	if t.Y, err = readFloat64(r); err != nil {
		return nil, newCodecError("telemetry.y: %v", err)
	}
	if t.Z, err = readFloat64(r); err != nil {
		return nil, newCodecError("telemetry.z: %v", err)
	}
	if t.Yaw, err = readFloat32(r); err != nil {
		return nil, newCodecError("telemetry.yaw: %v", err)
	}
	if t.Pitch, err = readFloat32(r); err != nil {
		return nil, newCodecError("telemetry.pitch: %v", err)
	}
	if t.HP, err = readFloat32(r); err != nil {
		return nil, newCodecError("telemetry.hp: %v", err)
	}
	if t.Hunger, err = readFloat32(r); err != nil {
		return nil, newCodecError("telemetry.hunger: %v", err)
	}
	air, err := readUint32(r)
	if err != nil {
		return nil, newCodecError("telemetry.air: %v", err)
	}
	t.Air = int32(air)
	if t.Sprinting, err = readBool(r); err != nil {
		return nil, newCodecError("telemetry.sprinting: %v", err)
	}
	if t.Sneaking, err = readBool(r); err != nil {
		return nil, newCodecError("telemetry.sneaking: %v", err)
	}
	if t.OnGround, err = readBool(r); err != nil {
		return nil, newCodecError("telemetry.on_ground: %v", err)
	}
	var dim string
	if dim, err = readString(r); err != nil {
		return nil, newCodecError("telemetry.dimension: %v", err)
	}
	t.Dimension = Dimension(dim)
	if t.WorldTick, err = readUint64(r); err != nil {
		return nil, newCodecError("telemetry.world_tick: %v", err)
	}
	return t, nil
}

func encodeActionRequest(w io.Writer, a ActionRequest) error {
	if err := writeString(w, a.RequestID); err != nil {
		return err
	}
	if err := writeString(w, string(a.Type)); err != nil {
		return err
	}
	if err := writeString(w, a.TargetAgentID); err != nil {
		return err
	}
	if err := writeUint64(w, a.ExpiresAtUnixMs); err != nil {
		return err
	}
	hasGoto := a.Goto != nil
	if err := writeBool(w, hasGoto); err != nil {
		return err
	}
	if !hasGoto {
		return nil
	}
	g := a.Goto
	if err := writeFloat64(w, g.X); err != nil {
		return err
	}
	if err := writeFloat64(w, g.Y); err != nil {
		return err
	}
	if err := writeFloat64(w, g.Z); err != nil {
		return err
	}
	if err := writeFloat64(w, g.MaxDistance); err != nil {
		return err
	}
	if err := writeUint64(w, g.TimeoutMs); err != nil {
		return err
	}
	return writeUint64(w, g.StuckTimeoutMs)
}

func decodeActionRequest(r io.Reader) (Payload, error) {
	var a ActionRequest
	var err error
	if a.RequestID, err = readString(r); err != nil {
		return nil, newCodecError("action_request.request_id: %v", err)
	}
	var typ string
	if typ, err = readString(r); err != nil {
		return nil, newCodecError("action_request.type: %v", err)
	}
	a.Type = ActionType(typ)
	if a.TargetAgentID, err = readString(r); err != nil {
		return nil, newCodecError("action_request.target_agent_id: %v", err)
	}
	if a.ExpiresAtUnixMs, err = readUint64(r); err != nil {
		return nil, newCodecError("action_request.expires_at_unix_ms: %v", err)
	}
	hasGoto, err := readBool(r)
	if err != nil {
		return nil, newCodecError("action_request.has_goto: %v", err)
	}
	if !hasGoto {
		return a, nil
	}
	var g BaritoneGoto
	if g.X, err = readFloat64(r); err != nil {
		return nil, newCodecError("action_request.goto.x: %v", err)
	}
	if g.Y, err = readFloat64(r); err != nil {
		return nil, newCodecError("action_request.goto.y: %v", err)
	}
	if g.Z, err = readFloat64(r); err != nil {
		return nil, newCodecError("action_request.goto.z: %v", err)
	}
	if g.MaxDistance, err = readFloat64(r); err != nil {
		return nil, newCodecError("action_request.goto.max_distance: %v", err)
	}
	if g.TimeoutMs, err = readUint64(r); err != nil {
		return nil, newCodecError("action_request.goto.timeout_ms: %v", err)
	}
	if g.StuckTimeoutMs, err = readUint64(r); err != nil {
		return nil, newCodecError("action_request.goto.stuck_timeout_ms: %v", err)
	}
	a.Goto = &g
	return a, nil
}

func encodeActionAck(w io.Writer, a ActionAck) error {
	if err := writeString(w, a.RequestID); err != nil {
		return err
	}
	if err := writeBool(w, a.Accepted); err != nil {
		return err
	}
	return writeString(w, a.Reason)
}

func decodeActionAck(r io.Reader) (Payload, error) {
	var a ActionAck
	var err error
	if a.RequestID, err = readString(r); err != nil {
		return nil, newCodecError("action_ack.request_id: %v", err)
	}
	if a.Accepted, err = readBool(r); err != nil {
		return nil, newCodecError("action_ack.accepted: %v", err)
	}
	if a.Reason, err = readString(r); err != nil {
		return nil, newCodecError("action_ack.reason: %v", err)
	}
	return a, nil
}

func encodeActionResult(w io.Writer, a ActionResult) error {
	if err := writeString(w, a.RequestID); err != nil {
		return err
	}
	if err := writeString(w, string(a.Status)); err != nil {
		return err
	}
	return writeString(w, a.Detail)
}

func decodeActionResult(r io.Reader) (Payload, error) {
	var a ActionResult
	var err error
	if a.RequestID, err = readString(r); err != nil {
		return nil, newCodecError("action_result.request_id: %v", err)
	}
	var status string
	if status, err = readString(r); err != nil {
		return nil, newCodecError("action_result.status: %v", err)
	}
	a.Status = ActionStatus(status)
	if a.Detail, err = readString(r); err != nil {
		return nil, newCodecError("action_result.detail: %v", err)
	}
	return a, nil
}

func encodeTimeSyncRequest(w io.Writer, t TimeSyncRequest) error {
	return writeUint64(w, t.ClientSentMonoMs)
}

func decodeTimeSyncRequest(r io.Reader) (Payload, error) {
	var t TimeSyncRequest
	var err error
	if t.ClientSentMonoMs, err = readUint64(r); err != nil {
		return nil, newCodecError("timesync_request.client_sent_mono_ms: %v", err)
	}
	return t, nil
}

func encodeTimeSyncResponse(w io.Writer, t TimeSyncResponse) error {
	if err := writeUint64(w, t.ServerMonoMs); err != nil {
		return err
	}
	if err := writeUint64(w, t.ServerWallUnixMs); err != nil {
		return err
	}
	return encodeTimeSyncRequest(w, t.Echo)
}

func decodeTimeSyncResponse(r io.Reader) (Payload, error) {
	var t TimeSyncResponse
	var err error
	if t.ServerMonoMs, err = readUint64(r); err != nil {
		return nil, newCodecError("timesync_response.server_mono_ms: %v", err)
	}
	if t.ServerWallUnixMs, err = readUint64(r); err != nil {
		return nil, newCodecError("timesync_response.server_wall_unix_ms: %v", err)
	}
	echo, err := decodeTimeSyncRequest(r)
	if err != nil {
		return nil, err
	}
	t.Echo = echo.(TimeSyncRequest)
	return t, nil
}

func encodeErrorFrame(w io.Writer, e ErrorFrame) error {
	if err := writeString(w, string(e.Code)); err != nil {
		return err
	}
	return writeString(w, e.Message)
}

func decodeErrorFrame(r io.Reader) (Payload, error) {
	var e ErrorFrame
	var err error
	var code string
	if code, err = readString(r); err != nil {
		return nil, newCodecError("error_frame.code: %v", err)
	}
	e.Code = ErrorCode(code)
	if e.Message, err = readString(r); err != nil {
		return nil, newCodecError("error_frame.message: %v", err)
	}
	return e, nil
}
