package main

import "fmt"

// Role identifies which side of the bridge a session speaks for.
type Role string

const (
	RoleGameClient   Role = "GAME_CLIENT"
	RoleOrchestrator Role = "ORCHESTRATOR"
)

func validRole(r Role) bool {
	switch r {
	case RoleGameClient, RoleOrchestrator:
		return true
	}
	return false
}

// Capability is a named protocol feature advertised in Hello and confirmed
// as the intersection in HelloAck.
type Capability string

const (
	CapTelemetryV1 Capability = "TELEMETRY_V1"
	CapTimeSyncV1  Capability = "TIMESYNC_V1"
	CapHelloAckV1  Capability = "HELLO_ACK_V1"
	CapActionV1    Capability = "ACTION_V1"
)

func validCapability(c string) bool {
	switch Capability(c) {
	case CapTelemetryV1, CapTimeSyncV1, CapHelloAckV1, CapActionV1:
		return true
	}
	return false
}

// CapabilitySet is a small unordered set of Capability, cheap to intersect.
type CapabilitySet map[Capability]struct{}

func newCapabilitySet(names ...string) CapabilitySet {
	s := make(CapabilitySet, len(names))
	for _, n := range names {
		s[Capability(n)] = struct{}{}
	}
	return s
}

func (s CapabilitySet) has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// intersect returns the capabilities present in both sets.
func (s CapabilitySet) intersect(other CapabilitySet) CapabilitySet {
	out := make(CapabilitySet)
	for c := range s {
		if other.has(c) {
			out[c] = struct{}{}
		}
	}
	return out
}

func (s CapabilitySet) names() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, string(c))
	}
	return out
}

// Dimension is the game-world dimension reported in TelemetryFrame.
type Dimension string

const (
	DimensionUnspecified Dimension = "UNSPECIFIED"
	DimensionOverworld   Dimension = "OVERWORLD"
	DimensionNether      Dimension = "NETHER"
	DimensionEnd         Dimension = "END"
	DimensionOther       Dimension = "OTHER"
)

// ActionType enumerates the actions the correlator knows how to route.
// STOP_ALL is always allowlisted and synthesized by the emergency-stop
// coordinator; BARITONE_GOTO is the one concrete executor action defined
// today, with room for others carried opaquely.
type ActionType string

const (
	ActionStopAll      ActionType = "STOP_ALL"
	ActionBaritoneGoto ActionType = "BARITONE_GOTO"
)

// ActionStatus is the terminal (or non-terminal ack) status of an action.
type ActionStatus string

const (
	ActionStatusOK       ActionStatus = "OK"
	ActionStatusRejected ActionStatus = "REJECTED"
	ActionStatusFailed   ActionStatus = "FAILED"
	ActionStatusTimeout  ActionStatus = "TIMEOUT"
)

// ErrorCode enumerates the protocol-level error kinds a session can report.
type ErrorCode string

const (
	ErrCodecError        ErrorCode = "CODEC_ERROR"
	ErrVersionMismatch   ErrorCode = "VERSION_MISMATCH"
	ErrHandshakeRequired ErrorCode = "HANDSHAKE_REQUIRED"
	ErrHelloTimeout      ErrorCode = "HELLO_TIMEOUT"
	ErrRoleViolation     ErrorCode = "ROLE_VIOLATION"
	ErrUnsupportedPayload ErrorCode = "UNSUPPORTED_PAYLOAD"
	ErrUnexpectedPayload ErrorCode = "UNEXPECTED_PAYLOAD"
	ErrDuplicateRequest  ErrorCode = "DUPLICATE_REQUEST"
	ErrTargetUnroutable  ErrorCode = "TARGET_UNROUTABLE"
	ErrRelayCongested    ErrorCode = "RELAY_CONGESTED"
	ErrActionTTLExpired  ErrorCode = "ACTION_TTL_EXPIRED"
	ErrTransportStalled  ErrorCode = "TRANSPORT_STALLED"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
)

// fatalToSession reports whether an ErrorCode is fatal to the session that
// triggers it: VERSION_MISMATCH, HELLO_TIMEOUT, and
// TRANSPORT_STALLED close the session; every other error is surfaced and the
// session continues.
func (e ErrorCode) fatalToSession() bool {
	switch e {
	case ErrVersionMismatch, ErrHelloTimeout, ErrTransportStalled:
		return true
	}
	return false
}

// PayloadKind tags which payload variant an Envelope carries.
type PayloadKind uint8

const (
	PayloadHello PayloadKind = iota + 1
	PayloadHelloAck
	PayloadTelemetryFrame
	PayloadActionRequest
	PayloadActionAck
	PayloadActionResult
	PayloadTimeSyncRequest
	PayloadTimeSyncResponse
	PayloadErrorFrame
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadHello:
		return "Hello"
	case PayloadHelloAck:
		return "HelloAck"
	case PayloadTelemetryFrame:
		return "TelemetryFrame"
	case PayloadActionRequest:
		return "ActionRequest"
	case PayloadActionAck:
		return "ActionAck"
	case PayloadActionResult:
		return "ActionResult"
	case PayloadTimeSyncRequest:
		return "TimeSyncRequest"
	case PayloadTimeSyncResponse:
		return "TimeSyncResponse"
	case PayloadErrorFrame:
		return "ErrorFrame"
	default:
		return fmt.Sprintf("PayloadKind(%d)", uint8(k))
	}
}

// Payload is implemented by every wire payload variant.
type Payload interface {
	payloadKind() PayloadKind
}

// Hello is the session-opening handshake payload.
type Hello struct {
	AgentID            string
	Role               Role
	Capabilities       []string
	ClientVersion      string
	ProposedHandshakeID string // client-proposed nonce, recorded but never echoed
}

func (Hello) payloadKind() PayloadKind { return PayloadHello }

// HelloAck is the server's authoritative handshake reply.
type HelloAck struct {
	Accepted     bool
	Reason       string
	HandshakeID  string // server-assigned, replaces any client-proposed value
	Capabilities []string
}

func (HelloAck) payloadKind() PayloadKind { return PayloadHelloAck }

// TelemetryFrame is a single high-frequency game-state sample.
type TelemetryFrame struct {
	StateVersion uint64
	X, Y, Z      float64
	Yaw, Pitch   float32
	HP           float32 // [0,20]
	Hunger       float32 // [0,20]
	Air          int32   // [0,300]
	Sprinting    bool
	Sneaking     bool
	OnGround     bool
	Dimension    Dimension
	WorldTick    uint64
}

func (TelemetryFrame) payloadKind() PayloadKind { return PayloadTelemetryFrame }

func (t TelemetryFrame) validate() error {
	if t.HP < 0 || t.HP > 20 {
		return fmt.Errorf("telemetry: hp %v out of range [0,20]", t.HP)
	}
	if t.Hunger < 0 || t.Hunger > 20 {
		return fmt.Errorf("telemetry: hunger %v out of range [0,20]", t.Hunger)
	}
	if t.Air < 0 || t.Air > 300 {
		return fmt.Errorf("telemetry: air %v out of range [0,300]", t.Air)
	}
	return nil
}

// BaritoneGoto is the typed payload of an ActionRequest{type=BARITONE_GOTO}.
type BaritoneGoto struct {
	X, Y, Z         float64
	MaxDistance     float64
	TimeoutMs       uint64
	StuckTimeoutMs  uint64
}

// ActionRequest asks the game client to execute an action.
type ActionRequest struct {
	RequestID       string
	Type            ActionType
	TargetAgentID   string // empty = broadcast to agent role (routed to the unique GAME_CLIENT)
	ExpiresAtUnixMs uint64 // 0 = no explicit TTL, correlator applies the default
	Goto            *BaritoneGoto
}

func (ActionRequest) payloadKind() PayloadKind { return PayloadActionRequest }

// ActionAck is the game client's initial accept/reject of an ActionRequest.
type ActionAck struct {
	RequestID string
	Accepted  bool
	Reason    string
}

func (ActionAck) payloadKind() PayloadKind { return PayloadActionAck }

// ActionResult is the terminal outcome of an ActionRequest.
type ActionResult struct {
	RequestID string
	Status    ActionStatus
	Detail    string
}

func (ActionResult) payloadKind() PayloadKind { return PayloadActionResult }

// TimeSyncRequest asks the bridge to echo its clock.
type TimeSyncRequest struct {
	ClientSentMonoMs uint64
}

func (TimeSyncRequest) payloadKind() PayloadKind { return PayloadTimeSyncRequest }

// TimeSyncResponse answers a TimeSyncRequest in-session.
type TimeSyncResponse struct {
	ServerMonoMs     uint64
	ServerWallUnixMs uint64
	Echo             TimeSyncRequest
}

func (TimeSyncResponse) payloadKind() PayloadKind { return PayloadTimeSyncResponse }

// ErrorFrame surfaces a protocol-level error to a peer without necessarily
// closing the session.
type ErrorFrame struct {
	Code    ErrorCode
	Message string
}

func (ErrorFrame) payloadKind() PayloadKind { return PayloadErrorFrame }
