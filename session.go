package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// sessionState is the session's lifecycle position.
type sessionState int32

const (
	stateAwaitingHello sessionState = iota
	stateEstablished
	stateClosing
)

func (s sessionState) String() string {
	switch s {
	case stateAwaitingHello:
		return "AwaitingHello"
	case stateEstablished:
		return "Established"
	case stateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// controlTransport is the minimal interface a session needs from its
// WebTransport connection: a reliable bidirectional stream for the ordered
// channel (hello/action/timesync/error) and unreliable datagrams for the
// latest-only telemetry channel. Modeled as an interface so tests can
// inject a mock transport instead of a real QUIC connection.
type controlTransport interface {
	io.Reader                        // reads raw bytes off the reliable stream
	io.Writer                        // writes one framed envelope to the reliable stream
	SendDatagram([]byte) error        // best-effort unreliable send
	ReceiveDatagram(context.Context) ([]byte, error)
	CloseWithError(code uint32, msg string) error
}

// Session is one live authenticated bidirectional connection between the
// bridge and one peer (GLOSSARY). It owns its own outbound queues; the
// registry stores only the enqueue handle.
type Session struct {
	id     string
	role   Role
	agentID string
	caps   CapabilitySet

	handshakeID        string
	proposedHandshakeID string

	state atomic.Int32

	peerSeqLast  atomic.Uint64
	localSeqNext atomic.Uint64

	// lastStateVersion tracks the most recent TelemetryFrame.state_version
	// observed from a GAME_CLIENT session.
	lastStateVersion atomic.Uint64

	createdAt  time.Time
	lastRxMono atomic.Int64 // unix nano of last observed inbound envelope

	transport controlTransport
	breaker   sendBreaker
	rateLimit *controlRateLimiter

	ordered *orderedChannel

	// telemetryOut holds one latest-only slot per telemetry source session
	// ( "single-slot mailbox per (source, destination) pair"),
	// created lazily as new sources are observed.
	telemetryMu  sync.Mutex
	telemetryOut map[string]*latestOnlyChannel

	// telemetryWake is signaled by pushTelemetry so runOutbound flushes a
	// fresh sample immediately instead of waiting for the next tick.
	telemetryWake chan struct{}

	cfg Config
	log *slog.Logger

	closeOnce sync.Once
	done      chan struct{}

	// registry/correlator back-references, set once at construction, used
	// by the outbound forwarder and by Close to deregister/cancel.
	onClose func(s *Session)
}

// newSession constructs a session in AwaitingHello immediately after
// transport accept.
func newSession(id string, transport controlTransport, cfg Config, log *slog.Logger, onClose func(*Session)) *Session {
	s := &Session{
		id:            id,
		transport:     transport,
		ordered:       newOrderedChannel(cfg.Queues.ActionDepth),
		telemetryOut:  make(map[string]*latestOnlyChannel),
		telemetryWake: make(chan struct{}, 1),
		cfg:           cfg,
		log:           log.With("session_id", id),
		done:          make(chan struct{}),
		onClose:       onClose,
		createdAt:     time.Now(),
	}
	s.state.Store(int32(stateAwaitingHello))
	s.rateLimit = newControlRateLimiter(controlRateLimitDefault)
	return s
}

func (s *Session) currentState() sessionState {
	return sessionState(s.state.Load())
}

func (s *Session) setState(st sessionState) {
	s.state.Store(int32(st))
}

// nextSeq returns the next strictly-increasing outbound seq.
func (s *Session) nextSeq() uint64 {
	return s.localSeqNext.Add(1)
}

// observeInboundSeq applies invariant 2: peer_seq_last is the max of
// itself and the newly observed seq. It reports whether seq was a rewind
// (a protocol error — seq strictly less than what's already been seen).
func (s *Session) observeInboundSeq(seq uint64) (rewound bool) {
	for {
		cur := s.peerSeqLast.Load()
		if seq < cur {
			return true
		}
		if s.peerSeqLast.CompareAndSwap(cur, seq) || seq == cur {
			return false
		}
	}
}

func (s *Session) touchRx() {
	s.lastRxMono.Store(time.Now().UnixNano())
}

// buildEnvelope stamps a fresh outbound envelope with this session's seq
// and the peer seq observed so far.
func (s *Session) buildEnvelope(p Payload) *Envelope {
	now := time.Now()
	return &Envelope{
		ProtocolVersion: protocolVersion,
		SessionID:       s.id,
		Seq:             s.nextSeq(),
		Ack:             s.peerSeqLast.Load(),
		MonoMs:          uint64(now.UnixNano() / int64(time.Millisecond)),
		WallUnixMs:      uint64(now.UnixNano() / int64(time.Millisecond)),
		Payload:         p,
	}
}

// sendControl encodes and writes env directly to the reliable stream,
// honoring the transport send-timeout by running the write on its own
// goroutine and racing it against a timer. The send breaker gates the
// attempt the same way it gates sendDatagram, and a failure or timeout is
// recorded against it either way.
func (s *Session) sendControl(env *Envelope) error {
	data, err := encodeEnvelope(env, s.cfg.Limits.MaxFrameBytes)
	if err != nil {
		return err
	}
	if s.breaker.shouldSkip() {
		return errBreakerOpen
	}

	errc := make(chan error, 1)
	go func() { errc <- writeAll(s.transport, data) }()

	timer := time.NewTimer(s.cfg.transportSendTimeout())
	defer timer.Stop()
	select {
	case err := <-errc:
		if err != nil {
			s.breaker.recordFailure()
			return err
		}
		s.breaker.recordSuccess()
		return nil
	case <-timer.C:
		s.breaker.recordFailure()
		return errTransportStalled
	}
}

var errTransportStalled = errors.New("session: transport send stalled")

func writeAll(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

// sendDatagram best-effort sends env over the unreliable datagram path,
// racing the send against send_telemetry_ms; telemetry drops silently on
// failure or timeout, counted by the caller.
func (s *Session) sendDatagram(env *Envelope) error {
	data, err := encodeEnvelope(env, s.cfg.Limits.MaxFrameBytes)
	if err != nil {
		return err
	}
	if s.breaker.shouldSkip() {
		return errBreakerOpen
	}

	errc := make(chan error, 1)
	go func() { errc <- s.transport.SendDatagram(data) }()

	timer := time.NewTimer(s.cfg.sendTelemetryTimeout())
	defer timer.Stop()
	select {
	case err := <-errc:
		if err != nil {
			s.breaker.recordFailure()
			return err
		}
		s.breaker.recordSuccess()
		return nil
	case <-timer.C:
		s.breaker.recordFailure()
		return errTelemetryStalled
	}
}

var errBreakerOpen = errors.New("session: send breaker open")
var errTelemetryStalled = errors.New("session: telemetry datagram send stalled")

// telemetrySlot returns (creating if needed) the latest-only mailbox that
// buffers telemetry from sourceSessionID toward this session.
func (s *Session) telemetrySlot(sourceSessionID string) *latestOnlyChannel {
	s.telemetryMu.Lock()
	defer s.telemetryMu.Unlock()
	slot, ok := s.telemetryOut[sourceSessionID]
	if !ok {
		slot = newLatestOnlyChannel()
		s.telemetryOut[sourceSessionID] = slot
	}
	return slot
}

func (s *Session) telemetrySlots() map[string]*latestOnlyChannel {
	s.telemetryMu.Lock()
	defer s.telemetryMu.Unlock()
	out := make(map[string]*latestOnlyChannel, len(s.telemetryOut))
	for k, v := range s.telemetryOut {
		out[k] = v
	}
	return out
}

// runOutbound is the destination's dedicated outbound task: it drains
// the ordered channel for control/action traffic and forwards the latest
// pending telemetry sample from each known source whenever one arrives.
// It returns when done is closed.
func (s *Session) runOutbound(ctx context.Context) {
	// Poll telemetry slots on a short interval in addition to being woken
	// by pushTelemetry; this keeps the forwarder responsive without a
	// goroutine per slot.
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case env := <-s.ordered.recv():
			if err := s.sendControl(env); err != nil {
				s.log.Warn("outbound control send failed", "error", err)
				if errors.Is(err, errTransportStalled) {
					s.closeSession(ErrTransportStalled, "transport send stalled")
					return
				}
			}
		case <-ticker.C:
			s.flushTelemetry()
		case <-s.telemetryWake:
			s.flushTelemetry()
		}
	}
}

// wakeTelemetry signals runOutbound to flush pending telemetry immediately
// instead of waiting for the next ticker tick.
func (s *Session) wakeTelemetry() {
	select {
	case s.telemetryWake <- struct{}{}:
	default:
	}
}

func (s *Session) flushTelemetry() {
	for _, slot := range s.telemetrySlots() {
		env := slot.take()
		if env == nil {
			continue
		}
		if err := s.sendDatagram(env); err != nil {
			slot.recordDrop()
		}
	}
}

// pushTelemetry overwrites the slot for sourceSessionID with env — the
// writer never blocks.
func (s *Session) pushTelemetry(sourceSessionID string, env *Envelope) {
	s.telemetrySlot(sourceSessionID).put(env)
	s.wakeTelemetry()
}

// enqueueOrdered attempts to push env onto the ordered channel, waiting up
// to the configured send-timeout. Returns false on congestion.
func (s *Session) enqueueOrdered(env *Envelope) bool {
	return s.ordered.trySend(env, s.cfg.sendActionTimeout(), s.done)
}

// closeSession transitions the session to Closing, optionally sending a
// fatal ErrorFrame first, and releases owned resources.
func (s *Session) closeSession(code ErrorCode, msg string) {
	s.closeOnce.Do(func() {
		if code != "" {
			env := s.buildEnvelope(ErrorFrame{Code: code, Message: msg})
			if data, err := encodeEnvelope(env, s.cfg.Limits.MaxFrameBytes); err == nil {
				_ = writeAll(s.transport, data)
			}
		}
		s.setState(stateClosing)
		close(s.done)
		_ = s.transport.CloseWithError(0, msg)
		s.ordered.drain()
		if s.onClose != nil {
			s.onClose(s)
		}
		s.log.Info("session closed", "reason", msg, "code", code)
	})
}
