package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory controlTransport for exercising Session
// without a real QUIC connection.
type fakeTransport struct {
	mu            sync.Mutex
	writes        [][]byte
	readBuf       *bytes.Buffer
	datagrams     chan []byte
	writeErr      error
	closed        bool
	closeErr      error
	datagramDelay time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		readBuf:   &bytes.Buffer{},
		datagrams: make(chan []byte, 16),
	}
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	return f.readBuf.Read(p)
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	cp := append([]byte(nil), p...)
	f.writes = append(f.writes, cp)
	return len(p), nil
}

func (f *fakeTransport) SendDatagram(b []byte) error {
	if f.datagramDelay > 0 {
		time.Sleep(f.datagramDelay)
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	cp := append([]byte(nil), b...)
	select {
	case f.datagrams <- cp:
	default:
	}
	return nil
}

func (f *fakeTransport) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	select {
	case b := <-f.datagrams:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) CloseWithError(code uint32, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func (f *fakeTransport) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(transport controlTransport) *Session {
	cfg := defaultConfig()
	return newSession("sess-1", transport, cfg, testLogger(), nil)
}

func TestSessionNextSeqStrictlyIncreasing(t *testing.T) {
	s := newTestSession(newFakeTransport())
	a := s.nextSeq()
	b := s.nextSeq()
	c := s.nextSeq()
	if !(a < b && b < c) {
		t.Fatalf("expected strictly increasing seq, got %d %d %d", a, b, c)
	}
}

func TestSessionObserveInboundSeqRewind(t *testing.T) {
	s := newTestSession(newFakeTransport())
	if rewound := s.observeInboundSeq(5); rewound {
		t.Fatal("first observation should never be a rewind")
	}
	if rewound := s.observeInboundSeq(10); rewound {
		t.Fatal("increasing seq should not be a rewind")
	}
	if rewound := s.observeInboundSeq(3); !rewound {
		t.Fatal("expected rewind when seq decreases")
	}
	if rewound := s.observeInboundSeq(10); rewound {
		t.Fatal("re-observing the current max should not be a rewind")
	}
}

func TestSessionStateTransitions(t *testing.T) {
	s := newTestSession(newFakeTransport())
	if s.currentState() != stateAwaitingHello {
		t.Fatalf("expected AwaitingHello initially, got %v", s.currentState())
	}
	s.setState(stateEstablished)
	if s.currentState() != stateEstablished {
		t.Fatalf("expected Established, got %v", s.currentState())
	}
}

func TestSessionSendControlRecordsBreakerSuccess(t *testing.T) {
	ft := newFakeTransport()
	s := newTestSession(ft)
	env := s.buildEnvelope(ErrorFrame{Code: ErrCodecError, Message: "x"})
	if err := s.sendControl(env); err != nil {
		t.Fatalf("sendControl: %v", err)
	}
	if ft.writeCount() != 1 {
		t.Fatalf("expected 1 write, got %d", ft.writeCount())
	}
	if s.breaker.open() {
		t.Fatal("breaker should not be open after a successful send")
	}
}

func TestSessionSendControlRecordsBreakerFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.writeErr = errors.New("boom")
	s := newTestSession(ft)
	env := s.buildEnvelope(ErrorFrame{Code: ErrCodecError, Message: "x"})
	if err := s.sendControl(env); err == nil {
		t.Fatal("expected error from failing transport")
	}
	if s.breaker.open() {
		t.Fatal("one failure below threshold should not open the breaker")
	}
}

func TestSessionSendControlSkippedWhileBreakerOpen(t *testing.T) {
	ft := newFakeTransport()
	s := newTestSession(ft)
	for i := uint32(0); i < circuitBreakerThreshold; i++ {
		s.breaker.recordFailure()
	}
	env := s.buildEnvelope(ErrorFrame{Code: ErrCodecError, Message: "x"})
	if err := s.sendControl(env); !errors.Is(err, errBreakerOpen) {
		t.Fatalf("expected errBreakerOpen once the threshold is reached, got %v", err)
	}
	if ft.writeCount() != 0 {
		t.Fatalf("expected no write while the breaker is open, got %d", ft.writeCount())
	}
}

func TestSessionSendDatagramTimesOutUnderSendTelemetryMs(t *testing.T) {
	ft := newFakeTransport()
	ft.datagramDelay = 50 * time.Millisecond
	s := newTestSession(ft)
	s.cfg.Timeouts.SendTelemetryMs = 1 // far shorter than the transport's artificial delay

	env := s.buildEnvelope(TelemetryFrame{HP: 10, Hunger: 10, Air: 100})
	if err := s.sendDatagram(env); !errors.Is(err, errTelemetryStalled) {
		t.Fatalf("expected errTelemetryStalled, got %v", err)
	}
}

func TestSessionEnqueueOrderedAndDrain(t *testing.T) {
	s := newTestSession(newFakeTransport())
	env := s.buildEnvelope(ActionAck{RequestID: "r1", Accepted: true})
	if !s.enqueueOrdered(env) {
		t.Fatal("expected enqueue to succeed with available capacity")
	}
	select {
	case got := <-s.ordered.recv():
		if got != env {
			t.Fatal("expected to receive the same envelope back")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for enqueued envelope")
	}
}

func TestSessionTelemetrySlotLazyCreation(t *testing.T) {
	s := newTestSession(newFakeTransport())
	slot1 := s.telemetrySlot("source-a")
	slot2 := s.telemetrySlot("source-a")
	if slot1 != slot2 {
		t.Fatal("expected the same slot to be returned for the same source")
	}
	if len(s.telemetrySlots()) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(s.telemetrySlots()))
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	ft := newFakeTransport()
	s := newTestSession(ft)
	s.closeSession(ErrHelloTimeout, "timed out")
	s.closeSession(ErrHelloTimeout, "timed out again")
	if s.currentState() != stateClosing {
		t.Fatalf("expected Closing, got %v", s.currentState())
	}
	if !ft.closed {
		t.Fatal("expected transport to be closed")
	}
	// Only the first close writes its ErrorFrame; the second call is a no-op.
	if ft.writeCount() != 1 {
		t.Fatalf("expected exactly 1 write (idempotent close), got %d", ft.writeCount())
	}
}
