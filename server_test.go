package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"
)

var testPort atomic.Int32

func init() {
	testPort.Store(24433)
}

func getFreePort() int {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		return int(testPort.Add(1))
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return int(testPort.Add(1))
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

// startTestBridge spins up a real BridgeServer over loopback QUIC using a
// throwaway mTLS PKI (devCA).
func startTestBridge(t *testing.T) (addr string, clientTLS *tls.Config, cancel context.CancelFunc) {
	t.Helper()

	ca, err := newDevCA(time.Hour)
	if err != nil {
		t.Fatalf("newDevCA: %v", err)
	}
	serverCertPEM, serverKeyPEM, _, err := ca.issueLeaf("127.0.0.1", time.Hour)
	if err != nil {
		t.Fatalf("issue server leaf: %v", err)
	}
	clientCertPEM, clientKeyPEM, _, err := ca.issueLeaf("bridge-test-client", time.Hour)
	if err != nil {
		t.Fatalf("issue client leaf: %v", err)
	}

	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := dir + "/" + name
		if err := os.WriteFile(p, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}
	caPath := write("ca.pem", ca.certPEM())
	serverCertPath := write("server-cert.pem", serverCertPEM)
	serverKeyPath := write("server-key.pem", serverKeyPEM)
	clientCertPath := write("client-cert.pem", clientCertPEM)
	clientKeyPath := write("client-key.pem", clientKeyPEM)

	serverTLS, err := newServerTLSConfig(caPath, serverCertPath, serverKeyPath)
	if err != nil {
		t.Fatalf("newServerTLSConfig: %v", err)
	}
	clientTLS, err = newClientTLSConfig(caPath, clientCertPath, clientKeyPath)
	if err != nil {
		t.Fatalf("newClientTLSConfig: %v", err)
	}

	port := getFreePort()
	addr = fmt.Sprintf("127.0.0.1:%d", port)

	cfg := defaultConfig()
	cfg.BindAddr = addr

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	bridge := NewBridgeServer(cfg, serverTLS, log)

	ctx, cancelFn := context.WithCancel(context.Background())
	go func() { _ = bridge.Run(ctx) }()
	time.Sleep(200 * time.Millisecond)

	return addr, clientTLS, cancelFn
}

// dialBridgeClient opens a WebTransport session plus its control stream
// against addr.
func dialBridgeClient(t *testing.T, addr string, clientTLS *tls.Config) (*webtransport.Session, webtransport.Stream) {
	t.Helper()

	d := webtransport.Dialer{
		TLSClientConfig: clientTLS,
		QUICConfig: &quic.Config{
			EnableDatagrams: true,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, sess, err := d.Dial(ctx, "https://"+addr+"/bridge", http.Header{})
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	stream, err := sess.OpenStream()
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	return sess, stream
}

func sendEnvelope(t *testing.T, w interface{ Write([]byte) (int, error) }, env *Envelope) {
	t.Helper()
	data, err := encodeEnvelope(env, maxFrameBytesDefault)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recvEnvelope(t *testing.T, r *bufio.Reader) *Envelope {
	t.Helper()
	env, err := decodeEnvelope(r, maxFrameBytesDefault)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestBridgeHandshakeHelloAck(t *testing.T) {
	addr, clientTLS, cancel := startTestBridge(t)
	defer cancel()

	sess, stream := dialBridgeClient(t, addr, clientTLS)
	defer sess.CloseWithError(0, "test done")

	const proposedHandshakeID = "client-proposed-nonce"
	hello := &Envelope{
		ProtocolVersion: protocolVersion,
		Payload: Hello{
			AgentID:             "gamepc",
			Role:                RoleGameClient,
			Capabilities:        []string{string(CapTelemetryV1), string(CapHelloAckV1)},
			ClientVersion:       "x/0.2",
			ProposedHandshakeID: proposedHandshakeID,
		},
	}
	sendEnvelope(t, stream, hello)

	reader := bufio.NewReader(stream)
	env := recvEnvelope(t, reader)
	ack, ok := env.Payload.(HelloAck)
	if !ok {
		t.Fatalf("expected HelloAck, got %T", env.Payload)
	}
	if !ack.Accepted {
		t.Fatalf("expected accepted=true, got %#v", ack)
	}
	if ack.HandshakeID == "" {
		t.Fatal("expected non-empty server-assigned handshake_id")
	}
	if ack.HandshakeID == proposedHandshakeID {
		t.Fatalf("expected server-generated handshake_id to differ from the client's proposed value, got %q", ack.HandshakeID)
	}
}

func TestBridgeHandshakeLegacyHello(t *testing.T) {
	addr, clientTLS, cancel := startTestBridge(t)
	defer cancel()

	sess, stream := dialBridgeClient(t, addr, clientTLS)
	defer sess.CloseWithError(0, "test done")

	hello := &Envelope{
		ProtocolVersion: protocolVersion,
		Payload: Hello{
			AgentID:      "gamepc",
			Role:         RoleGameClient,
			Capabilities: []string{string(CapTelemetryV1)},
		},
	}
	sendEnvelope(t, stream, hello)

	reader := bufio.NewReader(stream)
	env := recvEnvelope(t, reader)
	if _, ok := env.Payload.(Hello); !ok {
		t.Fatalf("expected legacy Hello reply, got %T", env.Payload)
	}
}

func TestBridgeActionHappyPath(t *testing.T) {
	addr, clientTLS, cancel := startTestBridge(t)
	defer cancel()

	gameSess, gameStream := dialBridgeClient(t, addr, clientTLS)
	defer gameSess.CloseWithError(0, "test done")
	sendEnvelope(t, gameStream, &Envelope{ProtocolVersion: protocolVersion, Payload: Hello{
		AgentID: "gamepc", Role: RoleGameClient, Capabilities: []string{string(CapHelloAckV1), string(CapActionV1)},
	}})
	gameReader := bufio.NewReader(gameStream)
	recvEnvelope(t, gameReader) // HelloAck

	orchSess, orchStream := dialBridgeClient(t, addr, clientTLS)
	defer orchSess.CloseWithError(0, "test done")
	sendEnvelope(t, orchStream, &Envelope{ProtocolVersion: protocolVersion, Payload: Hello{
		AgentID: "orch1", Role: RoleOrchestrator, Capabilities: []string{string(CapHelloAckV1), string(CapActionV1)},
	}})
	orchReader := bufio.NewReader(orchStream)
	recvEnvelope(t, orchReader) // HelloAck

	sendEnvelope(t, orchStream, &Envelope{ProtocolVersion: protocolVersion, Payload: ActionRequest{
		RequestID:       "R1",
		Type:            ActionBaritoneGoto,
		TargetAgentID:   "gamepc",
		ExpiresAtUnixMs: uint64(time.Now().Add(5 * time.Second).UnixMilli()),
		Goto:            &BaritoneGoto{X: 10, Y: 64, Z: -20, MaxDistance: 100, TimeoutMs: 4000, StuckTimeoutMs: 2000},
	}})

	gameEnv := recvEnvelope(t, gameReader)
	req, ok := gameEnv.Payload.(ActionRequest)
	if !ok || req.RequestID != "R1" {
		t.Fatalf("expected relayed ActionRequest R1, got %#v", gameEnv.Payload)
	}

	sendEnvelope(t, gameStream, &Envelope{ProtocolVersion: protocolVersion, Payload: ActionAck{
		RequestID: "R1", Accepted: true, Reason: "accepted",
	}})

	orchEnv := recvEnvelope(t, orchReader)
	ack, ok := orchEnv.Payload.(ActionAck)
	if !ok || !ack.Accepted {
		t.Fatalf("expected ActionAck{accepted=true}, got %#v", orchEnv.Payload)
	}

	sendEnvelope(t, gameStream, &Envelope{ProtocolVersion: protocolVersion, Payload: ActionResult{
		RequestID: "R1", Status: ActionStatusOK, Detail: "goto complete",
	}})

	orchEnv2 := recvEnvelope(t, orchReader)
	result, ok := orchEnv2.Payload.(ActionResult)
	if !ok || result.Status != ActionStatusOK {
		t.Fatalf("expected ActionResult{OK}, got %#v", orchEnv2.Payload)
	}
}
