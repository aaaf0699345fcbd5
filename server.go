package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
)

// wtTransport adapts a *webtransport.Session plus its control stream down
// to the small controlTransport interface session.go actually needs.
type wtTransport struct {
	sess   *webtransport.Session
	stream webtransport.Stream
}

func (t *wtTransport) Read(p []byte) (int, error)  { return t.stream.Read(p) }
func (t *wtTransport) Write(p []byte) (int, error) { return t.stream.Write(p) }

func (t *wtTransport) SendDatagram(b []byte) error {
	return t.sess.SendDatagram(b)
}

func (t *wtTransport) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return t.sess.ReceiveDatagram(ctx)
}

func (t *wtTransport) CloseWithError(code uint32, msg string) error {
	return t.sess.CloseWithError(webtransport.SessionErrorCode(code), msg)
}

// BridgeServer wires the TLS listener, session registry, correlator, and
// router into one running engine: TLS listener -> session loop -> codec ->
// router -> (channel | correlator) -> peer session's outbound queue ->
// codec -> TLS.
type BridgeServer struct {
	cfg      Config
	log      *slog.Logger
	registry *sessionRegistry
	corr     *Correlator
	rt       *router
	wt       webtransport.Server
}

// NewBridgeServer constructs the engine; it does not start listening until
// Run is called. tlsConfig must already require mutual authentication,
// produced by newServerTLSConfig.
func NewBridgeServer(cfg Config, tlsConfig *tls.Config, log *slog.Logger) *BridgeServer {
	registry := newSessionRegistry()
	corr := newCorrelator(registry, cfg, log)
	rt := newRouter(registry, corr, log)

	mux := http.NewServeMux()
	b := &BridgeServer{
		cfg:      cfg,
		log:      log,
		registry: registry,
		corr:     corr,
		rt:       rt,
	}
	b.wt = webtransport.Server{
		H3: http3.Server{
			Addr:      cfg.BindAddr,
			TLSConfig: tlsConfig,
			Handler:   mux,
		},
	}
	mux.HandleFunc("/bridge", b.handleUpgrade)
	return b
}

// Run starts the correlator actor and the QUIC/WebTransport listener, and
// blocks until ctx is canceled.
func (b *BridgeServer) Run(ctx context.Context) error {
	go b.corr.run()
	defer b.corr.stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.wt.H3.Shutdown(shutdownCtx)
	}()

	b.log.Info("bridge listening", "addr", b.cfg.BindAddr)
	err := b.wt.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (b *BridgeServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	sess, err := b.wt.Upgrade(w, r)
	if err != nil {
		b.log.Warn("webtransport upgrade failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	go b.handleSession(r.Context(), sess)
}

func (b *BridgeServer) handleSession(ctx context.Context, wt *webtransport.Session) {
	stream, err := wt.AcceptStream(ctx)
	if err != nil {
		b.log.Warn("accept control stream failed", "error", err)
		_ = wt.CloseWithError(0, "no control stream")
		return
	}

	id := newSessionID()
	transport := &wtTransport{sess: wt, stream: stream}
	onClose := func(s *Session) {
		b.registry.deregister(s)
		b.corr.submitSessionClosed(s.id)
	}
	s := newSession(id, transport, b.cfg, b.log, onClose)
	runSession(ctx, s, b.registry, b.corr, b.rt, b.cfg.capabilitySet(), b.log)
}
