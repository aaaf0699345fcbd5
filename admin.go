package main

import (
	"context"
	"log/slog"

	"github.com/fabricbridge/bridge/internal/httpapi"
)

// AdminServer wraps the internal/httpapi Echo application around the
// bridge engine's registry and metrics. Disabled unless
// admin.listen_addr is configured.
type AdminServer struct {
	http *httpapi.Server
}

func NewAdminServer(b *BridgeServer, log *slog.Logger) *AdminServer {
	return &AdminServer{http: httpapi.New(b)}
}

func (a *AdminServer) Run(ctx context.Context, addr string) error {
	return a.http.Run(ctx, addr)
}

// Metrics implements httpapi.DataSource.
func (b *BridgeServer) Metrics() httpapi.MetricsSnapshot {
	m := b.snapshotMetrics()
	return httpapi.MetricsSnapshot{
		GameClients:      m.GameClients,
		Orchestrators:    m.Orchestrators,
		TelemetryDropped: m.TelemetryDropped,
		ActionsRejected:  m.ActionsRejected,
	}
}

// Sessions implements httpapi.DataSource.
func (b *BridgeServer) Sessions() []httpapi.SessionInfo {
	sessions := b.registry.snapshot()
	out := make([]httpapi.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, httpapi.SessionInfo{
			SessionID:      s.id,
			Role:           string(s.role),
			AgentID:        s.agentID,
			State:          s.currentState().String(),
			ConnectedSince: s.createdAt,
		})
	}
	return out
}
