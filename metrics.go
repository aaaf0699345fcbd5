package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// bridgeMetricsSnapshot is the JSON shape served by /metrics and
// logged periodically to stdout.
type bridgeMetricsSnapshot struct {
	GameClients      int    `json:"game_clients"`
	Orchestrators    int    `json:"orchestrators"`
	TelemetryDropped uint64 `json:"telemetry_dropped_total"`
	ActionsRejected  uint64 `json:"actions_rejected_total"`
}

// snapshotMetrics walks the registry to build a point-in-time metrics
// snapshot.
func (b *BridgeServer) snapshotMetrics() bridgeMetricsSnapshot {
	gameClients, orchestrators := b.registry.count()
	var dropped, rejected uint64
	for _, s := range b.registry.snapshot() {
		for _, slot := range s.telemetrySlots() {
			dropped += slot.droppedCount()
		}
		rejected += s.ordered.rejectedCount()
	}
	return bridgeMetricsSnapshot{
		GameClients:      gameClients,
		Orchestrators:    orchestrators,
		TelemetryDropped: dropped,
		ActionsRejected:  rejected,
	}
}

// runMetricsLog logs a humanized metrics summary every interval until ctx
// is canceled.
func runMetricsLog(ctx context.Context, b *BridgeServer, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := b.snapshotMetrics()
			if m.GameClients == 0 && m.Orchestrators == 0 {
				continue
			}
			log.Info("metrics",
				"game_clients", m.GameClients,
				"orchestrators", m.Orchestrators,
				"telemetry_dropped", humanize.Comma(int64(m.TelemetryDropped)),
				"actions_rejected", humanize.Comma(int64(m.ActionsRejected)),
			)
		}
	}
}
