package main

import "time"

// emergencyStopCoordinator synthesizes a STOP_ALL ActionRequest whenever
// the correlator times out an action targeting a game-client session.
// It is invoked synchronously from the correlator's own goroutine
// (processExpired), so it needs no locking of its own — it just reuses the
// correlator's enqueueStopAll to register the synthesized request as its
// own tracked ActionEntry.
type emergencyStopCoordinator struct {
	correlator *Correlator
}

func newEmergencyStopCoordinator(c *Correlator) *emergencyStopCoordinator {
	return &emergencyStopCoordinator{correlator: c}
}

// onTimeout is called after a timed-out ActionEntry has been destroyed.
// targetSessionID is the game-client session the expired action was aimed
// at; if it is no longer registered (disconnected), there is nothing to
// stop and the coordinator is a no-op.
func (e *emergencyStopCoordinator) onTimeout(targetSessionID string) {
	target := e.correlator.registry.bySessionID(targetSessionID)
	if target == nil || target.role != RoleGameClient {
		return
	}

	req := ActionRequest{
		RequestID:       newRequestID(),
		Type:            ActionStopAll,
		TargetAgentID:   target.agentID,
		ExpiresAtUnixMs: uint64(time.Now().Add(stopAllTTL).UnixMilli()),
	}
	e.correlator.enqueueStopAll(target, req)
}
