package main

import (
	"container/heap"
	"log/slog"
	"time"
)

// actionPhase is an ActionEntry's lifecycle position.
type actionPhase int

const (
	phaseAwaitingAck actionPhase = iota
	phaseAwaitingResult
	phaseTerminal
)

// actionEntry is the correlator's record of an in-flight ActionRequest.
type actionEntry struct {
	requestID           string
	originatorSessionID string
	targetSessionID      string
	deadlineMs           int64
	phase                actionPhase
	createdMs            int64
}

// timerItem is one entry in the correlator's deadline min-heap.
type timerItem struct {
	requestID  string
	deadlineMs int64
}

type timerHeap []timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadlineMs < h[j].deadlineMs }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)         { *h = append(*h, x.(timerItem)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// dedupeLRU is a fixed-capacity, insertion-order-evicted set of recently
// terminal request_ids. Grounded on room.go's msgOwners/msgOwnerKeys eviction pattern,
// generalized with a per-entry expiry since suppression here is
// time-bounded as well as capacity-bounded.
type dedupeLRU struct {
	capacity int
	horizon  time.Duration
	entries  map[string]time.Time
	order    []string
}

func newDedupeLRU(capacity int, horizon time.Duration) *dedupeLRU {
	return &dedupeLRU{
		capacity: capacity,
		horizon:  horizon,
		entries:  make(map[string]time.Time),
	}
}

func (d *dedupeLRU) seen(requestID string) bool {
	expiry, ok := d.entries[requestID]
	if !ok {
		return false
	}
	return time.Now().Before(expiry)
}

func (d *dedupeLRU) record(requestID string) {
	if _, exists := d.entries[requestID]; !exists {
		d.order = append(d.order, requestID)
	}
	d.entries[requestID] = time.Now().Add(d.horizon)
	for len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.entries, oldest)
	}
}

// Correlator owns the request_id -> ActionEntry map as a single-writer
// actor: every mutation happens on one goroutine processing a command
// channel, so invariant 4 (at most one live ActionEntry per request_id)
// is trivially true without a mutex.
//
// Deadlines are tracked with one shared min-heap and one timer reset to
// the next deadline, rather than a time.Timer per entry.
type Correlator struct {
	registry *sessionRegistry
	onStop   *emergencyStopCoordinator
	cfg      Config
	log      *slog.Logger

	entries map[string]*actionEntry
	heap    timerHeap
	dedupe  *dedupeLRU

	cmds chan correlatorCmd
	done chan struct{}
}

type correlatorCmd struct {
	relay         *relayCmd
	ack           *ackCmd
	result        *resultCmd
	sessionClosed string
}

type relayCmd struct {
	req         ActionRequest
	originator  *Session
	target      *Session
}

type ackCmd struct {
	ack  ActionAck
	from *Session
}

type resultCmd struct {
	result ActionResult
	from   *Session
}

func newCorrelator(registry *sessionRegistry, cfg Config, log *slog.Logger) *Correlator {
	c := &Correlator{
		registry: registry,
		cfg:      cfg,
		log:      log.With("component", "correlator"),
		entries:  make(map[string]*actionEntry),
		dedupe:   newDedupeLRU(duplicateSuppressionCapacity, duplicateSuppressionHorizon),
		cmds:     make(chan correlatorCmd, 256),
		done:     make(chan struct{}),
	}
	c.onStop = newEmergencyStopCoordinator(c)
	return c
}

func (c *Correlator) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	armTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if len(c.heap) == 0 {
			timer.Reset(time.Hour)
			return
		}
		next := time.Until(time.UnixMilli(c.heap[0].deadlineMs))
		if next < 0 {
			next = 0
		}
		timer.Reset(next)
	}

	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.cmds:
			c.handle(cmd)
			armTimer()
		case <-timer.C:
			c.processExpired()
			armTimer()
		}
	}
}

func (c *Correlator) stop() { close(c.done) }

func (c *Correlator) handle(cmd correlatorCmd) {
	switch {
	case cmd.relay != nil:
		c.handleRelay(*cmd.relay)
	case cmd.ack != nil:
		c.handleAck(*cmd.ack)
	case cmd.result != nil:
		c.handleResult(*cmd.result)
	case cmd.sessionClosed != "":
		c.handleSessionClosed(cmd.sessionClosed)
	}
}

func (c *Correlator) handleRelay(cmd relayCmd) {
	req := cmd.req
	if req.RequestID == "" {
		replyActionAck(cmd.originator, req.RequestID, false, "request_id required")
		return
	}
	if _, live := c.entries[req.RequestID]; live || c.dedupe.seen(req.RequestID) {
		replyActionAck(cmd.originator, req.RequestID, false, "duplicate")
		replyActionResult(cmd.originator, req.RequestID, ActionStatusRejected, "duplicate")
		return
	}

	nowMs := time.Now().UnixMilli()
	deadline := nowMs + int64(c.cfg.actionDefaultTTL()/time.Millisecond)
	if req.ExpiresAtUnixMs != 0 {
		expires := int64(req.ExpiresAtUnixMs)
		if expires < deadline {
			deadline = expires
		}
	}

	if !cmd.target.enqueueOrdered(cmd.target.buildEnvelope(req)) {
		replyActionAck(cmd.originator, req.RequestID, false, "relay congested")
		replyActionResult(cmd.originator, req.RequestID, ActionStatusRejected, "relay congested")
		return
	}

	entry := &actionEntry{
		requestID:           req.RequestID,
		originatorSessionID: cmd.originator.id,
		targetSessionID:     cmd.target.id,
		deadlineMs:          deadline,
		phase:               phaseAwaitingAck,
		createdMs:           nowMs,
	}
	c.entries[req.RequestID] = entry
	heap.Push(&c.heap, timerItem{requestID: req.RequestID, deadlineMs: deadline})
}

func (c *Correlator) handleAck(cmd ackCmd) {
	entry, ok := c.entries[cmd.ack.RequestID]
	if !ok {
		return
	}
	originator := c.registry.bySessionID(entry.originatorSessionID)
	if originator != nil {
		originator.enqueueOrdered(originator.buildEnvelope(cmd.ack))
	}
	if entry.phase == phaseTerminal {
		return
	}
	if cmd.ack.Accepted {
		entry.phase = phaseAwaitingResult
	}
	// !accepted leaves phase as-is; the originator should see a terminal
	// ActionResult next, which destroys the entry.
}

func (c *Correlator) handleResult(cmd resultCmd) {
	entry, ok := c.entries[cmd.result.RequestID]
	if !ok {
		return
	}
	originator := c.registry.bySessionID(entry.originatorSessionID)
	if originator != nil {
		originator.enqueueOrdered(originator.buildEnvelope(cmd.result))
	}
	c.destroyEntry(entry)
}

// handleSessionClosed destroys every in-flight entry whose originator is the
// closing session (nothing is sent; the originator is gone) and, separately,
// answers each entry whose target disconnected with
// ActionResult{REJECTED, "target disconnected"} toward its originator.
func (c *Correlator) handleSessionClosed(sessionID string) {
	for id, entry := range c.entries {
		if entry.originatorSessionID == sessionID {
			delete(c.entries, id)
			continue
		}
		if entry.targetSessionID == sessionID && entry.phase != phaseTerminal {
			originator := c.registry.bySessionID(entry.originatorSessionID)
			if originator != nil {
				originator.enqueueOrdered(originator.buildEnvelope(ActionResult{
					RequestID: entry.requestID,
					Status:    ActionStatusRejected,
					Detail:    "target disconnected",
				}))
			}
			delete(c.entries, id)
		}
	}
}

func (c *Correlator) destroyEntry(entry *actionEntry) {
	entry.phase = phaseTerminal
	delete(c.entries, entry.requestID)
	c.dedupe.record(entry.requestID)
}

// processExpired walks the heap's front for entries whose deadline has
// passed, synthesizes ActionResult{TIMEOUT} for each still-live one, and
// hands off to the emergency-stop coordinator.
func (c *Correlator) processExpired() {
	nowMs := time.Now().UnixMilli()
	for len(c.heap) > 0 && c.heap[0].deadlineMs <= nowMs {
		item := heap.Pop(&c.heap).(timerItem)
		entry, ok := c.entries[item.requestID]
		if !ok || entry.phase == phaseTerminal || entry.deadlineMs != item.deadlineMs {
			continue // stale heap entry: already terminal or superseded
		}

		c.log.Warn("action timed out", "request_id", entry.requestID,
			"session_id", entry.originatorSessionID, "target_session_id", entry.targetSessionID)
		originator := c.registry.bySessionID(entry.originatorSessionID)
		if originator != nil {
			originator.enqueueOrdered(originator.buildEnvelope(ActionResult{
				RequestID: entry.requestID,
				Status:    ActionStatusTimeout,
				Detail:    "ack/result deadline exceeded",
			}))
		}
		target := entry.targetSessionID
		c.destroyEntry(entry)
		c.onStop.onTimeout(target)
	}
}

// submitRelay is called by the router when an ORCHESTRATOR session sends a
// well-formed ActionRequest.
func (c *Correlator) submitRelay(req ActionRequest, originator, target *Session) {
	select {
	case c.cmds <- correlatorCmd{relay: &relayCmd{req: req, originator: originator, target: target}}:
	case <-c.done:
	}
}

func (c *Correlator) submitAck(ack ActionAck, from *Session) {
	select {
	case c.cmds <- correlatorCmd{ack: &ackCmd{ack: ack, from: from}}:
	case <-c.done:
	}
}

func (c *Correlator) submitResult(result ActionResult, from *Session) {
	select {
	case c.cmds <- correlatorCmd{result: &resultCmd{result: result, from: from}}:
	case <-c.done:
	}
}

func (c *Correlator) submitSessionClosed(sessionID string) {
	select {
	case c.cmds <- correlatorCmd{sessionClosed: sessionID}:
	case <-c.done:
	}
}

// enqueueStopAll is used only by the emergency-stop coordinator, which
// runs on the same goroutine as processExpired (called synchronously from
// it), so it mutates c.entries/c.heap directly rather than going through
// the command channel.
func (c *Correlator) enqueueStopAll(target *Session, req ActionRequest) {
	if target == nil {
		return
	}
	if !target.enqueueOrdered(target.buildEnvelope(req)) {
		c.log.Warn("failed to enqueue synthesized STOP_ALL", "target_agent_id", target.agentID)
		return
	}
	c.log.Warn("synthesized STOP_ALL", "request_id", req.RequestID, "agent_id", target.agentID)
	nowMs := time.Now().UnixMilli()
	deadline := int64(req.ExpiresAtUnixMs)
	entry := &actionEntry{
		requestID:           req.RequestID,
		originatorSessionID: "", // bridge-originated; no originator to notify on timeout
		targetSessionID:     target.id,
		deadlineMs:          deadline,
		phase:               phaseAwaitingAck,
		createdMs:           nowMs,
	}
	c.entries[req.RequestID] = entry
	heap.Push(&c.heap, timerItem{requestID: req.RequestID, deadlineMs: deadline})
}

func replyActionAck(to *Session, requestID string, accepted bool, reason string) {
	if to == nil {
		return
	}
	to.enqueueOrdered(to.buildEnvelope(ActionAck{RequestID: requestID, Accepted: accepted, Reason: reason}))
}

func replyActionResult(to *Session, requestID string, status ActionStatus, detail string) {
	if to == nil {
		return
	}
	to.enqueueOrdered(to.buildEnvelope(ActionResult{RequestID: requestID, Status: status, Detail: detail}))
}
