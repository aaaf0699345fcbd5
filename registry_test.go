package main

import "testing"

func newRegisteredSession(id string, role Role, agentID string) *Session {
	s := newTestSession(newFakeTransport())
	s.id = id
	s.role = role
	s.agentID = agentID
	s.setState(stateEstablished)
	return s
}

func TestRegistryUniqueGameClientErrors(t *testing.T) {
	r := newSessionRegistry()
	if _, err := r.uniqueGameClient(); err == nil {
		t.Fatal("expected error with zero game clients registered")
	}

	g1 := newRegisteredSession("g1", RoleGameClient, "agent-1")
	r.register(g1)
	got, err := r.uniqueGameClient()
	if err != nil || got != g1 {
		t.Fatalf("expected unique game client g1, got %v err %v", got, err)
	}

	g2 := newRegisteredSession("g2", RoleGameClient, "agent-2")
	r.register(g2)
	if _, err := r.uniqueGameClient(); err == nil {
		t.Fatal("expected ambiguity error with two game clients registered")
	}
}

func TestRegistryByAgentAndDeregister(t *testing.T) {
	r := newSessionRegistry()
	s := newRegisteredSession("g1", RoleGameClient, "agent-1")
	r.register(s)

	if got := r.byAgent(RoleGameClient, "agent-1"); got != s {
		t.Fatalf("expected byAgent to find s, got %v", got)
	}
	if got := r.bySessionID("g1"); got != s {
		t.Fatalf("expected bySessionID to find s, got %v", got)
	}

	r.deregister(s)
	if got := r.byAgent(RoleGameClient, "agent-1"); got != nil {
		t.Fatal("expected nil after deregister")
	}
	if got := r.bySessionID("g1"); got != nil {
		t.Fatal("expected nil after deregister")
	}
}

func TestRegistryOrchestratorsFanOutSnapshot(t *testing.T) {
	r := newSessionRegistry()
	o1 := newRegisteredSession("o1", RoleOrchestrator, "orch-1")
	o2 := newRegisteredSession("o2", RoleOrchestrator, "orch-2")
	r.register(o1)
	r.register(o2)

	got := r.orchestrators()
	if len(got) != 2 {
		t.Fatalf("expected 2 orchestrators, got %d", len(got))
	}

	gameClients, orchestrators := r.count()
	if gameClients != 0 || orchestrators != 2 {
		t.Fatalf("expected (0, 2), got (%d, %d)", gameClients, orchestrators)
	}
}

func TestRegistryDeregisterIgnoresStaleOwner(t *testing.T) {
	r := newSessionRegistry()
	s1 := newRegisteredSession("g1", RoleGameClient, "agent-1")
	r.register(s1)

	// A second session reusing the same agent_id takes over the slot.
	s2 := newRegisteredSession("g2", RoleGameClient, "agent-1")
	r.register(s2)

	// Deregistering the superseded session must not evict s2's slot.
	r.deregister(s1)
	if got := r.byAgent(RoleGameClient, "agent-1"); got != s2 {
		t.Fatalf("expected s2 to remain registered under agent-1, got %v", got)
	}
}
