package main

import (
	"fmt"
	"sync"
)

// sessionRegistry indexes Established sessions by (role, agent_id) and by
// session_id. It is a read-mostly index, not an owner: sessions own
// their own outbound queues, the registry only stores the lookup handle.
//
// Mutating operations take the write lock briefly; readers take a copy of
// whatever slice they need under the read lock and then operate on the
// copy so they never hold the lock across a session send.
type sessionRegistry struct {
	mu       sync.RWMutex
	byID     map[string]*Session
	byRole   map[Role]map[string]*Session // role -> agent_id -> session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		byID: make(map[string]*Session),
		byRole: map[Role]map[string]*Session{
			RoleGameClient:   make(map[string]*Session),
			RoleOrchestrator: make(map[string]*Session),
		},
	}
}

// register indexes s as Established. Called once, after a valid Hello.
func (r *sessionRegistry) register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.id] = s
	if m, ok := r.byRole[s.role]; ok {
		m[s.agentID] = s
	}
}

// deregister removes s from every index. Safe to call even if s was never
// registered (e.g. disconnect during AwaitingHello).
func (r *sessionRegistry) deregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, s.id)
	if m, ok := r.byRole[s.role]; ok {
		if m[s.agentID] == s {
			delete(m, s.agentID)
		}
	}
}

func (r *sessionRegistry) byAgent(role Role, agentID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byRole[role][agentID]
}

func (r *sessionRegistry) bySessionID(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// orchestrators returns a snapshot of all live orchestrator sessions, used
// by the router to fan telemetry out to every orchestrator.
func (r *sessionRegistry) orchestrators() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byRole[RoleOrchestrator]))
	for _, s := range r.byRole[RoleOrchestrator] {
		out = append(out, s)
	}
	return out
}

// uniqueGameClient returns the single registered GAME_CLIENT session. It
// errors if zero or multiple are registered.
func (r *sessionRegistry) uniqueGameClient() (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byRole[RoleGameClient]
	if len(m) == 0 {
		return nil, fmt.Errorf("no game client registered")
	}
	if len(m) > 1 {
		return nil, fmt.Errorf("%d game clients registered, target is ambiguous", len(m))
	}
	for _, s := range m {
		return s, nil
	}
	panic("unreachable")
}

// count returns the number of live sessions per role, for the metrics
// snapshot.
func (r *sessionRegistry) count() (gameClients, orchestrators int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRole[RoleGameClient]), len(r.byRole[RoleOrchestrator])
}

// snapshot returns a copy of every registered session, for the /sessions
// admin endpoint.
func (r *sessionRegistry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}
