package gateway

import "sync"

// Registry maps session ids to Sessions and transport ids to session ids,
// per spec §4.2. It is grounded on the teacher's Manager.connections map
// and Pool.headerCache: a single map protected by one RWMutex, read-mostly,
// write-serialized.
type Registry struct {
	mu          sync.RWMutex
	byID        map[string]*Session
	byTransport map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:        make(map[string]*Session),
		byTransport: make(map[string]string),
	}
}

// Insert adds a newly authenticated Session.
func (r *Registry) Insert(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.SessionID] = s
}

// Bind records that transportID is now attached to sessionID, per spec
// §4.3 reconnect handling.
func (r *Registry) Bind(transportID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTransport[transportID] = sessionID
}

// Unbind removes a transport→session mapping, typically on transport
// disconnect (the Session itself survives, per spec §4.3).
func (r *Registry) Unbind(transportID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byTransport, transportID)
}

// Lookup resolves a transport id to its bound Session, if any.
func (r *Registry) Lookup(transportID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTransport[transportID]
	if !ok {
		return nil
	}
	return r.byID[id]
}

// Get resolves a session id directly.
func (r *Registry) Get(sessionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[sessionID]
}

// Remove deletes the Session and every reverse transport mapping pointing
// to it.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, sessionID)
	for t, id := range r.byTransport {
		if id == sessionID {
			delete(r.byTransport, t)
		}
	}
}

// List returns a point-in-time snapshot of all Sessions, used by the
// Janitor so its sweeps run outside the Registry lock (spec §5).
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Count returns the number of registered sessions, for the health endpoint.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
