package presence

import "sync"

// Registry tracks live connections per user. Implementations must be safe
// for concurrent use.
type Registry interface {
	// Register records a connection for userID under connID. Registering
	// the same connID twice replaces the previous value.
	Register(userID, connID string, conn any)

	// Unregister removes one connection. It reports whether the
	// connection was present.
	Unregister(userID, connID string) bool

	// Connections returns the current connections for userID. The
	// returned map is a snapshot owned by the caller.
	Connections(userID string) map[string]any

	// Online reports whether userID has at least one connection.
	Online(userID string) bool

	// DisconnectUser removes every connection for userID and returns the
	// removed connections so the caller can close them. Used on sign-out
	// and forced revocation.
	DisconnectUser(userID string) map[string]any
}

type memoryRegistry struct {
	mu    sync.RWMutex
	users map[string]map[string]any
}

// NewRegistry returns an in-memory [Registry].
func NewRegistry() Registry {
	return &memoryRegistry{users: make(map[string]map[string]any)}
}

func (r *memoryRegistry) Register(userID, connID string, conn any) {
	if userID == "" || connID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]any)
		r.users[userID] = conns
	}
	conns[connID] = conn
}

func (r *memoryRegistry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, userID)
	}
	return true
}

func (r *memoryRegistry) Connections(userID string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns, ok := r.users[userID]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(conns))
	for id, conn := range conns {
		out[id] = conn
	}
	return out
}

func (r *memoryRegistry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

func (r *memoryRegistry) DisconnectUser(userID string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.users[userID]
	if !ok {
		return nil
	}
	delete(r.users, userID)
	return conns
}
