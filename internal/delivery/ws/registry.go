package ws

import "sync"

// Registry maps a user to the set of live connections for that user.
// Multiple simultaneous devices are allowed; a user with zero connections is
// absent from the map entirely, so presence is a key-membership check.
// The registry holds references only — each connection is owned by its pumps.
type Registry struct {
	mu    sync.Mutex
	conns map[int64]map[*Client]struct{}
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int64]map[*Client]struct{}),
	}
}

// Register adds a connection to the user's set, creating the set if absent
func (r *Registry) Register(userID int64, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[userID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a connection from the user's set. The last removal for
// a user deletes the map entry. Unregistering an absent connection is a no-op.
func (r *Registry) Unregister(userID int64, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
}

// ConnectionsFor returns a snapshot of the user's current connections, so
// delivery iteration is unaffected by concurrent mutation
func (r *Registry) ConnectionsFor(userID int64) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.conns[userID]
	if len(set) == 0 {
		return nil
	}
	snapshot := make([]*Client, 0, len(set))
	for c := range set {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// Online reports whether the user has at least one live connection
func (r *Registry) Online(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[userID]
	return ok
}

// UserCount returns the number of users with at least one live connection
func (r *Registry) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
