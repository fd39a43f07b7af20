package tcp

import (
	"log/slog"
	"slices"
	"sync"
)

// ClientRegistry tracks the sessions that are currently connected.
// All methods are safe for concurrent use.
type ClientRegistry struct {
	clients map[int64]*Session
	// key: client ID, value: session pointer
	// an entry exists only while its transport is open or closing
	mu     sync.RWMutex // read-write mutex for concurrent access
	logger *slog.Logger
}

func NewClientRegistry(logger *slog.Logger) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientRegistry{
		clients: make(map[int64]*Session),
		logger:  logger,
	}
}

// Add registers the session under its ID, replacing any stale entry.
func (r *ClientRegistry) Add(s *Session) {
	r.mu.Lock()
	r.clients[s.ID()] = s
	r.mu.Unlock()
	r.logger.Info("client_added",
		"client_id", s.ID(),
		"session", s.Tag(),
	)
}

// Remove deletes the entry for id and reports whether one was present.
// Removing an absent id is a no-op, so teardown and forced shutdown may both call it.
func (r *ClientRegistry) Remove(id int64) bool {
	r.mu.Lock()
	_, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	if ok {
		r.logger.Info("client_removed",
			"client_id", id,
		)
	}
	return ok
}

func (r *ClientRegistry) Get(id int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.clients[id]
	return s, ok
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Snapshot copies the current sessions so callers can iterate without holding the lock.
func (r *ClientRegistry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.clients))
	for _, s := range r.clients {
		sessions = append(sessions, s)
	}
	return sessions
}

// ForEach calls fn for every session present when ForEach was called.
// Sessions added or removed meanwhile are not observed.
func (r *ClientRegistry) ForEach(fn func(*Session)) {
	for _, s := range r.Snapshot() {
		fn(s)
	}
}

// IDs returns the connected client IDs in ascending order.
func (r *ClientRegistry) IDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Clear empties the registry and returns what it held.
func (r *ClientRegistry) Clear() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := make([]*Session, 0, len(r.clients))
	for _, s := range r.clients {
		removed = append(removed, s)
	}
	r.clients = make(map[int64]*Session)
	// reset the map, for clearing all references
	// allowing garbage collection
	return removed
}
