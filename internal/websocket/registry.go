package websocket

import (
	"log/slog"
	"sync"

	"agiletools/pkg/interfaces"
)

var _ interfaces.Presence = (*Registry)(nil)

// Registry manages WebSocket connections with thread-safe operations
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic.
// A user holds at most one connection per session; a second one replaces the first.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Connection // sessionCode -> username -> Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[string]*Connection),
	}
}

// RegisterConnection adds an authenticated connection, closing any connection it replaces.
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	username := conn.GetUsername()
	code := conn.GetSessionCode()

	r.mu.Lock()
	defer r.mu.Unlock()

	users := r.sessions[code]
	if users == nil {
		users = make(map[string]*Connection)
		r.sessions[code] = users
	}

	// FUNCTIONAL DISCOVERY: Close the replaced connection asynchronously so a slow
	// socket close never holds the registry lock
	if existing, exists := users[username]; exists && existing != conn {
		go func() {
			if err := existing.Close(); err != nil {
				slog.Debug("failed to close replaced connection", "username", username, "session_code", code, "error", err)
			}
		}()
	}
	users[username] = conn
	return nil
}

// UnregisterConnection removes conn if it is still the registered connection
// for its user and reports whether it did.
// RACE CONDITION FIX: a replaced connection cleaning up must not remove its successor
func (r *Registry) UnregisterConnection(conn *Connection) bool {
	if conn == nil {
		return false
	}

	code := conn.GetSessionCode()
	username := conn.GetUsername()

	r.mu.Lock()
	defer r.mu.Unlock()

	users, exists := r.sessions[code]
	if !exists || users[username] != conn {
		return false
	}
	delete(users, username)
	if len(users) == 0 {
		delete(r.sessions, code)
	}
	return true
}

// GetSessionConnections returns all connections in a session for broadcasting
func (r *Registry) GetSessionConnections(sessionCode string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := r.sessions[sessionCode]
	connections := make([]*Connection, 0, len(users))
	for _, conn := range users {
		connections = append(connections, conn)
	}
	return connections
}

// IsConnected reports whether username has a live stream in the session.
func (r *Registry) IsConnected(sessionCode, username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sessions[sessionCode][username]
	return exists
}

func (r *Registry) SessionConnectionCount(sessionCode string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionCode])
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, users := range r.sessions {
		total += len(users)
	}
	return map[string]int{
		"total_connections": total,
		"active_sessions":   len(r.sessions),
	}
}

// CloseAll closes every registered connection and returns how many it closed.
// Entries are removed by each connection's own cleanup.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	var connections []*Connection
	for _, users := range r.sessions {
		for _, conn := range users {
			connections = append(connections, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range connections {
		_ = conn.Close()
	}
	return len(connections)
}
