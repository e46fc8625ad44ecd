package api

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnRegistry tracks active chat connections.
type ConnRegistry struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{
		active: make(map[string]*websocket.Conn),
	}
}

// Register adds a connection under id.
func (m *ConnRegistry) Register(id string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.active[id]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}
	m.active[id] = conn
	slog.Info("Client connected", "conn_id", id, "total_connections", len(m.active))
}

// Unregister removes a connection if it is still the one registered under id.
func (m *ConnRegistry) Unregister(id string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.active[id]; exists && current == conn {
		delete(m.active, id)
		slog.Info("Client disconnected", "conn_id", id, "total_connections", len(m.active))
	}
}

// Count returns the number of active connections.
func (m *ConnRegistry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// CloseAll closes every active connection with a going-away status.
func (m *ConnRegistry) CloseAll(reason string) {
	m.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(m.active))
	for id, conn := range m.active {
		conns = append(conns, conn)
		delete(m.active, id)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, reason)
	}
}
