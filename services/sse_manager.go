package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Connection tracks one open SSE stream
type Connection struct {
	ConnectionID string    `json:"connection_id"`
	ClientID     string    `json:"client_id"`
	JobID        string    `json:"job_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastPing     time.Time `json:"last_ping"`
	LastEventID  string    `json:"last_event_id,omitempty"`
}

// SSEManager owns the connection registry. Connections are registered on
// stream open, touched on every successful write, and swept when stale
// (no activity within 3x the heartbeat interval).
type SSEManager struct {
	mu        sync.Mutex
	conns     map[string]*Connection
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewSSEManager creates a connection manager with the given heartbeat interval
func NewSSEManager(heartbeat time.Duration, logger *slog.Logger) *SSEManager {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEManager{
		conns:     make(map[string]*Connection),
		heartbeat: heartbeat,
		logger:    logger.With("component", "sse"),
	}
}

// HeartbeatInterval returns the configured heartbeat interval
func (m *SSEManager) HeartbeatInterval() time.Duration {
	return m.heartbeat
}

// Register creates a connection record for a newly opened stream. An empty
// clientID gets a generated one.
func (m *SSEManager) Register(clientID, jobID, lastEventID string) *Connection {
	if clientID == "" {
		clientID = "client-" + uuid.NewString()[:8]
	}
	now := time.Now()
	conn := &Connection{
		ConnectionID: uuid.NewString(),
		ClientID:     clientID,
		JobID:        jobID,
		CreatedAt:    now,
		LastPing:     now,
		LastEventID:  lastEventID,
	}

	m.mu.Lock()
	m.conns[conn.ConnectionID] = conn
	m.mu.Unlock()

	m.logger.Info("sse connection opened", "connection_id", conn.ConnectionID, "job_id", jobID, "resume_from", lastEventID)
	return conn
}

// Touch records activity on a connection
func (m *SSEManager) Touch(connectionID string) {
	m.mu.Lock()
	if conn, ok := m.conns[connectionID]; ok {
		conn.LastPing = time.Now()
	}
	m.mu.Unlock()
}

// Unregister removes a closed connection
func (m *SSEManager) Unregister(connectionID string) {
	m.mu.Lock()
	delete(m.conns, connectionID)
	m.mu.Unlock()
}

// Count returns the number of open connections
func (m *SSEManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// SweepStale drops connections with no activity within 3x the heartbeat
// interval and returns how many were removed.
func (m *SSEManager) SweepStale() int {
	cutoff := time.Now().Add(-3 * m.heartbeat)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, conn := range m.conns {
		if conn.LastPing.Before(cutoff) {
			delete(m.conns, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("swept stale sse connections", "removed", removed)
	}
	return removed
}
