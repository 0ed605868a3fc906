package session

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrDuplicateSession is returned when creating a session whose id is
// already live. Correct transport semantics never trigger this.
var ErrDuplicateSession = errors.New("session: duplicate session id")

// Manager is the process-wide registry of active sessions keyed by
// connection id. It is the single synchronized owner of the session table.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers a new session for the connection id.
func (m *Manager) Create(id string, outlet Outlet) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		return nil, ErrDuplicateSession
	}
	s := &Session{ID: id, outlet: outlet}
	m.sessions[id] = s
	slog.Info("session: created", "id", id)
	return s, nil
}

// Get returns the session for a connection id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Destroy tears down the session: the queue and pending work are discarded
// and the session is marked dead so an in-flight resolution emits nothing.
// In-flight external calls are not cancelled; their results are discarded.
// Destroy never fails and is idempotent.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.dead = true
	s.queue = nil
	s.history = nil
	s.pendingSearch = ""
	s.gate = false
	if s.gateTimer != nil {
		s.gateTimer.Stop()
		s.gateTimer = nil
	}
	s.mu.Unlock()
	slog.Info("session: destroyed", "id", id)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
