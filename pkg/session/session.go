// Package session implements the relay's orchestration core: a process-wide
// registry of per-connection sessions, a per-session FIFO dispatch loop with
// at most one in-flight resolution, and the response-source resolution
// pipeline (cache, intent handlers, generative fallback).
//
// Concurrency model: each session is processed by at most one drain
// goroutine at a time; different sessions proceed fully in parallel. No lock
// is held across an external call. Destroying a session discards its queue
// and marks it dead; an in-flight resolution completing afterwards emits
// nothing.
package session

import (
	"sync"
	"time"

	"github.com/chathelp/relay/pkg/chat"
)

// Outlet delivers server events to one client connection.
// Implementations must be safe for concurrent use.
type Outlet interface {
	// SendText delivers a text answer.
	SendText(text string) error

	// SendAudio delivers a URL to a synthesized audio artifact.
	SendAudio(url string) error
}

// Session is the server-side state for one live client connection.
// All fields behind mu; external packages interact through Manager,
// Dispatcher and the accessors below.
type Session struct {
	// ID is the opaque connection identifier.
	ID string

	outlet Outlet

	mu            sync.Mutex
	queue         []string
	history       []chat.Turn
	voiceMode     bool
	gate          bool
	gateTimer     *time.Timer
	draining      bool
	dead          bool
	pendingSearch string
}

// SetVoiceMode toggles audio synthesis for subsequent answers.
func (s *Session) SetVoiceMode(on bool) {
	s.mu.Lock()
	s.voiceMode = on
	s.mu.Unlock()
}

// VoiceMode reports whether audio synthesis is enabled.
func (s *Session) VoiceMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceMode
}

// History returns a snapshot of the conversation history.
func (s *Session) History() []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// QueueLen reports the number of pending messages.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// appendTurns extends the history. Turns are immutable once appended.
func (s *Session) appendTurns(turns ...chat.Turn) {
	s.mu.Lock()
	s.history = append(s.history, turns...)
	s.mu.Unlock()
}

// lastUserContent returns the content of the most recent user turn, or "".
func (s *Session) lastUserContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == chat.RoleUser {
			return s.history[i].Content
		}
	}
	return ""
}

func (s *Session) isDead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead
}

// setPendingSearch arms the one-shot confirmation handshake.
func (s *Session) setPendingSearch(query string) {
	s.mu.Lock()
	s.pendingSearch = query
	s.mu.Unlock()
}

// takePendingSearch disarms the handshake and returns the pending query.
func (s *Session) takePendingSearch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.pendingSearch
	s.pendingSearch = ""
	return q
}
