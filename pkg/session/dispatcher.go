package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chathelp/relay/pkg/storage"
	"github.com/chathelp/relay/pkg/tts"
)

// DefaultGateTimeout is the playback watchdog: if the client never
// acknowledges playback, the gate is released after this long so one
// unresponsive client cannot stall its own queue forever.
const DefaultGateTimeout = 30 * time.Second

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	// Resolver produces answers. Required.
	Resolver *Resolver

	// Synthesizer produces audio for answers in voice mode. Optional;
	// nil disables audio entirely.
	Synthesizer *tts.Synthesizer

	// Files stores synthesized audio artifacts. Required when
	// Synthesizer is set.
	Files storage.FileStore

	// AudioURLPrefix is prepended to artifact names in audio events,
	// e.g. "/audio/". Required when Synthesizer is set.
	AudioURLPrefix string

	// GateTimeout is the playback watchdog interval. Zero means
	// DefaultGateTimeout.
	GateTimeout time.Duration

	// BaseContext is the parent context for resolutions. Defaults to
	// context.Background.
	BaseContext context.Context

	// Now is the clock for audio URL cache busting. Defaults to time.Now.
	Now func() time.Time
}

// Dispatcher drives per-session message processing: FIFO order, at most one
// in-flight resolution per session, audio-playback-gated flow control in
// voice mode. Failure of one message never stops the loop; the next queued
// message is always attempted.
type Dispatcher struct {
	resolver    *Resolver
	synth       *tts.Synthesizer
	files       storage.FileStore
	audioPrefix string
	gateTimeout time.Duration
	baseCtx     context.Context
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher from the config.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		resolver:    cfg.Resolver,
		synth:       cfg.Synthesizer,
		files:       cfg.Files,
		audioPrefix: cfg.AudioURLPrefix,
		gateTimeout: cfg.GateTimeout,
		baseCtx:     cfg.BaseContext,
		now:         cfg.Now,
	}
	if d.gateTimeout <= 0 {
		d.gateTimeout = DefaultGateTimeout
	}
	if d.baseCtx == nil {
		d.baseCtx = context.Background()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Enqueue appends a message to the session's queue and starts a drain if
// none is running and the playback gate is clear.
func (d *Dispatcher) Enqueue(s *Session, message string) {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, message)
	start := !s.draining && !s.gate
	if start {
		s.draining = true
	}
	s.mu.Unlock()

	if start {
		go d.drain(s)
	}
}

// OnPlaybackEnded handles the client's acknowledgment that the current
// audio artifact finished playing: it clears the gate and resumes draining
// if messages are queued.
func (d *Dispatcher) OnPlaybackEnded(s *Session) {
	d.releaseGate(s, "client")
}

// HandleConfirmation answers a pending search confirmation. "да"/"yes"
// re-enqueues the query as an explicit search so it flows through the
// normal pipeline; anything else declines politely. Without a pending
// search this is a no-op.
func (d *Dispatcher) HandleConfirmation(s *Session, answer string) {
	query := s.takePendingSearch()
	if query == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "да", "yes", "y":
		d.Enqueue(s, "search: "+query)
	default:
		d.send(s, msgSearchDecline)
	}
}

// drain processes queued messages until the queue empties, the playback
// gate closes, or the session dies. Exactly one drain runs per session.
func (d *Dispatcher) drain(s *Session) {
	for {
		s.mu.Lock()
		if s.dead || len(s.queue) == 0 || s.gate {
			s.draining = false
			s.mu.Unlock()
			return
		}
		msg := s.queue[0]
		s.queue = s.queue[1:]
		voice := s.voiceMode
		s.mu.Unlock()

		// Immediate repeats (transport retries) are dropped silently.
		if trimmed := strings.TrimSpace(msg); trimmed != "" && trimmed == s.lastUserContent() {
			slog.Debug("dispatcher: duplicate message dropped", "session", s.ID)
			continue
		}

		answer := d.resolver.Resolve(d.baseCtx, s, msg)
		if s.isDead() {
			// Resolved after disconnect; result is discarded.
			return
		}
		d.send(s, answer)

		if voice && d.synth != nil {
			if gated := d.speak(s, answer); gated {
				return
			}
		}
	}
}

// speak synthesizes the answer, stores the artifact, emits its URL, and
// closes the playback gate. It reports whether the gate was closed (the
// drain loop must then suspend until release).
func (d *Dispatcher) speak(s *Session, answer string) bool {
	audio, err := d.synth.Synthesize(d.baseCtx, answer)
	if err != nil {
		slog.Error("dispatcher: synthesis failed", "session", s.ID, "err", err)
		d.send(s, msgVoiceFailed)
		return false
	}
	if len(audio) == 0 {
		return false
	}

	name := uuid.NewString() + ".mp3"
	if err := d.files.Save(d.baseCtx, name, bytes.NewReader(audio)); err != nil {
		// Artifact write failure costs only the audio side effect.
		slog.Error("dispatcher: audio artifact write failed", "session", s.ID, "err", err)
		return false
	}

	url := fmt.Sprintf("%s%s?ts=%d", d.audioPrefix, name, d.now().UnixMilli())

	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return true
	}
	s.gate = true
	s.gateTimer = time.AfterFunc(d.gateTimeout, func() {
		d.releaseGate(s, "watchdog")
	})
	s.draining = false
	s.mu.Unlock()

	if err := s.outlet.SendAudio(url); err != nil {
		slog.Warn("dispatcher: audio event send failed", "session", s.ID, "err", err)
	}
	return true
}

// releaseGate clears the playback gate and resumes draining if needed.
func (d *Dispatcher) releaseGate(s *Session, reason string) {
	s.mu.Lock()
	if !s.gate {
		s.mu.Unlock()
		return
	}
	s.gate = false
	if s.gateTimer != nil {
		s.gateTimer.Stop()
		s.gateTimer = nil
	}
	resume := !s.draining && len(s.queue) > 0 && !s.dead
	if resume {
		s.draining = true
	}
	s.mu.Unlock()

	slog.Debug("dispatcher: playback gate released", "session", s.ID, "reason", reason)
	if resume {
		go d.drain(s)
	}
}

// send emits a text answer unless the session is already dead.
func (d *Dispatcher) send(s *Session, text string) {
	if s.isDead() {
		return
	}
	if err := s.outlet.SendText(text); err != nil {
		slog.Warn("dispatcher: text event send failed", "session", s.ID, "err", err)
	}
}
