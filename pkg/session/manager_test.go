package session

import (
	"errors"
	"sync"
	"testing"
)

type recordingOutlet struct {
	mu     sync.Mutex
	texts  []string
	audios []string
}

func (o *recordingOutlet) SendText(text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texts = append(o.texts, text)
	return nil
}

func (o *recordingOutlet) SendAudio(url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.audios = append(o.audios, url)
	return nil
}

func (o *recordingOutlet) Texts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.texts))
	copy(out, o.texts)
	return out
}

func (o *recordingOutlet) Audios() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.audios))
	copy(out, o.audios)
	return out
}

func TestManagerCreateGetDestroy(t *testing.T) {
	m := NewManager()

	s, err := m.Create("c1", &recordingOutlet{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID != "c1" {
		t.Fatalf("session id = %q, want c1", s.ID)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}

	got, ok := m.Get("c1")
	if !ok || got != s {
		t.Fatalf("Get returned %v, %v", got, ok)
	}

	m.Destroy("c1")
	if m.Len() != 0 {
		t.Fatalf("Len after Destroy = %d, want 0", m.Len())
	}
	if _, ok := m.Get("c1"); ok {
		t.Fatal("Get succeeded after Destroy")
	}
	if !s.isDead() {
		t.Fatal("session not marked dead after Destroy")
	}

	// Destroy is idempotent.
	m.Destroy("c1")
}

func TestManagerDuplicateID(t *testing.T) {
	m := NewManager()
	if _, err := m.Create("c1", &recordingOutlet{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create("c1", &recordingOutlet{}); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("second Create err = %v, want ErrDuplicateSession", err)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	m := NewManager()
	a, _ := m.Create("a", &recordingOutlet{})
	b, _ := m.Create("b", &recordingOutlet{})

	a.SetVoiceMode(true)
	if b.VoiceMode() {
		t.Fatal("voice mode leaked across sessions")
	}

	m.Destroy("a")
	if b.isDead() {
		t.Fatal("destroying one session killed another")
	}
}
