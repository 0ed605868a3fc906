package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chathelp/relay/pkg/cache"
	"github.com/chathelp/relay/pkg/chat"
	"github.com/chathelp/relay/pkg/intent"
	"github.com/chathelp/relay/pkg/kv"
	"github.com/chathelp/relay/pkg/storage"
	"github.com/chathelp/relay/pkg/tts"
)

// blockingGenerator holds Generate open until release is closed, letting a
// test destroy the session while a resolution is in flight.
type blockingGenerator struct {
	started atomic.Bool
	release chan struct{}
	inner   chat.Generator
}

func (g *blockingGenerator) Generate(ctx context.Context, turns []chat.Turn) (string, error) {
	g.started.Store(true)
	<-g.release
	return g.inner.Generate(ctx, turns)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	session    *Session
	outlet     *recordingOutlet
	gen        *fakeGenerator
	manager    *Manager
	speakN     *int
	speakMu    *sync.Mutex
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	gen := &fakeGenerator{}
	outlet := &recordingOutlet{}
	m := NewManager()
	s, err := m.Create("test", outlet)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	var mu sync.Mutex
	speakN := 0
	provider := tts.SpeakFunc(func(ctx context.Context, text string) ([]byte, error) {
		mu.Lock()
		speakN++
		mu.Unlock()
		return []byte("mp3:" + text), nil
	})

	d := NewDispatcher(DispatcherConfig{
		Resolver: &Resolver{
			Cache:      cache.New(kv.NewMemory(nil), kv.Key{"cache", "text"}, 100),
			Classifier: intent.New(),
			Generator:  gen,
			Searcher:   &fakeSearcher{result: "search result"},
		},
		Synthesizer:    tts.New(provider),
		Files:          files,
		AudioURLPrefix: "/audio/",
		GateTimeout:    time.Hour,
	})
	return &dispatcherFixture{
		dispatcher: d,
		session:    s,
		outlet:     outlet,
		gen:        gen,
		manager:    m,
		speakN:     &speakN,
		speakMu:    &mu,
	}
}

func (f *dispatcherFixture) speakCalls() int {
	f.speakMu.Lock()
	defer f.speakMu.Unlock()
	return *f.speakN
}

func TestDispatchSingleMessage(t *testing.T) {
	f := newDispatcherFixture(t)

	f.dispatcher.Enqueue(f.session, "привет")
	waitFor(t, func() bool { return len(f.outlet.Texts()) == 1 }, "answer")

	if got := f.outlet.Texts()[0]; got != "echo: привет" {
		t.Fatalf("answer = %q", got)
	}
	if f.session.QueueLen() != 0 {
		t.Fatalf("queue not drained")
	}
	if len(f.outlet.Audios()) != 0 {
		t.Fatal("audio emitted outside voice mode")
	}
}

func TestDispatchPreservesOrder(t *testing.T) {
	f := newDispatcherFixture(t)

	for _, msg := range []string{"один", "два", "три"} {
		f.dispatcher.Enqueue(f.session, msg)
	}
	waitFor(t, func() bool { return len(f.outlet.Texts()) == 3 }, "all answers")

	want := []string{"echo: один", "echo: два", "echo: три"}
	for i, w := range want {
		if got := f.outlet.Texts()[i]; got != w {
			t.Fatalf("answer %d = %q, want %q", i, got, w)
		}
	}
}

func TestDispatchSkipsDuplicateAdjacent(t *testing.T) {
	f := newDispatcherFixture(t)

	f.dispatcher.Enqueue(f.session, "привет")
	waitFor(t, func() bool { return len(f.outlet.Texts()) == 1 }, "first answer")

	// Cache miss is forced by a distinct message after the duplicate so the
	// drain demonstrably ran past it.
	f.dispatcher.Enqueue(f.session, "привет")
	f.dispatcher.Enqueue(f.session, "пока")
	waitFor(t, func() bool { return len(f.outlet.Texts()) == 2 }, "second answer")

	if got := f.outlet.Texts()[1]; got != "echo: пока" {
		t.Fatalf("answer after duplicate = %q", got)
	}
	if n := f.gen.calls.Load(); n != 2 {
		t.Fatalf("generator called %d times, want 2", n)
	}
}

func TestVoiceModeEmitsAudioAndGates(t *testing.T) {
	f := newDispatcherFixture(t)
	f.session.SetVoiceMode(true)

	f.dispatcher.Enqueue(f.session, "привет")
	waitFor(t, func() bool { return len(f.outlet.Audios()) == 1 }, "audio event")

	url := f.outlet.Audios()[0]
	if !strings.HasPrefix(url, "/audio/") || !strings.HasSuffix(url[:strings.Index(url, "?")], ".mp3") {
		t.Fatalf("audio url = %q", url)
	}
	if !strings.Contains(url, "?ts=") {
		t.Fatalf("audio url missing cache buster: %q", url)
	}
	if f.speakCalls() == 0 {
		t.Fatal("provider never invoked")
	}

	// The next message waits behind the playback gate.
	f.dispatcher.Enqueue(f.session, "пока")
	time.Sleep(20 * time.Millisecond)
	if len(f.outlet.Texts()) != 1 {
		t.Fatalf("second answer emitted while gated: %v", f.outlet.Texts())
	}

	f.dispatcher.OnPlaybackEnded(f.session)
	waitFor(t, func() bool { return len(f.outlet.Texts()) == 2 }, "gated answer")
	if got := f.outlet.Texts()[1]; got != "echo: пока" {
		t.Fatalf("gated answer = %q", got)
	}
}

func TestWatchdogReleasesGate(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatcher.gateTimeout = 30 * time.Millisecond
	f.session.SetVoiceMode(true)

	f.dispatcher.Enqueue(f.session, "привет")
	f.dispatcher.Enqueue(f.session, "пока")

	// No playback acknowledgment arrives; the watchdog must unblock.
	waitFor(t, func() bool { return len(f.outlet.Texts()) == 2 }, "watchdog release")
}

func TestAudioURLsAreUnique(t *testing.T) {
	f := newDispatcherFixture(t)
	f.session.SetVoiceMode(true)

	f.dispatcher.Enqueue(f.session, "привет")
	waitFor(t, func() bool { return len(f.outlet.Audios()) == 1 }, "first audio")
	f.dispatcher.OnPlaybackEnded(f.session)

	f.dispatcher.Enqueue(f.session, "пока")
	waitFor(t, func() bool { return len(f.outlet.Audios()) == 2 }, "second audio")

	a, b := f.outlet.Audios()[0], f.outlet.Audios()[1]
	if a[:strings.Index(a, "?")] == b[:strings.Index(b, "?")] {
		t.Fatalf("artifact names collide: %q vs %q", a, b)
	}
}

func TestSynthesisFailureFallsBackToText(t *testing.T) {
	gen := &fakeGenerator{}
	outlet := &recordingOutlet{}
	m := NewManager()
	s, _ := m.Create("test", outlet)
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	provider := tts.SpeakFunc(func(ctx context.Context, text string) ([]byte, error) {
		return nil, context.DeadlineExceeded
	})
	d := NewDispatcher(DispatcherConfig{
		Resolver: &Resolver{
			Cache:      cache.New(kv.NewMemory(nil), kv.Key{"cache", "text"}, 100),
			Classifier: intent.New(),
			Generator:  gen,
			Searcher:   &fakeSearcher{},
		},
		Synthesizer: tts.New(provider, tts.WithRetryPolicy(tts.RetryPolicy{
			MaxAttempts: 1,
			Backoff:     func(int) time.Duration { return 0 },
		})),
		Files:          files,
		AudioURLPrefix: "/audio/",
	})
	s.SetVoiceMode(true)

	d.Enqueue(s, "привет")
	waitFor(t, func() bool { return len(outlet.Texts()) == 2 }, "fallback answer")

	if got := outlet.Texts()[1]; got != msgVoiceFailed {
		t.Fatalf("fallback = %q", got)
	}
	if len(outlet.Audios()) != 0 {
		t.Fatal("audio emitted despite synthesis failure")
	}

	// The gate never closed, so the next message flows immediately.
	d.Enqueue(s, "пока")
	waitFor(t, func() bool { return len(outlet.Texts()) == 4 }, "next answer")
}

func TestDestroyedSessionDiscardsResults(t *testing.T) {
	gen := &fakeGenerator{}
	release := make(chan struct{})
	outlet := &recordingOutlet{}
	m := NewManager()
	s, _ := m.Create("test", outlet)

	blocking := &blockingGenerator{release: release, inner: gen}
	d := NewDispatcher(DispatcherConfig{
		Resolver: &Resolver{
			Cache:      cache.New(kv.NewMemory(nil), kv.Key{"cache", "text"}, 100),
			Classifier: intent.New(),
			Generator:  blocking,
			Searcher:   &fakeSearcher{},
		},
	})

	d.Enqueue(s, "привет")
	waitFor(t, func() bool { return blocking.started.Load() }, "resolution start")

	m.Destroy("test")
	close(release)

	time.Sleep(20 * time.Millisecond)
	if len(outlet.Texts()) != 0 {
		t.Fatalf("answer emitted after destroy: %v", outlet.Texts())
	}

	// Enqueue on a dead session is a silent no-op.
	d.Enqueue(s, "пока")
	time.Sleep(20 * time.Millisecond)
	if len(outlet.Texts()) != 0 {
		t.Fatal("dead session accepted new work")
	}
}

func TestHandleConfirmation(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatcher.resolver.ConfirmSearch = true

	f.dispatcher.Enqueue(f.session, "кто победил на выборах в 2030 году")
	waitFor(t, func() bool { return len(f.outlet.Texts()) == 1 }, "prompt")
	if !strings.Contains(f.outlet.Texts()[0], "Выполнить поиск") {
		t.Fatalf("prompt = %q", f.outlet.Texts()[0])
	}

	f.dispatcher.HandleConfirmation(f.session, "да")
	waitFor(t, func() bool { return len(f.outlet.Texts()) == 2 }, "search answer")
	if got := f.outlet.Texts()[1]; got != "search result" {
		t.Fatalf("confirmed search answer = %q", got)
	}

	// A second confirmation with nothing pending is a no-op.
	f.dispatcher.HandleConfirmation(f.session, "да")
	time.Sleep(20 * time.Millisecond)
	if len(f.outlet.Texts()) != 2 {
		t.Fatal("stale confirmation produced output")
	}
}

func TestHandleConfirmationDecline(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatcher.resolver.ConfirmSearch = true

	f.dispatcher.Enqueue(f.session, "кто выиграл чемпионат 2031")
	waitFor(t, func() bool { return len(f.outlet.Texts()) == 1 }, "prompt")

	f.dispatcher.HandleConfirmation(f.session, "нет")
	waitFor(t, func() bool { return len(f.outlet.Texts()) == 2 }, "decline")
	if got := f.outlet.Texts()[1]; got != msgSearchDecline {
		t.Fatalf("decline = %q", got)
	}
}
