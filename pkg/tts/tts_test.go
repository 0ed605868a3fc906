package tts_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chathelp/relay/pkg/cache"
	"github.com/chathelp/relay/pkg/kv"
	"github.com/chathelp/relay/pkg/tts"
)

// countingProvider echoes its input as audio bytes and counts calls.
type countingProvider struct {
	calls atomic.Int64
	fail  int // fail this many leading calls
}

func (p *countingProvider) Speak(_ context.Context, text string) ([]byte, error) {
	n := p.calls.Add(1)
	if int(n) <= p.fail {
		return nil, errors.New("transient provider failure")
	}
	return []byte("[" + text + "]"), nil
}

func noWait() tts.RetryPolicy {
	return tts.RetryPolicy{MaxAttempts: 3, Backoff: nil}
}

func newAudioCache(t *testing.T) *cache.Cache {
	t.Helper()
	store := kv.NewMemory(nil)
	t.Cleanup(func() { store.Close() })
	return cache.New(store, kv.Key{"cache", "audio"}, 100)
}

func TestSynthesizeConcatenatesInOrder(t *testing.T) {
	p := &countingProvider{}
	s := tts.New(p, tts.WithMaxPartRunes(20), tts.WithRetryPolicy(noWait()))

	got, err := s.Synthesize(context.Background(), "Первое. Второе. Третье.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	// Each part is bracketed by the fake provider; order must survive.
	text := string(got)
	i1 := strings.Index(text, "Первое.")
	i2 := strings.Index(text, "Второе.")
	i3 := strings.Index(text, "Третье.")
	if i1 < 0 || i2 < 0 || i3 < 0 || !(i1 < i2 && i2 < i3) {
		t.Fatalf("parts out of order: %q", text)
	}
}

func TestSynthesizeEmptyIsNoop(t *testing.T) {
	p := &countingProvider{}
	s := tts.New(p, tts.WithRetryPolicy(noWait()))

	for _, in := range []string{"", "   ", "\n\t", "<br/> <hr/>"} {
		got, err := s.Synthesize(context.Background(), in)
		if err != nil {
			t.Fatalf("Synthesize(%q): %v", in, err)
		}
		if got != nil {
			t.Fatalf("Synthesize(%q) = %v, want nil", in, got)
		}
	}
	if p.calls.Load() != 0 {
		t.Fatalf("provider called %d times for empty input", p.calls.Load())
	}
}

func TestSynthesizeUsesAudioCache(t *testing.T) {
	p := &countingProvider{}
	s := tts.New(p, tts.WithCache(newAudioCache(t)), tts.WithRetryPolicy(noWait()))
	ctx := context.Background()

	first, err := s.Synthesize(ctx, "Одинаковый текст")
	if err != nil {
		t.Fatalf("first Synthesize: %v", err)
	}
	callsAfterFirst := p.calls.Load()

	second, err := s.Synthesize(ctx, "Одинаковый текст")
	if err != nil {
		t.Fatalf("second Synthesize: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("identical text must produce identical audio")
	}
	if p.calls.Load() != callsAfterFirst {
		t.Fatalf("provider called again on cache hit: %d -> %d", callsAfterFirst, p.calls.Load())
	}
}

func TestSynthesizeRetriesThenSucceeds(t *testing.T) {
	p := &countingProvider{fail: 2}
	s := tts.New(p, tts.WithRetryPolicy(noWait()))

	got, err := s.Synthesize(context.Background(), "короткий текст")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected audio after retries")
	}
	if p.calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", p.calls.Load())
	}
}

func TestSynthesizeExhaustsRetries(t *testing.T) {
	p := &countingProvider{fail: 1000}
	s := tts.New(p, tts.WithRetryPolicy(noWait()))

	_, err := s.Synthesize(context.Background(), "текст")
	var synErr *tts.SynthesisError
	if !errors.As(err, &synErr) {
		t.Fatalf("expected *SynthesisError, got %T: %v", err, err)
	}
	if p.calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", p.calls.Load())
	}
}

func TestRetryPolicyBackoffSequence(t *testing.T) {
	p := tts.DefaultRetryPolicy()
	want := []time.Duration{500 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestSynthesizeStripsTagsBeforeSpeaking(t *testing.T) {
	var spoken []string
	s := tts.New(tts.SpeakFunc(func(_ context.Context, text string) ([]byte, error) {
		spoken = append(spoken, text)
		return []byte("x"), nil
	}), tts.WithRetryPolicy(noWait()))

	_, err := s.Synthesize(context.Background(), `Ответ. <a href="https://x">https://x</a>`)
	if err != nil {
		t.Fatal(err)
	}
	for _, sp := range spoken {
		if strings.Contains(sp, "<a") {
			t.Fatalf("provider received markup: %q", sp)
		}
	}
}
