// Package tts coordinates text-to-speech synthesis: it consults the audio
// cache, splits long text into provider-sized parts at sentence boundaries,
// calls the provider with bounded retries, and concatenates the returned
// audio in order.
package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/chathelp/relay/pkg/cache"
)

// DefaultMaxPartRunes is the per-request text limit. Google Translate TTS
// rejects inputs above 200 characters, so that is the floor we size for.
const DefaultMaxPartRunes = 200

// SynthesisError reports that synthesis failed after exhausting retries.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("tts: synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Provider turns one bounded piece of text into audio bytes.
type Provider interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// SpeakFunc adapts a function to the Provider interface.
type SpeakFunc func(ctx context.Context, text string) ([]byte, error)

func (f SpeakFunc) Speak(ctx context.Context, text string) ([]byte, error) {
	return f(ctx, text)
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// StripTags removes HTML tags from text. Answers may carry markup (search
// result links) that must not be read aloud.
func StripTags(text string) string {
	return tagPattern.ReplaceAllString(text, "")
}

// Synthesizer is the audio-producing side of the relay.
type Synthesizer struct {
	provider     Provider
	cache        *cache.Cache
	maxPartRunes int
	retry        RetryPolicy
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithCache attaches a content-addressable audio cache. Identical text then
// produces identical bytes without a provider call.
func WithCache(c *cache.Cache) Option {
	return func(s *Synthesizer) { s.cache = c }
}

// WithMaxPartRunes overrides the per-request text limit.
func WithMaxPartRunes(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxPartRunes = n
		}
	}
}

// WithRetryPolicy overrides the retry policy for provider calls.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Synthesizer) { s.retry = p }
}

// New creates a Synthesizer over the given provider.
func New(provider Provider, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		provider:     provider,
		maxPartRunes: DefaultMaxPartRunes,
		retry:        DefaultRetryPolicy(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize produces audio for text. Empty or whitespace-only input (after
// tag stripping) is a no-op returning nil bytes. On provider failure it
// retries per the policy and finally returns a *SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(StripTags(text))
	if text == "" {
		return nil, nil
	}

	key := cache.HashText(text)
	if s.cache != nil {
		if audio, ok := s.cache.Get(ctx, key); ok {
			slog.Debug("tts: audio cache hit", "key", key)
			return audio, nil
		}
	}

	var buf bytes.Buffer
	for _, part := range SplitText(text, s.maxPartRunes) {
		audio, err := s.speak(ctx, part)
		if err != nil {
			return nil, err
		}
		buf.Write(audio)
	}
	out := buf.Bytes()

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, out); err != nil {
			// Cache population is best effort; the answer still ships.
			slog.Warn("tts: audio cache write failed", "key", key, "err", err)
		}
	}
	return out, nil
}

// speak calls the provider with retries per the policy.
func (s *Synthesizer) speak(ctx context.Context, part string) ([]byte, error) {
	attempts := s.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		audio, err := s.provider.Speak(ctx, part)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		slog.Warn("tts: provider call failed", "attempt", attempt, "err", err)
		if attempt < attempts {
			if err := s.retry.wait(ctx, attempt); err != nil {
				return nil, &SynthesisError{Err: err}
			}
		}
	}
	return nil, &SynthesisError{Err: lastErr}
}
