// Package transcribe defines the speech-to-text collaborator boundary.
// Two implementations are provided: Exec shells out to an external
// transcription command (a local Whisper script), Whisper calls the OpenAI
// transcription API.
package transcribe

import (
	"context"
	"errors"
)

// ErrEmptyTranscript is returned when transcription produced no text.
var ErrEmptyTranscript = errors.New("transcribe: empty transcript")

// Transcriber converts a recorded audio file into text.
type Transcriber interface {
	// Transcribe reads the audio file at path and returns the recognized
	// text. An empty result is reported as ErrEmptyTranscript.
	Transcribe(ctx context.Context, path string) (string, error)
}

// TranscribeFunc adapts a function to the Transcriber interface.
type TranscribeFunc func(ctx context.Context, path string) (string, error)

func (f TranscribeFunc) Transcribe(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}
