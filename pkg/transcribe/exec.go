package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var _ Transcriber = (*Exec)(nil)

// DefaultExecTimeout bounds a single transcription run. Model loading
// dominates, so the bound is generous.
const DefaultExecTimeout = 2 * time.Minute

// Exec runs an external transcription command with the audio file path as
// its argument and reads the transcript from stdout.
type Exec struct {
	// Command is the interpreter or binary, e.g. "python3".
	Command string

	// Script is the transcription script path, passed as the first
	// argument. May be empty when Command is self-contained.
	Script string

	// Timeout bounds one run. Zero means DefaultExecTimeout.
	Timeout time.Duration
}

func (e *Exec) Transcribe(ctx context.Context, path string) (string, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, 0, 2)
	if e.Script != "" {
		args = append(args, e.Script)
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, e.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("transcribe: command timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("transcribe: command failed: %w (stderr: %s)",
			err, strings.TrimSpace(stderr.String()))
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
