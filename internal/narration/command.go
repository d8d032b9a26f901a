package narration

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// DefaultCommandTimeout bounds external writer and speaker commands.
const DefaultCommandTimeout = 10 * time.Second

// CommandWriter asks an external program for a line. The rendered prompt is
// written to stdin and the first line of stdout is used.
type CommandWriter struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

func (w *CommandWriter) Line(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(w.Timeout))
	defer cancel()

	cmd := exec.CommandContext(ctx, w.Name, w.Args...)
	cmd.Stdin = bytes.NewBufferString(p.Text())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("commentary command timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("commentary command failed: %w, stderr: %s", err, stderr.String())
	}

	line, _, _ := bytes.Cut(stdout.Bytes(), []byte("\n"))
	return string(line), nil
}

// CommandSpeaker speaks text by running an external program with the text as
// its last argument, for example "say" on macOS or "espeak" on Linux.
type CommandSpeaker struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(s.Timeout))
	defer cancel()

	args := append(append([]string{}, s.Args...), text)
	cmd := exec.CommandContext(ctx, s.Name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("speak command failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultCommandTimeout
	}
	return d
}
