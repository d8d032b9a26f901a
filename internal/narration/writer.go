package narration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ayusman/heartsync/internal/log"
	"github.com/ayusman/heartsync/internal/scoring"
)

// MaxLineLength bounds accepted lines; longer output is treated as a failure.
const MaxLineLength = 200

// ErrEmptyLine is returned when a writer produced nothing usable.
var ErrEmptyLine = errors.New("empty commentary line")

// Prompt is the moment a line is written about.
type Prompt struct {
	Score         float64
	Level         scoring.Level
	HeartRateA    float64
	HeartRateB    float64
	EyeContact    bool
	BothSmiling   bool
	HandsTouching bool
}

// Text renders the prompt for writers backed by a language model.
func (p Prompt) Text() string {
	var b strings.Builder
	b.WriteString("You are the voice of HeartSync, a device that measures the connection ")
	b.WriteString("between two people through their heartbeats and body language.\n\n")
	b.WriteString("Current state:\n")
	fmt.Fprintf(&b, "- Sync score: %d%%\n", int(p.Score*100))
	fmt.Fprintf(&b, "- Connection level: %s\n", p.Level)
	fmt.Fprintf(&b, "- Person A heart rate: %g BPM\n", p.HeartRateA)
	fmt.Fprintf(&b, "- Person B heart rate: %g BPM\n", p.HeartRateB)
	fmt.Fprintf(&b, "- Making eye contact: %t\n", p.EyeContact)
	fmt.Fprintf(&b, "- Both smiling: %t\n", p.BothSmiling)
	fmt.Fprintf(&b, "- Holding hands: %t\n\n", p.HandsTouching)
	b.WriteString("Write ONE short, warm, poetic line (max 20 words) about this moment. ")
	b.WriteString("No hashtags, emojis or quotation marks.")
	return b.String()
}

// Writer produces one commentary line for a prompt.
type Writer interface {
	Line(ctx context.Context, p Prompt) (string, error)
}

var fallbackLines = map[scoring.Level][]string{
	scoring.LevelDeeplyConnected: {
		"Your hearts are speaking the same language.",
		"In this moment, you are perfectly in tune.",
		"The universe notices when two souls align.",
	},
	scoring.LevelConnecting: {
		"Something beautiful is building between you.",
		"Your rhythms are finding harmony.",
		"The connection grows stronger with every beat.",
	},
	scoring.LevelWarmingUp: {
		"Every great connection starts with a single moment.",
		"Your hearts are curious about each other.",
		"The dance is beginning.",
	},
	scoring.LevelDisconnected: {
		"Try looking into each other's eyes.",
		"Take a deep breath together.",
		"Reach out, connection is just a touch away.",
	},
}

// FallbackWriter cycles through canned lines for the prompt's level. A single
// counter is shared across levels.
type FallbackWriter struct {
	mu   sync.Mutex
	next int
}

// NewFallbackWriter creates a FallbackWriter.
func NewFallbackWriter() *FallbackWriter {
	return &FallbackWriter{}
}

func (w *FallbackWriter) Line(_ context.Context, p Prompt) (string, error) {
	lines, ok := fallbackLines[p.Level]
	if !ok {
		lines = fallbackLines[scoring.LevelDisconnected]
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	line := lines[w.next%len(lines)]
	w.next++
	return line, nil
}

// Chain tries writers in order and returns the first usable line.
type Chain struct {
	writers []Writer
}

// NewChain creates a Chain. It needs at least one writer.
func NewChain(writers ...Writer) (*Chain, error) {
	if len(writers) == 0 {
		return nil, errors.New("narration chain needs at least one writer")
	}
	return &Chain{writers: writers}, nil
}

func (c *Chain) Line(ctx context.Context, p Prompt) (string, error) {
	var errs []error
	for i, w := range c.writers {
		line, err := w.Line(ctx, p)
		if err == nil {
			line, err = clean(line)
		}
		if err == nil {
			if i > 0 {
				log.Debug("fallback commentary writer used", "writer_index", i)
			}
			return line, nil
		}

		errs = append(errs, err)
		log.Warn("commentary writer failed, trying next", "writer_index", i, "error", err)

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", errors.Join(errs...)
}

func clean(line string) (string, error) {
	line = strings.Trim(strings.TrimSpace(line), `"'`)
	if line == "" {
		return "", ErrEmptyLine
	}
	if len(line) >= MaxLineLength {
		return "", fmt.Errorf("commentary line too long (%d chars)", len(line))
	}
	return line, nil
}
