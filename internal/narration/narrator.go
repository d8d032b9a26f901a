package narration

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ayusman/heartsync/internal/log"
)

// Speaker turns a line into audio.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Narrator writes a line, hands it to listeners and speaks it. Lines never
// overlap: a line that arrives while another is being spoken is shown but
// not spoken.
type Narrator struct {
	writer  Writer
	speaker Speaker

	speaking atomic.Bool
	wg       sync.WaitGroup

	mu        sync.RWMutex
	listeners []func(text string)
}

// NewNarrator creates a Narrator. speaker may be nil for text-only output.
func NewNarrator(w Writer, s Speaker) *Narrator {
	return &Narrator{writer: w, speaker: s}
}

// OnLine registers fn to receive every produced line.
func (n *Narrator) OnLine(fn func(text string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, fn)
}

// Narrate produces a line for p, notifies listeners and starts speaking it
// in the background. It returns the line.
func (n *Narrator) Narrate(ctx context.Context, p Prompt) (string, error) {
	line, err := n.writer.Line(ctx, p)
	if err != nil {
		return "", err
	}

	n.mu.RLock()
	listeners := n.listeners
	n.mu.RUnlock()
	for _, fn := range listeners {
		fn(line)
	}

	n.speak(line)
	return line, nil
}

// Speaking reports whether a line is currently being spoken.
func (n *Narrator) Speaking() bool {
	return n.speaking.Load()
}

// Wait blocks until any line in progress has been spoken.
func (n *Narrator) Wait() {
	n.wg.Wait()
}

func (n *Narrator) speak(line string) {
	if n.speaker == nil {
		return
	}
	if !n.speaking.CompareAndSwap(false, true) {
		log.Debug("narrator busy, line not spoken")
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer n.speaking.Store(false)

		if err := n.speaker.Speak(context.Background(), line); err != nil {
			log.Warn("speaking commentary failed", "error", err)
		}
	}()
}
