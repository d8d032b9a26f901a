// Package narration decides when to comment on a session and produces the
// spoken lines.
package narration

import (
	"math"
	"time"
)

// Trigger defaults.
const (
	DefaultInterval        = 30 * time.Second
	DefaultChangeThreshold = 0.2
)

// Trigger fires a commentary line when the score swings by more than
// Threshold between ticks, or when Interval has passed since the last line.
// The first observed tick only arms the timer.
type Trigger struct {
	Interval  time.Duration
	Threshold float64

	armed     bool
	lastLine  time.Time
	lastScore float64
}

// NewTrigger creates a Trigger. Non-positive values use the defaults.
func NewTrigger(interval time.Duration, threshold float64) *Trigger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= 0 {
		threshold = DefaultChangeThreshold
	}
	return &Trigger{Interval: interval, Threshold: threshold}
}

// Observe records one tick's score and reports whether a line is due.
func (t *Trigger) Observe(score float64, now time.Time) bool {
	defer func() { t.lastScore = score }()

	if !t.armed {
		t.armed = true
		t.lastLine = now
		return false
	}

	swing := math.Abs(score-t.lastScore) > t.Threshold
	if swing || now.Sub(t.lastLine) > t.Interval {
		t.lastLine = now
		return true
	}
	return false
}
