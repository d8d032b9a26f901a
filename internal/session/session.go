// Package session holds the per-session state of the scoring loop.
//
// A Session is created when a session starts and dropped when it stops, so
// nothing from one session leaks into the next.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/heartsync/internal/narration"
	"github.com/ayusman/heartsync/internal/scoring"
)

// DefaultSnapshotEvery is the number of ticks between persisted snapshots.
const DefaultSnapshotEvery = 10

// Config controls the per-session cadences.
type Config struct {
	SnapshotEvery      int
	CommentaryInterval time.Duration
	ChangeThreshold    float64
}

// Session is the context of one running session. It is owned by the scoring
// loop and is not safe for concurrent use.
type Session struct {
	ID        string
	StartedAt time.Time

	snapshotEvery int
	trigger       *narration.Trigger

	ticks     int
	level     scoring.Level
	peak      float64
	sum       float64
	lastScore float64
}

// Tick is what one scoring tick means for the session.
type Tick struct {
	N             int
	Snapshot      bool
	Narrate       bool
	LevelChanged  bool
	PreviousLevel scoring.Level
}

// New starts a session at now.
func New(now time.Time, cfg Config) *Session {
	every := cfg.SnapshotEvery
	if every <= 0 {
		every = DefaultSnapshotEvery
	}
	return &Session{
		ID:            uuid.New().String(),
		StartedAt:     now,
		snapshotEvery: every,
		trigger:       narration.NewTrigger(cfg.CommentaryInterval, cfg.ChangeThreshold),
	}
}

// Observe records one tick's result. The first tick always reports a level
// change from the empty level.
func (s *Session) Observe(r scoring.Result, now time.Time) Tick {
	s.ticks++
	s.sum += r.Score
	if r.Score > s.peak {
		s.peak = r.Score
	}
	s.lastScore = r.Score

	t := Tick{
		N:             s.ticks,
		Snapshot:      s.ticks%s.snapshotEvery == 0,
		Narrate:       s.trigger.Observe(r.Score, now),
		LevelChanged:  r.Level != s.level,
		PreviousLevel: s.level,
	}
	s.level = r.Level
	return t
}

// Duration is the time since the session started.
func (s *Session) Duration(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// Ticks returns the number of observed ticks.
func (s *Session) Ticks() int {
	return s.ticks
}

// Level returns the level of the last tick.
func (s *Session) Level() scoring.Level {
	return s.level
}

// Summary holds the score statistics over every tick of a session.
type Summary struct {
	Ticks     int
	PeakScore float64
	AvgScore  float64
	LastScore float64
}

// Summary returns the statistics so far.
func (s *Session) Summary() Summary {
	sum := Summary{Ticks: s.ticks, PeakScore: s.peak, LastScore: s.lastScore}
	if s.ticks > 0 {
		sum.AvgScore = s.sum / float64(s.ticks)
	}
	return sum
}
