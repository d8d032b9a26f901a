package session

import (
	"math"
	"testing"
	"time"

	"github.com/ayusman/heartsync/internal/scoring"
)

func result(score float64) scoring.Result {
	return scoring.Result{Score: score, Level: scoring.Classify(score)}
}

func TestNew(t *testing.T) {
	start := time.Date(2026, 2, 14, 20, 0, 0, 0, time.UTC)
	a := New(start, Config{})
	b := New(start, Config{})

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("sessions need distinct IDs, got %q and %q", a.ID, b.ID)
	}
	if a.snapshotEvery != DefaultSnapshotEvery {
		t.Errorf("snapshotEvery = %d, want %d", a.snapshotEvery, DefaultSnapshotEvery)
	}
	if got := a.Duration(start.Add(90 * time.Second)); got != 90*time.Second {
		t.Errorf("Duration() = %v", got)
	}
}

func TestSession_Observe(t *testing.T) {
	start := time.Date(2026, 2, 14, 20, 0, 0, 0, time.UTC)
	s := New(start, Config{SnapshotEvery: 3, CommentaryInterval: 30 * time.Second, ChangeThreshold: 0.2})

	first := s.Observe(result(0.1), start)
	if !first.LevelChanged || first.PreviousLevel != "" {
		t.Errorf("first tick should report a level change from empty, got %+v", first)
	}
	if first.Narrate {
		t.Error("first tick only arms commentary")
	}

	second := s.Observe(result(0.15), start.Add(500*time.Millisecond))
	if second.LevelChanged || second.Snapshot || second.Narrate {
		t.Errorf("second tick = %+v, want nothing due", second)
	}

	third := s.Observe(result(0.6), start.Add(time.Second))
	if !third.Snapshot || third.N != 3 {
		t.Errorf("third tick should persist a snapshot, got %+v", third)
	}
	if !third.LevelChanged || third.PreviousLevel != scoring.LevelDisconnected {
		t.Errorf("third tick level change = %+v", third)
	}
	if !third.Narrate {
		t.Error("a swing above the threshold should narrate")
	}

	sum := s.Summary()
	if sum.Ticks != 3 || sum.PeakScore != 0.6 || sum.LastScore != 0.6 {
		t.Errorf("Summary() = %+v", sum)
	}
	if math.Abs(sum.AvgScore-(0.1+0.15+0.6)/3) > 1e-9 {
		t.Errorf("AvgScore = %v", sum.AvgScore)
	}
	if s.Level() != scoring.LevelConnecting {
		t.Errorf("Level() = %v", s.Level())
	}
}

func TestSession_EmptySummary(t *testing.T) {
	s := New(time.Now(), Config{})
	if sum := s.Summary(); sum.Ticks != 0 || sum.AvgScore != 0 {
		t.Errorf("empty Summary() = %+v", sum)
	}
}
