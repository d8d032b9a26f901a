package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/heartsync/internal/biometric"
	"github.com/ayusman/heartsync/internal/features"
	"github.com/ayusman/heartsync/internal/log"
	"github.com/ayusman/heartsync/internal/mixer"
	"github.com/ayusman/heartsync/internal/narration"
	"github.com/ayusman/heartsync/internal/scoring"
	"github.com/ayusman/heartsync/internal/session"
	"github.com/ayusman/heartsync/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakePublisher struct {
	mu     sync.Mutex
	levels []string
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, level string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, level)
	return p.err
}

func (p *fakePublisher) Levels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.levels...)
}

// connected is a snapshot with every visual channel on.
func connected() features.Snapshot {
	return features.Snapshot{
		SmileScores:   [2]float64{1, 1},
		BothSmiling:   true,
		EyeContact:    true,
		HandDistance:  0.02,
		HandsTouching: true,
		FaceCount:     2,
		FaceDistance:  0.4,
	}
}

func newTestApp(t *testing.T, cfg Config) (*App, *fakeClock) {
	t.Helper()
	if cfg.Weights == (scoring.Weights{}) {
		cfg.Weights = scoring.DefaultWeights()
	}
	clock := &fakeClock{now: time.Date(2026, 2, 14, 20, 0, 0, 0, time.UTC)}
	if cfg.Biometrics == nil {
		cfg.Biometrics = biometric.NewStore(0)
		cfg.Biometrics.SetClock(clock.Now)
	}
	a := New(cfg)
	a.SetClock(clock.Now)
	return a, clock
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestApp_IdleTickDoesNothing(t *testing.T) {
	a, _ := newTestApp(t, Config{})
	a.Cell().Store(connected())

	if _, ok := a.Tick(); ok {
		t.Fatal("Tick() without a session should be a no-op")
	}
	if a.engine.Samples() != 0 {
		t.Errorf("idle tick touched the history: %d samples", a.engine.Samples())
	}

	st := a.State()
	if st.SessionActive || st.SessionID != "" || st.SessionDuration != 0 {
		t.Errorf("idle state = %+v", st)
	}
	if st.Sync.Level != scoring.LevelDisconnected {
		t.Errorf("idle level = %s", st.Sync.Level)
	}
	if !st.Vision.EyeContact {
		t.Error("idle state should still show the latest vision snapshot")
	}
}

func TestApp_SessionLifecycle(t *testing.T) {
	db := newTestStore(t)
	a, clock := newTestApp(t, Config{Store: db})

	a.Cell().Store(connected())
	a.Biometrics().Push(biometric.PersonA, 72, 14)
	a.Biometrics().Push(biometric.PersonB, 72, 14)

	info, err := a.StartSession()
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if info.ID == "" {
		t.Fatal("session id is empty")
	}

	var last State
	for i := 0; i < session.DefaultSnapshotEvery; i++ {
		clock.Advance(500 * time.Millisecond)
		st, ok := a.Tick()
		if !ok {
			t.Fatalf("tick %d did not run", i+1)
		}
		last = st
	}

	if last.Sync.Score != 1 || last.Sync.Level != scoring.LevelDeeplyConnected {
		t.Errorf("sync = %+v, want full connection", last.Sync)
	}
	if !last.SessionActive || last.SessionID != info.ID || last.SessionDuration != 5 {
		t.Errorf("session fields = active %v id %q duration %v", last.SessionActive, last.SessionID, last.SessionDuration)
	}
	if last.PersonA.HeartRate != 72 || last.PersonB.BreathingRate != 14 {
		t.Errorf("person_a = %+v", last.PersonA)
	}

	if n, err := db.Snapshots().CountBySession(info.ID); err != nil || n != 1 {
		t.Errorf("snapshots logged = %d (err %v), want 1", n, err)
	}

	stopped, err := a.StopSession()
	if err != nil {
		t.Fatalf("StopSession() error = %v", err)
	}
	if stopped.EndedAt == nil || stopped.Ticks != session.DefaultSnapshotEvery || stopped.PeakSync != 1 {
		t.Errorf("stop summary = %+v", stopped)
	}

	rec, err := db.Sessions().Get(info.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Active() || rec.PeakSync != 1 || rec.AvgSync != 1 {
		t.Errorf("stored session = %+v", rec)
	}

	if _, ok := a.Tick(); ok {
		t.Error("Tick() after stop should be a no-op")
	}
	if _, err := a.StopSession(); !errors.Is(err, ErrNoSession) {
		t.Errorf("second StopSession() error = %v, want ErrNoSession", err)
	}
}

func TestApp_RestartResetsHistory(t *testing.T) {
	db := newTestStore(t)
	a, clock := newTestApp(t, Config{Store: db})

	a.Cell().Store(connected())
	a.Biometrics().Push(biometric.PersonA, 72, 14)
	a.Biometrics().Push(biometric.PersonB, 72, 14)

	first, _ := a.StartSession()
	for i := 0; i < 5; i++ {
		clock.Advance(500 * time.Millisecond)
		a.Tick()
	}

	a.Cell().Store(features.Empty())
	a.Biometrics().Push(biometric.PersonA, 0, 0)
	a.Biometrics().Push(biometric.PersonB, 0, 0)

	second, _ := a.StartSession()
	if second.ID == first.ID {
		t.Fatal("restart should create a new session")
	}
	if st := a.State(); st.Sync.Score != 0 || st.SessionID != second.ID {
		t.Errorf("state after restart = %+v", st)
	}

	clock.Advance(500 * time.Millisecond)
	st, _ := a.Tick()
	if st.Sync.Score != 0 {
		t.Errorf("score after restart = %v, old history leaked", st.Sync.Score)
	}
	if a.engine.Samples() != 1 {
		t.Errorf("history has %d samples after restart, want 1", a.engine.Samples())
	}

	rec, err := db.Sessions().Get(first.ID)
	if err != nil {
		t.Fatalf("Get(first) error = %v", err)
	}
	if rec.Active() {
		t.Error("restart should close the previous session record")
	}
}

func TestApp_Consumers(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	narrator := narration.NewNarrator(narration.NewFallbackWriter(), nil)
	mix := mixer.New(nil, nil, nil)

	a, clock := newTestApp(t, Config{
		Publisher: pub,
		Narrator:  narrator,
		Mixer:     mix,
		Session:   session.Config{CommentaryInterval: 30 * time.Second},
	})

	var (
		mu     sync.Mutex
		states int
	)
	a.OnState(func(State) {
		mu.Lock()
		states++
		mu.Unlock()
	})
	lines := make(chan string, 4)
	a.OnCommentary(func(text string) { lines <- text })

	a.StartSession()
	if !mix.Playing() {
		t.Error("mixer should play during a session")
	}

	clock.Advance(500 * time.Millisecond)
	st, _ := a.Tick()
	if st.Mix != mixer.VolumesFor(0) {
		t.Errorf("mix = %+v, want volumes for score 0", st.Mix)
	}

	select {
	case line := <-lines:
		t.Fatalf("first tick should only arm commentary, got %q", line)
	default:
	}

	clock.Advance(31 * time.Second)
	a.Tick()

	select {
	case line := <-lines:
		if line == "" {
			t.Error("empty commentary line")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no commentary after the interval elapsed")
	}

	mu.Lock()
	if states != 2 {
		t.Errorf("state listener called %d times, want 2", states)
	}
	mu.Unlock()

	if got := pub.Levels(); len(got) != 2 || got[0] != string(scoring.LevelDisconnected) {
		t.Errorf("published levels = %v", got)
	}

	a.StopSession()
	if mix.Playing() {
		t.Error("mixer should stop with the session")
	}
	a.wg.Wait()
}

func TestApp_SetWeights(t *testing.T) {
	a, _ := newTestApp(t, Config{})

	w := scoring.Weights{HeartRate: 0.2, EyeContact: 0.2, Breathing: 0.2, Smile: 0.2, Hand: 0.2}
	if err := a.SetWeights(w); err != nil {
		t.Fatalf("SetWeights() error = %v", err)
	}
	if a.Weights() != w {
		t.Errorf("Weights() = %+v", a.Weights())
	}

	if err := a.SetWeights(scoring.Weights{HeartRate: 2}); !errors.Is(err, scoring.ErrInvalidWeights) {
		t.Errorf("SetWeights(invalid) error = %v", err)
	}
	if a.Weights() != w {
		t.Error("invalid weights must not replace the current ones")
	}
}

func TestApp_StartStop(t *testing.T) {
	a, _ := newTestApp(t, Config{Interval: 5 * time.Millisecond})
	a.SetClock(time.Now)

	ticked := make(chan struct{}, 1)
	a.OnState(func(State) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	a.StartSession()

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("scoring loop never ticked")
	}

	if err := a.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if a.Running() || a.SessionActive() {
		t.Error("Stop() should halt the loop and end the session")
	}
}

func TestApp_StopRightAfterSnapshotTick(t *testing.T) {
	db := newTestStore(t)
	a, clock := newTestApp(t, Config{Store: db, Session: session.Config{SnapshotEvery: 1}})

	a.Cell().Store(connected())
	a.Biometrics().Push(biometric.PersonA, 72, 14)
	a.Biometrics().Push(biometric.PersonB, 72, 14)

	// Stop as soon as the tick hands out its state, before any other
	// consumer has run.
	var stopped *SessionInfo
	a.OnState(func(State) {
		if stopped == nil {
			stopped, _ = a.StopSession()
		}
	})

	info, _ := a.StartSession()
	clock.Advance(500 * time.Millisecond)
	a.Tick()

	if stopped == nil {
		t.Fatal("session was not stopped from the state listener")
	}
	if n, _ := db.Snapshots().CountBySession(info.ID); n != 1 {
		t.Fatalf("snapshots = %d, want 1", n)
	}
	rec, err := db.Sessions().Get(info.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.AvgSync != 1 || rec.PeakSync != 1 {
		t.Errorf("stored summary avg=%v peak=%v, want the snapshot included", rec.AvgSync, rec.PeakSync)
	}
}

func TestApp_OnSession(t *testing.T) {
	a, _ := newTestApp(t, Config{})

	var events []bool
	a.OnSession(func(active bool) { events = append(events, active) })

	a.StartSession()
	a.StartSession()
	a.StopSession()
	a.StopSession()

	want := []bool{true, true, false}
	if len(events) != len(want) {
		t.Fatalf("session events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("session events = %v, want %v", events, want)
			break
		}
	}
}

func TestApp_StopLogsSessionID(t *testing.T) {
	var buf bytes.Buffer
	log.InitWriter(&buf, "info", false)
	t.Cleanup(func() { log.Init("info") })

	a, _ := newTestApp(t, Config{})
	info, _ := a.StartSession()
	if _, err := a.StopSession(); err != nil {
		t.Fatalf("StopSession() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "session stopped") || !strings.Contains(out, "session="+info.ID) {
		t.Errorf("stop log should carry the session id, got: %s", out)
	}
}
