package app

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/heartsync/internal/biometric"
	"github.com/ayusman/heartsync/internal/log"
	"github.com/ayusman/heartsync/internal/narration"
	"github.com/ayusman/heartsync/internal/plugin"
	"github.com/ayusman/heartsync/internal/scoring"
	"github.com/ayusman/heartsync/internal/session"
	"github.com/ayusman/heartsync/internal/store"
)

// ErrNoSession is returned by StopSession when no session is running.
var ErrNoSession = errors.New("no active session")

// publishTimeout bounds one state publish so a slow broker cannot stall the loop.
const publishTimeout = 250 * time.Millisecond

// run is the scoring loop. It is the only caller of Tick outside tests.
func (a *App) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.Tick()
		}
	}
}

// tickResult carries what one tick produced out of the locked section.
type tickResult struct {
	state   State
	tick    session.Tick
	session string
	prompt  narration.Prompt
	a, b    biometric.Sample
}

// Tick runs one scoring step. While no session is active it does nothing
// and returns false.
func (a *App) Tick() (State, bool) {
	now := a.now()

	a.mu.Lock()
	if a.session == nil {
		a.mu.Unlock()
		return State{}, false
	}

	snap := a.cfg.Cell.Load()
	sampleA, sampleB := a.cfg.Biometrics.Both()
	result := a.engine.Compute(scoring.InputFrom(snap, sampleA, sampleB))
	a.last = result

	if a.cfg.Mixer != nil {
		a.cfg.Mixer.Update(result.Score)
	}

	tr := tickResult{
		tick:    a.session.Observe(result, now),
		session: a.session.ID,
		a:       sampleA,
		b:       sampleB,
		prompt: narration.Prompt{
			Score:         result.Score,
			Level:         result.Level,
			HeartRateA:    sampleA.HeartRate,
			HeartRateB:    sampleB.HeartRate,
			EyeContact:    result.EyeContact,
			BothSmiling:   result.BothSmiling,
			HandsTouching: snap.HandsTouching,
		},
	}
	tr.state = a.stateLocked(now)

	// Logged under the lock so a concurrent stop cannot summarize the
	// session before this row exists.
	if tr.tick.Snapshot && a.cfg.Store != nil {
		a.logSnapshot(tr)
	}
	a.mu.Unlock()

	a.dispatch(tr)
	return tr.state, true
}

// dispatch hands one tick to every consumer. Consumer failures are logged
// and never stop the loop.
func (a *App) dispatch(tr tickResult) {
	st := tr.state
	res := st.Sync

	a.listenersMu.RLock()
	listeners := a.listeners
	a.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(st)
	}

	if a.cfg.Publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := a.cfg.Publisher.Publish(ctx, string(res.Level), st); err != nil {
			log.Warn("state publish failed", "error", err)
		}
		cancel()
	}

	if tr.tick.LevelChanged {
		log.Info("connection level changed",
			"session", tr.session,
			"from", tr.tick.PreviousLevel,
			"to", res.Level,
			"score", res.Score)
		if a.cfg.Actuator != nil {
			a.cfg.Actuator.OnLevel(context.Background(), plugin.Event{
				Level:      string(res.Level),
				Score:      res.Score,
				HeartRateA: tr.a.HeartRate,
				HeartRateB: tr.b.HeartRate,
				At:         st.Timestamp,
			})
		}
	}

	if tr.tick.Narrate && a.cfg.Narrator != nil {
		a.narrate(tr.prompt)
	}
}

func (a *App) logSnapshot(tr tickResult) {
	res := tr.state.Sync
	err := a.cfg.Store.Snapshots().Create(&store.Snapshot{
		SessionID:      tr.session,
		Score:          res.Score,
		Level:          string(res.Level),
		RawScore:       res.RawScore,
		HRSync:         res.HRSync,
		BRSync:         res.BRSync,
		HandScore:      res.HandScore,
		EyeContact:     res.EyeContact,
		BothSmiling:    res.BothSmiling,
		HeartRateA:     tr.a.HeartRate,
		HeartRateB:     tr.b.HeartRate,
		BreathingRateA: tr.a.BreathingRate,
		BreathingRateB: tr.b.BreathingRate,
		LoggedAt:       tr.state.Timestamp,
	})
	if err != nil {
		log.Warn("failed to log snapshot", "session", tr.session, "error", err)
	}
}

// narrate writes and speaks one line in the background. A tick that asks
// for a line while the previous one is still being written is skipped.
func (a *App) narrate(p narration.Prompt) {
	if !a.narrating.CompareAndSwap(false, true) {
		log.Debug("commentary still in progress, skipping")
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.narrating.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), narrateTimeout)
		defer cancel()

		line, err := a.cfg.Narrator.Narrate(ctx, p)
		if err != nil {
			log.Warn("commentary failed", "error", err)
			return
		}
		log.Debug("commentary", "level", p.Level, "line", line)
	}()
}

// StartSession begins a fresh session. A running session is closed first,
// so starting twice restarts with empty history and timers.
func (a *App) StartSession() (*SessionInfo, error) {
	now := a.now()

	a.mu.Lock()
	previous := a.session
	s := session.New(now, a.cfg.Session)
	a.session = s
	a.engine.Reset()
	a.last = scoring.IdleResult()
	a.mu.Unlock()

	if previous != nil {
		log.Info("restarting session", "previous", previous.ID)
		a.closeRecord(previous, now)
	}

	if a.cfg.Store != nil {
		if _, err := a.cfg.Store.Sessions().Start(s.ID, s.StartedAt); err != nil {
			log.Warn("failed to record session start", "session", s.ID, "error", err)
		}
	}
	if a.cfg.Mixer != nil {
		a.cfg.Mixer.Start()
	}

	log.Info("session started", "session", s.ID)
	a.notifySession(true)
	return &SessionInfo{ID: s.ID, StartedAt: s.StartedAt}, nil
}

// StopSession ends the running session and returns its summary. It returns
// ErrNoSession when idle.
func (a *App) StopSession() (*SessionInfo, error) {
	now := a.now()

	a.mu.Lock()
	s := a.session
	a.session = nil
	a.mu.Unlock()

	if s == nil {
		return nil, ErrNoSession
	}

	if a.cfg.Mixer != nil {
		a.cfg.Mixer.Stop()
	}
	info := a.closeRecord(s, now)

	log.With("session", s.ID).Info("session stopped",
		"ticks", info.Ticks,
		"peak", info.PeakSync,
		"avg", info.AvgSync)
	a.notifySession(false)
	return info, nil
}

func (a *App) notifySession(active bool) {
	a.listenersMu.RLock()
	hooks := a.sessionHooks
	a.listenersMu.RUnlock()
	for _, fn := range hooks {
		fn(active)
	}
}

// closeRecord ends the persisted record of s. The summary comes from the
// stored snapshots when available and from the in-memory tally otherwise.
func (a *App) closeRecord(s *session.Session, now time.Time) *SessionInfo {
	sum := s.Summary()
	ended := now
	info := &SessionInfo{
		ID:        s.ID,
		StartedAt: s.StartedAt,
		EndedAt:   &ended,
		Ticks:     sum.Ticks,
		PeakSync:  sum.PeakScore,
		AvgSync:   sum.AvgScore,
	}

	if a.cfg.Store == nil {
		return info
	}
	rec, err := a.cfg.Store.Sessions().End(s.ID, now)
	if err != nil {
		log.With("session", s.ID).Warn("failed to record session end", "error", err)
		return info
	}
	if rec.PeakSync > 0 || rec.AvgSync > 0 {
		info.PeakSync = rec.PeakSync
		info.AvgSync = rec.AvgSync
	}
	return info
}
