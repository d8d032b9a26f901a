// Package app wires the HeartSync components together: it owns the scoring
// loop, the session lifecycle and the fan-out of every tick to consumers.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/heartsync/internal/biometric"
	"github.com/ayusman/heartsync/internal/features"
	"github.com/ayusman/heartsync/internal/log"
	"github.com/ayusman/heartsync/internal/mixer"
	"github.com/ayusman/heartsync/internal/narration"
	"github.com/ayusman/heartsync/internal/plugin"
	"github.com/ayusman/heartsync/internal/scoring"
	"github.com/ayusman/heartsync/internal/session"
	"github.com/ayusman/heartsync/internal/store"
	"github.com/ayusman/heartsync/internal/vision"
)

// DefaultInterval is the scoring tick period.
const DefaultInterval = 500 * time.Millisecond

// narrateTimeout bounds one commentary line including the writer call.
const narrateTimeout = 15 * time.Second

// StatePublisher sends each tick's state to a remote consumer.
type StatePublisher interface {
	Publish(ctx context.Context, level string, v any) error
}

// Config holds the components the App drives. Only Weights is required;
// every collaborator left nil is skipped.
type Config struct {
	Weights  scoring.Weights
	Interval time.Duration
	Session  session.Config

	Biometrics *biometric.Store
	Cell       *features.Cell
	Vision     *vision.Pipeline
	Store      *store.Store
	Narrator   *narration.Narrator
	Mixer      *mixer.Mixer
	Actuator   *plugin.Actuator
	Publisher  StatePublisher
}

// State is the complete view of one tick.
type State struct {
	PersonA         biometric.Reading `json:"person_a"`
	PersonB         biometric.Reading `json:"person_b"`
	Sync            scoring.Result    `json:"sync"`
	Vision          features.Snapshot `json:"vision"`
	Mix             mixer.Volumes     `json:"mix"`
	SessionID       string            `json:"session_id,omitempty"`
	SessionDuration float64           `json:"session_duration"`
	SessionActive   bool              `json:"session_active"`
	Timestamp       time.Time         `json:"timestamp"`
}

// SessionInfo describes a started or stopped session.
type SessionInfo struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Ticks     int        `json:"ticks"`
	PeakSync  float64    `json:"peak_sync"`
	AvgSync   float64    `json:"avg_sync"`
}

// App is the HeartSync application.
type App struct {
	cfg    Config
	engine *scoring.Engine
	now    func() time.Time

	mu      sync.Mutex
	session *session.Session
	last    scoring.Result
	stopCh  chan struct{}
	done    chan struct{}

	listenersMu  sync.RWMutex
	listeners    []func(State)
	sessionHooks []func(active bool)

	narrating atomic.Bool
	wg        sync.WaitGroup
}

// New creates an App. The weights must already be valid.
func New(cfg Config) *App {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Biometrics == nil {
		cfg.Biometrics = biometric.NewStore(0)
	}
	if cfg.Cell == nil {
		cfg.Cell = &features.Cell{}
	}

	return &App{
		cfg:    cfg,
		engine: scoring.NewEngine(cfg.Weights),
		now:    time.Now,
		last:   scoring.IdleResult(),
	}
}

// SetClock replaces the time source. It must be called before Start.
func (a *App) SetClock(now func() time.Time) {
	a.now = now
}

// Biometrics returns the biometric store that pushes are recorded in.
func (a *App) Biometrics() *biometric.Store {
	return a.cfg.Biometrics
}

// Store returns the session store, nil when persistence is off.
func (a *App) Store() *store.Store {
	return a.cfg.Store
}

// Cell returns the snapshot cell the vision pipeline publishes into.
func (a *App) Cell() *features.Cell {
	return a.cfg.Cell
}

// SetWeights swaps the channel weights from the next tick on.
func (a *App) SetWeights(w scoring.Weights) error {
	return a.engine.SetWeights(w)
}

// Weights returns the weights in use.
func (a *App) Weights() scoring.Weights {
	return a.engine.Weights()
}

// OnState registers fn to receive the state of every active tick.
func (a *App) OnState(fn func(State)) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// OnSession registers fn to learn when a session starts (true) or stops
// (false), whoever asked for it.
func (a *App) OnSession(fn func(active bool)) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.sessionHooks = append(a.sessionHooks, fn)
}

// OnCommentary registers fn to receive every commentary line.
func (a *App) OnCommentary(fn func(text string)) {
	if a.cfg.Narrator != nil {
		a.cfg.Narrator.OnLine(fn)
	}
}

// Start launches the vision pipeline and the scoring loop. Calling Start
// twice does nothing. A camera that cannot be opened is logged and scoring
// runs on biometrics alone with empty vision.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if a.cfg.Vision != nil {
		if err := a.cfg.Vision.Start(); err != nil {
			log.Warn("vision unavailable, scoring without camera", "error", err)
			a.cfg.Cell.Reset()
		}
	}

	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.run(a.stopCh, a.done)

	log.Info("scoring loop started", "interval", a.cfg.Interval)
	return nil
}

// Stop ends any active session, halts the scoring loop and the vision
// pipeline, and waits for background work to finish.
func (a *App) Stop() error {
	a.mu.Lock()
	stopCh, done := a.stopCh, a.done
	a.stopCh, a.done = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}

	if _, err := a.StopSession(); err != nil && !errors.Is(err, ErrNoSession) {
		log.Warn("failed to close session on shutdown", "error", err)
	}

	var err error
	if a.cfg.Vision != nil {
		err = a.cfg.Vision.Stop()
	}

	a.wg.Wait()
	if a.cfg.Narrator != nil {
		a.cfg.Narrator.Wait()
	}
	if a.cfg.Actuator != nil {
		a.cfg.Actuator.Wait()
	}

	log.Info("scoring loop stopped")
	return err
}

// Running reports whether the scoring loop is active.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopCh != nil
}

// SessionActive reports whether a session is running.
func (a *App) SessionActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil
}

// State returns the current state without advancing the engine.
func (a *App) State() State {
	now := a.now()

	a.mu.Lock()
	st := a.stateLocked(now)
	a.mu.Unlock()

	return st
}

func (a *App) stateLocked(now time.Time) State {
	st := State{
		PersonA:   a.cfg.Biometrics.Reading(biometric.PersonA),
		PersonB:   a.cfg.Biometrics.Reading(biometric.PersonB),
		Sync:      a.last,
		Vision:    a.cfg.Cell.Load(),
		Timestamp: now,
	}
	if a.cfg.Mixer != nil {
		st.Mix = a.cfg.Mixer.Current()
	} else {
		st.Mix = mixer.VolumesFor(a.last.Score)
	}
	if a.session != nil {
		st.SessionActive = true
		st.SessionID = a.session.ID
		st.SessionDuration = a.session.Duration(now).Seconds()
	}
	return st
}
