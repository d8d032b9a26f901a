package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ayusman/heartsync/internal/log"
)

// Actuator runs the bindings for a level whenever the session enters it.
// Runs happen in the background; a slow or failing plugin never blocks the
// caller.
type Actuator struct {
	manager  *Manager
	executor *Executor

	mu       sync.RWMutex
	bindings map[string][]Binding

	wg sync.WaitGroup
}

// NewActuator creates an Actuator over discovered plugins.
func NewActuator(m *Manager, e *Executor, bindings []Binding) *Actuator {
	a := &Actuator{manager: m, executor: e}
	a.SetBindings(bindings)
	return a
}

// SetBindings replaces the level bindings.
func (a *Actuator) SetBindings(bindings []Binding) {
	byLevel := make(map[string][]Binding)
	for _, b := range bindings {
		byLevel[b.Level] = append(byLevel[b.Level], b)
	}

	a.mu.Lock()
	a.bindings = byLevel
	a.mu.Unlock()
}

// Bindings returns the bindings for level.
func (a *Actuator) Bindings(level string) []Binding {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Binding(nil), a.bindings[level]...)
}

// OnLevel starts every binding for ev.Level and returns how many were
// started.
func (a *Actuator) OnLevel(ctx context.Context, ev Event) int {
	bindings := a.Bindings(ev.Level)
	for _, b := range bindings {
		a.wg.Add(1)
		go func(b Binding) {
			defer a.wg.Done()
			if _, err := a.Run(ctx, b, ev); err != nil {
				log.Warn("plugin action failed",
					"plugin", b.Plugin,
					"action", b.Action,
					"level", ev.Level,
					"error", err,
				)
			}
		}(b)
	}
	return len(bindings)
}

// Run executes a single binding synchronously.
func (a *Actuator) Run(ctx context.Context, b Binding, ev Event) (*Response, error) {
	plug, err := a.manager.Get(b.Plugin)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Plugin, err)
	}
	if !plug.Manifest.SupportsAction(b.Action) {
		return nil, fmt.Errorf("plugin %s does not support action %q", b.Plugin, b.Action)
	}

	cfg := json.RawMessage(`{}`)
	if len(b.Config) > 0 {
		raw, err := json.Marshal(b.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal binding config: %w", err)
		}
		cfg = raw
	}

	resp, err := a.executor.Execute(ctx, plug, &Request{
		Action:     b.Action,
		Level:      b.Level,
		Score:      ev.Score,
		HeartRateA: ev.HeartRateA,
		HeartRateB: ev.HeartRateB,
		Timestamp:  ev.At,
		Config:     cfg,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("plugin %s reported failure: %s", b.Plugin, resp.Error)
	}

	log.Debug("plugin action done", "plugin", b.Plugin, "action", b.Action, "level", b.Level)
	return resp, nil
}

// Wait blocks until every started run has finished.
func (a *Actuator) Wait() {
	a.wg.Wait()
}
