package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestActuator(t *testing.T, dir string, bindings []Binding) *Actuator {
	t.Helper()
	m := NewManager(dir)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	return NewActuator(m, NewExecutor(2*time.Second), bindings)
}

func TestActuator_OnLevel(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "calls.log")
	writeScriptPlugin(t, dir, "lights",
		"cat >> '"+out+"'\necho >> '"+out+"'\necho '{\"success\":true}'\n", "set_palette")

	a := newTestActuator(t, dir, []Binding{
		{Level: "connecting", Plugin: "lights", Action: "set_palette", Config: map[string]any{"brightness": 80}},
		{Level: "deeply_connected", Plugin: "lights", Action: "set_palette"},
	})

	if n := a.OnLevel(context.Background(), Event{Level: "warming_up", Score: 0.3}); n != 0 {
		t.Errorf("OnLevel(warming_up) started %d runs, want 0", n)
	}
	if n := a.OnLevel(context.Background(), Event{Level: "connecting", Score: 0.6, HeartRateA: 72, HeartRateB: 80}); n != 1 {
		t.Errorf("OnLevel(connecting) started %d runs, want 1", n)
	}
	a.Wait()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("plugin did not run: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"level":"connecting"`, `"score":0.6`, `"brightness":80`, `"action":"set_palette"`, `"heart_rate_a":72`, `"heart_rate_b":80`} {
		if !strings.Contains(got, want) {
			t.Errorf("request %s missing %s", got, want)
		}
	}
}

func TestActuator_Run_Errors(t *testing.T) {
	dir := t.TempDir()
	writeScriptPlugin(t, dir, "lights",
		`echo '{"success":false,"error":"no strip attached"}'`+"\n", "set_palette")

	a := newTestActuator(t, dir, nil)
	ctx := context.Background()

	if _, err := a.Run(ctx, Binding{Plugin: "ghost", Action: "x"}, Event{}); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("unknown plugin error = %v, want ErrPluginNotFound", err)
	}
	if _, err := a.Run(ctx, Binding{Plugin: "lights", Action: "blink"}, Event{}); err == nil {
		t.Error("unsupported action should fail")
	}

	resp, err := a.Run(ctx, Binding{Level: "connecting", Plugin: "lights", Action: "set_palette"}, Event{Level: "connecting", Score: 0.6})
	if err == nil || !strings.Contains(err.Error(), "no strip attached") {
		t.Errorf("plugin failure error = %v", err)
	}
	if resp == nil || resp.Success {
		t.Error("failed response should still be returned")
	}
}

func TestActuator_SetBindings(t *testing.T) {
	a := newTestActuator(t, t.TempDir(), []Binding{{Level: "connecting", Plugin: "a", Action: "x"}})
	if len(a.Bindings("connecting")) != 1 {
		t.Fatal("expected one binding for connecting")
	}

	a.SetBindings([]Binding{
		{Level: "disconnected", Plugin: "a", Action: "x"},
		{Level: "disconnected", Plugin: "b", Action: "y"},
	})
	if len(a.Bindings("connecting")) != 0 || len(a.Bindings("disconnected")) != 2 {
		t.Error("SetBindings should replace every binding")
	}
}
