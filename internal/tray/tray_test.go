package tray

import "testing"

func TestLevelLabel(t *testing.T) {
	tests := map[string]string{
		"deeply_connected": "Deeply connected",
		"warming_up":       "Warming up",
		"connecting":       "Connecting",
		"":                 "idle",
	}
	for in, want := range tests {
		if got := levelLabel(in); got != want {
			t.Errorf("levelLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTray_SessionCallback(t *testing.T) {
	tr := New()

	var calls []bool
	tr.OnSession(func(start bool) { calls = append(calls, start) })

	// Menu items are nil until the tray is running; state still tracks.
	tr.handleSession()
	tr.handleSession()

	if len(calls) != 2 || !calls[0] || calls[1] {
		t.Errorf("session callbacks = %v, want [true false]", calls)
	}
	if tr.SessionActive() {
		t.Error("tray should be idle after start then stop")
	}

	tr.SetLevel("connecting", 0.6)
}

func TestTray_FollowsExternalSession(t *testing.T) {
	tr := New()

	var calls []bool
	tr.OnSession(func(start bool) { calls = append(calls, start) })

	// A session started elsewhere makes the menu item stop it.
	tr.SetSessionActive(true)
	tr.handleSession()
	if len(calls) != 1 || calls[0] {
		t.Fatalf("session callbacks = %v, want [false]", calls)
	}
	if tr.SessionActive() {
		t.Error("tray should be idle after stopping")
	}
}
