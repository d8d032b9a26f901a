// Package tray provides a desktop system tray interface for HeartSync.
package tray

import (
	"fmt"
	"strings"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onSession func(start bool)
	onDisplay func()
	onQuit    func()
	active    bool
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuSession *systray.MenuItem
	menuLevel   *systray.MenuItem
}

// New creates a new Tray with no session running.
func New() *Tray {
	return &Tray{}
}

// OnSession sets the callback called when the user starts (true) or stops
// (false) a session.
func (t *Tray) OnSession(fn func(start bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSession = fn
}

// OnDisplay sets the callback called when the display menu item is clicked.
func (t *Tray) OnDisplay(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisplay = fn
}

// OnQuit sets the callback called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("HeartSync")
	systray.SetTooltip("HeartSync connection score")

	t.mu.Lock()
	t.menuSession = systray.AddMenuItem(sessionLabel(t.active), "Start or stop a session")
	systray.AddSeparator()
	t.menuLevel = systray.AddMenuItem("Level: idle", "Current connection level")
	t.menuLevel.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuDisplay := systray.AddMenuItem("Open Display...", "Open the display in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit HeartSync")

	go func() {
		for {
			select {
			case <-t.menuSession.ClickedCh:
				t.handleSession()
			case <-menuDisplay.ClickedCh:
				t.mu.RLock()
				callback := t.onDisplay
				t.mu.RUnlock()
				if callback != nil {
					callback()
				}
			case <-menuQuit.ClickedCh:
				t.mu.RLock()
				callback := t.onQuit
				t.mu.RUnlock()
				if callback != nil {
					callback()
				}
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) handleSession() {
	t.mu.Lock()
	start := !t.active
	callback := t.onSession
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(start)
	}
	t.SetSessionActive(start)
}

// SetSessionActive updates the session menu item.
func (t *Tray) SetSessionActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active = active
	if t.menuSession != nil {
		t.menuSession.SetTitle(sessionLabel(active))
	}
	if !active && t.menuLevel != nil {
		t.menuLevel.SetTitle("Level: idle")
		systray.SetTitle("HeartSync")
	}
}

// SetLevel shows the current level and score.
func (t *Tray) SetLevel(level string, score float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLevel == nil || !t.active {
		return
	}
	t.menuLevel.SetTitle("Level: " + levelLabel(level))
	systray.SetTitle(fmt.Sprintf("HeartSync %d%%", int(score*100+0.5)))
}

// SessionActive returns whether the tray shows a running session.
func (t *Tray) SessionActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

func sessionLabel(active bool) string {
	if active {
		return "■ Stop Session"
	}
	return "▶ Start Session"
}

// levelLabel turns a level id like "deeply_connected" into "Deeply connected".
func levelLabel(level string) string {
	if level == "" {
		return "idle"
	}
	s := strings.ReplaceAll(level, "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}
