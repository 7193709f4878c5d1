// Package tray provides the system tray menu of neurablink.
package tray

import (
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

// Levels is the number of sensitivity levels offered in the menu.
const Levels = 5

// Tray represents the system tray application.
type Tray struct {
	onToggle      func(running bool)
	onSensitivity func(level int)
	onSettings    func()
	onQuit        func()

	mu          sync.RWMutex
	running     bool
	sensitivity int
	lastBlink   time.Time

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuLastBlink *systray.MenuItem
	menuLevels    []*systray.MenuItem
}

// New creates a Tray showing detection as stopped with the given sensitivity.
func New(sensitivity int) *Tray {
	return &Tray{sensitivity: sensitivity}
}

// OnToggle sets the callback invoked with the requested state when Start/Stop is clicked.
func (t *Tray) OnToggle(fn func(running bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSensitivity sets the callback invoked when a sensitivity level is picked.
func (t *Tray) OnSensitivity(fn func(level int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSensitivity = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("NeuraBlink")
	systray.SetTooltip("NeuraBlink blink reminder")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.running), "Start or stop blink detection")
	systray.AddSeparator()

	menuSensitivity := systray.AddMenuItem("Sensitivity", "Blink detection sensitivity")
	t.menuLevels = make([]*systray.MenuItem, Levels)
	for i := range t.menuLevels {
		level := i + 1
		t.menuLevels[i] = menuSensitivity.AddSubMenuItemCheckbox(
			fmt.Sprintf("Level %d", level), "", level == t.sensitivity)
	}

	t.menuLastBlink = systray.AddMenuItem(lastBlinkTitle(t.lastBlink), "Last detected blink")
	t.menuLastBlink.Disable()
	systray.AddSeparator()
	t.mu.Unlock()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit NeuraBlink")

	for i, item := range t.menuLevels {
		go func(level int, item *systray.MenuItem) {
			for range item.ClickedCh {
				t.handleSensitivity(level)
			}
		}(i+1, item)
	}

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func toggleTitle(running bool) string {
	if running {
		return "■ Stop"
	}
	return "▶ Start"
}

func lastBlinkTitle(at time.Time) string {
	if at.IsZero() {
		return "Last blink: none"
	}
	return "Last blink: " + at.Format("15:04:05")
}

// handleToggle requests the opposite of the displayed state. The menu
// follows the app through SetRunning, not the click itself.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	want := !t.running
	callback := t.onToggle
	t.mu.RUnlock()

	if callback != nil {
		callback(want)
	}
}

func (t *Tray) handleSensitivity(level int) {
	t.mu.RLock()
	callback := t.onSensitivity
	t.mu.RUnlock()

	if callback != nil {
		callback(level)
	}
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetRunning updates the Start/Stop item.
func (t *Tray) SetRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = running
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(running))
	}
}

// SetSensitivity checks the item of level and unchecks the others.
func (t *Tray) SetSensitivity(level int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sensitivity = level
	for i, item := range t.menuLevels {
		if i+1 == level {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

// SetLastBlink updates the last blink display in the menu.
func (t *Tray) SetLastBlink(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastBlink = at
	if t.menuLastBlink != nil {
		t.menuLastBlink.SetTitle(lastBlinkTitle(at))
	}
}

// Running returns the displayed detection state.
func (t *Tray) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// Sensitivity returns the checked sensitivity level.
func (t *Tray) Sensitivity() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sensitivity
}
