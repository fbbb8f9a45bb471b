// Package tray shows live predictions in the system tray.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/knn"
)

// Tray is a system tray menu that displays the latest prediction and lets
// the user pause live classification.
type Tray struct {
	onToggle func(live bool)
	onOpen   func()
	onQuit   func()
	live     bool
	last     string
	mu       sync.RWMutex

	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a Tray with live classification enabled.
func New() *Tray {
	return &Tray{
		live: true,
		last: "none",
	}
}

// OnToggle sets the callback run when live classification is paused or
// resumed.
func (t *Tray) OnToggle(fn func(live bool)) { t.set(func() { t.onToggle = fn }) }

// OnOpen sets the callback run when the trainer page is requested.
func (t *Tray) OnOpen(fn func()) { t.set(func() { t.onOpen = fn }) }

// OnQuit sets the callback run before the tray exits.
func (t *Tray) OnQuit(fn func()) { t.set(func() { t.onQuit = fn }) }

func (t *Tray) set(assign func()) {
	t.mu.Lock()
	assign()
	t.mu.Unlock()
}

// Run starts the tray. It blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra hand pose classifier")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.live), "Pause or resume live classification")
	systray.AddSeparator()
	t.menuLast = systray.AddMenuItem("Last: "+t.last, "Last prediction")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Trainer...", "Open the trainer in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	go t.loop(t.menuToggle.ClickedCh, menuOpen.ClickedCh, menuQuit.ClickedCh)
}

func (t *Tray) loop(toggle, open, quit <-chan struct{}) {
	for {
		select {
		case <-toggle:
			t.handleToggle()
		case <-open:
			t.handleOpen()
		case <-quit:
			t.handleQuit()
			return
		}
	}
}

func toggleTitle(live bool) string {
	if live {
		return "● Live"
	}
	return "○ Paused"
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.live = !t.live
	live := t.live
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(live))
	}
	fn := t.onToggle
	t.mu.Unlock()

	if fn != nil {
		fn(live)
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	fn := t.onOpen
	t.mu.RUnlock()
	call(fn)
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	fn := t.onQuit
	t.mu.RUnlock()
	call(fn)
	systray.Quit()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// Show records a prediction as the last one and updates the menu.
func (t *Tray) Show(r knn.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = fmt.Sprintf("%s (%.0f%%)", r.Label, r.Confidence)
	if t.menuLast != nil {
		t.menuLast.SetTitle("Last: " + t.last)
	}
}

// Last returns the text of the last prediction shown.
func (t *Tray) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// IsLive reports whether live classification is enabled.
func (t *Tray) IsLive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}
