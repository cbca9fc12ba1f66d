//go:build !windows

package helper

import "sync"

// stateOverlay tracks shown/hidden without a window. Overlaying a desktop
// is Windows/session-0 functionality; other build targets only need the
// state machine so the notify path stays testable everywhere.
type stateOverlay struct {
	mu      sync.Mutex
	visible bool
	name    string
}

func newOverlay() overlay {
	return &stateOverlay{}
}

func (o *stateOverlay) Show(technicianName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = true
	o.name = technicianName
}

func (o *stateOverlay) Hide() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = false
}

func (o *stateOverlay) state() (bool, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible, o.name
}
