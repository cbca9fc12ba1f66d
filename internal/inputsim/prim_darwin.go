package inputsim

import (
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
)

// darwinPrimitives drives cliclick (brew install cliclick). The tool
// exposes full press/release only for modifier keys; ordinary keys are
// injected as a complete press on key-down and ignored on key-up, the
// same compromise the platform forces on every cliclick-based injector.
type darwinPrimitives struct {
	once      sync.Once
	available bool
}

// NewHostPrimitives returns the macOS injection backend.
func NewHostPrimitives() Primitives {
	return &darwinPrimitives{}
}

func (p *darwinPrimitives) check() bool {
	p.once.Do(func() {
		if _, err := exec.LookPath("cliclick"); err == nil {
			p.available = true
			log.Println("Input control: cliclick found")
		} else {
			log.Println("WARNING: cliclick not found. Install with: brew install cliclick")
			log.Println("Then grant Accessibility permissions in System Preferences")
		}
	})
	return p.available
}

func (p *darwinPrimitives) run(args ...string) error {
	if !p.check() {
		return nil
	}
	output, err := exec.Command("cliclick", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("cliclick %v: %w (%s)", args, err, output)
	}
	return nil
}

func (p *darwinPrimitives) MoveMouse(x, y int) error {
	return p.run(fmt.Sprintf("m:%d,%d", x, y))
}

func (p *darwinPrimitives) MouseButton(button int, down bool) error {
	// cliclick has no middle-button press; treat it as left.
	verb := "dd"
	if !down {
		verb = "du"
	}
	if button == 2 {
		// Right button has no down/up split; fire the full click on up.
		if down {
			return nil
		}
		return p.run("rc:.")
	}
	return p.run(verb + ":.")
}

// cliclickKeyNames maps web key names to cliclick kp: arguments.
var cliclickKeyNames = map[string]string{
	"enter": "return", "tab": "tab", "escape": "esc", "backspace": "delete",
	"delete": "fwd-delete", "home": "home", "end": "end",
	"pageup": "page-up", "pagedown": "page-down",
	"arrowup": "arrow-up", "arrowdown": "arrow-down",
	"arrowleft": "arrow-left", "arrowright": "arrow-right",
	"space": "space",
	"f1":    "f1", "f2": "f2", "f3": "f3", "f4": "f4", "f5": "f5", "f6": "f6",
	"f7": "f7", "f8": "f8", "f9": "f9", "f10": "f10", "f11": "f11", "f12": "f12",
}

// cliclickModifiers maps modifier key names to cliclick kd:/ku: arguments.
var cliclickModifiers = map[string]string{
	"control": "ctrl", "ctrl": "ctrl",
	"alt": "alt", "shift": "shift", "meta": "cmd",
}

func (p *darwinPrimitives) PressKey(key string, _ uint16) error {
	lower := strings.ToLower(key)
	if mod, ok := cliclickModifiers[lower]; ok {
		return p.run("kd:" + mod)
	}
	if name, ok := cliclickKeyNames[lower]; ok {
		return p.run("kp:" + name)
	}
	if len(key) == 1 {
		return p.run("t:" + key)
	}
	log.Printf("Key injection: no cliclick mapping for %q", key)
	return nil
}

func (p *darwinPrimitives) ReleaseKey(key string, _ uint16) error {
	if mod, ok := cliclickModifiers[strings.ToLower(key)]; ok {
		return p.run("ku:" + mod)
	}
	// Non-modifier keys were injected as a full press on key-down.
	return nil
}
