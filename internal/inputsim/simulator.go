package inputsim

import "fmt"

// Primitives is the per-OS injection surface Simulator drives. Key
// presses carry both the original web key name (for backends that shell
// out to a name-based tool, like xdotool) and the resolved VK code (for
// backends that inject at the Windows API level).
type Primitives interface {
	MoveMouse(x, y int) error
	MouseButton(button int, down bool) error
	PressKey(key string, vk uint16) error
	ReleaseKey(key string, vk uint16) error
}

// Simulator implements the shared mouse/keyboard action semantics on
// top of a platform's Primitives. It owns no state of its own;
// construct one per Primitives implementation.
type Simulator struct {
	prim Primitives
}

// New wraps prim in the shared action semantics.
func New(prim Primitives) *Simulator {
	return &Simulator{prim: prim}
}

// normalizeButton maps any button value outside {0,1,2} to 0 (left).
func normalizeButton(button int) int {
	if button < 0 || button > 2 {
		return 0
	}
	return button
}

// Mouse applies one MOUSE_EVENT. action is one of move|down|up|click|
// dblclick; button is left(0)/middle(1)/right(2).
func (s *Simulator) Mouse(action string, x, y, button int) error {
	button = normalizeButton(button)

	switch action {
	case "move":
		return s.prim.MoveMouse(x, y)
	case "down":
		if err := s.prim.MoveMouse(x, y); err != nil {
			return err
		}
		return s.prim.MouseButton(button, true)
	case "up":
		if err := s.prim.MoveMouse(x, y); err != nil {
			return err
		}
		return s.prim.MouseButton(button, false)
	case "click":
		return s.clickAt(x, y, button)
	case "dblclick":
		if err := s.prim.MoveMouse(x, y); err != nil {
			return err
		}
		// No inter-click delay between the two clicks.
		if err := s.click(button); err != nil {
			return err
		}
		return s.click(button)
	default:
		return fmt.Errorf("inputsim: unknown mouse action %q", action)
	}
}

func (s *Simulator) clickAt(x, y, button int) error {
	if err := s.prim.MoveMouse(x, y); err != nil {
		return err
	}
	return s.click(button)
}

func (s *Simulator) click(button int) error {
	if err := s.prim.MouseButton(button, true); err != nil {
		return err
	}
	return s.prim.MouseButton(button, false)
}

// Key applies one KEY_EVENT. action is down|up. Unknown key names are
// rejected with an error; the caller logs and ignores them.
//
// On down, modifiers are pressed before the main key; on up, the main key
// is released first, then modifiers. If key itself names a modifier, it
// is still pressed/released exactly once — modifiers[] and key are
// independent fields, so there is nothing to deduplicate here.
func (s *Simulator) Key(action, key string, modifiers []string) error {
	vk, ok := VKCode(key)
	if !ok {
		return fmt.Errorf("inputsim: unknown key %q", key)
	}

	switch action {
	case "down":
		for _, m := range modifiers {
			if mvk, ok := VKCode(m); ok {
				if err := s.prim.PressKey(m, mvk); err != nil {
					return err
				}
			}
		}
		return s.prim.PressKey(key, vk)
	case "up":
		if err := s.prim.ReleaseKey(key, vk); err != nil {
			return err
		}
		for _, m := range modifiers {
			if mvk, ok := VKCode(m); ok {
				if err := s.prim.ReleaseKey(m, mvk); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("inputsim: unknown key action %q", action)
	}
}
