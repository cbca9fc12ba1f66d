// Package inputsim injects mouse and keyboard events at the OS level:
// the shared action semantics (click = down+up, dblclick = two clicks
// back to back, modifier ordering) live here; the per-OS primitives that
// actually move the cursor or press a key live in the platform-specific
// files.
package inputsim

import "strings"

// VKCode maps a web-platform key name to its Windows
// virtual-key code. Matching is case-insensitive. The table is exhaustive:
// every named key below plus every printable ASCII letter, digit, and
// space.
func VKCode(key string) (uint16, bool) {
	if code, ok := namedVKCodes[strings.ToLower(key)]; ok {
		return code, true
	}
	if len(key) == 1 {
		c := key[0]
		switch {
		case c >= 'a' && c <= 'z':
			return 0x41 + uint16(c-'a'), true
		case c >= 'A' && c <= 'Z':
			return 0x41 + uint16(c-'A'), true
		case c >= '0' && c <= '9':
			return 0x30 + uint16(c-'0'), true
		case c == ' ':
			return 0x20, true
		}
	}
	return 0, false
}

// namedVKCodes holds every supported non-printable key name, plus
// the four modifier aliases (ctrl/alt/shift/meta) used in KEY_EVENT's
// modifiers[] array.
var namedVKCodes = map[string]uint16{
	"enter":       0x0D,
	"tab":         0x09,
	"escape":      0x1B,
	"backspace":   0x08,
	"delete":      0x2E,
	"insert":      0x2D,
	"home":        0x24,
	"end":         0x23,
	"pageup":      0x21,
	"pagedown":    0x22,
	"arrowleft":   0x25,
	"arrowup":     0x26,
	"arrowright":  0x27,
	"arrowdown":   0x28,
	"space":       0x20,
	"capslock":    0x14,
	"numlock":     0x90,
	"scrolllock":  0x91,
	"printscreen": 0x2C,
	"pause":       0x13,
	"contextmenu": 0x5D,

	"f1": 0x70, "f2": 0x71, "f3": 0x72, "f4": 0x73,
	"f5": 0x74, "f6": 0x75, "f7": 0x76, "f8": 0x77,
	"f9": 0x78, "f10": 0x79, "f11": 0x7A, "f12": 0x7B,

	"control": 0x11, "ctrl": 0x11,
	"alt":   0x12,
	"shift": 0x10,
	"meta":  0x5B,
}
