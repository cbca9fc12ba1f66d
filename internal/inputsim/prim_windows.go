package inputsim

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsPrimitives injects events through user32 SendInput. Mouse
// coordinates arrive as absolute pixels on the primary display and are
// converted to the 0..65535 normalised absolute space SendInput expects.
type windowsPrimitives struct{}

// NewHostPrimitives returns the Windows injection backend.
func NewHostPrimitives() Primitives {
	return &windowsPrimitives{}
}

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procSendInput        = user32.NewProc("SendInput")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")
)

const (
	inputMouse    = 0
	inputKeyboard = 1

	mouseeventfMove       = 0x0001
	mouseeventfAbsolute   = 0x8000
	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010

	keyeventfKeyUp = 0x0002

	smCxScreen = 0
	smCyScreen = 1
)

// input mirrors the Win32 INPUT struct for SendInput. The union is sized
// for MOUSEINPUT, the largest member used here.
type input struct {
	typ uint32
	_   uint32 // alignment padding before the union on amd64
	mi  mouseInput
}

type mouseInput struct {
	dx          int32
	dy          int32
	mouseData   uint32
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

func sendInput(in input) error {
	n, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if n == 0 {
		return fmt.Errorf("SendInput: %w", err)
	}
	return nil
}

func primaryDisplaySize() (int32, int32) {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	if w == 0 || h == 0 {
		return 1, 1
	}
	return int32(w), int32(h)
}

func (windowsPrimitives) MoveMouse(x, y int) error {
	w, h := primaryDisplaySize()
	return sendInput(input{
		typ: inputMouse,
		mi: mouseInput{
			dx:      int32(x) * 65535 / w,
			dy:      int32(y) * 65535 / h,
			dwFlags: mouseeventfMove | mouseeventfAbsolute,
		},
	})
}

func (windowsPrimitives) MouseButton(button int, down bool) error {
	var flags uint32
	switch button {
	case 1:
		flags = mouseeventfMiddleDown
		if !down {
			flags = mouseeventfMiddleUp
		}
	case 2:
		flags = mouseeventfRightDown
		if !down {
			flags = mouseeventfRightUp
		}
	default:
		flags = mouseeventfLeftDown
		if !down {
			flags = mouseeventfLeftUp
		}
	}
	return sendInput(input{typ: inputMouse, mi: mouseInput{dwFlags: flags}})
}

func sendKey(vk uint16, up bool) error {
	var flags uint32
	if up {
		flags = keyeventfKeyUp
	}
	in := input{typ: inputKeyboard}
	kb := (*keybdInput)(unsafe.Pointer(&in.mi))
	kb.wVk = vk
	kb.dwFlags = flags
	return sendInput(in)
}

func (windowsPrimitives) PressKey(_ string, vk uint16) error {
	return sendKey(vk, false)
}

func (windowsPrimitives) ReleaseKey(_ string, vk uint16) error {
	return sendKey(vk, true)
}
