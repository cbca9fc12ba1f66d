package helper

import (
	"log"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// winOverlay is a topmost, borderless, click-through banner anchored to
// the bottom-right of the primary display's working area. All window
// calls run on one locked OS thread that owns the message pump; Show and
// Hide post commands to it.
type winOverlay struct {
	mu      sync.Mutex
	started bool
	cmds    chan overlayCmd
}

type overlayCmd struct {
	show bool
	name string
}

func newOverlay() overlay {
	return &winOverlay{cmds: make(chan overlayCmd, 4)}
}

func (o *winOverlay) Show(technicianName string) {
	o.mu.Lock()
	if !o.started {
		o.started = true
		go o.windowLoop()
	}
	o.mu.Unlock()
	o.cmds <- overlayCmd{show: true, name: technicianName}
}

func (o *winOverlay) Hide() {
	o.mu.Lock()
	started := o.started
	o.mu.Unlock()
	if started {
		o.cmds <- overlayCmd{show: false}
	}
}

var (
	user32dll = windows.NewLazySystemDLL("user32.dll")
	gdi32dll  = windows.NewLazySystemDLL("gdi32.dll")

	procRegisterClassExW           = user32dll.NewProc("RegisterClassExW")
	procCreateWindowExW            = user32dll.NewProc("CreateWindowExW")
	procDefWindowProcW             = user32dll.NewProc("DefWindowProcW")
	procShowWindow                 = user32dll.NewProc("ShowWindow")
	procSetWindowPos               = user32dll.NewProc("SetWindowPos")
	procSetLayeredWindowAttributes = user32dll.NewProc("SetLayeredWindowAttributes")
	procSystemParametersInfoW      = user32dll.NewProc("SystemParametersInfoW")
	procPeekMessageW               = user32dll.NewProc("PeekMessageW")
	procTranslateMessage           = user32dll.NewProc("TranslateMessage")
	procDispatchMessageW           = user32dll.NewProc("DispatchMessageW")
	procBeginPaint                 = user32dll.NewProc("BeginPaint")
	procEndPaint                   = user32dll.NewProc("EndPaint")
	procDrawTextW                  = user32dll.NewProc("DrawTextW")
	procInvalidateRect             = user32dll.NewProc("InvalidateRect")
	procGetModuleHandleW           = windows.NewLazySystemDLL("kernel32.dll").NewProc("GetModuleHandleW")

	procSetBkMode        = gdi32dll.NewProc("SetBkMode")
	procSetTextColor     = gdi32dll.NewProc("SetTextColor")
	procCreateSolidBrush = gdi32dll.NewProc("CreateSolidBrush")
)

const (
	wsPopup         = 0x80000000
	wsExTopmost     = 0x00000008
	wsExLayered     = 0x00080000
	wsExTransparent = 0x00000020
	wsExNoActivate  = 0x08000000
	wsExToolWindow  = 0x00000080

	lwaAlpha = 0x00000002

	swShowNoActivate = 4
	swHide           = 0

	swpNoActivate = 0x0010

	spiGetWorkArea = 0x0030

	wmPaint   = 0x000F
	wmDestroy = 0x0002

	dtCenter       = 0x0001
	dtVCenter      = 0x0004
	dtSingleLine   = 0x0020

	transparentBk = 1

	pmRemove = 0x0001

	overlayWidth  = 360
	overlayHeight = 44
	overlayMargin = 12
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       windows.Handle
	Cursor     windows.Handle
	Background windows.Handle
	MenuName   *uint16
	ClassName  *uint16
	IconSm     windows.Handle
}

type rect struct {
	Left, Top, Right, Bottom int32
}

type msg struct {
	Hwnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

type paintStruct struct {
	Hdc         windows.Handle
	Erase       int32
	RcPaint     rect
	Restore     int32
	IncUpdate   int32
	RgbReserved [32]byte
}

// overlayText is read by the window procedure during WM_PAINT.
var (
	overlayTextMu sync.Mutex
	overlayText   []uint16
)

func setOverlayText(name string) {
	overlayTextMu.Lock()
	defer overlayTextMu.Unlock()
	overlayText = windows.StringToUTF16("Session controlled by: " + name)
}

func overlayWndProc(hwnd, message, wparam, lparam uintptr) uintptr {
	switch message {
	case wmPaint:
		var ps paintStruct
		hdc, _, _ := procBeginPaint.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&ps)))
		procSetBkMode.Call(hdc, transparentBk)          //nolint:errcheck
		procSetTextColor.Call(hdc, 0x00FFFFFF)          //nolint:errcheck
		overlayTextMu.Lock()
		text := overlayText
		overlayTextMu.Unlock()
		if len(text) > 0 {
			r := rect{Left: 0, Top: 0, Right: overlayWidth, Bottom: overlayHeight}
			procDrawTextW.Call(hdc, uintptr(unsafe.Pointer(&text[0])), //nolint:errcheck
				uintptr(len(text)-1), uintptr(unsafe.Pointer(&r)),
				dtCenter|dtVCenter|dtSingleLine)
		}
		procEndPaint.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&ps))) //nolint:errcheck
		return 0
	case wmDestroy:
		return 0
	}
	ret, _, _ := procDefWindowProcW.Call(uintptr(hwnd), uintptr(message), wparam, lparam)
	return ret
}

// windowLoop owns the overlay window and its message pump.
func (o *winOverlay) windowLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	instance, _, _ := procGetModuleHandleW.Call(0)
	className := windows.StringToUTF16Ptr("AgentcoreOverlay")
	brush, _, _ := procCreateSolidBrush.Call(0x00202020)

	wc := wndClassEx{
		Size:       uint32(unsafe.Sizeof(wndClassEx{})),
		WndProc:    windows.NewCallback(overlayWndProc),
		Instance:   windows.Handle(instance),
		Background: windows.Handle(brush),
		ClassName:  className,
	}
	if atom, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); atom == 0 {
		log.Printf("Overlay class registration failed: %v", err)
		for range o.cmds {
			// Drain so Show/Hide never block.
		}
		return
	}

	hwnd, _, err := procCreateWindowExW.Call(
		wsExTopmost|wsExLayered|wsExTransparent|wsExNoActivate|wsExToolWindow,
		uintptr(unsafe.Pointer(className)),
		0,
		wsPopup,
		0, 0, overlayWidth, overlayHeight,
		0, 0, instance, 0)
	if hwnd == 0 {
		log.Printf("Overlay window creation failed: %v", err)
		return
	}
	procSetLayeredWindowAttributes.Call(hwnd, 0, 210, lwaAlpha) //nolint:errcheck

	var m msg
	for {
		select {
		case cmd := <-o.cmds:
			if cmd.show {
				setOverlayText(cmd.name)
				o.anchor(hwnd)
				procShowWindow.Call(hwnd, swShowNoActivate)    //nolint:errcheck
				procInvalidateRect.Call(hwnd, 0, 1)            //nolint:errcheck
			} else {
				procShowWindow.Call(hwnd, swHide) //nolint:errcheck
			}
		default:
			for {
				got, _, _ := procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), hwnd, 0, 0, pmRemove)
				if got == 0 {
					break
				}
				procTranslateMessage.Call(uintptr(unsafe.Pointer(&m))) //nolint:errcheck
				procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m))) //nolint:errcheck
			}
			windows.SleepEx(50, false)
		}
	}
}

// anchor positions the window in the bottom-right of the current working
// area. Called on every show so resolution changes are picked up.
func (o *winOverlay) anchor(hwnd uintptr) {
	var wa rect
	procSystemParametersInfoW.Call(spiGetWorkArea, 0, uintptr(unsafe.Pointer(&wa)), 0) //nolint:errcheck
	x := wa.Right - overlayWidth - overlayMargin
	y := wa.Bottom - overlayHeight - overlayMargin
	procSetWindowPos.Call(hwnd, 0, uintptr(x), uintptr(y), //nolint:errcheck
		overlayWidth, overlayHeight, swpNoActivate)
}
