package main

import (
	"golang.org/x/sys/windows"
)

// hasInteractiveDesktop reports whether this process can touch the
// interactive desktop directly. A service runs in session 0, where every
// capture and input call must go through the bridge instead.
func hasInteractiveDesktop() bool {
	var session uint32
	if err := windows.ProcessIdToSessionId(windows.GetCurrentProcessId(), &session); err != nil {
		return false
	}
	return session != 0
}
