//go:build !windows

package main

// hasInteractiveDesktop is always true off Windows: there is no session 0
// and the process shares the user's desktop.
func hasInteractiveDesktop() bool {
	return true
}
