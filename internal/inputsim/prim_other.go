//go:build !windows && !linux && !darwin

package inputsim

import (
	"log"
	"runtime"
	"sync"
)

// unsupportedPrimitives logs once and drops every event on platforms with
// no injection backend.
type unsupportedPrimitives struct {
	once sync.Once
}

// NewHostPrimitives returns a no-op backend for unsupported platforms.
func NewHostPrimitives() Primitives {
	return &unsupportedPrimitives{}
}

func (p *unsupportedPrimitives) warn() {
	p.once.Do(func() {
		log.Printf("Input injection not supported on %s", runtime.GOOS)
	})
}

func (p *unsupportedPrimitives) MoveMouse(int, int) error        { p.warn(); return nil }
func (p *unsupportedPrimitives) MouseButton(int, bool) error     { p.warn(); return nil }
func (p *unsupportedPrimitives) PressKey(string, uint16) error   { p.warn(); return nil }
func (p *unsupportedPrimitives) ReleaseKey(string, uint16) error { p.warn(); return nil }
