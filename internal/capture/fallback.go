package capture

// NewFallbackBackend returns a Provider that always renders the synthetic
// test pattern. Used when the process is interactive but no ScreenGrabber
// is registered for the host platform, so the stream stays alive instead
// of erroring out.
func NewFallbackBackend() *DirectBackend {
	return NewDirectBackend(nil)
}
