package bridge

import (
	"context"

	"github.com/avaropoint/agentcore/internal/capture"
)

// streamProvider adapts the bridge to capture.Provider for the lifetime
// of one stream. Its first request clears the helper's stored frame
// fingerprint, mirroring how the direct backend starts each stream with
// no previous-frame state.
type streamProvider struct {
	b     *Bridge
	reset bool
}

// NewStreamProvider returns a capture.Provider backed by this bridge.
// Construct a fresh one for every START_STREAM.
func (b *Bridge) NewStreamProvider() capture.Provider {
	return &streamProvider{b: b}
}

func (p *streamProvider) Capture(ctx context.Context, quality int) ([]byte, bool, error) {
	if !p.reset {
		if err := p.b.ResetChangeDetection(ctx); err != nil {
			return nil, false, err
		}
		p.reset = true
	}
	return p.b.Capture(ctx, quality)
}
