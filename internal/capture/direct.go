package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
)

// DirectBackend grabs the primary display through an injected
// ScreenGrabber, digests the pixel buffer, and either reports "unchanged"
// or JPEG-encodes the frame. Construct a fresh DirectBackend for every
// START_STREAM: its fingerprint is local state, not a long-lived cache.
//
// If grabber is nil, DirectBackend behaves like FallbackBackend — this is
// the out-of-scope OS primitive being absent, not an error condition.
type DirectBackend struct {
	grabber ScreenGrabber
	pattern *TestPattern

	hasFingerprint  bool
	lastFingerprint fingerprint
	lastLen         int
}

// NewDirectBackend constructs a DirectBackend around grabber. Pass nil to
// get a backend that always falls back to the synthetic test pattern
// (used on platforms or builds where no grabber is registered).
func NewDirectBackend(grabber ScreenGrabber) *DirectBackend {
	return &DirectBackend{grabber: grabber, pattern: NewTestPattern()}
}

// Capture implements Provider.
func (d *DirectBackend) Capture(ctx context.Context, quality int) ([]byte, bool, error) {
	var buf PixelBuffer
	if d.grabber != nil {
		var err error
		buf, err = d.grabber.Grab()
		if err != nil {
			return nil, false, fmt.Errorf("capture: grab: %w", err)
		}
	} else {
		buf = d.pattern.Generate()
	}

	fp, err := digest(buf)
	if err != nil {
		return nil, false, fmt.Errorf("capture: digest: %w", err)
	}

	if d.hasFingerprint && fp == d.lastFingerprint && len(buf.Pix) == d.lastLen {
		return nil, true, nil
	}
	d.hasFingerprint = true
	d.lastFingerprint = fp
	d.lastLen = len(buf.Pix)

	jpegBytes, err := encodeJPEG(buf, quality)
	if err != nil {
		return nil, false, fmt.Errorf("capture: encode: %w", err)
	}
	return jpegBytes, false, nil
}

// encodeJPEG encodes a packed RGBA pixel buffer at the given quality
// (1..100, clamped).
func encodeJPEG(buf PixelBuffer, quality int) ([]byte, error) {
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}

	img := &image.RGBA{
		Pix:    buf.Pix,
		Stride: buf.Width * 4,
		Rect:   image.Rect(0, 0, buf.Width, buf.Height),
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
