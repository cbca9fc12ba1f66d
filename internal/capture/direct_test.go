package capture

import (
	"context"
	"testing"
	"time"
)

type fakeGrabber struct {
	buf PixelBuffer
	err error
}

func (f fakeGrabber) Grab() (PixelBuffer, error) { return f.buf, f.err }

func solidBuffer(w, h int, r, g, b byte) PixelBuffer {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 255
	}
	return PixelBuffer{Pix: pix, Width: w, Height: h}
}

func TestDirectBackendSuppressesUnchangedFrames(t *testing.T) {
	buf := solidBuffer(4, 4, 10, 20, 30)
	backend := NewDirectBackend(fakeGrabber{buf: buf})

	jpeg1, unchanged1, err := backend.Capture(context.Background(), 70)
	if err != nil {
		t.Fatalf("first capture: %v", err)
	}
	if unchanged1 || len(jpeg1) == 0 {
		t.Fatalf("first capture should emit a frame, got unchanged=%v len=%d", unchanged1, len(jpeg1))
	}

	_, unchanged2, err := backend.Capture(context.Background(), 70)
	if err != nil {
		t.Fatalf("second capture: %v", err)
	}
	if !unchanged2 {
		t.Fatalf("second identical capture should report unchanged")
	}
}

func TestDirectBackendResolutionChangeForcesMiss(t *testing.T) {
	small := solidBuffer(4, 4, 1, 1, 1)
	large := solidBuffer(8, 8, 1, 1, 1)

	grabber := &swappableGrabber{buf: small}
	backend := NewDirectBackend(grabber)

	if _, unchanged, err := backend.Capture(context.Background(), 70); err != nil || unchanged {
		t.Fatalf("first capture: unchanged=%v err=%v", unchanged, err)
	}

	grabber.buf = large
	_, unchanged, err := backend.Capture(context.Background(), 70)
	if err != nil {
		t.Fatalf("second capture: %v", err)
	}
	if unchanged {
		t.Fatalf("resolution change must force a cache miss")
	}
}

type swappableGrabber struct{ buf PixelBuffer }

func (s *swappableGrabber) Grab() (PixelBuffer, error) { return s.buf, nil }

func TestFallbackBackendStaticPatternEmitsOnce(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := NewFallbackBackend()
	backend.pattern.Now = func() time.Time { return fixed }

	_, unchanged1, err := backend.Capture(context.Background(), 70)
	if err != nil || unchanged1 {
		t.Fatalf("first capture: unchanged=%v err=%v", unchanged1, err)
	}

	_, unchanged2, err := backend.Capture(context.Background(), 70)
	if err != nil {
		t.Fatalf("second capture: %v", err)
	}
	if !unchanged2 {
		t.Fatalf("static clock should produce byte-identical frames")
	}
}

func TestEncodeJPEGClampsQuality(t *testing.T) {
	buf := solidBuffer(2, 2, 5, 5, 5)
	if _, err := encodeJPEG(buf, 0); err != nil {
		t.Fatalf("quality 0: %v", err)
	}
	if _, err := encodeJPEG(buf, 1000); err != nil {
		t.Fatalf("quality 1000: %v", err)
	}
}
