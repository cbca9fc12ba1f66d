package capture

import "time"

// testPatternWidth and testPatternHeight size the synthetic pattern used
// when no real screen grabber is wired in.
const (
	testPatternWidth  = 800
	testPatternHeight = 600
)

// TestPattern generates a deterministic synthetic frame: a gradient
// background, a grid overlay, and a dot that sweeps left to right once a
// minute. It exists so the capture pipeline has something to stream when
// the real OS-specific grabber (out of scope for this system) isn't
// wired in, and so tests can exercise change suppression without a
// display.
type TestPattern struct {
	// Now returns the current time; overridable so tests can freeze the
	// sweeping dot and assert exact byte-for-byte repeats.
	Now func() time.Time
}

// NewTestPattern returns a TestPattern driven by the real clock.
func NewTestPattern() *TestPattern {
	return &TestPattern{Now: time.Now}
}

// Generate renders one frame of the pattern as a packed RGBA buffer.
func (p *TestPattern) Generate() PixelBuffer {
	const width, height = testPatternWidth, testPatternHeight
	stride := width * 4
	pix := make([]byte, stride*height)

	for y := 0; y < height; y++ {
		g := byte(50 + (y * 100 / height))
		off := y * stride
		for x := 0; x < width; x++ {
			i := off + x*4
			pix[i+0] = byte(50 + (x * 100 / width)) // R
			pix[i+1] = g                            // G
			pix[i+2] = 100                           // B
			pix[i+3] = 255                           // A
		}
	}

	for x := 0; x < width; x += 50 {
		for y := 0; y < height; y++ {
			i := y*stride + x*4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, 255, 255, 100
		}
	}
	for y := 0; y < height; y += 50 {
		off := y * stride
		for x := 0; x < width; x++ {
			i := off + x*4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, 255, 255, 100
		}
	}

	t := p.Now().Second()
	cx := (t * width) / 60
	for dy := -5; dy <= 5; dy++ {
		for dx := -5; dx <= 5; dx++ {
			if dx*dx+dy*dy <= 25 {
				px, py := cx+dx, height/2+dy
				if px >= 0 && px < width && py >= 0 && py < height {
					i := py*stride + px*4
					pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, 100, 100, 255
				}
			}
		}
	}

	return PixelBuffer{Pix: pix, Width: width, Height: height}
}
