package capture

import "golang.org/x/crypto/blake2b"

// fingerprint is a 128-bit digest of a captured pixel buffer, used
// exclusively for change detection between consecutive captures.
type fingerprint [16]byte

// digest computes the blake2b-128 digest of a pixel buffer. Width and
// height are folded in ahead of the pixel bytes so that a resolution
// change is guaranteed to change the digest even in the (astronomically
// unlikely) case of a colliding pixel payload.
func digest(buf PixelBuffer) (fingerprint, error) {
	h, err := blake2b.New(16, nil)
	if err != nil {
		return fingerprint{}, err
	}
	var dims [8]byte
	dims[0] = byte(buf.Width)
	dims[1] = byte(buf.Width >> 8)
	dims[2] = byte(buf.Width >> 16)
	dims[3] = byte(buf.Width >> 24)
	dims[4] = byte(buf.Height)
	dims[5] = byte(buf.Height >> 8)
	dims[6] = byte(buf.Height >> 16)
	dims[7] = byte(buf.Height >> 24)

	h.Write(dims[:])  //nolint:errcheck
	h.Write(buf.Pix)  //nolint:errcheck

	var out fingerprint
	copy(out[:], h.Sum(nil))
	return out, nil
}
