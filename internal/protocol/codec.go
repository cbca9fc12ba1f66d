package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the fixed size of the frame header: 1 byte kind + 4 byte
// big-endian payload length.
const HeaderSize = 5

// MaxPayloadSize is the ceiling this implementation imposes on decoded
// payloads. The wire format allows up to 2^32-1; this lower ceiling
// guards against a misbehaving peer forcing an unbounded allocation.
const MaxPayloadSize = 64 << 20 // 64 MiB

// Errors returned by Decode.
var (
	// ErrTruncated is returned when the buffer is shorter than the header
	// declares (5 + N bytes).
	ErrTruncated = errors.New("protocol: truncated frame")
	// ErrUnknownKind is returned when the header's kind byte is outside
	// the enumerated set. Callers should log and continue; the link is
	// not torn down by this error alone.
	ErrUnknownKind = errors.New("protocol: unknown message kind")
	// ErrPayloadTooLarge is returned by Encode when the payload length
	// would overflow the 4-byte length field, and by Decode when a
	// declared length exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
)

// Encode frames a message: 1 byte kind, 4 byte big-endian length, then the
// payload verbatim. Payload may be nil or empty (STOP_STREAM, HEARTBEAT_ACK).
func Encode(kind Kind, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf, nil
}

// Decode parses a single frame from the front of buf. It returns the kind,
// the payload slice (aliasing buf), and the number of bytes consumed.
//
// Decode validates only the header and the declared kind; JSON payload
// parsing is the caller's responsibility (see DecodeJSON).
func Decode(buf []byte) (kind Kind, payload []byte, consumed int, err error) {
	if len(buf) < HeaderSize {
		return 0, nil, 0, ErrTruncated
	}

	k := Kind(buf[0])
	n := binary.BigEndian.Uint32(buf[1:5])

	if uint64(n) > MaxPayloadSize {
		return 0, nil, 0, fmt.Errorf("%w: declared %d bytes", ErrPayloadTooLarge, n)
	}

	total := HeaderSize + int(n)
	if len(buf) < total {
		return 0, nil, 0, ErrTruncated
	}

	if !knownKinds[k] {
		return k, nil, total, ErrUnknownKind
	}

	return k, buf[HeaderSize:total], total, nil
}
