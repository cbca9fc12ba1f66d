package protocol

import "encoding/binary"

// frameHeaderSize is the size of the FRAME payload's own inner header:
// 4 byte big-endian sequence + 4 byte big-endian timestamp, ahead of the
// JPEG bytes.
const frameHeaderSize = 8

// EncodeFramePayload builds the payload for a KindFrame message:
// [4B seq BE][4B timestamp_ms BE][JPEG bytes].
func EncodeFramePayload(seq, timestampMs uint32, jpeg []byte) []byte {
	buf := make([]byte, frameHeaderSize+len(jpeg))
	binary.BigEndian.PutUint32(buf[0:4], seq)
	binary.BigEndian.PutUint32(buf[4:8], timestampMs)
	copy(buf[8:], jpeg)
	return buf
}

// DecodeFramePayload parses a KindFrame payload into its sequence number,
// timestamp, and JPEG bytes (aliasing the input). A zero-length JPEG is a
// well-formed, if unusual, result.
func DecodeFramePayload(payload []byte) (seq, timestampMs uint32, jpeg []byte, err error) {
	if len(payload) < frameHeaderSize {
		return 0, 0, nil, ErrTruncated
	}
	seq = binary.BigEndian.Uint32(payload[0:4])
	timestampMs = binary.BigEndian.Uint32(payload[4:8])
	jpeg = payload[frameHeaderSize:]
	return seq, timestampMs, jpeg, nil
}
