package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		payload []byte
	}{
		{"auth", KindAuth, []byte(`{"agent_id":"a-1","token":"t","hostname":"H","os_info":"OS"}`)},
		{"auth_ok", KindAuthOK, []byte(`{"agent_id":"a-1"}`)},
		{"start_stream", KindStartStream, []byte(`{"quality":70,"fps_max":15}`)},
		{"frame", KindFrame, EncodeFramePayload(1, 42, []byte{0xFF, 0xD8, 0xFF})},
		{"mouse", KindMouseEvent, []byte(`{"x":100,"y":100,"button":0,"action":"click"}`)},
		{"key", KindKeyEvent, []byte(`{"key":"Enter","action":"down","modifiers":["ctrl"]}`)},
		{"stop_stream", KindStopStream, nil},
		{"heartbeat", KindHeartbeat, []byte(`{"uptime":10,"cpu":0,"mem":0}`)},
		{"heartbeat_ack", KindHeartbeatAck, nil},
		{"error", KindError, []byte(`{"code":"INVALID_TOKEN","message":"bad token"}`)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded, err := Encode(c.kind, c.payload)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			kind, payload, consumed, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if kind != c.kind {
				t.Errorf("kind = %v, want %v", kind, c.kind)
			}
			if consumed != len(encoded) {
				t.Errorf("consumed = %d, want %d", consumed, len(encoded))
			}
			if !bytes.Equal(payload, c.payload) && !(len(payload) == 0 && len(c.payload) == 0) {
				t.Errorf("payload = %v, want %v", payload, c.payload)
			}
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	full, err := Encode(KindAuth, []byte(`{"agent_id":"a"}`))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	for n := 0; n < len(full); n++ {
		if _, _, _, err := Decode(full[:n]); !errors.Is(err, ErrTruncated) {
			t.Errorf("Decode(full[:%d]) = %v, want ErrTruncated", n, err)
		}
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	encoded, err := Encode(Kind(0x42), []byte("x"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, _, consumed, err := Decode(encoded)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Decode = %v, want ErrUnknownKind", err)
	}
	if consumed != len(encoded) {
		t.Errorf("consumed = %d, want %d (should still advance past the frame)", consumed, len(encoded))
	}
}

func TestEncodeDecodeEmptyFramePayload(t *testing.T) {
	// A FRAME whose JPEG length is 0 must decode cleanly.
	payload := EncodeFramePayload(7, 1500, nil)
	encoded, err := Encode(KindFrame, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	kind, decodedPayload, _, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != KindFrame {
		t.Fatalf("kind = %v, want KindFrame", kind)
	}

	seq, ts, jpeg, err := DecodeFramePayload(decodedPayload)
	if err != nil {
		t.Fatalf("DecodeFramePayload: %v", err)
	}
	if seq != 7 || ts != 1500 || len(jpeg) != 0 {
		t.Errorf("got seq=%d ts=%d len(jpeg)=%d", seq, ts, len(jpeg))
	}
}

func TestDecodeJSONMalformed(t *testing.T) {
	var v AuthPayload
	err := DecodeJSON([]byte("{not json"), &v)
	if !errors.Is(err, ErrMalformedJSON) {
		t.Fatalf("DecodeJSON = %v, want ErrMalformedJSON", err)
	}
}

func TestDecodeJSONIgnoresUnknownFields(t *testing.T) {
	var v StartStreamPayload
	err := DecodeJSON([]byte(`{"quality":70,"fps_max":15,"extra_field":"ignored"}`), &v)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if v.Quality != 70 || v.FPSMax != 15 {
		t.Errorf("got %+v", v)
	}
}
