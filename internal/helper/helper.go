// Package helper implements the capture/input sibling process the bridge
// spawns into the logged-on user's session. It serves single-byte quality
// requests on the capture pipe, executes framed mouse/key/notify commands
// from the input pipe, and owns the "session controlled by" overlay.
package helper

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"

	"github.com/avaropoint/agentcore/internal/bridge"
	"github.com/avaropoint/agentcore/internal/capture"
	"github.com/avaropoint/agentcore/internal/inputsim"
	"github.com/avaropoint/agentcore/internal/protocol"
)

// Run connects to the service's two pipes and serves until the capture
// pipe closes. It is the entry point for --capture-helper mode.
func Run(capturePath, inputPath string) error {
	capturePipe, err := dialPipe(capturePath)
	if err != nil {
		return fmt.Errorf("helper: open capture pipe: %w", err)
	}
	inputPipe, err := dialPipe(inputPath)
	if err != nil {
		capturePipe.Close() //nolint:errcheck
		return fmt.Errorf("helper: open input pipe: %w", err)
	}
	return Serve(capturePipe, inputPipe)
}

// Serve runs the helper loops over already-open pipes. Exposed so tests
// can drive a helper over in-memory pipes.
func Serve(capturePipe, inputPipe io.ReadWriteCloser) error {
	h := &helper{
		backend: capture.NewDirectBackend(hostGrabber()),
		sim:     inputsim.New(inputsim.NewHostPrimitives()),
		overlay: newOverlay(),
	}

	go h.inputLoop(inputPipe)

	err := h.captureLoop(capturePipe)
	inputPipe.Close() //nolint:errcheck
	h.overlay.Hide()
	return err
}

type helper struct {
	backend *capture.DirectBackend
	sim     *inputsim.Simulator
	overlay overlay
}

// captureLoop serves the request/response capture pipe: one quality byte
// in, [4B length BE][JPEG] out, with a zero length meaning "unchanged".
// The reserved zero quality byte clears the change-detection state and is
// answered with a zero length. The helper exits when this pipe closes.
func (h *helper) captureLoop(pipe io.ReadWriteCloser) error {
	defer pipe.Close() //nolint:errcheck

	var req [1]byte
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(pipe, req[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("helper: capture pipe read: %w", err)
		}

		quality := int(req[0])
		if req[0] == bridge.ResetQuality {
			h.backend = capture.NewDirectBackend(hostGrabber())
			binary.BigEndian.PutUint32(lenBuf[:], 0)
			if _, err := pipe.Write(lenBuf[:]); err != nil {
				return fmt.Errorf("helper: capture pipe write: %w", err)
			}
			continue
		}

		jpeg, unchanged, err := h.backend.Capture(context.Background(), quality)
		if err != nil {
			log.Printf("Capture failed: %v", err)
			unchanged = true // report "no new frame" rather than killing the pipe
		}
		if unchanged {
			jpeg = nil
		}

		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(jpeg)))
		if _, err := pipe.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("helper: capture pipe write: %w", err)
		}
		if len(jpeg) > 0 {
			if _, err := pipe.Write(jpeg); err != nil {
				return fmt.Errorf("helper: capture pipe write: %w", err)
			}
		}
	}
}

// inputLoop reads framed input commands (1 byte type, 4 byte big-endian
// length, JSON) and dispatches to the mouse, keyboard, and overlay
// handlers. It exits when its pipe closes.
func (h *helper) inputLoop(pipe io.ReadWriteCloser) {
	defer pipe.Close() //nolint:errcheck

	var header [5]byte
	for {
		if _, err := io.ReadFull(pipe, header[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(header[1:5])
		payload := make([]byte, n)
		if _, err := io.ReadFull(pipe, payload); err != nil {
			return
		}
		h.dispatchInput(header[0], payload)
	}
}

func (h *helper) dispatchInput(typ byte, payload []byte) {
	switch typ {
	case bridge.InputTypeMouse:
		var ev protocol.MouseEventPayload
		if err := protocol.DecodeJSON(payload, &ev); err != nil {
			log.Printf("Bad mouse payload: %v", err)
			return
		}
		if err := h.sim.Mouse(ev.Action, ev.X, ev.Y, ev.Button); err != nil {
			log.Printf("Mouse injection failed: %v", err)
		}
	case bridge.InputTypeKey:
		var ev protocol.KeyEventPayload
		if err := protocol.DecodeJSON(payload, &ev); err != nil {
			log.Printf("Bad key payload: %v", err)
			return
		}
		if err := h.sim.Key(ev.Action, ev.Key, ev.Modifiers); err != nil {
			log.Printf("Key injection skipped: %v", err)
		}
	case bridge.InputTypeNotify:
		var n bridge.NotifyPayload
		if err := protocol.DecodeJSON(payload, &n); err != nil {
			log.Printf("Bad notify payload: %v", err)
			return
		}
		if n.Connected {
			h.overlay.Show(n.TechnicianName)
		} else {
			h.overlay.Hide()
		}
	default:
		log.Printf("Unknown input frame type %d", typ)
	}
}

// overlay is the "Session controlled by" banner in the bottom-right of
// the primary display. Show may be called repeatedly; it re-anchors to
// the current working area each time.
type overlay interface {
	Show(technicianName string)
	Hide()
}
