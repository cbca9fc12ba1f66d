package supervisor

import (
	"github.com/avaropoint/agentcore/internal/bridge"
	"github.com/avaropoint/agentcore/internal/inputsim"
	"github.com/avaropoint/agentcore/internal/protocol"
)

// DirectSink applies input events on the agent's own desktop through the
// input simulator. Used when the process holds an interactive desktop.
type DirectSink struct {
	Sim *inputsim.Simulator
}

// MouseEvent implements InputSink.
func (d *DirectSink) MouseEvent(payload []byte) error {
	var ev protocol.MouseEventPayload
	if err := protocol.DecodeJSON(payload, &ev); err != nil {
		return err
	}
	return d.Sim.Mouse(ev.Action, ev.X, ev.Y, ev.Button)
}

// KeyEvent implements InputSink.
func (d *DirectSink) KeyEvent(payload []byte) error {
	var ev protocol.KeyEventPayload
	if err := protocol.DecodeJSON(payload, &ev); err != nil {
		return err
	}
	return d.Sim.Key(ev.Action, ev.Key, ev.Modifiers)
}

// BridgeSink forwards input events across the session-0 bridge. Payloads
// go over the input pipe verbatim; the helper parses them in its session.
type BridgeSink struct {
	Bridge *bridge.Bridge
}

// MouseEvent implements InputSink.
func (b *BridgeSink) MouseEvent(payload []byte) error {
	return b.Bridge.SendMouse(payload)
}

// KeyEvent implements InputSink.
func (b *BridgeSink) KeyEvent(payload []byte) error {
	return b.Bridge.SendKey(payload)
}

// Notify implements Notifier, driving the helper's overlay.
func (b *BridgeSink) Notify(technicianName string, connected bool) error {
	return b.Bridge.Notify(technicianName, connected)
}
