// Package bridge ferries screen capture and input injection across the
// session boundary when the agent runs without an interactive desktop. It
// spawns a helper copy of this executable into the logged-on user's
// session and owns the two named pipes between them: a request/response
// capture pipe and a one-way input pipe.
package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avaropoint/agentcore/internal/protocol"
)

// Errors surfaced to the capture path. Both are reported as capture
// errors by the supervisor; a later START_STREAM retries the spawn.
var (
	// ErrNoInteractiveSession means no user session is available to host
	// the helper.
	ErrNoInteractiveSession = errors.New("bridge: no interactive session")
	// ErrHelperDidNotConnect means the helper was spawned but did not
	// open both pipes within the connect timeout.
	ErrHelperDidNotConnect = errors.New("bridge: helper did not connect")
)

// Input pipe frame types, shared with package helper.
const (
	InputTypeMouse  byte = 1
	InputTypeKey    byte = 2
	InputTypeNotify byte = 3
)

// ResetQuality is the reserved quality byte that asks the helper to
// forget its stored frame fingerprint. Real quality values are clamped to
// 1..100 before hitting the wire, so zero is free for this probe; the
// helper answers it with an empty (length 0) response.
const ResetQuality byte = 0

// NotifyPayload is the JSON body of a type-3 input pipe frame, driving
// the helper's on-screen overlay.
type NotifyPayload struct {
	TechnicianName string `json:"technician_name"`
	Connected      bool   `json:"connected"`
}

// Process is the handle the bridge keeps on a spawned helper.
type Process interface {
	Kill() error
}

// pipeListener is one named-pipe server endpoint awaiting its helper-side
// client. Accept transfers ownership of the connection; Close tears the
// endpoint down (and aborts a pending Accept).
type pipeListener interface {
	Accept() (io.ReadWriteCloser, error)
	Close() error
	Path() string
}

// Bridge owns the helper process and both pipes. All methods are safe for
// concurrent use: pipe lifecycle is guarded by mu, and input writes are
// additionally serialised by inputMu so multi-part framed writes cannot
// interleave.
type Bridge struct {
	// ConnectTimeout bounds the wait for a spawned helper to open both
	// pipes. Zero means the 10 second default.
	ConnectTimeout time.Duration

	// SpawnFunc launches the helper executable in the given session with
	// the two pipe paths on its command line. Overridable in tests; nil
	// means the platform spawner.
	SpawnFunc func(sessionID uint32, capturePath, inputPath string) (Process, error)

	// ResolveSessionFunc picks the user session for a new helper when no
	// explicit target is set. Overridable in tests; nil means the
	// platform resolver.
	ResolveSessionFunc func() (uint32, error)

	mu             sync.Mutex
	capturePipe    io.ReadWriteCloser
	inputPipe      io.ReadWriteCloser
	proc           Process
	targetSession  uint32
	targetExplicit bool

	inputMu sync.Mutex
}

// New returns an idle Bridge; the helper is spawned lazily by the first
// capture or input request.
func New() *Bridge {
	return &Bridge{}
}

func (b *Bridge) connectTimeout() time.Duration {
	if b.ConnectTimeout > 0 {
		return b.ConnectTimeout
	}
	return 10 * time.Second
}

// SelectSession targets a specific user session. Both pipes are disposed;
// the next capture request re-spawns the helper in session id.
func (b *Bridge) SelectSession(id uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposeLocked(false)
	b.targetSession = id
	b.targetExplicit = true
}

// Close tears down the helper and both pipes.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposeLocked(false)
	return nil
}

// disposeLocked closes both pipes and kills the helper. When clearTarget
// is set an explicitly selected session is forgotten, so the next spawn
// falls back to automatic resolution. Caller holds mu.
func (b *Bridge) disposeLocked(clearTarget bool) {
	if b.capturePipe != nil {
		b.capturePipe.Close() //nolint:errcheck
		b.capturePipe = nil
	}
	if b.inputPipe != nil {
		b.inputPipe.Close() //nolint:errcheck
		b.inputPipe = nil
	}
	if b.proc != nil {
		b.proc.Kill() //nolint:errcheck
		b.proc = nil
	}
	if clearTarget && b.targetExplicit {
		b.targetExplicit = false
		b.targetSession = 0
	}
}

// ensureHelperLocked spawns the helper and connects both pipes if they
// are not already live. Caller holds mu.
func (b *Bridge) ensureHelperLocked(ctx context.Context) error {
	if b.capturePipe != nil && b.inputPipe != nil {
		return nil
	}
	b.disposeLocked(false)

	session := b.targetSession
	if !b.targetExplicit {
		resolve := b.ResolveSessionFunc
		if resolve == nil {
			resolve = resolveTargetSession
		}
		var err error
		session, err = resolve()
		if err != nil {
			return err
		}
	}

	captureName := "capture-" + uuid.NewString()
	inputName := "input-" + uuid.NewString()

	captureLn, err := listenHelperPipe(captureName)
	if err != nil {
		return fmt.Errorf("bridge: create capture pipe: %w", err)
	}
	inputLn, err := listenHelperPipe(inputName)
	if err != nil {
		captureLn.Close() //nolint:errcheck
		return fmt.Errorf("bridge: create input pipe: %w", err)
	}

	spawn := b.SpawnFunc
	if spawn == nil {
		spawn = startHelper
	}
	proc, err := spawn(session, captureLn.Path(), inputLn.Path())
	if err != nil {
		captureLn.Close() //nolint:errcheck
		inputLn.Close()   //nolint:errcheck
		return fmt.Errorf("bridge: spawn helper in session %d: %w", session, err)
	}

	capturePipe, inputPipe, err := acceptBoth(ctx, captureLn, inputLn, b.connectTimeout())
	if err != nil {
		proc.Kill() //nolint:errcheck
		return err
	}

	log.Printf("Helper connected in session %d", session)
	b.capturePipe = capturePipe
	b.inputPipe = inputPipe
	b.proc = proc
	return nil
}

// acceptBoth waits for the helper to connect both pipes, bounded by
// timeout and by ctx.
func acceptBoth(ctx context.Context, captureLn, inputLn pipeListener, timeout time.Duration) (io.ReadWriteCloser, io.ReadWriteCloser, error) {
	type result struct {
		conn io.ReadWriteCloser
		err  error
	}
	captureCh := make(chan result, 1)
	inputCh := make(chan result, 1)
	go func() {
		c, err := captureLn.Accept()
		captureCh <- result{c, err}
	}()
	go func() {
		c, err := inputLn.Accept()
		inputCh <- result{c, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var capturePipe, inputPipe io.ReadWriteCloser
	pending := 2
	for pending > 0 {
		select {
		case r := <-captureCh:
			if r.err != nil {
				abortAccept(captureLn, inputLn, capturePipe, inputPipe)
				return nil, nil, fmt.Errorf("%w: %v", ErrHelperDidNotConnect, r.err)
			}
			capturePipe = r.conn
			pending--
		case r := <-inputCh:
			if r.err != nil {
				abortAccept(captureLn, inputLn, capturePipe, inputPipe)
				return nil, nil, fmt.Errorf("%w: %v", ErrHelperDidNotConnect, r.err)
			}
			inputPipe = r.conn
			pending--
		case <-timer.C:
			abortAccept(captureLn, inputLn, capturePipe, inputPipe)
			return nil, nil, ErrHelperDidNotConnect
		case <-ctx.Done():
			abortAccept(captureLn, inputLn, capturePipe, inputPipe)
			return nil, nil, ctx.Err()
		}
	}

	captureLn.Close() //nolint:errcheck
	inputLn.Close()   //nolint:errcheck
	return capturePipe, inputPipe, nil
}

func abortAccept(captureLn, inputLn pipeListener, conns ...io.ReadWriteCloser) {
	captureLn.Close() //nolint:errcheck
	inputLn.Close()   //nolint:errcheck
	for _, c := range conns {
		if c != nil {
			c.Close() //nolint:errcheck
		}
	}
}

// Capture implements the capture-pipe request/response: one quality byte
// out, a 4-byte big-endian length plus JPEG back. A zero length means the
// display is unchanged. Any pipe error disposes the helper so the next
// request re-spawns it.
func (b *Bridge) Capture(ctx context.Context, quality int) (jpeg []byte, unchanged bool, err error) {
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}
	data, err := b.captureRequest(ctx, byte(quality))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, true, nil
	}
	return data, false, nil
}

// ResetChangeDetection sends the reserved zero quality byte so the helper
// forgets its stored frame fingerprint. Called at stream start so a fresh
// stream's first capture is never suppressed by state left over from a
// previous stream.
func (b *Bridge) ResetChangeDetection(ctx context.Context) error {
	_, err := b.captureRequest(ctx, ResetQuality)
	return err
}

func (b *Bridge) captureRequest(ctx context.Context, quality byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureHelperLocked(ctx); err != nil {
		return nil, err
	}

	if _, err := b.capturePipe.Write([]byte{quality}); err != nil {
		b.disposeLocked(true)
		return nil, fmt.Errorf("bridge: capture request: %w", err)
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(b.capturePipe, lenBuf[:]); err != nil {
		b.disposeLocked(true)
		return nil, fmt.Errorf("bridge: capture response: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(b.capturePipe, data); err != nil {
		b.disposeLocked(true)
		return nil, fmt.Errorf("bridge: capture response body: %w", err)
	}
	return data, nil
}

// SendMouse forwards a MOUSE_EVENT JSON payload to the helper.
func (b *Bridge) SendMouse(payload []byte) error {
	return b.sendInput(InputTypeMouse, payload)
}

// SendKey forwards a KEY_EVENT JSON payload to the helper.
func (b *Bridge) SendKey(payload []byte) error {
	return b.sendInput(InputTypeKey, payload)
}

// Notify drives the helper's overlay: shown with the technician's name
// while connected, hidden otherwise.
func (b *Bridge) Notify(technicianName string, connected bool) error {
	payload, err := protocol.EncodeJSON(NotifyPayload{TechnicianName: technicianName, Connected: connected})
	if err != nil {
		return err
	}
	return b.sendInput(InputTypeNotify, payload)
}

// sendInput writes one framed message on the input pipe: 1 byte type,
// 4 byte big-endian length, JSON. The helper is spawned on demand so
// input events arriving before any capture request are still applied.
func (b *Bridge) sendInput(typ byte, payload []byte) error {
	b.inputMu.Lock()
	defer b.inputMu.Unlock()

	b.mu.Lock()
	if err := b.ensureHelperLocked(context.Background()); err != nil {
		b.mu.Unlock()
		return err
	}
	pipe := b.inputPipe
	b.mu.Unlock()

	frame := make([]byte, 5+len(payload))
	frame[0] = typ
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(payload)))
	copy(frame[5:], payload)

	if _, err := pipe.Write(frame); err != nil {
		b.mu.Lock()
		b.disposeLocked(true)
		b.mu.Unlock()
		return fmt.Errorf("bridge: input send: %w", err)
	}
	return nil
}
