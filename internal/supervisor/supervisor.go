// Package supervisor owns the agent's connection lifecycle: dial, the
// authentication handshake, the heartbeat and capture tasks, dispatch of
// console messages, and reconnection with exponential backoff. Run is the
// only entry point and returns only when the outer context is cancelled.
package supervisor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/avaropoint/agentcore/internal/capture"
	"github.com/avaropoint/agentcore/internal/config"
	"github.com/avaropoint/agentcore/internal/hostmetrics"
	"github.com/avaropoint/agentcore/internal/protocol"
	"github.com/avaropoint/agentcore/internal/transport"
)

// InputSink applies console input events on the local desktop, either
// directly or across the session-0 bridge. Payloads are the raw JSON
// bodies from the wire.
type InputSink interface {
	MouseEvent(payload []byte) error
	KeyEvent(payload []byte) error
}

// Notifier is implemented by sinks that can drive the helper's
// "session controlled by" overlay.
type Notifier interface {
	Notify(technicianName string, connected bool) error
}

// Supervisor drives one agent's session with the console.
type Supervisor struct {
	Config   config.Config
	Identity protocol.AuthPayload
	Dialer   transport.Dialer

	// NewProvider returns a fresh capture provider for one stream. A new
	// provider per START_STREAM keeps previous-frame state stream-local.
	NewProvider func() capture.Provider

	Input   InputSink
	Sampler *hostmetrics.Sampler

	// Sleep is the cancellable sleep used for backoff, heartbeat cadence,
	// and frame pacing. Nil means real time; tests substitute a fake.
	Sleep func(ctx context.Context, d time.Duration) error

	// Stream state preserved across reconnects so an active capture is
	// resumed with the same quality and fps after re-authentication.
	// Guarded by smu: the dispatch loop and the capture task both touch it.
	smu         sync.Mutex
	wasActive   bool
	lastQuality int
	lastFPSMax  int
}

func (s *Supervisor) rememberStream(quality, fpsMax int) {
	s.smu.Lock()
	defer s.smu.Unlock()
	s.wasActive = true
	s.lastQuality = quality
	s.lastFPSMax = fpsMax
}

func (s *Supervisor) clearStream() {
	s.smu.Lock()
	defer s.smu.Unlock()
	s.wasActive = false
}

func (s *Supervisor) streamMemory() (active bool, quality, fpsMax int) {
	s.smu.Lock()
	defer s.smu.Unlock()
	return s.wasActive, s.lastQuality, s.lastFPSMax
}

// Backoff returns the reconnect delay after n consecutive failures:
// min(2^n, 60) seconds.
func Backoff(n int) time.Duration {
	if n >= 6 {
		return 60 * time.Second
	}
	return time.Duration(1<<uint(n)) * time.Second
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run connects, authenticates, and serves until ctx is cancelled. Every
// failure path falls back here for backoff and reconnection; credentials
// and the was-active stream memory are never discarded.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for ctx.Err() == nil {
		conn, err := s.Dialer.Dial(ctx, s.Config.ConsoleURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			log.Printf("Connect failed (attempt %d): %v", attempt, err)
			if s.sleep(ctx, Backoff(attempt)) != nil {
				return nil
			}
			continue
		}

		ready := s.runSession(ctx, conn, &attempt)
		conn.Close() //nolint:errcheck

		if ctx.Err() != nil {
			return nil
		}
		attempt++
		if !ready {
			log.Printf("Session ended before ready (attempt %d)", attempt)
		} else {
			log.Printf("Disconnected, reconnecting")
		}
		if s.sleep(ctx, Backoff(attempt)) != nil {
			return nil
		}
	}
	return nil
}
