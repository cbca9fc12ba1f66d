package supervisor

import (
	"context"
	"log"
	"time"

	"github.com/avaropoint/agentcore/internal/protocol"
)

// captureTask is the one goroutine that captures and sends frames for the
// current stream. It owns the sequence counter and timestamp origin.
type captureTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startCapture launches a fresh capture task. Any previous task must have
// been stopped first.
func (sess *session) startCapture(quality, fpsMax int) {
	if fpsMax < 1 {
		fpsMax = 1
	}
	ctx, cancel := context.WithCancel(sess.ctx)
	task := &captureTask{cancel: cancel, done: make(chan struct{})}

	sess.mu.Lock()
	sess.capture = task
	sess.mu.Unlock()

	go sess.captureLoop(ctx, task, quality, fpsMax)
}

// stopCapture cancels the current capture task, if any, and waits up to
// 2 seconds for it to wind down. A task stuck in a blocked provider call
// is abandoned; its context is cancelled, so it can no longer send.
func (sess *session) stopCapture() {
	sess.mu.Lock()
	task := sess.capture
	sess.capture = nil
	sess.mu.Unlock()

	if task == nil {
		return
	}
	task.cancel()
	select {
	case <-task.done:
	case <-time.After(2 * time.Second):
		log.Println("Capture task did not stop in time, abandoning")
	}
}

// captureLoop emits FRAME messages until cancelled, bounded by fpsMax.
// Unchanged captures send nothing. Provider errors end the stream but not
// the session; send failures end the session.
func (sess *session) captureLoop(ctx context.Context, task *captureTask, quality, fpsMax int) {
	defer close(task.done)

	provider := sess.sup.NewProvider()
	interval := time.Second / time.Duration(fpsMax)
	origin := time.Now()
	var seq uint32

	for ctx.Err() == nil {
		iterStart := time.Now()

		jpeg, unchanged, err := provider.Capture(ctx, quality)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Capture errors clear the stream and keep the session; the
			// console re-issues START_STREAM when it wants.
			log.Printf("Capture failed, stopping stream: %v", err)
			sess.sup.clearStream()
			sess.mu.Lock()
			if sess.capture == task {
				sess.capture = nil
			}
			sess.mu.Unlock()
			return
		}

		if !unchanged {
			seq++
			ts := uint32(time.Since(origin).Milliseconds())
			frame, err := protocol.Encode(protocol.KindFrame, protocol.EncodeFramePayload(seq, ts, jpeg))
			if err != nil {
				log.Printf("Frame encode failed: %v", err)
				continue
			}
			if err := sess.conn.SendBinary(ctx, frame); err != nil {
				if ctx.Err() == nil {
					log.Printf("Frame send failed: %v", err)
					sess.cancel()
				}
				return
			}
		}

		// Best-effort pacing: an overlong iteration just runs the next
		// one immediately, with no catch-up arrears.
		if remaining := interval - time.Since(iterStart); remaining > 0 {
			if sess.sup.sleep(ctx, remaining) != nil {
				return
			}
		}
	}
}
