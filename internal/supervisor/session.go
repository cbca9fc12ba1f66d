package supervisor

import (
	"context"
	"log"
	"sync"

	"github.com/avaropoint/agentcore/internal/protocol"
	"github.com/avaropoint/agentcore/internal/transport"
)

// session holds per-connection state. It lives from a successful dial to
// the connection's close and is discarded with it.
type session struct {
	sup    *Supervisor
	conn   transport.Conn
	ctx    context.Context
	cancel context.CancelFunc // tears the whole session down

	mu      sync.Mutex
	capture *captureTask
}

// runSession authenticates and serves one connection. It reports whether
// the session reached ready (which resets the caller's backoff counter).
func (s *Supervisor) runSession(ctx context.Context, conn transport.Conn, attempt *int) bool {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := &session{sup: s, conn: conn, ctx: sctx, cancel: cancel}

	if err := sess.authenticate(); err != nil {
		log.Printf("Authentication failed: %v", err)
		return false
	}
	*attempt = 0
	log.Println("Authenticated with console")

	go sess.heartbeatLoop()

	// Resume a stream that was active when the previous connection
	// dropped, with the remembered quality and fps but a fresh sequence
	// and timestamp origin.
	if active, quality, fpsMax := s.streamMemory(); active {
		log.Printf("Resuming stream (quality=%d fps_max=%d)", quality, fpsMax)
		sess.startCapture(quality, fpsMax)
	}

	sess.receiveLoop()

	sess.stopCapture()
	return true
}

// authenticate sends AUTH as the connection's first outbound bytes and
// waits for exactly one reply, bounded by the auth timeout. Anything but
// AUTH_OK fails the session.
func (sess *session) authenticate() error {
	payload, err := protocol.EncodeJSON(sess.sup.Identity)
	if err != nil {
		return err
	}
	frame, err := protocol.Encode(protocol.KindAuth, payload)
	if err != nil {
		return err
	}
	if err := sess.conn.SendBinary(sess.ctx, frame); err != nil {
		return err
	}

	actx, cancel := context.WithTimeout(sess.ctx, sess.sup.Config.AuthTimeout)
	defer cancel()

	data, err := sess.conn.Receive(actx)
	if err != nil {
		return err
	}
	kind, body, _, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	switch kind {
	case protocol.KindAuthOK:
		var ok protocol.AuthOKPayload
		if err := protocol.DecodeJSON(body, &ok); err != nil {
			return err
		}
		return nil
	case protocol.KindError:
		var e protocol.ErrorPayload
		protocol.DecodeJSON(body, &e) //nolint:errcheck
		return &AuthError{Code: e.Code, Message: e.Message}
	default:
		return &AuthError{Code: "UNEXPECTED_KIND", Message: kind.String()}
	}
}

// AuthError is a console rejection (or unexpected reply) during the
// authentication handshake.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return "auth rejected: " + e.Code + " " + e.Message
}

// heartbeatLoop sends HEARTBEAT on a fixed cadence until the session
// ends. A send failure is fatal to the session.
func (sess *session) heartbeatLoop() {
	for {
		if sess.sup.sleep(sess.ctx, sess.sup.Config.HeartbeatInterval) != nil {
			return
		}
		m := sess.sup.Sampler.Sample()
		payload, err := protocol.EncodeJSON(protocol.HeartbeatPayload{
			Uptime: m.Uptime,
			CPU:    m.CPU,
			Mem:    m.Mem,
		})
		if err != nil {
			log.Printf("Heartbeat encode failed: %v", err)
			continue
		}
		frame, err := protocol.Encode(protocol.KindHeartbeat, payload)
		if err != nil {
			log.Printf("Heartbeat encode failed: %v", err)
			continue
		}
		if err := sess.conn.SendBinary(sess.ctx, frame); err != nil {
			log.Printf("Heartbeat send failed: %v", err)
			sess.cancel()
			return
		}
	}
}

// receiveLoop is the session's dispatch loop. It returns when the
// connection or the session context dies.
func (sess *session) receiveLoop() {
	for {
		data, err := sess.conn.Receive(sess.ctx)
		if err != nil {
			if sess.ctx.Err() == nil {
				log.Printf("Receive failed: %v", err)
			}
			return
		}
		kind, payload, _, err := protocol.Decode(data)
		if err != nil {
			// Protocol anomalies are logged and the link stays up.
			log.Printf("Undecodable message (kind=%#02x): %v", byte(kind), err)
			continue
		}
		sess.dispatch(kind, payload)
	}
}

func (sess *session) dispatch(kind protocol.Kind, payload []byte) {
	switch kind {
	case protocol.KindAuthOK:
		log.Println("Protocol anomaly: AUTH_OK while ready, ignored")

	case protocol.KindStartStream:
		var start protocol.StartStreamPayload
		if err := protocol.DecodeJSON(payload, &start); err != nil {
			log.Printf("Bad START_STREAM payload: %v", err)
			return
		}
		sess.stopCapture()
		sess.sup.rememberStream(start.Quality, start.FPSMax)
		sess.startCapture(start.Quality, start.FPSMax)
		if start.Technician != "" {
			sess.notify(start.Technician, true)
		}

	case protocol.KindStopStream:
		sess.stopCapture()
		sess.sup.clearStream()
		sess.notify("", false)

	case protocol.KindMouseEvent:
		if err := sess.sup.Input.MouseEvent(payload); err != nil {
			log.Printf("Mouse event dropped: %v", err)
		}

	case protocol.KindKeyEvent:
		if err := sess.sup.Input.KeyEvent(payload); err != nil {
			log.Printf("Key event dropped: %v", err)
		}

	case protocol.KindHeartbeatAck:
		// Informational only.

	case protocol.KindError:
		var e protocol.ErrorPayload
		if err := protocol.DecodeJSON(payload, &e); err != nil {
			log.Printf("Bad ERROR payload: %v", err)
			return
		}
		// Server errors are logged; the server decides whether to close.
		log.Printf("Console error %s: %s", e.Code, e.Message)

	default:
		log.Printf("Unhandled message kind %s", kind)
	}
}

// notify drives the overlay when the input sink supports it.
func (sess *session) notify(technicianName string, connected bool) {
	n, ok := sess.sup.Input.(Notifier)
	if !ok {
		return
	}
	if err := n.Notify(technicianName, connected); err != nil {
		log.Printf("Overlay notify failed: %v", err)
	}
}
