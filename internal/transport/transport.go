// Package transport owns the WebSocket connection to the console: dial,
// serialized binary sends, blocking receive, and graceful close. The
// session supervisor is the only reader; the supervisor, the heartbeat
// task, and the capture task all write, so every send is funneled through
// a single-writer queue regardless of whether the underlying library
// already tolerates concurrent writes.
package transport

import (
	"context"
	"fmt"
	"sync"

	"nhooyr.io/websocket"
)

// Conn is a connected WebSocket session to the console.
type Conn interface {
	// SendBinary enqueues data for transmission as a single binary
	// message and waits for it to be written (or to fail).
	SendBinary(ctx context.Context, data []byte) error
	// Receive blocks for the next binary message and returns its payload.
	Receive(ctx context.Context) ([]byte, error)
	// Close performs a normal WebSocket close and releases resources.
	// It is safe to call more than once.
	Close() error
}

// Dialer opens new connections to the console. Production code uses
// WebSocketDialer; tests substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials real WebSocket connections via nhooyr.io/websocket.
type WebSocketDialer struct{}

// Dial implements Dialer.
func (WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	// The agent's payloads (JPEG frames in particular) can legitimately
	// exceed nhooyr's conservative default.
	ws.SetReadLimit(64 << 20)

	c := &wsConn{ws: ws, sendCh: make(chan sendRequest), done: make(chan struct{})}
	go c.sendLoop()
	return c, nil
}

type sendRequest struct {
	data  []byte
	errCh chan error
}

type wsConn struct {
	ws     *websocket.Conn
	sendCh chan sendRequest
	done   chan struct{}
	once   sync.Once
}

func (c *wsConn) sendLoop() {
	for {
		select {
		case req := <-c.sendCh:
			req.errCh <- c.ws.Write(context.Background(), websocket.MessageBinary, req.data)
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) SendBinary(ctx context.Context, data []byte) error {
	errCh := make(chan error, 1)
	select {
	case c.sendCh <- sendRequest{data: data, errCh: errCh}:
	case <-c.done:
		return fmt.Errorf("transport: connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	typ, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: receive: %w", err)
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("transport: unexpected message type %v", typ)
	}
	return data, nil
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close(websocket.StatusNormalClosure, "agent shutting down")
	})
	return err
}
