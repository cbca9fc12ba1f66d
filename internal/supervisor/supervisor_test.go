package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avaropoint/agentcore/internal/capture"
	"github.com/avaropoint/agentcore/internal/config"
	"github.com/avaropoint/agentcore/internal/hostmetrics"
	"github.com/avaropoint/agentcore/internal/protocol"
	"github.com/avaropoint/agentcore/internal/transport"
)

// fakeConn is a scripted console-side connection. The test reads what the
// agent sends from out and feeds the agent through in.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) SendBinary(ctx context.Context, data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// push frames a message into the agent's receive loop.
func (c *fakeConn) push(t *testing.T, kind protocol.Kind, payload []byte) {
	t.Helper()
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		t.Fatal(err)
	}
	c.in <- frame
}

// expect reads outbound frames until one of the wanted kind arrives,
// skipping heartbeats and anything else in between.
func (c *fakeConn) expect(t *testing.T, want protocol.Kind) []byte {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case data := <-c.out:
			kind, payload, _, err := protocol.Decode(data)
			if err != nil {
				t.Fatalf("agent sent undecodable frame: %v", err)
			}
			if kind == want {
				return payload
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

// fakeDialer hands out a fixed sequence of connections, then blocks.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (transport.Conn, error) {
	d.mu.Lock()
	var conn *fakeConn
	if len(d.conns) > 0 {
		conn = d.conns[0]
		d.conns = d.conns[1:]
	}
	d.mu.Unlock()
	if conn == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return conn, nil
}

// scriptProvider emits its payload for the first `frames` calls, then
// reports unchanged forever; a non-nil err fails every call instead.
type scriptProvider struct {
	mu      sync.Mutex
	frames  int
	payload []byte
	err     error
}

func (p *scriptProvider) Capture(_ context.Context, _ int) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, false, p.err
	}
	if p.frames > 0 {
		p.frames--
		return p.payload, false, nil
	}
	return nil, true, nil
}

type recordingSink struct {
	mu    sync.Mutex
	mouse [][]byte
	keys  [][]byte
}

func (r *recordingSink) MouseEvent(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mouse = append(r.mouse, p)
	return nil
}

func (r *recordingSink) KeyEvent(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, p)
	return nil
}

func (r *recordingSink) mouseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mouse)
}

// shortSleep records requested durations and waits a token real interval
// so loops make progress without spinning.
func shortSleep(record *[]time.Duration, mu *sync.Mutex) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if record != nil {
			mu.Lock()
			*record = append(*record, d)
			mu.Unlock()
		}
		select {
		case <-time.After(time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func testConfig() config.Config {
	return config.Config{
		ConsoleURL:        "ws://test/ws/agent",
		AuthTimeout:       2 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

func newTestSupervisor(dialer *fakeDialer, provider capture.Provider, sink InputSink) *Supervisor {
	var mu sync.Mutex
	return &Supervisor{
		Config: testConfig(),
		Identity: protocol.AuthPayload{
			AgentID: "a-1", Token: "t", Hostname: "H", OSInfo: "OS",
		},
		Dialer:      dialer,
		NewProvider: func() capture.Provider { return provider },
		Input:       sink,
		Sampler:     hostmetrics.NewSampler(),
		Sleep:       shortSleep(nil, &mu),
	}
}

func TestBackoffSchedule(t *testing.T) {
	want := map[int]time.Duration{
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 8 * time.Second,
		4: 16 * time.Second,
		5: 32 * time.Second,
		6: 60 * time.Second,
		7: 60 * time.Second,
		20: 60 * time.Second,
	}
	for n, d := range want {
		if got := Backoff(n); got != d {
			t.Errorf("Backoff(%d) = %v, want %v", n, got, d)
		}
	}
}

func TestHappyPathAuthThenFrame(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	provider := &scriptProvider{frames: 1, payload: []byte{0xFF, 0xD8}}
	sink := &recordingSink{}
	sup := newTestSupervisor(dialer, provider, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Run(ctx) //nolint:errcheck
		close(done)
	}()

	// AUTH must be the first outbound message on the connection.
	first := <-conn.out
	kind, payload, _, err := protocol.Decode(first)
	if err != nil || kind != protocol.KindAuth {
		t.Fatalf("first outbound = %v (err %v), want AUTH", kind, err)
	}
	var auth protocol.AuthPayload
	if err := protocol.DecodeJSON(payload, &auth); err != nil {
		t.Fatal(err)
	}
	if auth.AgentID != "a-1" || auth.Token != "t" || auth.Hostname != "H" || auth.OSInfo != "OS" {
		t.Errorf("auth payload = %+v", auth)
	}

	conn.push(t, protocol.KindAuthOK, []byte(`{"agent_id":"a-1"}`))
	conn.push(t, protocol.KindStartStream, []byte(`{"quality":70,"fps_max":15}`))

	framePayload := conn.expect(t, protocol.KindFrame)
	seq, ts, jpeg, err := protocol.DecodeFramePayload(framePayload)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 1 {
		t.Errorf("first frame seq = %d, want 1", seq)
	}
	if ts > 1000 {
		t.Errorf("first frame ts_ms = %d, want near zero", ts)
	}
	if len(jpeg) != 2 {
		t.Errorf("jpeg len = %d", len(jpeg))
	}

	// Heartbeats keep flowing on the steady connection.
	hb := conn.expect(t, protocol.KindHeartbeat)
	var hbPayload protocol.HeartbeatPayload
	if err := protocol.DecodeJSON(hb, &hbPayload); err != nil {
		t.Fatalf("heartbeat payload: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if sink.mouseCount() != 0 {
		t.Errorf("unexpected input events applied")
	}
}

func TestAuthRejectBacksOffAndRetries(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}
	sup := newTestSupervisor(dialer, &scriptProvider{}, &recordingSink{})

	var mu sync.Mutex
	var slept []time.Duration
	sup.Sleep = shortSleep(&slept, &mu)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Run(ctx) //nolint:errcheck
		close(done)
	}()

	<-conn1.out // AUTH
	conn1.push(t, protocol.KindError, []byte(`{"code":"INVALID_TOKEN","message":"bad token"}`))

	// The agent must dial again and re-send AUTH with the same credentials.
	second := <-conn2.out
	kind, payload, _, err := protocol.Decode(second)
	if err != nil || kind != protocol.KindAuth {
		t.Fatalf("reconnect first outbound = %v (err %v), want AUTH", kind, err)
	}
	var auth protocol.AuthPayload
	if err := protocol.DecodeJSON(payload, &auth); err != nil {
		t.Fatal(err)
	}
	if auth.Token != "t" {
		t.Errorf("credentials mutated on retry: %+v", auth)
	}

	mu.Lock()
	if len(slept) == 0 || slept[0] != 2*time.Second {
		t.Errorf("first backoff = %v, want 2s", slept)
	}
	mu.Unlock()

	cancel()
	<-done
}

func TestReconnectResumesStreamWithFreshSequence(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}
	provider := &scriptProvider{frames: 2, payload: []byte{0xAB}}
	sup := newTestSupervisor(dialer, provider, &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Run(ctx) //nolint:errcheck
		close(done)
	}()

	<-conn1.out // AUTH
	conn1.push(t, protocol.KindAuthOK, []byte(`{"agent_id":"a-1"}`))
	conn1.push(t, protocol.KindStartStream, []byte(`{"quality":55,"fps_max":5}`))

	seq1, _, _, err := protocol.DecodeFramePayload(conn1.expect(t, protocol.KindFrame))
	if err != nil || seq1 != 1 {
		t.Fatalf("first connection frame seq = %d (err %v)", seq1, err)
	}

	// Server drops the connection mid-stream.
	conn1.Close()

	// On the new connection the stream resumes without START_STREAM,
	// restarting the sequence at 1.
	<-conn2.out // AUTH
	conn2.push(t, protocol.KindAuthOK, []byte(`{"agent_id":"a-1"}`))

	seq2, _, _, err := protocol.DecodeFramePayload(conn2.expect(t, protocol.KindFrame))
	if err != nil {
		t.Fatal(err)
	}
	if seq2 != 1 {
		t.Errorf("resumed stream seq = %d, want fresh sequence starting at 1", seq2)
	}

	cancel()
	<-done
}

func TestInputAppliedWhileNoStreamActive(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	sink := &recordingSink{}
	sup := newTestSupervisor(dialer, &scriptProvider{}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Run(ctx) //nolint:errcheck
		close(done)
	}()

	<-conn.out // AUTH
	conn.push(t, protocol.KindAuthOK, []byte(`{"agent_id":"a-1"}`))
	conn.push(t, protocol.KindMouseEvent, []byte(`{"x":100,"y":100,"action":"click","button":0}`))
	conn.push(t, protocol.KindKeyEvent, []byte(`{"key":"Enter","action":"down","modifiers":[]}`))

	deadline := time.After(5 * time.Second)
	for sink.mouseCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("mouse event never applied")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// No stream was started, so nothing but heartbeats may be outbound.
	select {
	case data := <-conn.out:
		kind, _, _, _ := protocol.Decode(data)
		if kind == protocol.KindFrame {
			t.Error("FRAME sent with no active stream")
		}
	default:
	}

	cancel()
	<-done
}

func TestProtocolAnomaliesKeepSessionAlive(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	sink := &recordingSink{}
	sup := newTestSupervisor(dialer, &scriptProvider{}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Run(ctx) //nolint:errcheck
		close(done)
	}()

	<-conn.out // AUTH
	conn.push(t, protocol.KindAuthOK, []byte(`{"agent_id":"a-1"}`))

	// Unknown kind, malformed JSON, an unexpected AUTH_OK, and a server
	// ERROR must all be tolerated without dropping the link.
	conn.in <- []byte{0x7F, 0, 0, 0, 0}
	conn.push(t, protocol.KindMouseEvent, []byte(`{not json`))
	conn.push(t, protocol.KindAuthOK, []byte(`{"agent_id":"a-1"}`))
	conn.push(t, protocol.KindError, []byte(`{"code":"E","message":"server-side"}`))
	conn.push(t, protocol.KindMouseEvent, []byte(`{"x":1,"y":2,"action":"move","button":0}`))

	// The sink records raw payloads, so the malformed event counts too;
	// the second one only arrives after every anomaly was dispatched.
	deadline := time.After(5 * time.Second)
	for sink.mouseCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("session died on protocol anomaly")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestCaptureErrorEndsStreamNotSession(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	provider := &scriptProvider{err: fmt.Errorf("grab failed")}
	sink := &recordingSink{}
	sup := newTestSupervisor(dialer, provider, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Run(ctx) //nolint:errcheck
		close(done)
	}()

	<-conn.out // AUTH
	conn.push(t, protocol.KindAuthOK, []byte(`{"agent_id":"a-1"}`))
	conn.push(t, protocol.KindStartStream, []byte(`{"quality":70,"fps_max":10}`))

	// The capture task dies on the provider error, but the session still
	// serves input events.
	conn.push(t, protocol.KindMouseEvent, []byte(`{"x":1,"y":1,"action":"move","button":0}`))

	deadline := time.After(5 * time.Second)
	for sink.mouseCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("session did not survive capture error")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if active, _, _ := sup.streamMemory(); active {
		t.Error("capture error should clear the active stream")
	}

	cancel()
	<-done
}
