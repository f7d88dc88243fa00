package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

type recorder struct {
	responses chan *wire.Response
	events    chan *wire.Response
}

func newRecorder() *recorder {
	return &recorder{
		responses: make(chan *wire.Response, 16),
		events:    make(chan *wire.Response, 16),
	}
}

func (r *recorder) HandleResponse(resp *wire.Response) error {
	r.responses <- resp
	return nil
}

func (r *recorder) HandleEvent(resp *wire.Response) error {
	r.events <- resp
	return nil
}

func receive(t *testing.T, ch <-chan *wire.Response) *wire.Response {
	t.Helper()
	select {
	case resp := <-ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
		return nil
	}
}

// echoHandler answers every request with a success response. Requests of
// kind observeField additionally get an event.
func echoHandler() RequestHandler {
	return RequestHandlerFunc(func(_ context.Context, req *wire.Request, r Replier) {
		resp, _ := wire.NewResponse(req.ID, &wire.BoolResult{Value: true}, time.Millisecond)
		if req.Kind == wire.KindObserveField {
			r.Emit(resp)
			return
		}
		r.Respond(resp)
	})
}

type pair struct {
	conn     *Conn
	rec      *recorder
	device   net.Conn
	cancel   context.CancelFunc
	runDone  chan error
	serveErr chan error
}

func startPair(t *testing.T, h RequestHandler) *pair {
	t.Helper()
	clientSide, deviceSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	p := &pair{
		conn:     NewConn(clientSide, Config{}),
		rec:      newRecorder(),
		device:   deviceSide,
		cancel:   cancel,
		runDone:  make(chan error, 1),
		serveErr: make(chan error, 1),
	}
	go func() { p.serveErr <- Serve(ctx, deviceSide, ServerConfig{Handler: h}) }()
	go func() { p.runDone <- p.conn.Run(ctx, p.rec) }()

	t.Cleanup(func() {
		cancel()
		<-p.serveErr
		<-p.runDone
	})
	return p
}

func mustRequest(t *testing.T, id uint64, kind wire.Kind) *wire.Request {
	t.Helper()
	req, err := wire.NewRequest(id, kind, &wire.KeyPathArgs{KeyPath: "a"})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	return req
}

func TestConnRoutesResponsesAndEvents(t *testing.T) {
	p := startPair(t, echoHandler())

	if err := p.conn.Send(mustRequest(t, 1, wire.KindGetValueAtKeyPath)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := p.conn.Send(mustRequest(t, 2, wire.KindObserveField)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if resp := receive(t, p.rec.responses); resp.ID != 1 || !resp.IsSuccess() {
		t.Errorf("unexpected response: %+v", resp)
	}
	if ev := receive(t, p.rec.events); ev.ID != 2 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestConnRunStopsOnCancel(t *testing.T) {
	clientSide, deviceSide := net.Pipe()
	defer deviceSide.Close()

	conn := NewConn(clientSide, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx, newRecorder()) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := conn.Send(mustRequest(t, 1, wire.KindHasFocus)); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Send after close: got %v, want ErrConnectionClosed", err)
	}
}

func TestConnRunReportsPeerClose(t *testing.T) {
	clientSide, deviceSide := net.Pipe()
	conn := NewConn(clientSide, Config{})
	done := make(chan error, 1)
	go func() { done <- conn.Run(context.Background(), newRecorder()) }()

	deviceSide.Close()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected a read error when the device hangs up")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after peer close")
	}
}

func TestSendRejectsInvalidRequest(t *testing.T) {
	clientSide, deviceSide := net.Pipe()
	defer deviceSide.Close()
	conn := NewConn(clientSide, Config{})
	defer conn.Close()

	if err := conn.Send(&wire.Request{ID: 0, Kind: wire.KindCallFunc}); !errors.Is(err, wire.ErrReservedID) {
		t.Errorf("got %v, want ErrReservedID", err)
	}
}

func TestServeRejectsMalformedRequest(t *testing.T) {
	p := startPair(t, echoHandler())

	// Kind 0 fails validation on the device; the id is still recoverable.
	data, err := wire.Marshal(map[int]any{0: uint8(wire.MessageTypeRequest), 1: uint64(5), 2: uint8(0)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := p.conn.framer.WriteFrame(data); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	resp := receive(t, p.rec.responses)
	if resp.ID != 5 || resp.IsSuccess() {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Error == nil || resp.Error.Kind != wire.ErrorInvalidArgs {
		t.Errorf("error kind: got %+v, want INVALID_ARGS", resp.Error)
	}
}

func TestConnLogsState(t *testing.T) {
	clientSide, deviceSide := net.Pipe()
	defer deviceSide.Close()
	logger := &capturingLogger{}

	conn := NewConn(clientSide, Config{Logger: logger})
	conn.Close()
	conn.Close()

	var states []string
	for _, e := range logger.Events() {
		if e.StateChange != nil {
			if e.ConnectionID != conn.ConnID() {
				t.Errorf("event for connection %q, want %q", e.ConnectionID, conn.ConnID())
			}
			states = append(states, e.StateChange.NewState)
		}
	}
	if len(states) != 2 || states[0] != "CONNECTED" || states[1] != "DISCONNECTED" {
		t.Errorf("states: got %v", states)
	}
}

func TestServerOverTCP(t *testing.T) {
	connected := make(chan struct{}, 1)
	server, err := NewServer(ServerConfig{
		Address:   "127.0.0.1:0",
		Handler:   echoHandler(),
		OnConnect: func(*ServerConn) { connected <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, server.Addr().String(), Config{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	rec := newRecorder()
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx, rec) }()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not report the connection")
	}
	if n := server.ConnectionCount(); n != 1 {
		t.Errorf("ConnectionCount = %d, want 1", n)
	}

	if err := conn.Send(mustRequest(t, 7, wire.KindIsInFocusChain)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp := receive(t, rec.responses); resp.ID != 7 {
		t.Errorf("unexpected response: %+v", resp)
	}

	conn.Close()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v after Close", err)
	}
	if err := server.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestNewServerRequiresHandler(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("expected error without a handler")
	}
}
