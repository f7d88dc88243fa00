package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/georgejecook/roku-test-automation/pkg/log"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// RequestHandler answers requests on the device side. A handler replies
// through r, either before returning or later for requests that resolve
// on a device-side change.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req *wire.Request, r Replier)
}

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc func(ctx context.Context, req *wire.Request, r Replier)

// HandleRequest calls f.
func (f RequestHandlerFunc) HandleRequest(ctx context.Context, req *wire.Request, r Replier) {
	f(ctx, req, r)
}

// Replier sends replies to the client that issued a request.
type Replier interface {
	// Respond sends a response message.
	Respond(resp *wire.Response) error

	// Emit sends an event message.
	Emit(resp *wire.Response) error
}

// ServerConfig configures the device-side server.
type ServerConfig struct {
	// Address to listen on (e.g., ":9000" or "127.0.0.1:0").
	Address string

	// MaxMessageSize is the maximum message size (default: 4MB).
	MaxMessageSize uint32

	// Handler answers requests. Required.
	Handler RequestHandler

	// Logger for protocol logging (optional).
	Logger log.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnError is called when an error occurs.
	OnError func(conn *ServerConn, err error)
}

// Server accepts client connections and answers their requests.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}, nil
}

// Start starts the server and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop stops the server and closes all connections.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() && s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	sconn := newServerConn(conn, s.config)

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	err := sconn.serve(s.ctx)
	if err != nil && s.config.OnError != nil && s.running.Load() {
		s.config.OnError(sconn, err)
	}

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

// Serve answers requests arriving on conn until ctx is done or the peer
// disconnects. Only Handler, MaxMessageSize and Logger of config are used.
// It returns nil when the peer closes the connection cleanly.
func Serve(ctx context.Context, conn net.Conn, config ServerConfig) error {
	if config.Handler == nil {
		return errors.New("handler is required")
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return newServerConn(conn, config).serve(ctx)
}

// ServerConn is the device side of one client connection.
type ServerConn struct {
	conn      net.Conn
	framer    *Framer
	config    ServerConfig
	connID    string
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newServerConn(conn net.Conn, config ServerConfig) *ServerConn {
	c := &ServerConn{
		conn:    conn,
		framer:  NewFramerWithMaxSize(conn, config.MaxMessageSize),
		config:  config,
		connID:  uuid.New().String(),
		closeCh: make(chan struct{}),
	}
	if config.Logger != nil {
		c.framer.SetLogger(config.Logger, c.connID)
	}
	return c
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// Respond sends a response message to the client.
func (c *ServerConn) Respond(resp *wire.Response) error {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		return err
	}
	return c.write(data)
}

// Emit sends an event message to the client.
func (c *ServerConn) Emit(resp *wire.Response) error {
	data, err := wire.EncodeEvent(resp)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *ServerConn) write(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) serve(ctx context.Context) error {
	c.logState("", "CONNECTED")
	defer c.logState("CONNECTED", "DISCONNECTED")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.readLoop(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-c.closeCh:
		}
		c.Close()
		return nil
	})
	return g.Wait()
}

func (c *ServerConn) readLoop(ctx context.Context) error {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
				return nil
			default:
			}
			c.Close()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		req, err := wire.DecodeRequest(data)
		if err != nil {
			c.rejectMalformed(data, err)
			continue
		}
		c.config.Handler.HandleRequest(ctx, req, c)
	}
}

// rejectMalformed answers an undecodable request when its id can still be
// recovered.
func (c *ServerConn) rejectMalformed(data []byte, err error) {
	var peek struct {
		ID uint64 `cbor:"1,keyasint"`
	}
	if wire.Unmarshal(data, &peek) != nil || peek.ID == wire.ReservedID {
		c.logError(err)
		return
	}
	c.Respond(wire.NewErrorResponse(peek.ID, wire.ErrorInvalidArgs, err.Error(), 0))
}

func (c *ServerConn) logState(oldState, newState string) {
	if c.config.Logger == nil {
		return
	}
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleDevice,
		RemoteAddr:   c.conn.RemoteAddr().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (c *ServerConn) logError(err error) {
	if c.config.Logger == nil {
		return
	}
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		LocalRole:    log.RoleDevice,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: "decode request",
		},
	})
}
