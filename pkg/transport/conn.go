package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/georgejecook/roku-test-automation/pkg/log"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// DefaultPort is the port the on-device component listens on.
const DefaultPort = 9000

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
)

// Config configures a client connection.
type Config struct {
	// MaxMessageSize is the maximum message size (default: 4MB).
	MaxMessageSize uint32

	// ConnectTimeout bounds Dial when ctx has no deadline (default: 10s).
	ConnectTimeout time.Duration

	// WriteTimeout is the timeout for one frame write (0 = no timeout).
	WriteTimeout time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// Handler receives replies read from the device.
type Handler interface {
	// HandleResponse is called for each response message.
	HandleResponse(resp *wire.Response) error

	// HandleEvent is called for each event message.
	HandleEvent(resp *wire.Response) error
}

// Conn is a client connection to the device.
type Conn struct {
	conn   net.Conn
	framer *Framer
	config Config
	connID string

	closeCh   chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// Dial connects to the device at address.
func Dial(ctx context.Context, address string, config Config) (*Conn, error) {
	config = config.withDefaults()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return NewConn(conn, config), nil
}

// NewConn wraps an established network connection.
func NewConn(conn net.Conn, config Config) *Conn {
	config = config.withDefaults()
	c := &Conn{
		conn:    conn,
		framer:  NewFramerWithMaxSize(conn, config.MaxMessageSize),
		config:  config,
		connID:  uuid.New().String(),
		closeCh: make(chan struct{}),
	}
	if config.Logger != nil {
		c.framer.SetLogger(config.Logger, c.connID)
		c.framer.SetRole(log.RoleClient)
		c.logState("", "CONNECTED")
	}
	return c
}

// ConnID returns the unique connection identifier.
func (c *Conn) ConnID() string {
	return c.connID
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes req as one frame.
func (c *Conn) Send(req *wire.Request) error {
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	if c.config.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.framer.WriteFrame(data)
}

// Run reads frames until ctx is done, the connection is closed, or a read
// fails, routing responses and events to h. It returns nil after Close or
// cancellation and the read error otherwise. The connection is closed when
// Run returns.
func (c *Conn) Run(ctx context.Context, h Handler) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.readLoop(h)
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

func (c *Conn) readLoop(h Handler) error {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			if c.closed() {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		msgType, err := wire.PeekMessageType(data)
		if err != nil {
			c.logError("peek", err)
			continue
		}

		switch msgType {
		case wire.MessageTypeResponse, wire.MessageTypeEvent:
			resp, _, err := wire.DecodeResponse(data)
			if err != nil {
				c.logError("decode", err)
				continue
			}
			// Unmatched replies are reported by the handler; the stream
			// itself is still healthy.
			if msgType == wire.MessageTypeEvent {
				_ = h.HandleEvent(resp)
			} else {
				_ = h.HandleResponse(resp)
			}
		default:
			c.logError("route", fmt.Errorf("unexpected %s message from device", msgType))
		}
	}
}

// Close closes the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
		if c.config.Logger != nil {
			c.logState("CONNECTED", "DISCONNECTED")
		}
	})
	return err
}

func (c *Conn) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *Conn) logState(oldState, newState string) {
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleClient,
		RemoteAddr:   c.conn.RemoteAddr().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (c *Conn) logError(op string, err error) {
	if c.config.Logger == nil {
		return
	}
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		LocalRole:    log.RoleClient,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: op,
		},
	})
}
