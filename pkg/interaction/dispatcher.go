package interaction

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/georgejecook/roku-test-automation/pkg/log"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// Sender transmits one request to the device.
type Sender interface {
	Send(req *wire.Request) error
}

// Call is one in-flight request.
type Call struct {
	// ID is the correlation id assigned to the request.
	ID uint64

	// Kind is the requested operation.
	Kind wire.Kind

	d     *Dispatcher
	done  chan struct{}
	resp  *wire.Response
	err   error
	timer *time.Timer
}

// Done is closed once the call is resolved.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call is resolved or ctx ends. A cancelled wait
// abandons the request; a later reply for it is discarded.
func (c *Call) Wait(ctx context.Context) (*wire.Response, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		c.d.finish(c.ID, nil, ctx.Err())
		<-c.done
	}
	return c.resp, c.err
}

// Dispatcher correlates replies with the requests that caused them.
// It implements transport.Handler.
type Dispatcher struct {
	sender Sender

	logger log.Logger
	connID string

	nextID atomic.Uint64

	// sendMu keeps id order and transmit order identical.
	sendMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]*Call
	closed  bool
}

// NewDispatcher creates a dispatcher transmitting through sender.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		pending: make(map[uint64]*Call),
	}
}

// SetLogger enables protocol logging of requests and replies.
func (d *Dispatcher) SetLogger(logger log.Logger, connID string) {
	d.logger = logger
	d.connID = connID
}

// Go sends a request and returns its handle once the request has been
// transmitted. A non-positive timeout waits until the call is resolved
// some other way.
func (d *Dispatcher) Go(kind wire.Kind, args any, timeout time.Duration) (*Call, error) {
	return d.start(kind, args, timeout, ErrRequestTimeout)
}

// Do sends a request and waits for its reply.
func (d *Dispatcher) Do(ctx context.Context, kind wire.Kind, args any, timeout time.Duration) (*wire.Response, error) {
	call, err := d.Go(kind, args, timeout)
	if err != nil {
		return nil, err
	}
	return call.Wait(ctx)
}

func (d *Dispatcher) start(kind wire.Kind, args any, timeout time.Duration, expired error) (*Call, error) {
	req, err := wire.NewRequest(wire.ReservedID, kind, args)
	if err != nil {
		return nil, err
	}

	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	req.ID = d.nextID.Add(1)
	call := &Call{
		ID:   req.ID,
		Kind: kind,
		d:    d,
		done: make(chan struct{}),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClientClosed
	}
	d.pending[call.ID] = call
	if timeout > 0 {
		id := call.ID
		call.timer = time.AfterFunc(timeout, func() { d.finish(id, nil, expired) })
	}
	d.mu.Unlock()

	if err := d.sender.Send(req); err != nil {
		d.finish(call.ID, nil, &TransportError{Op: "send", Err: err})
		return nil, &TransportError{Op: "send", Err: err}
	}
	d.logMessage(log.DirectionOut, log.RequestMessage(req))

	return call, nil
}

// HandleResponse resolves the call waiting for resp.
func (d *Dispatcher) HandleResponse(resp *wire.Response) error {
	return d.handleReply(wire.MessageTypeResponse, resp)
}

// HandleEvent resolves the call waiting for an event. Events and responses
// share one pending table.
func (d *Dispatcher) HandleEvent(resp *wire.Response) error {
	return d.handleReply(wire.MessageTypeEvent, resp)
}

func (d *Dispatcher) handleReply(t wire.MessageType, resp *wire.Response) error {
	d.logMessage(log.DirectionIn, log.ResponseMessage(t, resp))

	if !d.finish(resp.ID, resp, nil) {
		err := fmt.Errorf("%w: %s for id %d", ErrUnexpectedReply, t, resp.ID)
		d.logError("correlate", err)
		return err
	}
	return nil
}

// Pending returns the number of unresolved calls.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close fails every pending call with ErrClientClosed. Calls made after
// Close fail immediately.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	calls := d.pending
	d.pending = make(map[uint64]*Call)
	d.mu.Unlock()

	for _, c := range calls {
		c.resolve(nil, ErrClientClosed)
	}
	return nil
}

// finish removes the call for id and resolves it. It returns false when the
// call was already resolved.
func (d *Dispatcher) finish(id uint64, resp *wire.Response, err error) bool {
	d.mu.Lock()
	c, exists := d.pending[id]
	if exists {
		delete(d.pending, id)
	}
	d.mu.Unlock()

	if !exists {
		return false
	}
	c.resolve(resp, err)
	return true
}

func (c *Call) resolve(resp *wire.Response, err error) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.resp = resp
	c.err = err
	close(c.done)
}

func (d *Dispatcher) logMessage(dir log.Direction, msg *log.MessageEvent) {
	if d.logger == nil {
		return
	}
	d.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.connID,
		Direction:    dir,
		Layer:        log.LayerDispatch,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		Message:      msg,
	})
}

func (d *Dispatcher) logError(op string, err error) {
	if d.logger == nil {
		return
	}
	d.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerDispatch,
		Category:     log.CategoryError,
		LocalRole:    log.RoleClient,
		Error: &log.ErrorEventData{
			Layer:   log.LayerDispatch,
			Message: err.Error(),
			Context: op,
		},
	})
}
