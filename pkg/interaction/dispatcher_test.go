package interaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/georgejecook/roku-test-automation/pkg/log"
	"github.com/georgejecook/roku-test-automation/pkg/model"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// captureSender records every transmitted request.
type captureSender struct {
	mu   sync.Mutex
	reqs []*wire.Request
}

func (s *captureSender) Send(req *wire.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return nil
}

func (s *captureSender) ids() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, len(s.reqs))
	for i, r := range s.reqs {
		ids[i] = r.ID
	}
	return ids
}

type stubSender struct{ mock.Mock }

func (s *stubSender) Send(req *wire.Request) error { return s.Called(req).Error(0) }

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *captureLogger) Log(e log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *captureLogger) snapshot() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

func valueResponse(t *testing.T, id uint64, v model.Value) *wire.Response {
	t.Helper()
	resp, err := wire.NewResponse(id, wire.ValueResult{Found: true, Value: v}, time.Millisecond)
	require.NoError(t, err)
	return resp
}

func TestDispatcherIDsStartAtOneAndIncrease(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &captureSender{}
	d := NewDispatcher(sender)
	defer d.Close()

	for i := 0; i < 5; i++ {
		_, err := d.Go(wire.KindGetValueAtKeyPath, wire.KeyPathArgs{KeyPath: "x"}, time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, sender.ids())
	assert.Equal(t, 5, d.Pending())
}

func TestDispatcherConcurrentIDsAreUnique(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &captureSender{}
	d := NewDispatcher(sender)
	defer d.Close()

	const n = 64
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := d.Go(wire.KindHasFocus, wire.KeyPathArgs{KeyPath: "x"}, time.Minute)
			return err
		})
	}
	require.NoError(t, g.Wait())

	ids := sender.ids()
	require.Len(t, ids, n)
	seen := make(map[uint64]bool, n)
	for i, id := range ids {
		assert.NotZero(t, id)
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
		// Transmission order follows id order.
		if i > 0 {
			assert.Greater(t, id, ids[i-1])
		}
	}
}

func TestDispatcherOutOfOrderReplies(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(&captureSender{})
	defer d.Close()

	calls := make([]*Call, 3)
	for i := range calls {
		c, err := d.Go(wire.KindGetValueAtKeyPath, wire.KeyPathArgs{KeyPath: "x"}, time.Minute)
		require.NoError(t, err)
		calls[i] = c
	}

	for _, i := range []int{2, 0, 1} {
		require.NoError(t, d.HandleResponse(valueResponse(t, calls[i].ID, model.Int(i))))
	}

	for i, c := range calls {
		resp, err := c.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, c.ID, resp.ID)

		var res wire.ValueResult
		require.NoError(t, resp.DecodeResult(&res))
		assert.True(t, res.Value.Equal(model.Int(i)))
	}
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherEventResolvesCall(t *testing.T) {
	d := NewDispatcher(&captureSender{})
	defer d.Close()

	c, err := d.Go(wire.KindObserveField, wire.ObserveFieldArgs{KeyPath: "x"}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, d.HandleEvent(valueResponse(t, c.ID, model.Bool(true))))

	select {
	case <-c.Done():
	default:
		t.Fatal("call not resolved by event")
	}
	resp, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c.ID, resp.ID)
}

func TestDispatcherUnexpectedReply(t *testing.T) {
	logger := &captureLogger{}
	d := NewDispatcher(&captureSender{})
	d.SetLogger(logger, "conn-1")
	defer d.Close()

	err := d.HandleResponse(valueResponse(t, 99, model.Null()))
	assert.ErrorIs(t, err, ErrUnexpectedReply)

	c, err := d.Go(wire.KindGetValueAtKeyPath, wire.KeyPathArgs{KeyPath: "x"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, d.HandleResponse(valueResponse(t, c.ID, model.Int(1))))

	// A second reply for the same id is discarded.
	err = d.HandleEvent(valueResponse(t, c.ID, model.Int(2)))
	assert.ErrorIs(t, err, ErrUnexpectedReply)

	resp, err := c.Wait(context.Background())
	require.NoError(t, err)
	var res wire.ValueResult
	require.NoError(t, resp.DecodeResult(&res))
	assert.True(t, res.Value.Equal(model.Int(1)))

	var errorsLogged int
	for _, e := range logger.snapshot() {
		assert.Equal(t, "conn-1", e.ConnectionID)
		assert.Equal(t, log.LayerDispatch, e.Layer)
		if e.Category == log.CategoryError {
			errorsLogged++
		}
	}
	assert.Equal(t, 2, errorsLogged)
}

func TestDispatcherTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(&captureSender{})
	defer d.Close()

	c, err := d.Go(wire.KindGetValueAtKeyPath, wire.KeyPathArgs{KeyPath: "x"}, 10*time.Millisecond)
	require.NoError(t, err)

	_, err = c.Wait(context.Background())
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Equal(t, 0, d.Pending())

	// The late reply finds nothing to resolve.
	err = d.HandleResponse(valueResponse(t, c.ID, model.Int(1)))
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestDispatcherClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(&captureSender{})

	var calls []*Call
	for i := 0; i < 3; i++ {
		c, err := d.Go(wire.KindGetFocusedNode, nil, time.Minute)
		require.NoError(t, err)
		calls = append(calls, c)
	}

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	for _, c := range calls {
		_, err := c.Wait(context.Background())
		assert.ErrorIs(t, err, ErrClientClosed)
	}
	assert.Equal(t, 0, d.Pending())

	_, err := d.Go(wire.KindGetFocusedNode, nil, time.Minute)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestDispatcherSendFailure(t *testing.T) {
	sender := &stubSender{}
	sendErr := errors.New("broken pipe")
	sender.On("Send", mock.MatchedBy(func(req *wire.Request) bool {
		return req.ID == 1 && req.Kind == wire.KindSetValueAtKeyPath
	})).Return(sendErr).Once()

	d := NewDispatcher(sender)
	defer d.Close()

	_, err := d.Go(wire.KindSetValueAtKeyPath, wire.SetValueArgs{KeyPath: "x", Value: model.Int(1)}, time.Minute)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "send", te.Op)
	assert.ErrorIs(t, err, sendErr)
	assert.Equal(t, 0, d.Pending())
	sender.AssertExpectations(t)
}

func TestDispatcherWaitCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(&captureSender{})
	defer d.Close()

	c, err := d.Go(wire.KindGetValueAtKeyPath, wire.KeyPathArgs{KeyPath: "x"}, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, d.Pending())
	assert.ErrorIs(t, d.HandleResponse(valueResponse(t, c.ID, model.Int(1))), ErrUnexpectedReply)
}

func TestDispatcherLogsMessages(t *testing.T) {
	logger := &captureLogger{}
	d := NewDispatcher(&captureSender{})
	d.SetLogger(logger, "conn-2")
	defer d.Close()

	c, err := d.Go(wire.KindCallFunc, wire.CallFuncArgs{KeyPath: "", FuncName: "f"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, d.HandleResponse(valueResponse(t, c.ID, model.Int(1))))

	events := logger.snapshot()
	require.Len(t, events, 2)

	out := events[0]
	assert.Equal(t, log.DirectionOut, out.Direction)
	assert.Equal(t, log.CategoryMessage, out.Category)
	assert.Equal(t, log.RoleClient, out.LocalRole)
	require.NotNil(t, out.Message)
	assert.Equal(t, wire.MessageTypeRequest, out.Message.Type)
	require.NotNil(t, out.Message.Kind)
	assert.Equal(t, wire.KindCallFunc, *out.Message.Kind)

	in := events[1]
	assert.Equal(t, log.DirectionIn, in.Direction)
	require.NotNil(t, in.Message)
	assert.Equal(t, wire.MessageTypeResponse, in.Message.Type)
	assert.Equal(t, c.ID, in.Message.ID)
	require.NotNil(t, in.Message.Success)
	assert.True(t, *in.Message.Success)
}
