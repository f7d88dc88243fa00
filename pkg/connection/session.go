package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/georgejecook/roku-test-automation/pkg/interaction"
	"github.com/georgejecook/roku-test-automation/pkg/transport"
)

// Session errors.
var (
	ErrSessionClosed = errors.New("session closed")
	ErrNotConnected  = errors.New("not connected")
	ErrDialFailed    = errors.New("dial failed")
)

// State represents the session state.
type State uint8

const (
	// StateDisconnected indicates no connection and no dial in progress.
	StateDisconnected State = iota

	// StateConnecting indicates the first dial is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates a dial after a lost connection.
	StateReconnecting

	// StateClosed indicates the session has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc opens a transport connection.
type DialFunc func(ctx context.Context, address string, config transport.Config) (transport.ClientConnection, error)

// SessionConfig configures a Session.
type SessionConfig struct {
	// Address of the on-device component. Required.
	Address string

	// Transport configures each connection.
	Transport transport.Config

	// Client configures the client built on each connection.
	Client interaction.ClientConfig

	// Backoff paces dial attempts.
	Backoff BackoffConfig

	// MaxAttempts bounds each dial sequence. Zero dials until the context
	// is done.
	MaxAttempts int

	// AutoReconnect dials again after a lost connection.
	AutoReconnect bool

	// OnStateChange is called after every state transition.
	OnStateChange func(oldState, newState State)

	// Logger receives debug output. Optional.
	Logger *slog.Logger

	// Dial defaults to transport.Dial.
	Dial DialFunc
}

// Session owns the connection to the on-device component and the client
// that runs on it.
type Session struct {
	config  SessionConfig
	backoff *Backoff

	mu     sync.RWMutex
	state  State
	client *interaction.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open dials config.Address, retrying with backoff, and starts the session.
// ctx bounds the first dial only.
func Open(ctx context.Context, config SessionConfig) (*Session, error) {
	if config.Address == "" {
		return nil, errors.New("address is required")
	}
	if config.Dial == nil {
		config.Dial = dialTCP
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		config:  config,
		backoff: NewBackoff(config.Backoff),
		state:   StateDisconnected,
		ctx:     sctx,
		cancel:  cancel,
	}

	s.setState(StateConnecting)
	conn, err := s.dial(ctx)
	if err != nil {
		s.setState(StateClosed)
		cancel()
		return nil, err
	}
	s.attach(conn)
	return s, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Client returns the client of the current connection.
func (s *Session) Client() (*interaction.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateClosed {
		return nil, ErrSessionClosed
	}
	if s.client == nil {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

// Close ends the session. Calls in flight fail with
// interaction.ErrClientClosed.
func (s *Session) Close() error {
	s.setState(StateClosed)
	s.cancel()
	s.wg.Wait()
	return nil
}

func dialTCP(ctx context.Context, address string, config transport.Config) (transport.ClientConnection, error) {
	conn, err := transport.Dial(ctx, address, config)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Session) dial(ctx context.Context) (transport.ClientConnection, error) {
	for attempt := 1; ; attempt++ {
		conn, err := s.config.Dial(ctx, s.config.Address, s.config.Transport)
		if err == nil {
			s.backoff.Reset()
			return conn, nil
		}
		if s.config.MaxAttempts > 0 && attempt >= s.config.MaxAttempts {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrDialFailed, attempt, err)
		}

		delay := s.backoff.Next()
		s.debug("dial failed", "address", s.config.Address, "attempt", attempt, "retryIn", delay, "error", err)
		if werr := wait(ctx, delay); werr != nil {
			return nil, fmt.Errorf("%w: %w", ErrDialFailed, errors.Join(werr, err))
		}
	}
}

func (s *Session) attach(conn transport.ClientConnection) {
	client := interaction.NewClient(conn, s.config.Client)
	if s.config.Transport.Logger != nil {
		client.SetLogger(s.config.Transport.Logger, conn.ConnID())
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.setState(StateConnected)

	s.wg.Add(1)
	go s.run(conn, client)
}

func (s *Session) run(conn transport.ClientConnection, client *interaction.Client) {
	defer s.wg.Done()

	err := conn.Run(s.ctx, client)
	client.Close()

	s.mu.Lock()
	if s.client == client {
		s.client = nil
	}
	s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	s.debug("connection lost", "address", s.config.Address, "error", err)

	if !s.config.AutoReconnect {
		s.setState(StateDisconnected)
		return
	}
	s.setState(StateReconnecting)
	next, err := s.dial(s.ctx)
	if err != nil {
		s.setState(StateDisconnected)
		return
	}
	s.attach(next)
}

// setState transitions to state. Nothing leaves StateClosed.
func (s *Session) setState(state State) {
	s.mu.Lock()
	old := s.state
	if old == state || old == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = state
	fn := s.config.OnStateChange
	s.mu.Unlock()

	if fn != nil {
		fn(old, state)
	}
}

func (s *Session) debug(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
