package observe

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/georgejecook/roku-test-automation/pkg/keypath"
	"github.com/georgejecook/roku-test-automation/pkg/model"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// Observation errors.
var (
	ErrInvalidKeyPath = errors.New("observed key path did not resolve")
	ErrMatchKeyPath   = errors.New("match key path did not resolve")
	ErrTimeout        = errors.New("observation timed out")
	ErrDuplicateID    = errors.New("observation id already registered")
	ErrClosed         = errors.New("observation registry closed")
)

// DefaultRetryTimeout applies when neither the request nor the config sets one.
const DefaultRetryTimeout = 5 * time.Second

// Resolver resolves key paths against the current device state.
type Resolver interface {
	Resolve(base model.Base, p keypath.Path) (keypath.Result, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(base model.Base, p keypath.Path) (keypath.Result, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(base model.Base, p keypath.Path) (keypath.Result, error) {
	return f(base, p)
}

// Outcome is the single result of one observation.
type Outcome struct {
	// ID is the correlation id the watch was registered under.
	ID uint64

	// Fired is true when a change satisfied the watch, false when the match
	// was already satisfied at registration.
	Fired bool

	// Value is the observed field's value at the time of the outcome.
	Value model.Value

	// Err is set when the observation failed.
	Err error

	// Elapsed is the time since registration.
	Elapsed time.Duration
}

// Result converts a successful outcome to its wire payload.
func (o Outcome) Result() wire.ObserveResult {
	return wire.ObserveResult{ObserverFired: o.Fired, Value: o.Value}
}

// ErrorKind maps the outcome's error to its wire error kind.
func (o Outcome) ErrorKind() wire.ErrorKind {
	switch {
	case errors.Is(o.Err, ErrTimeout):
		return wire.ErrorObserveTimeout
	case errors.Is(o.Err, keypath.ErrInvalidBase):
		return wire.ErrorInvalidBase
	default:
		return wire.ErrorObserveInvalidKeyPath
	}
}

// Config configures a Registry.
type Config struct {
	// Resolver reads the current device state. Required.
	Resolver Resolver

	// OnOutcome receives every outcome not returned by Observe. It is called
	// without the registry lock held.
	OnOutcome func(Outcome)

	// Logger receives debug output. Optional.
	Logger *slog.Logger

	// DefaultTimeout applies to requests without a retryTimeout.
	DefaultTimeout time.Duration
}

type watch struct {
	id        uint64
	base      model.Base
	path      keypath.Path
	match     *wire.Match
	matchPath keypath.Path
	last      model.Value
	started   time.Time
	timer     *time.Timer
}

// Registry tracks pending observations.
type Registry struct {
	mu      sync.Mutex
	config  Config
	watches map[uint64]*watch
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(config Config) *Registry {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultRetryTimeout
	}
	return &Registry{
		config:  config,
		watches: make(map[uint64]*watch),
	}
}

// Observe registers a watch for args under id. When the outcome is already
// decided it is returned with done set and nothing is registered.
func (r *Registry) Observe(id uint64, args wire.ObserveFieldArgs) (Outcome, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Outcome{}, false, ErrClosed
	}
	if _, exists := r.watches[id]; exists {
		return Outcome{}, false, ErrDuplicateID
	}

	w := &watch{
		id:      id,
		base:    args.Base,
		match:   args.Match,
		started: time.Now(),
	}

	path, err := keypath.Parse(args.KeyPath)
	if err != nil {
		return w.fail(fmt.Errorf("%w: %v", ErrInvalidKeyPath, err)), true, nil
	}
	w.path = path

	if w.match.IsCrossField() {
		mp, err := keypath.Parse(w.match.KeyPath)
		if err != nil {
			return w.fail(fmt.Errorf("%w: %v", ErrMatchKeyPath, err)), true, nil
		}
		w.matchPath = mp
	}

	current, err := r.resolveObserved(w)
	if err != nil {
		return w.fail(err), true, nil
	}
	w.last = current.Clone()

	if w.match != nil {
		satisfied, err := r.satisfied(w, current)
		if err != nil {
			return w.fail(err), true, nil
		}
		if satisfied {
			r.debug("observation already satisfied", "id", id, "keyPath", args.KeyPath)
			return w.outcome(false, current), true, nil
		}
	}

	timeout := r.config.DefaultTimeout
	if args.RetryTimeout > 0 {
		timeout = time.Duration(args.RetryTimeout) * time.Millisecond
	}
	w.timer = time.AfterFunc(timeout, func() { r.expire(w) })
	r.watches[id] = w

	r.debug("observation registered", "id", id, "base", args.Base.String(),
		"keyPath", args.KeyPath, "timeout", timeout)
	return Outcome{}, false, nil
}

// Notify re-evaluates every watch against the current state.
func (r *Registry) Notify() {
	r.mu.Lock()
	var outcomes []Outcome
	for id, w := range r.watches {
		o, done := r.evaluate(w)
		if !done {
			continue
		}
		w.timer.Stop()
		delete(r.watches, id)
		outcomes = append(outcomes, o)
	}
	onOutcome := r.config.OnOutcome
	r.mu.Unlock()

	r.deliver(onOutcome, outcomes...)
}

// Cancel removes the watch registered under id without producing an outcome.
func (r *Registry) Cancel(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.watches[id]
	if !exists {
		return false
	}
	w.timer.Stop()
	delete(r.watches, id)
	return true
}

// Len returns the number of pending watches.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}

// Close drops all watches. Their outcomes are never delivered.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.watches {
		w.timer.Stop()
	}
	r.watches = make(map[uint64]*watch)
	r.closed = true
}

// evaluate must be called with r.mu held.
func (r *Registry) evaluate(w *watch) (Outcome, bool) {
	current, err := r.resolveObserved(w)
	if err != nil {
		return w.fail(err), true
	}
	if current.Equal(w.last) {
		return Outcome{}, false
	}
	w.last = current.Clone()

	if w.match == nil {
		return w.outcome(true, current), true
	}
	satisfied, err := r.satisfied(w, current)
	if err != nil {
		return w.fail(err), true
	}
	if !satisfied {
		return Outcome{}, false
	}
	return w.outcome(true, current), true
}

func (r *Registry) resolveObserved(w *watch) (model.Value, error) {
	res, err := r.config.Resolver.Resolve(w.base, w.path)
	if err != nil {
		return model.Value{}, err
	}
	if !res.Found {
		return model.Value{}, fmt.Errorf("%w: %s", ErrInvalidKeyPath, w.path)
	}
	return res.Value, nil
}

func (r *Registry) satisfied(w *watch, observed model.Value) (bool, error) {
	if !w.match.IsCrossField() {
		return observed.Equal(w.match.Value), nil
	}
	res, err := r.config.Resolver.Resolve(w.match.Base, w.matchPath)
	if err != nil {
		return false, err
	}
	if !res.Found {
		return false, fmt.Errorf("%w: %s", ErrMatchKeyPath, w.matchPath)
	}
	return res.Value.Equal(w.match.Value), nil
}

func (r *Registry) expire(w *watch) {
	r.mu.Lock()
	if r.watches[w.id] != w {
		r.mu.Unlock()
		return
	}
	delete(r.watches, w.id)
	onOutcome := r.config.OnOutcome
	r.mu.Unlock()

	r.debug("observation timed out", "id", w.id, "keyPath", w.path.String())
	r.deliver(onOutcome, w.fail(ErrTimeout))
}

func (r *Registry) deliver(fn func(Outcome), outcomes ...Outcome) {
	if fn == nil {
		return
	}
	for _, o := range outcomes {
		fn(o)
	}
}

func (r *Registry) debug(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, args...)
	}
}

func (w *watch) outcome(fired bool, v model.Value) Outcome {
	return Outcome{
		ID:      w.id,
		Fired:   fired,
		Value:   v.Clone(),
		Elapsed: time.Since(w.started),
	}
}

func (w *watch) fail(err error) Outcome {
	return Outcome{
		ID:      w.id,
		Err:     err,
		Elapsed: time.Since(w.started),
	}
}
