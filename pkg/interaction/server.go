package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/georgejecook/roku-test-automation/pkg/keypath"
	"github.com/georgejecook/roku-test-automation/pkg/model"
	"github.com/georgejecook/roku-test-automation/pkg/observe"
	"github.com/georgejecook/roku-test-automation/pkg/transport"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// Func is a function callable on nodes of one subtype. It runs with the
// server's state locked and must not call back into the server.
type Func func(node *model.Node, params []model.Value) (model.Value, error)

// ServerConfig configures a reference device Server.
type ServerConfig struct {
	// Roots is the initial device state. Nil starts with an empty global
	// mapping and a bare scene.
	Roots *keypath.Roots

	// Defaults supplies field defaults for created nodes. Nil uses the
	// built-in table.
	Defaults *keypath.Defaults

	// Registry is the initial registry content.
	Registry map[string]map[string]string

	// ObserveTimeout applies to observations without a retryTimeout.
	ObserveTimeout time.Duration

	// OnRegistryChange receives a copy of the registry after every write or
	// delete. It runs with the server's state locked.
	OnRegistryChange func(registry map[string]map[string]string)

	// Logger receives debug output. Optional.
	Logger *slog.Logger
}

// Server is an in-memory device that answers bridge requests. It implements
// transport.RequestHandler.
type Server struct {
	mu       sync.RWMutex
	roots    *keypath.Roots
	defaults *keypath.Defaults
	registry map[string]map[string]string
	funcs    map[string]map[string]Func

	sessionsMu sync.Mutex
	sessions   map[transport.Replier]*observe.Registry

	observeTimeout   time.Duration
	onRegistryChange func(map[string]map[string]string)
	logger           *slog.Logger
}

// NewServer creates a server holding the state in config.
func NewServer(config ServerConfig) *Server {
	roots := config.Roots
	if roots == nil {
		roots = &keypath.Roots{}
	}
	if roots.Global == nil {
		roots.Global = make(map[string]model.Value)
	}
	if roots.Scene == nil {
		roots.Scene = model.NewNode("Scene", "")
	}

	registry := make(map[string]map[string]string, len(config.Registry))
	for section, values := range config.Registry {
		registry[section] = copySection(values)
	}

	return &Server{
		roots:          roots,
		defaults:       config.Defaults,
		registry:       registry,
		funcs:          make(map[string]map[string]Func),
		sessions:       make(map[transport.Replier]*observe.Registry),
		observeTimeout:   config.ObserveTimeout,
		onRegistryChange: config.OnRegistryChange,
		logger:           config.Logger,
	}
}

// RegisterFunc makes fn callable as name on every node of subtype.
func (s *Server) RegisterFunc(subtype, name string, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.funcs[subtype] == nil {
		s.funcs[subtype] = make(map[string]Func)
	}
	s.funcs[subtype][name] = fn
}

// Resolve resolves p against base in the current state.
func (s *Server) Resolve(base model.Base, p keypath.Path) (keypath.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(base, p)
}

func (s *Server) resolveLocked(base model.Base, p keypath.Path) (keypath.Result, error) {
	root, err := s.roots.Root(base)
	if err != nil {
		return keypath.Result{}, err
	}
	res := keypath.Resolve(root, p)
	if res.Found {
		res.Value = res.Value.Clone()
	}
	return res, nil
}

// Update runs fn with exclusive access to the state, then re-evaluates all
// pending observations.
func (s *Server) Update(fn func(roots *keypath.Roots) error) error {
	s.mu.Lock()
	err := fn(s.roots)
	s.mu.Unlock()

	s.notify()
	return err
}

// SetValue assigns v at base/keyPath as a setValueAtKeyPath request would.
func (s *Server) SetValue(base model.Base, keyPath string, v model.Value) error {
	p, err := keypath.Parse(keyPath)
	if err != nil {
		return fmt.Errorf("%w: %v", keypath.ErrNotFound, err)
	}
	return s.Update(func(roots *keypath.Roots) error {
		root, err := roots.Root(base)
		if err != nil {
			return err
		}
		return keypath.Assign(root, p, v, s.defaults)
	})
}

// PendingObservations returns the number of unresolved observations across
// all connections.
func (s *Server) PendingObservations() int {
	n := 0
	for _, reg := range s.registries() {
		n += reg.Len()
	}
	return n
}

// HandleRequest answers req through r.
func (s *Server) HandleRequest(ctx context.Context, req *wire.Request, r transport.Replier) {
	started := time.Now()

	var resp *wire.Response
	switch req.Kind {
	case wire.KindGetValueAtKeyPath:
		resp = s.handleGetValue(req, started)
	case wire.KindGetValuesAtKeyPaths:
		resp = s.handleGetValues(req, started)
	case wire.KindSetValueAtKeyPath:
		resp = s.handleSetValue(req, started)
	case wire.KindObserveField:
		resp = s.handleObserveField(ctx, req, r, started)
	case wire.KindCallFunc:
		resp = s.handleCallFunc(req, started)
	case wire.KindReadRegistry:
		resp = s.handleReadRegistry(req, started)
	case wire.KindWriteRegistry:
		resp = s.handleWriteRegistry(req, started)
	case wire.KindDeleteRegistrySections:
		resp = s.handleDeleteRegistrySections(req, started)
	case wire.KindDeleteEntireRegistry:
		resp = s.handleDeleteEntireRegistry(req, started)
	case wire.KindGetFocusedNode:
		resp = s.handleGetFocusedNode(req, started)
	case wire.KindHasFocus, wire.KindIsInFocusChain:
		resp = s.handleFocusQuery(req, started)
	default:
		resp = wire.NewErrorResponse(req.ID, wire.ErrorUnsupported,
			fmt.Sprintf("unsupported operation %s", req.Kind), time.Since(started))
	}

	// Registered observations answer later through an event.
	if resp == nil {
		return
	}
	if err := r.Respond(resp); err != nil {
		s.debug("respond failed", "id", req.ID, "kind", req.Kind.String(), "error", err)
	}
}

func (s *Server) handleGetValue(req *wire.Request, started time.Time) *wire.Response {
	var args wire.KeyPathArgs
	if err := req.DecodeArgs(&args); err != nil {
		return invalidArgs(req, err, started)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.readLocked(args)
	if err != nil {
		return keyPathError(req, err, started)
	}
	return s.result(req, res, started)
}

func (s *Server) handleGetValues(req *wire.Request, started time.Time) *wire.Response {
	var args wire.GetValuesArgs
	if err := req.DecodeArgs(&args); err != nil {
		return invalidArgs(req, err, started)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string]wire.ValueResult, len(args.Requests))
	for name, kp := range args.Requests {
		res, err := s.readLocked(kp)
		if err != nil {
			return keyPathError(req, fmt.Errorf("%s: %w", name, err), started)
		}
		results[name] = res
	}
	return s.result(req, wire.ValuesResult{Results: results}, started)
}

// readLocked resolves a read. Malformed and unresolved paths are reads that
// found nothing; only an unknown base is an error.
func (s *Server) readLocked(args wire.KeyPathArgs) (wire.ValueResult, error) {
	p, err := keypath.Parse(args.KeyPath)
	if err != nil {
		if _, err := s.roots.Root(args.Base); err != nil {
			return wire.ValueResult{}, err
		}
		return wire.ValueResult{}, nil
	}
	res, err := s.resolveLocked(args.Base, p)
	if err != nil {
		return wire.ValueResult{}, err
	}
	return wire.ValueResult{Found: res.Found, Value: res.Value}, nil
}

func (s *Server) handleSetValue(req *wire.Request, started time.Time) *wire.Response {
	var args wire.SetValueArgs
	if err := req.DecodeArgs(&args); err != nil {
		return invalidArgs(req, err, started)
	}
	if err := s.SetValue(args.Base, args.KeyPath, args.Value); err != nil {
		return keyPathError(req, err, started)
	}
	return s.result(req, nil, started)
}

func (s *Server) handleObserveField(ctx context.Context, req *wire.Request, r transport.Replier, started time.Time) *wire.Response {
	var args wire.ObserveFieldArgs
	if err := req.DecodeArgs(&args); err != nil {
		return invalidArgs(req, err, started)
	}

	o, done, err := s.observations(ctx, r).Observe(req.ID, args)
	if err != nil {
		return invalidArgs(req, err, started)
	}
	if !done {
		return nil
	}
	return s.outcomeResponse(o)
}

func (s *Server) handleCallFunc(req *wire.Request, started time.Time) *wire.Response {
	var args wire.CallFuncArgs
	if err := req.DecodeArgs(&args); err != nil {
		return invalidArgs(req, err, started)
	}
	p, err := keypath.Parse(args.KeyPath)
	if err != nil {
		return keyPathError(req, fmt.Errorf("%w: %v", keypath.ErrNotFound, err), started)
	}

	var resp *wire.Response
	_ = s.Update(func(roots *keypath.Roots) error {
		root, err := roots.Root(args.Base)
		if err != nil {
			resp = keyPathError(req, err, started)
			return nil
		}
		node, ok := keypath.Resolve(root, p).Node()
		if !ok {
			resp = keyPathError(req, fmt.Errorf("%w: %q is not a node", keypath.ErrNotFound, args.KeyPath), started)
			return nil
		}
		fn, ok := s.funcs[node.Subtype][args.FuncName]
		if !ok {
			resp = wire.NewErrorResponse(req.ID, wire.ErrorFuncNotFound,
				fmt.Sprintf("%s has no function %q", node.Subtype, args.FuncName), time.Since(started))
			return nil
		}
		v, err := fn(node, args.FuncParams)
		if err != nil {
			resp = invalidArgs(req, err, started)
			return nil
		}
		resp = s.result(req, wire.CallFuncResult{Value: v.Clone()}, started)
		return nil
	})
	return resp
}

func (s *Server) handleReadRegistry(req *wire.Request, started time.Time) *wire.Response {
	var args wire.ReadRegistryArgs
	if err := req.DecodeArgs(&args); err != nil {
		return invalidArgs(req, err, started)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]string)
	if len(args.Values) == 0 {
		for section, values := range s.registry {
			out[section] = copySection(values)
		}
		return s.result(req, wire.RegistryResult{Values: out}, started)
	}

	for section, keys := range args.Values {
		values := s.registry[section]
		if len(keys) == 0 {
			out[section] = copySection(values)
			continue
		}
		selected := make(map[string]string, len(keys))
		for _, key := range keys {
			if v, ok := values[key]; ok {
				selected[key] = v
			}
		}
		out[section] = selected
	}
	return s.result(req, wire.RegistryResult{Values: out}, started)
}

func (s *Server) handleWriteRegistry(req *wire.Request, started time.Time) *wire.Response {
	var args wire.WriteRegistryArgs
	if err := req.DecodeArgs(&args); err != nil {
		return invalidArgs(req, err, started)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before writing anything.
	for section := range args.Values {
		if section == "" {
			return wire.NewErrorResponse(req.ID, wire.ErrorRegistry, "empty section name", time.Since(started))
		}
	}
	for section, values := range args.Values {
		current := s.registry[section]
		if current == nil {
			current = make(map[string]string, len(values))
			s.registry[section] = current
		}
		for key, v := range values {
			if v == nil {
				delete(current, key)
				continue
			}
			current[key] = *v
		}
		if len(current) == 0 {
			delete(s.registry, section)
		}
	}
	s.registryChanged()
	return s.result(req, nil, started)
}

func (s *Server) handleDeleteRegistrySections(req *wire.Request, started time.Time) *wire.Response {
	var args wire.DeleteRegistrySectionsArgs
	if err := req.DecodeArgs(&args); err != nil {
		return invalidArgs(req, err, started)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, section := range args.Sections {
		delete(s.registry, section)
	}
	s.registryChanged()
	return s.result(req, nil, started)
}

func (s *Server) handleDeleteEntireRegistry(req *wire.Request, started time.Time) *wire.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry = make(map[string]map[string]string)
	s.registryChanged()
	return s.result(req, nil, started)
}

func (s *Server) handleGetFocusedNode(req *wire.Request, started time.Time) *wire.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := keypath.FocusedNode(s.roots.Scene)
	if !ok {
		return s.result(req, wire.ValueResult{}, started)
	}
	return s.result(req, wire.ValueResult{Found: true, Value: model.NodeValue(n.Clone())}, started)
}

func (s *Server) handleFocusQuery(req *wire.Request, started time.Time) *wire.Response {
	var args wire.KeyPathArgs
	if err := req.DecodeArgs(&args); err != nil {
		return invalidArgs(req, err, started)
	}
	p, err := keypath.Parse(args.KeyPath)
	if err != nil {
		return keyPathError(req, fmt.Errorf("%w: %v", keypath.ErrNotFound, err), started)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	root, err := s.roots.Root(args.Base)
	if err != nil {
		return keyPathError(req, err, started)
	}
	node, ok := keypath.Resolve(root, p).Node()
	if !ok {
		return keyPathError(req, fmt.Errorf("%w: %q is not a node", keypath.ErrNotFound, args.KeyPath), started)
	}

	value := node.Focused
	if req.Kind == wire.KindIsInFocusChain {
		value = keypath.InFocusChain(s.roots.Scene, node)
	}
	return s.result(req, wire.BoolResult{Value: value}, started)
}

// observations returns the observation registry of the connection behind r,
// creating it on first use. It is dropped when ctx ends.
func (s *Server) observations(ctx context.Context, r transport.Replier) *observe.Registry {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if reg, ok := s.sessions[r]; ok {
		return reg
	}
	reg := observe.NewRegistry(observe.Config{
		Resolver: s,
		OnOutcome: func(o observe.Outcome) {
			if err := r.Emit(s.outcomeResponse(o)); err != nil {
				s.debug("emit failed", "id", o.ID, "error", err)
			}
		},
		Logger:         s.logger,
		DefaultTimeout: s.observeTimeout,
	})
	s.sessions[r] = reg
	context.AfterFunc(ctx, func() {
		s.sessionsMu.Lock()
		delete(s.sessions, r)
		s.sessionsMu.Unlock()
		reg.Close()
	})
	return reg
}

func (s *Server) registries() []*observe.Registry {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	regs := make([]*observe.Registry, 0, len(s.sessions))
	for _, reg := range s.sessions {
		regs = append(regs, reg)
	}
	return regs
}

// notify must be called without s.mu held.
func (s *Server) notify() {
	for _, reg := range s.registries() {
		reg.Notify()
	}
}

func (s *Server) outcomeResponse(o observe.Outcome) *wire.Response {
	if o.Err != nil {
		return wire.NewErrorResponse(o.ID, o.ErrorKind(), o.Err.Error(), o.Elapsed)
	}
	resp, err := wire.NewResponse(o.ID, o.Result(), o.Elapsed)
	if err != nil {
		return wire.NewErrorResponse(o.ID, wire.ErrorObserveInvalidKeyPath, err.Error(), o.Elapsed)
	}
	return resp
}

func (s *Server) result(req *wire.Request, result any, started time.Time) *wire.Response {
	resp, err := wire.NewResponse(req.ID, result, time.Since(started))
	if err != nil {
		return invalidArgs(req, err, started)
	}
	return resp
}

func (s *Server) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Server) registryChanged() {
	if s.onRegistryChange == nil {
		return
	}
	snapshot := make(map[string]map[string]string, len(s.registry))
	for section, values := range s.registry {
		snapshot[section] = copySection(values)
	}
	s.onRegistryChange(snapshot)
}

// RegistrySections returns the sorted section names currently stored.
func (s *Server) RegistrySections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sections := make([]string, 0, len(s.registry))
	for section := range s.registry {
		sections = append(sections, section)
	}
	sort.Strings(sections)
	return sections
}

func keyPathError(req *wire.Request, err error, started time.Time) *wire.Response {
	kind := wire.ErrorKeyPathNotFound
	switch {
	case errors.Is(err, keypath.ErrInvalidBase):
		kind = wire.ErrorInvalidBase
	case errors.Is(err, keypath.ErrInvalidValue):
		kind = wire.ErrorInvalidArgs
	}
	return wire.NewErrorResponse(req.ID, kind, err.Error(), time.Since(started))
}

func invalidArgs(req *wire.Request, err error, started time.Time) *wire.Response {
	return wire.NewErrorResponse(req.ID, wire.ErrorInvalidArgs, err.Error(), time.Since(started))
}

func copySection(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
