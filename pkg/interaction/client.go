package interaction

import (
	"context"
	"time"

	"github.com/georgejecook/roku-test-automation/pkg/model"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// Client defaults.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultObserveTimeout = 5 * time.Second
	DefaultObserveGrace   = 2 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Timeout bounds every request except observeField.
	Timeout time.Duration

	// ObserveTimeout is the retryTimeout sent when an observation sets none.
	ObserveTimeout time.Duration

	// ObserveGrace is added to an observation's retryTimeout to form the
	// client-side deadline.
	ObserveGrace time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ObserveTimeout <= 0 {
		c.ObserveTimeout = DefaultObserveTimeout
	}
	if c.ObserveGrace <= 0 {
		c.ObserveGrace = DefaultObserveGrace
	}
	return c
}

// Client exposes the bridge operations of the on-device component.
type Client struct {
	*Dispatcher
	config ClientConfig
}

// NewClient creates a client transmitting through sender. Replies must be
// fed to the client's HandleResponse and HandleEvent, usually by passing the
// client to transport.Conn.Run.
func NewClient(sender Sender, config ClientConfig) *Client {
	return &Client{
		Dispatcher: NewDispatcher(sender),
		config:     config.withDefaults(),
	}
}

// ValueResult is the outcome of a key path read.
type ValueResult struct {
	Found     bool
	Value     model.Value
	TimeTaken time.Duration
}

// ValuesResult is the outcome of a batched key path read.
type ValuesResult struct {
	Results   map[string]ValueResult
	TimeTaken time.Duration
}

// ObserveResult is the outcome of an observation.
type ObserveResult struct {
	// ObserverFired is false when the match was satisfied at registration.
	ObserverFired bool
	Value         model.Value
	TimeTaken     time.Duration
}

// CallFuncResult is the outcome of a function call.
type CallFuncResult struct {
	Value     model.Value
	TimeTaken time.Duration
}

// ObserveOptions describes one observation.
type ObserveOptions struct {
	Base    model.Base
	KeyPath string

	// Match is optional; see wire.LiteralMatch and wire.FieldMatch.
	Match *wire.Match

	// RetryTimeout bounds the device-side wait. Zero uses the configured
	// ObserveTimeout.
	RetryTimeout time.Duration
}

// GetValue reads the value at base/keyPath. An unresolved path is reported
// through Found, not as an error.
func (c *Client) GetValue(ctx context.Context, base model.Base, keyPath string) (*ValueResult, error) {
	var res wire.ValueResult
	resp, err := c.call(ctx, wire.KindGetValueAtKeyPath, wire.KeyPathArgs{Base: base, KeyPath: keyPath}, &res)
	if err != nil {
		return nil, err
	}
	return &ValueResult{Found: res.Found, Value: res.Value, TimeTaken: resp.Elapsed()}, nil
}

// GetValues reads several key paths in one request. Results are keyed by
// the names used in requests.
func (c *Client) GetValues(ctx context.Context, requests map[string]wire.KeyPathArgs) (*ValuesResult, error) {
	var res wire.ValuesResult
	resp, err := c.call(ctx, wire.KindGetValuesAtKeyPaths, wire.GetValuesArgs{Requests: requests}, &res)
	if err != nil {
		return nil, err
	}
	out := &ValuesResult{
		Results:   make(map[string]ValueResult, len(res.Results)),
		TimeTaken: resp.Elapsed(),
	}
	for name, r := range res.Results {
		out.Results[name] = ValueResult{Found: r.Found, Value: r.Value}
	}
	return out, nil
}

// SetValue writes v at base/keyPath and returns the device-side time taken.
// Node descriptions in v are created with their subtype's defaults.
func (c *Client) SetValue(ctx context.Context, base model.Base, keyPath string, v model.Value) (time.Duration, error) {
	resp, err := c.call(ctx, wire.KindSetValueAtKeyPath, wire.SetValueArgs{Base: base, KeyPath: keyPath, Value: v}, nil)
	if err != nil {
		return 0, err
	}
	return resp.Elapsed(), nil
}

// PendingObservation is an observation whose request is on the wire.
type PendingObservation struct {
	call *Call
}

// ID returns the correlation id of the observation.
func (p *PendingObservation) ID() uint64 {
	return p.call.ID
}

// Wait blocks until the observation produces its outcome.
func (p *PendingObservation) Wait(ctx context.Context) (*ObserveResult, error) {
	resp, err := p.call.Wait(ctx)
	if err != nil {
		return nil, err
	}
	var res wire.ObserveResult
	if err := decodeReply(resp, &res); err != nil {
		return nil, err
	}
	return &ObserveResult{
		ObserverFired: res.ObserverFired,
		Value:         res.Value,
		TimeTaken:     resp.Elapsed(),
	}, nil
}

// GoObserveField registers an observation and returns once the request has
// been transmitted. Changes made after GoObserveField returns are seen by
// the observation.
func (c *Client) GoObserveField(opts ObserveOptions) (*PendingObservation, error) {
	retry := opts.RetryTimeout
	if retry <= 0 {
		retry = c.config.ObserveTimeout
	}
	args := wire.ObserveFieldArgs{
		Base:         opts.Base,
		KeyPath:      opts.KeyPath,
		Match:        opts.Match,
		RetryTimeout: uint32(retry / time.Millisecond),
	}
	call, err := c.start(wire.KindObserveField, args, retry+c.config.ObserveGrace, ErrObserveTimeout)
	if err != nil {
		return nil, err
	}
	return &PendingObservation{call: call}, nil
}

// ObserveField waits for the field at opts.KeyPath to change in a way that
// satisfies opts.Match.
func (c *Client) ObserveField(ctx context.Context, opts ObserveOptions) (*ObserveResult, error) {
	p, err := c.GoObserveField(opts)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// CallFunc invokes funcName on the node at base/keyPath.
func (c *Client) CallFunc(ctx context.Context, base model.Base, keyPath, funcName string, params ...model.Value) (*CallFuncResult, error) {
	args := wire.CallFuncArgs{Base: base, KeyPath: keyPath, FuncName: funcName, FuncParams: params}
	var res wire.CallFuncResult
	resp, err := c.call(ctx, wire.KindCallFunc, args, &res)
	if err != nil {
		return nil, err
	}
	return &CallFuncResult{Value: res.Value, TimeTaken: resp.Elapsed()}, nil
}

// RegistryKeys builds a registry filter selecting keys of one section. With
// no keys the whole section is selected.
func RegistryKeys(section string, keys ...string) map[string][]string {
	if keys == nil {
		keys = []string{}
	}
	return map[string][]string{section: keys}
}

// ReadRegistry reads the device registry. A nil filter reads everything.
func (c *Client) ReadRegistry(ctx context.Context, filter map[string][]string) (map[string]map[string]string, error) {
	var res wire.RegistryResult
	if _, err := c.call(ctx, wire.KindReadRegistry, wire.ReadRegistryArgs{Values: filter}, &res); err != nil {
		return nil, err
	}
	if res.Values == nil {
		res.Values = make(map[string]map[string]string)
	}
	return res.Values, nil
}

// WriteRegistry writes registry values. A nil value deletes its key.
func (c *Client) WriteRegistry(ctx context.Context, values map[string]map[string]*string) error {
	_, err := c.call(ctx, wire.KindWriteRegistry, wire.WriteRegistryArgs{Values: values}, nil)
	return err
}

// DeleteRegistrySections removes whole registry sections.
func (c *Client) DeleteRegistrySections(ctx context.Context, sections ...string) error {
	_, err := c.call(ctx, wire.KindDeleteRegistrySections, wire.DeleteRegistrySectionsArgs{Sections: sections}, nil)
	return err
}

// DeleteEntireRegistry removes every registry section.
func (c *Client) DeleteEntireRegistry(ctx context.Context) error {
	_, err := c.call(ctx, wire.KindDeleteEntireRegistry, nil, nil)
	return err
}

// GetFocusedNode returns the node that currently has focus, or nil when
// nothing is focused.
func (c *Client) GetFocusedNode(ctx context.Context) (*model.Node, error) {
	var res wire.ValueResult
	if _, err := c.call(ctx, wire.KindGetFocusedNode, nil, &res); err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, nil
	}
	n, ok := res.Value.AsNode()
	if !ok {
		return nil, ErrUnexpectedReply
	}
	return n, nil
}

// HasFocus reports whether the node at base/keyPath has focus.
func (c *Client) HasFocus(ctx context.Context, base model.Base, keyPath string) (bool, error) {
	return c.boolQuery(ctx, wire.KindHasFocus, base, keyPath)
}

// IsInFocusChain reports whether the node at base/keyPath is the focused
// node or one of its ancestors.
func (c *Client) IsInFocusChain(ctx context.Context, base model.Base, keyPath string) (bool, error) {
	return c.boolQuery(ctx, wire.KindIsInFocusChain, base, keyPath)
}

func (c *Client) boolQuery(ctx context.Context, kind wire.Kind, base model.Base, keyPath string) (bool, error) {
	var res wire.BoolResult
	if _, err := c.call(ctx, kind, wire.KeyPathArgs{Base: base, KeyPath: keyPath}, &res); err != nil {
		return false, err
	}
	return res.Value, nil
}

// call sends one request, waits for its reply and decodes a successful
// result into result.
func (c *Client) call(ctx context.Context, kind wire.Kind, args any, result any) (*wire.Response, error) {
	resp, err := c.Do(ctx, kind, args, c.config.Timeout)
	if err != nil {
		return nil, err
	}
	if err := decodeReply(resp, result); err != nil {
		return nil, err
	}
	return resp, nil
}

func decodeReply(resp *wire.Response, result any) error {
	if !resp.IsSuccess() {
		return remoteError(resp)
	}
	if result == nil {
		return nil
	}
	return resp.DecodeResult(result)
}
