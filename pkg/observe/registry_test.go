package observe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgejecook/roku-test-automation/pkg/keypath"
	"github.com/georgejecook/roku-test-automation/pkg/model"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

type testState struct {
	mu    sync.RWMutex
	roots *keypath.Roots
}

func newTestState() *testState {
	scene := model.NewNode("Scene", "")
	title := model.NewNode("Label", "title")
	title.SetField("text", model.String(""))
	scene.AppendChild(title)
	return &testState{roots: &keypath.Roots{
		Global: map[string]model.Value{
			"stringValue": model.String(""),
			"intValue":    model.Int(0),
			"flags":       model.MustFromAny(map[string]any{"ready": false}),
		},
		Scene: scene,
	}}
}

func (s *testState) Resolve(base model.Base, p keypath.Path) (keypath.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, err := s.roots.Root(base)
	if err != nil {
		return keypath.Result{}, err
	}
	return keypath.Resolve(root, p), nil
}

func (s *testState) set(t *testing.T, base model.Base, path string, v model.Value) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	root, err := s.roots.Root(base)
	require.NoError(t, err)
	require.NoError(t, keypath.Assign(root, keypath.MustParse(path), v, nil))
}

type outcomeRecorder struct {
	ch chan Outcome
}

func newOutcomeRecorder() *outcomeRecorder {
	return &outcomeRecorder{ch: make(chan Outcome, 16)}
}

func (r *outcomeRecorder) record(o Outcome) { r.ch <- o }

func (r *outcomeRecorder) next(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-r.ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome delivered")
		return Outcome{}
	}
}

func (r *outcomeRecorder) none(t *testing.T) {
	t.Helper()
	select {
	case o := <-r.ch:
		t.Fatalf("unexpected outcome: %+v", o)
	case <-time.After(20 * time.Millisecond):
	}
}

func newTestRegistry(state *testState, rec *outcomeRecorder) *Registry {
	return NewRegistry(Config{
		Resolver:       state,
		OnOutcome:      rec.record,
		DefaultTimeout: time.Minute,
	})
}

func TestObserveFiresOnFirstChange(t *testing.T) {
	state := newTestState()
	rec := newOutcomeRecorder()
	reg := newTestRegistry(state, rec)
	defer reg.Close()

	_, done, err := reg.Observe(1, wire.ObserveFieldArgs{KeyPath: "stringValue"})
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, 1, reg.Len())

	reg.Notify()
	rec.none(t)

	state.set(t, model.BaseGlobal, "stringValue", model.String("changed"))
	reg.Notify()

	o := rec.next(t)
	assert.Equal(t, uint64(1), o.ID)
	assert.True(t, o.Fired)
	assert.NoError(t, o.Err)
	assert.True(t, o.Value.Equal(model.String("changed")))
	assert.Equal(t, 0, reg.Len())

	state.set(t, model.BaseGlobal, "stringValue", model.String("again"))
	reg.Notify()
	rec.none(t)
}

func TestObserveLiteralMatch(t *testing.T) {
	state := newTestState()
	rec := newOutcomeRecorder()
	reg := newTestRegistry(state, rec)
	defer reg.Close()

	_, done, err := reg.Observe(7, wire.ObserveFieldArgs{
		KeyPath: "intValue",
		Match:   wire.LiteralMatch(model.Int(3)),
	})
	require.NoError(t, err)
	require.False(t, done)

	state.set(t, model.BaseGlobal, "intValue", model.Int(2))
	reg.Notify()
	rec.none(t)

	state.set(t, model.BaseGlobal, "intValue", model.Int(3))
	reg.Notify()

	o := rec.next(t)
	assert.True(t, o.Fired)
	assert.True(t, o.Value.Equal(model.Int(3)))
}

func TestObserveAlreadySatisfied(t *testing.T) {
	state := newTestState()
	rec := newOutcomeRecorder()
	reg := newTestRegistry(state, rec)
	defer reg.Close()

	o, done, err := reg.Observe(2, wire.ObserveFieldArgs{
		KeyPath: "intValue",
		Match:   wire.LiteralMatch(model.Int(0)),
	})
	require.NoError(t, err)
	require.True(t, done)
	assert.False(t, o.Fired)
	assert.NoError(t, o.Err)
	assert.True(t, o.Value.Equal(model.Int(0)))
	assert.False(t, o.Result().ObserverFired)
	assert.Equal(t, 0, reg.Len())
	rec.none(t)
}

func TestObserveFieldMatch(t *testing.T) {
	state := newTestState()
	rec := newOutcomeRecorder()
	reg := newTestRegistry(state, rec)
	defer reg.Close()

	_, done, err := reg.Observe(3, wire.ObserveFieldArgs{
		KeyPath: "stringValue",
		Match:   wire.FieldMatch(model.BaseGlobal, "intValue", model.Int(42)),
	})
	require.NoError(t, err)
	require.False(t, done)

	// A change to the match field alone does not fire the observer.
	state.set(t, model.BaseGlobal, "intValue", model.Int(42))
	reg.Notify()
	rec.none(t)

	state.set(t, model.BaseGlobal, "stringValue", model.String("fired"))
	reg.Notify()

	o := rec.next(t)
	assert.True(t, o.Fired)
	assert.True(t, o.Value.Equal(model.String("fired")))
}

func TestObserveFieldMatchNotSatisfiedKeepsWaiting(t *testing.T) {
	state := newTestState()
	rec := newOutcomeRecorder()
	reg := newTestRegistry(state, rec)
	defer reg.Close()

	_, _, err := reg.Observe(4, wire.ObserveFieldArgs{
		KeyPath: "stringValue",
		Match:   wire.FieldMatch(model.BaseGlobal, "intValue", model.Int(42)),
	})
	require.NoError(t, err)

	state.set(t, model.BaseGlobal, "stringValue", model.String("one"))
	reg.Notify()
	rec.none(t)
	assert.Equal(t, 1, reg.Len())
}

func TestObserveInvalidKeyPaths(t *testing.T) {
	tests := []struct {
		name    string
		args    wire.ObserveFieldArgs
		wantErr error
		kind    wire.ErrorKind
	}{
		{
			name:    "missing observed field",
			args:    wire.ObserveFieldArgs{KeyPath: "doesNotExist"},
			wantErr: ErrInvalidKeyPath,
			kind:    wire.ErrorObserveInvalidKeyPath,
		},
		{
			name:    "malformed observed path",
			args:    wire.ObserveFieldArgs{KeyPath: "a..b"},
			wantErr: ErrInvalidKeyPath,
			kind:    wire.ErrorObserveInvalidKeyPath,
		},
		{
			name: "missing match field",
			args: wire.ObserveFieldArgs{
				KeyPath: "stringValue",
				Match:   wire.FieldMatch(model.BaseGlobal, "nope", model.Int(1)),
			},
			wantErr: ErrMatchKeyPath,
			kind:    wire.ErrorObserveInvalidKeyPath,
		},
		{
			name:    "unknown base",
			args:    wire.ObserveFieldArgs{Base: "nowhere", KeyPath: "x"},
			wantErr: keypath.ErrInvalidBase,
			kind:    wire.ErrorInvalidBase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newTestState()
			rec := newOutcomeRecorder()
			reg := newTestRegistry(state, rec)
			defer reg.Close()

			o, done, err := reg.Observe(9, tt.args)
			require.NoError(t, err)
			require.True(t, done)
			assert.ErrorIs(t, o.Err, tt.wantErr)
			assert.Equal(t, tt.kind, o.ErrorKind())
			assert.Equal(t, 0, reg.Len())
		})
	}
}

func TestObserveMatchPathDisappears(t *testing.T) {
	state := newTestState()
	rec := newOutcomeRecorder()
	reg := newTestRegistry(state, rec)
	defer reg.Close()

	_, _, err := reg.Observe(5, wire.ObserveFieldArgs{
		KeyPath: "stringValue",
		Match:   wire.FieldMatch(model.BaseGlobal, "flags.ready", model.Bool(true)),
	})
	require.NoError(t, err)

	state.set(t, model.BaseGlobal, "flags", model.Null())
	state.set(t, model.BaseGlobal, "stringValue", model.String("x"))
	reg.Notify()

	o := rec.next(t)
	assert.False(t, o.Fired)
	assert.ErrorIs(t, o.Err, ErrMatchKeyPath)
	assert.Equal(t, 0, reg.Len())
}

func TestObserveObservedPathDisappears(t *testing.T) {
	state := newTestState()
	rec := newOutcomeRecorder()
	reg := newTestRegistry(state, rec)
	defer reg.Close()

	_, _, err := reg.Observe(6, wire.ObserveFieldArgs{KeyPath: "flags.ready"})
	require.NoError(t, err)

	state.set(t, model.BaseGlobal, "flags", model.Null())
	reg.Notify()

	o := rec.next(t)
	assert.ErrorIs(t, o.Err, ErrInvalidKeyPath)
}

func TestObserveSceneField(t *testing.T) {
	state := newTestState()
	rec := newOutcomeRecorder()
	reg := newTestRegistry(state, rec)
	defer reg.Close()

	_, _, err := reg.Observe(8, wire.ObserveFieldArgs{
		Base:    model.BaseScene,
		KeyPath: "title.text",
	})
	require.NoError(t, err)

	state.set(t, model.BaseScene, "title.text", model.String("Hello"))
	reg.Notify()

	o := rec.next(t)
	assert.True(t, o.Fired)
	assert.True(t, o.Value.Equal(model.String("Hello")))
}

func TestObserveTimeout(t *testing.T) {
	state := newTestState()
	rec := newOutcomeRecorder()
	reg := newTestRegistry(state, rec)
	defer reg.Close()

	_, done, err := reg.Observe(10, wire.ObserveFieldArgs{KeyPath: "stringValue", RetryTimeout: 20})
	require.NoError(t, err)
	require.False(t, done)

	o := rec.next(t)
	assert.Equal(t, uint64(10), o.ID)
	assert.ErrorIs(t, o.Err, ErrTimeout)
	assert.Equal(t, wire.ErrorObserveTimeout, o.ErrorKind())
	assert.GreaterOrEqual(t, o.Elapsed, 20*time.Millisecond)
	assert.Equal(t, 0, reg.Len())

	// A change after the timeout produces nothing further.
	state.set(t, model.BaseGlobal, "stringValue", model.String("late"))
	reg.Notify()
	rec.none(t)
}

func TestObserveSingleOutcomeUnderRace(t *testing.T) {
	state := newTestState()
	rec := newOutcomeRecorder()
	reg := newTestRegistry(state, rec)
	defer reg.Close()

	_, _, err := reg.Observe(11, wire.ObserveFieldArgs{KeyPath: "intValue", RetryTimeout: 5})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state.mu.Lock()
			state.roots.Global["intValue"] = model.Int(i)
			state.mu.Unlock()
			reg.Notify()
		}(i)
	}
	wg.Wait()

	rec.next(t)
	time.Sleep(20 * time.Millisecond)
	rec.none(t)
}

func TestObserveDuplicateAndClosed(t *testing.T) {
	state := newTestState()
	rec := newOutcomeRecorder()
	reg := newTestRegistry(state, rec)

	_, _, err := reg.Observe(1, wire.ObserveFieldArgs{KeyPath: "stringValue"})
	require.NoError(t, err)

	_, _, err = reg.Observe(1, wire.ObserveFieldArgs{KeyPath: "stringValue"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	assert.True(t, reg.Cancel(1))
	assert.False(t, reg.Cancel(1))

	reg.Close()
	_, _, err = reg.Observe(2, wire.ObserveFieldArgs{KeyPath: "stringValue"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, reg.Len())
}

func TestDefaultTimeout(t *testing.T) {
	reg := NewRegistry(Config{Resolver: newTestState()})
	assert.Equal(t, DefaultRetryTimeout, reg.config.DefaultTimeout)
}
