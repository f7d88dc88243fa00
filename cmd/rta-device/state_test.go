package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgejecook/roku-test-automation/pkg/interaction"
	"github.com/georgejecook/roku-test-automation/pkg/keypath"
	"github.com/georgejecook/roku-test-automation/pkg/model"
	"github.com/georgejecook/roku-test-automation/pkg/persistence"
	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

const yamlState = `
global:
  AuthManager:
    subtype: AuthManager
    isLoggedIn: false
  count: 3
  items: [a, b]
scene:
  subtype: MainScene
  children:
    - id: pagesContainer
      children:
        - id: loginButton
          subtype: Button
          focused: true
registry:
  rta:
    token: abc
`

func resolve(t *testing.T, srv *interaction.Server, base model.Base, path string) keypath.Result {
	t.Helper()
	p, err := keypath.Parse(path)
	require.NoError(t, err)
	res, err := srv.Resolve(base, p)
	require.NoError(t, err)
	return res
}

func TestParseState(t *testing.T) {
	cfg, err := parseState([]byte(yamlState))
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]string{"rta": {"token": "abc"}}, cfg.Registry)

	srv := interaction.NewServer(cfg)

	res := resolve(t, srv, model.BaseGlobal, "AuthManager.isLoggedIn")
	require.True(t, res.Found)
	assert.True(t, res.Value.Equal(model.Bool(false)))

	res = resolve(t, srv, model.BaseGlobal, "count")
	require.True(t, res.Found)
	assert.True(t, res.Value.Equal(model.Int(3)))

	res = resolve(t, srv, model.BaseGlobal, "items.1")
	require.True(t, res.Found)
	assert.True(t, res.Value.Equal(model.String("b")))

	scene := cfg.Roots.Scene
	assert.Equal(t, "MainScene", scene.Subtype)
	pages, ok := scene.ChildByID("pagesContainer")
	require.True(t, ok)
	assert.Equal(t, "Group", pages.Subtype)

	button, ok := keypath.Find(scene, "loginButton")
	require.True(t, ok)
	assert.Equal(t, "Button", button.Subtype)
	assert.True(t, button.Focused)
	assert.False(t, button.HasField(keyFocused))
}

func TestParseStateJSON(t *testing.T) {
	cfg, err := parseState([]byte(`{"global": {"flag": true}, "scene": {"children": [{"id": "a"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "Scene", cfg.Roots.Scene.Subtype)
	require.Len(t, cfg.Roots.Scene.Children, 1)
	assert.Equal(t, "a", cfg.Roots.Scene.Children[0].ID)
	assert.True(t, cfg.Roots.Global["flag"].Equal(model.Bool(true)))
}

func TestParseStateErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"InvalidYAML", "global: [unclosed"},
		{"TwoFocused", "scene:\n  children:\n    - {id: a, focused: true}\n    - {id: b, focused: true}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseState([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoadState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlState), 0o600))

	cfg, err := loadState(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Roots.Global, "AuthManager")

	_, err = loadState(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type replyRecorder struct {
	responses chan *wire.Response
}

func (r *replyRecorder) Respond(resp *wire.Response) error {
	r.responses <- resp
	return nil
}

func (r *replyRecorder) Emit(resp *wire.Response) error {
	r.responses <- resp
	return nil
}

func TestDemoFuncs(t *testing.T) {
	srv := interaction.NewServer(demoState())
	registerFuncs(srv)
	rec := &replyRecorder{responses: make(chan *wire.Response, 4)}

	req, err := wire.NewRequest(1, wire.KindCallFunc, wire.CallFuncArgs{KeyPath: "AuthManager", FuncName: "loginUser"})
	require.NoError(t, err)
	srv.HandleRequest(context.Background(), req, rec)

	select {
	case resp := <-rec.responses:
		require.True(t, resp.IsSuccess())
		var res wire.CallFuncResult
		require.NoError(t, resp.DecodeResult(&res))
		assert.True(t, res.Value.Equal(model.Bool(true)))
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}

	res := resolve(t, srv, model.BaseGlobal, "AuthManager.isLoggedIn")
	assert.True(t, res.Value.Equal(model.Bool(true)))
}

func TestRunSimulation(t *testing.T) {
	srv := interaction.NewServer(demoState())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runSimulation(ctx, srv, 5*time.Millisecond, logger)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		res, err := srv.Resolve(model.BaseGlobal, keypath.Path{{Name: "tick"}})
		if err != nil {
			return false
		}
		n, ok := res.Value.AsInt()
		return ok && n >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestAttachRegistryStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "registry.json")
	ctx := context.Background()

	cfg := demoState()
	require.NoError(t, attachRegistryStore(&cfg, persistence.NewRegistryStore(path), false, logger))
	srv := interaction.NewServer(cfg)
	rec := &replyRecorder{responses: make(chan *wire.Response, 4)}

	token := "abc"
	req, err := wire.NewRequest(1, wire.KindWriteRegistry, wire.WriteRegistryArgs{
		Values: map[string]map[string]*string{"rta": {"token": &token}},
	})
	require.NoError(t, err)
	srv.HandleRequest(ctx, req, rec)
	require.True(t, (<-rec.responses).IsSuccess())

	// A restarted device sees the write.
	cfg = demoState()
	require.NoError(t, attachRegistryStore(&cfg, persistence.NewRegistryStore(path), false, logger))
	assert.Equal(t, map[string]map[string]string{"rta": {"token": "abc"}}, cfg.Registry)

	// Reset discards it.
	cfg = demoState()
	require.NoError(t, attachRegistryStore(&cfg, persistence.NewRegistryStore(path), true, logger))
	assert.Empty(t, cfg.Registry)
}
