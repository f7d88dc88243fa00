package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/georgejecook/roku-test-automation/pkg/interaction"
	"github.com/georgejecook/roku-test-automation/pkg/keypath"
	"github.com/georgejecook/roku-test-automation/pkg/model"
)

// keyFocused marks the focused node in a state file.
const keyFocused = "focused"

// stateFile is the on-disk description of the device state. JSON is valid
// YAML, so either format loads.
//
//	global:
//	  AuthManager: {subtype: AuthManager, isLoggedIn: false}
//	scene:
//	  subtype: MainScene
//	  children:
//	    - {id: loginButton, subtype: Button, focused: true}
//	registry:
//	  rta: {token: abc}
type stateFile struct {
	Global   map[string]any               `yaml:"global"`
	Scene    map[string]any               `yaml:"scene"`
	Registry map[string]map[string]string `yaml:"registry"`
}

// loadState reads a state file into a server config.
func loadState(path string) (interaction.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return interaction.ServerConfig{}, fmt.Errorf("read state: %w", err)
	}
	return parseState(data)
}

func parseState(data []byte) (interaction.ServerConfig, error) {
	var f stateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return interaction.ServerConfig{}, fmt.Errorf("parse state: %w", err)
	}

	roots := &keypath.Roots{Global: make(map[string]model.Value, len(f.Global))}
	for k, raw := range f.Global {
		v, err := model.FromAny(raw)
		if err != nil {
			return interaction.ServerConfig{}, fmt.Errorf("global %q: %w", k, err)
		}
		roots.Global[k] = v
	}

	if f.Scene != nil {
		scene, err := sceneFromAny(f.Scene)
		if err != nil {
			return interaction.ServerConfig{}, err
		}
		roots.Scene = scene
	}

	return interaction.ServerConfig{Roots: roots, Registry: f.Registry}, nil
}

func sceneFromAny(raw map[string]any) (*model.Node, error) {
	v, err := model.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}

	var scene *model.Node
	switch v.Kind() {
	case model.KindNode:
		scene, _ = v.AsNode()
	case model.KindMap:
		m, _ := v.AsMap()
		scene = model.NodeFromMap(m)
	default:
		return nil, errors.New("scene: not a node")
	}
	if scene.Subtype == "" {
		scene.Subtype = "Scene"
	}

	focused := 0
	scene.Walk(func(n *model.Node) bool {
		if n.Subtype == "" {
			n.Subtype = "Group"
		}
		if f, ok := n.Fields[keyFocused]; ok {
			if b, ok := f.AsBool(); ok {
				delete(n.Fields, keyFocused)
				n.Focused = b
				if b {
					focused++
				}
			}
		}
		return true
	})
	if focused > 1 {
		return nil, fmt.Errorf("scene: %d nodes marked focused", focused)
	}
	return scene, nil
}

// demoState is served when no state file is given.
func demoState() interaction.ServerConfig {
	scene := model.NewNode("MainScene", "")
	pages := model.NewNode("Group", "pagesContainer")
	login := model.NewNode("Button", "loginButton")
	login.SetField("text", model.String("Log in"))
	login.Focused = true
	pages.AppendChild(login)
	scene.AppendChild(pages)

	auth := model.NewNode("AuthManager", "")
	auth.SetField("isLoggedIn", model.Bool(false))

	return interaction.ServerConfig{
		Roots: &keypath.Roots{
			Global: map[string]model.Value{
				"AuthManager": model.NodeValue(auth),
				"tick":        model.Int(0),
			},
			Scene: scene,
		},
		Registry: map[string]map[string]string{},
	}
}

// registerFuncs installs the functions the demo state supports.
func registerFuncs(srv *interaction.Server) {
	srv.RegisterFunc("AuthManager", "loginUser", func(n *model.Node, _ []model.Value) (model.Value, error) {
		n.SetField("isLoggedIn", model.Bool(true))
		return model.Bool(true), nil
	})
	srv.RegisterFunc("AuthManager", "logoutUser", func(n *model.Node, _ []model.Value) (model.Value, error) {
		n.SetField("isLoggedIn", model.Bool(false))
		return model.Bool(true), nil
	})
}
