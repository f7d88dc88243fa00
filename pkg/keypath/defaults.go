package keypath

import (
	"sync"

	"github.com/georgejecook/roku-test-automation/pkg/model"
)

// Subtype names used when the description does not say otherwise.
const (
	// SubtypeNode is the root of the subtype hierarchy. Unknown subtypes
	// take its defaults.
	SubtypeNode = "Node"

	// DefaultChildSubtype is used for child descriptions without a subtype.
	DefaultChildSubtype = "Group"
)

// subtype is one entry of the defaults table.
type subtype struct {
	extends string
	fields  map[string]model.Value
}

// Defaults is the table of default field values per node subtype. It is
// safe for concurrent use.
type Defaults struct {
	mu       sync.RWMutex
	subtypes map[string]subtype
}

// NewDefaults returns a table holding the built-in subtypes.
func NewDefaults() *Defaults {
	d := &Defaults{subtypes: make(map[string]subtype)}

	d.Register(SubtypeNode, "", map[string]model.Value{
		"focusable":    model.Bool(false),
		"focusedChild": model.Null(),
	})
	d.Register("Group", SubtypeNode, map[string]model.Value{
		"visible":                model.Bool(true),
		"opacity":                model.Int(1),
		"translation":            model.Array(model.Int(0), model.Int(0)),
		"rotation":               model.Int(0),
		"scale":                  model.Array(model.Int(1), model.Int(1)),
		"scaleRotateCenter":      model.Array(model.Int(0), model.Int(0)),
		"clippingRect":           model.Array(model.Int(0), model.Int(0), model.Int(0), model.Int(0)),
		"inheritParentTransform": model.Bool(true),
		"inheritParentOpacity":   model.Bool(true),
		"renderPass":             model.Int(0),
		"enableRenderTracking":   model.Bool(false),
	})
	d.Register("Rectangle", "Group", map[string]model.Value{
		"width":           model.Int(0),
		"height":          model.Int(0),
		"color":           model.String("0xFFFFFFFF"),
		"blendingEnabled": model.Bool(true),
	})
	d.Register("Label", "Group", map[string]model.Value{
		"text":       model.String(""),
		"color":      model.String("0xDDDDDDFF"),
		"width":      model.Int(0),
		"height":     model.Int(0),
		"horizAlign": model.String("left"),
		"vertAlign":  model.String("top"),
		"wrap":       model.Bool(false),
		"numLines":   model.Int(0),
	})
	d.Register("Poster", "Group", map[string]model.Value{
		"uri":             model.String(""),
		"width":           model.Int(0),
		"height":          model.Int(0),
		"loadStatus":      model.String("none"),
		"loadDisplayMode": model.String("noScale"),
	})
	return d
}

// Register adds or replaces a subtype. extends names the parent subtype
// whose defaults are inherited; empty means none.
func (d *Defaults) Register(name, extends string, fields map[string]model.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subtypes[name] = subtype{extends: extends, fields: fields}
}

// Fields returns a fresh copy of every default field for name, including
// inherited ones. Unknown subtypes resolve to the Node defaults.
func (d *Defaults) Fields(name string) map[string]model.Value {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.subtypes[name]; !ok {
		name = SubtypeNode
	}

	// Walk up the chain, letting nearer subtypes win.
	out := make(map[string]model.Value)
	seen := make(map[string]bool)
	for name != "" && !seen[name] {
		seen[name] = true
		st, ok := d.subtypes[name]
		if !ok {
			break
		}
		for k, v := range st.fields {
			if _, exists := out[k]; !exists {
				out[k] = v.Clone()
			}
		}
		name = st.extends
	}
	return out
}

// Materialize turns node descriptions inside v into fully populated nodes.
// The input is not modified. A nil table uses the built-in defaults.
func Materialize(v model.Value, defaults *Defaults) model.Value {
	if defaults == nil {
		defaults = builtinDefaults()
	}
	return materialize(v, defaults)
}

func materialize(v model.Value, d *Defaults) model.Value {
	switch v.Kind() {
	case model.KindNode:
		n, _ := v.AsNode()
		return model.NodeValue(materializeNode(n, d, SubtypeNode))
	case model.KindArray:
		items, _ := v.AsArray()
		out := make([]model.Value, len(items))
		for i, item := range items {
			out[i] = materialize(item, d)
		}
		return model.Array(out...)
	case model.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]model.Value, len(m))
		for k, item := range m {
			out[k] = materialize(item, d)
		}
		return model.Map(out)
	}
	return v
}

func materializeNode(desc *model.Node, d *Defaults, fallback string) *model.Node {
	st := desc.Subtype
	if st == "" {
		st = fallback
	}

	n := model.NewNode(st, desc.ID)
	n.Focused = desc.Focused
	for k, v := range d.Fields(st) {
		n.Fields[k] = v
	}
	for k, v := range desc.Fields {
		n.Fields[k] = materialize(v, d)
	}
	for _, c := range desc.Children {
		n.AppendChild(materializeNode(c, d, DefaultChildSubtype))
	}
	return n
}

var (
	builtinOnce sync.Once
	builtin     *Defaults
)

func builtinDefaults() *Defaults {
	builtinOnce.Do(func() { builtin = NewDefaults() })
	return builtin
}
