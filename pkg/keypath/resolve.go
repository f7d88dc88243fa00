package keypath

import (
	"errors"
	"fmt"

	"github.com/georgejecook/roku-test-automation/pkg/model"
)

// Resolution errors.
var (
	ErrNotFound     = errors.New("key path not found")
	ErrInvalidBase  = errors.New("invalid base")
	ErrInvalidValue = errors.New("invalid value for target")
)

// Result is the outcome of resolving a key path.
type Result struct {
	// Found is false when any segment failed to resolve.
	Found bool

	// Value is Undefined when Found is false.
	Value model.Value
}

// Node returns the resolved node when the result is a node reference.
func (r Result) Node() (*model.Node, bool) {
	if !r.Found {
		return nil, false
	}
	return r.Value.AsNode()
}

// Roots holds the resolution roots exposed by the device.
type Roots struct {
	// Global is the application's global field mapping.
	Global map[string]model.Value

	// Scene is the root node of the on-screen tree.
	Scene *model.Node

	// Named holds any further roots keyed by base name.
	Named map[model.Base]model.Value
}

// Root returns the starting context for base.
func (r *Roots) Root(base model.Base) (model.Value, error) {
	switch base.OrDefault() {
	case model.BaseGlobal:
		if r.Global == nil {
			r.Global = make(map[string]model.Value)
		}
		return model.Map(r.Global), nil
	case model.BaseScene:
		if r.Scene == nil {
			return model.Value{}, fmt.Errorf("%w: no scene", ErrInvalidBase)
		}
		return model.NodeValue(r.Scene), nil
	}
	if v, ok := r.Named[base]; ok {
		return v, nil
	}
	return model.Value{}, fmt.Errorf("%w: %q", ErrInvalidBase, string(base))
}

// Resolve walks p from root. Only the first segment may search the subtree
// of a node for a matching id.
func Resolve(root model.Value, p Path) Result {
	ctx := root
	for i, seg := range p {
		next, ok := step(ctx, seg, i == 0)
		if !ok {
			return Result{}
		}
		ctx = next
	}
	return Result{Found: true, Value: ctx}
}

// ResolveString parses input and resolves it from root. A malformed path
// resolves to not found.
func ResolveString(root model.Value, input string) Result {
	p, err := Parse(input)
	if err != nil {
		return Result{}
	}
	return Resolve(root, p)
}

func step(ctx model.Value, seg Segment, first bool) (model.Value, bool) {
	switch ctx.Kind() {
	case model.KindNode:
		n, _ := ctx.AsNode()
		if v, ok := stepNode(n, seg); ok {
			return v, true
		}
		if first {
			if found, ok := Find(n, seg.Name); ok {
				return model.NodeValue(found), true
			}
		}
		return model.Value{}, false

	case model.KindArray:
		if !seg.IsIndex {
			return model.Value{}, false
		}
		items, _ := ctx.AsArray()
		idx, ok := model.NormalizeIndex(seg.Index, len(items))
		if !ok {
			return model.Value{}, false
		}
		return items[idx], true

	case model.KindMap:
		if seg.IsIndex {
			return model.Value{}, false
		}
		m, _ := ctx.AsMap()
		v, ok := m[seg.Name]
		return v, ok
	}
	return model.Value{}, false
}

// stepNode resolves a segment strictly locally: a field or direct child id
// for identifiers, a child position for indices.
func stepNode(n *model.Node, seg Segment) (model.Value, bool) {
	if seg.IsIndex {
		c, ok := n.Child(seg.Index)
		if !ok {
			return model.Value{}, false
		}
		return model.NodeValue(c), true
	}
	if v, ok := n.Field(seg.Name); ok {
		return v, true
	}
	if c, ok := n.ChildByID(seg.Name); ok {
		return model.NodeValue(c), true
	}
	return model.Value{}, false
}

// Find searches the descendants of n depth-first, pre-order, for the first
// node whose id equals id. n itself is not a candidate.
func Find(n *model.Node, id string) (*model.Node, bool) {
	var found *model.Node
	for _, c := range n.Children {
		c.Walk(func(d *model.Node) bool {
			if d.ID == id {
				found = d
				return false
			}
			return true
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

// Assign writes v at the final segment of p, resolving the rest from root.
func Assign(root model.Value, p Path, v model.Value, defaults *Defaults) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: cannot assign to the base root", ErrNotFound)
	}

	parentPath, last := p.Parent()
	parent := Resolve(root, parentPath)
	if !parent.Found {
		return fmt.Errorf("%w: %q", ErrNotFound, parentPath.String())
	}

	v = Materialize(v, defaults)

	switch parent.Value.Kind() {
	case model.KindMap:
		if last.IsIndex {
			return fmt.Errorf("%w: index %d on a map", ErrNotFound, last.Index)
		}
		m, _ := parent.Value.AsMap()
		if v.IsNull() {
			delete(m, last.Name)
			return nil
		}
		m[last.Name] = v
		return nil

	case model.KindNode:
		n, _ := parent.Value.AsNode()
		if !last.IsIndex {
			n.SetField(last.Name, v)
			return nil
		}
		child, ok := v.AsNode()
		if !ok {
			return fmt.Errorf("%w: child %d must be a node, got %s", ErrInvalidValue, last.Index, v.Kind())
		}
		if !n.SetChild(last.Index, child) {
			return fmt.Errorf("%w: child index %d out of range", ErrNotFound, last.Index)
		}
		return nil

	case model.KindArray:
		if !last.IsIndex {
			return fmt.Errorf("%w: key %q on an array", ErrNotFound, last.Name)
		}
		items, _ := parent.Value.AsArray()
		idx, ok := model.NormalizeIndex(last.Index, len(items))
		if !ok {
			return fmt.Errorf("%w: array index %d out of range", ErrNotFound, last.Index)
		}
		items[idx] = v
		return nil
	}

	return fmt.Errorf("%w: %q is a %s", ErrNotFound, parentPath.String(), parent.Value.Kind())
}

// FocusedNode returns the focused node beneath (or equal to) root.
func FocusedNode(root *model.Node) (*model.Node, bool) {
	chain := FocusChain(root)
	if len(chain) == 0 {
		return nil, false
	}
	return chain[len(chain)-1], true
}

// FocusChain returns the nodes from root down to the focused node, or nil
// when nothing beneath root has focus.
func FocusChain(root *model.Node) []*model.Node {
	if root == nil {
		return nil
	}
	if root.Focused {
		return []*model.Node{root}
	}
	for _, c := range root.Children {
		if chain := FocusChain(c); chain != nil {
			return append([]*model.Node{root}, chain...)
		}
	}
	return nil
}

// InFocusChain reports whether n lies on the path from root to the focused node.
func InFocusChain(root, n *model.Node) bool {
	for _, c := range FocusChain(root) {
		if c == n {
			return true
		}
	}
	return false
}
