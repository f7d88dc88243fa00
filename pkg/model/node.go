package model

// Reserved keys in the map form of a node.
const (
	KeyID       = "id"
	KeySubtype  = "subtype"
	KeyChildren = "children"
)

// Node is a live object in the application's scene graph.
type Node struct {
	// ID is the node identifier. Not guaranteed to be unique.
	ID string

	// Subtype names the node type and thereby its default field set.
	Subtype string

	// Fields holds every field other than id.
	Fields map[string]Value

	// Children are owned by this node. Order is significant.
	Children []*Node

	// Focused marks the node holding key focus.
	Focused bool
}

// NewNode creates an empty node of the given subtype.
func NewNode(subtype, id string) *Node {
	return &Node{
		ID:      id,
		Subtype: subtype,
		Fields:  make(map[string]Value),
	}
}

// Field returns the named field. The "id" field maps to the node ID.
func (n *Node) Field(name string) (Value, bool) {
	if name == KeyID {
		return String(n.ID), true
	}
	v, ok := n.Fields[name]
	return v, ok
}

// SetField assigns the named field. Setting "id" to a string renames the node.
func (n *Node) SetField(name string, v Value) {
	if name == KeyID {
		if s, ok := v.AsString(); ok {
			n.ID = s
			return
		}
	}
	if n.Fields == nil {
		n.Fields = make(map[string]Value)
	}
	n.Fields[name] = v
}

// HasField returns true if the field exists on the node.
func (n *Node) HasField(name string) bool {
	_, ok := n.Field(name)
	return ok
}

// Child returns the child at index i. Negative indices count from the end.
func (n *Node) Child(i int) (*Node, bool) {
	idx, ok := NormalizeIndex(i, len(n.Children))
	if !ok {
		return nil, false
	}
	return n.Children[idx], true
}

// SetChild replaces the child at index i. Negative indices count from the end.
func (n *Node) SetChild(i int, c *Node) bool {
	idx, ok := NormalizeIndex(i, len(n.Children))
	if !ok {
		return false
	}
	n.Children[idx] = c
	return true
}

// ChildByID returns the first direct child whose ID equals id.
func (n *Node) ChildByID(id string) (*Node, bool) {
	for _, c := range n.Children {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// AppendChild adds children to the end of the child list.
func (n *Node) AppendChild(children ...*Node) {
	n.Children = append(n.Children, children...)
}

// Equal reports whether two nodes are structurally equal.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.ID != o.ID || n.Subtype != o.Subtype || !mapsEqual(n.Fields, o.Fields) {
		return false
	}
	if len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		ID:      n.ID,
		Subtype: n.Subtype,
		Fields:  make(map[string]Value, len(n.Fields)),
		Focused: n.Focused,
	}
	for k, v := range n.Fields {
		c.Fields[k] = v.Clone()
	}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.arr))
		for i, item := range v.arr {
			items[i] = item.Clone()
		}
		return Array(items...)
	case KindMap:
		m := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			m[k] = item.Clone()
		}
		return Map(m)
	case KindNode:
		return NodeValue(v.node.Clone())
	default:
		return v
	}
}

// values flattens the node into its map form.
func (n *Node) values() map[string]Value {
	m := make(map[string]Value, len(n.Fields)+3)
	for k, v := range n.Fields {
		m[k] = v
	}
	m[KeyID] = String(n.ID)
	m[KeySubtype] = String(n.Subtype)
	if len(n.Children) > 0 {
		children := make([]Value, len(n.Children))
		for i, c := range n.Children {
			children[i] = NodeValue(c)
		}
		m[KeyChildren] = Array(children...)
	}
	return m
}

// ToAny converts the node into its map form.
func (n *Node) ToAny() map[string]any {
	m := n.values()
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.ToAny()
	}
	return out
}

// IsNodeDescription reports whether m describes a node (has a string subtype).
func IsNodeDescription(m map[string]Value) bool {
	st, ok := m[KeySubtype]
	if !ok {
		return false
	}
	_, ok = st.AsString()
	return ok
}

// NodeFromMap builds a node from its map form. Child entries that are maps
// become child nodes even without a subtype; the subtype is left empty so
// the caller may apply a default.
func NodeFromMap(m map[string]Value) *Node {
	n := &Node{Fields: make(map[string]Value, len(m))}
	for k, v := range m {
		switch k {
		case KeyID:
			if s, ok := v.AsString(); ok {
				n.ID = s
				continue
			}
			n.Fields[k] = v
		case KeySubtype:
			if s, ok := v.AsString(); ok {
				n.Subtype = s
				continue
			}
			n.Fields[k] = v
		case KeyChildren:
			items, ok := v.AsArray()
			if !ok {
				n.Fields[k] = v
				continue
			}
			for _, item := range items {
				switch item.Kind() {
				case KindNode:
					child, _ := item.AsNode()
					n.Children = append(n.Children, child)
				case KindMap:
					cm, _ := item.AsMap()
					n.Children = append(n.Children, NodeFromMap(cm))
				}
			}
		default:
			n.Fields[k] = v
		}
	}
	return n
}

// Walk visits n and its descendants depth-first, pre-order. Returning false
// from fn stops the walk.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// NormalizeIndex maps a possibly negative index into [0, length).
func NormalizeIndex(i, length int) (int, bool) {
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, false
	}
	return i, true
}
