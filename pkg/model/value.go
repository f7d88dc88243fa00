package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Value errors.
var (
	ErrUnsupportedType = errors.New("unsupported value type")
	ErrNonStringKey    = errors.New("map key is not a string")
)

// Kind identifies which member of the Value union is set.
type Kind uint8

const (
	// KindUndefined is the zero Value. Unresolved key paths carry it.
	KindUndefined Kind = iota

	// KindNull is an explicit null (invalid on the device side).
	KindNull

	// KindBool is a boolean.
	KindBool

	// KindNumber is a numeric value (integer or float).
	KindNumber

	// KindString is a string.
	KindString

	// KindArray is an ordered list addressed by index.
	KindArray

	// KindMap is an associative array addressed by string key.
	KindMap

	// KindNode is a reference to a node in the scene graph.
	KindNode
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindNode:
		return "node"
	default:
		return "unknown"
	}
}

// Value is a closed tagged union over the values the device can hold in a
// field. Exactly one member is meaningful, selected by Kind.
//
// Arrays, maps and nodes share their backing storage when a Value is copied,
// so assigning into an element of a copied Value is visible through the
// original.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	m    map[string]Value
	node *Node
}

// Undefined returns the undefined Value.
func Undefined() Value { return Value{} }

// Null returns a null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int returns a numeric Value holding an integer.
func Int(i int) Value { return Value{kind: KindNumber, n: float64(i)} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array Value holding items.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// Map returns a map Value. A nil map becomes an empty map.
func Map(m map[string]Value) Value {
	if m == nil {
		m = make(map[string]Value)
	}
	return Value{kind: KindMap, m: m}
}

// NodeValue returns a Value referencing n. A nil node yields Null.
func NodeValue(n *Node) Value {
	if n == nil {
		return Null()
	}
	return Value{kind: KindNode, node: n}
}

// Kind returns which member of the union is set.
func (v Value) Kind() Kind { return v.kind }

// IsDefined returns true unless v is Undefined.
func (v Value) IsDefined() bool { return v.kind != KindUndefined }

// IsNull returns true if v is an explicit null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean member.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric member.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsInt returns the numeric member truncated to an int.
func (v Value) AsInt() (int, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return int(v.n), true
}

// AsString returns the string member.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsArray returns the array member.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsMap returns the map member.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// AsNode returns the node member.
func (v Value) AsNode() (*Node, bool) { return v.node, v.kind == KindNode }

// Equal reports whether v and o hold structurally equal values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return mapsEqual(v.m, o.m)
	case KindNode:
		return v.node.Equal(o.node)
	}
	return false
}

func mapsEqual(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

// String renders v in a compact JSON-like form for display.
func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	switch v.kind {
	case KindUndefined:
		sb.WriteString("undefined")
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		sb.WriteString(formatNumber(v.n))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.format(sb)
		}
		sb.WriteByte(']')
	case KindMap:
		formatMap(sb, v.m)
	case KindNode:
		formatMap(sb, v.node.values())
	}
}

func formatMap(sb *strings.Builder, m map[string]Value) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(k))
		sb.WriteByte(':')
		m[k].format(sb)
	}
	sb.WriteByte('}')
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// ToAny converts v into plain Go values: nil, bool, float64, string,
// []any and map[string]any. Nodes become maps carrying their subtype,
// id, fields and children. Undefined converts to nil.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.ToAny()
		}
		return out
	case KindNode:
		return v.node.ToAny()
	default:
		return nil
	}
}

// FromAny converts plain Go values into a Value. Maps carrying a string
// "subtype" key are treated as node descriptions.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Node:
		return NodeValue(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case []Value:
		return Array(t...), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return Array(items...), nil
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return Array(items...), nil
	case map[string]Value:
		return mapOrNode(t), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = v
		}
		return mapOrNode(m), nil
	case map[any]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			key, ok := k.(string)
			if !ok {
				return Value{}, fmt.Errorf("%w: %v", ErrNonStringKey, k)
			}
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", key, err)
			}
			m[key] = v
		}
		return mapOrNode(m), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, x)
	}
}

// MustFromAny is like FromAny but panics on error. Intended for literals in
// tests and examples.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

func mapOrNode(m map[string]Value) Value {
	if IsNodeDescription(m) {
		return NodeValue(NodeFromMap(m))
	}
	return Map(m)
}
