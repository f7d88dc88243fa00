// Package model defines the data model of the on-device scene graph as seen
// by the test client.
//
// # Values
//
// Every field value is a Value, a closed tagged union:
//
//	undefined | null | boolean | number | string | array | map | node
//
// Callers switch on Value.Kind exhaustively:
//
//	switch v.Kind() {
//	case model.KindString:
//	    s, _ := v.AsString()
//	case model.KindNode:
//	    n, _ := v.AsNode()
//	...
//	}
//
// Undefined is the zero Value and is what an unresolved key path carries.
// It is distinct from Null.
//
// # Nodes
//
// A Node has an id, a subtype, a field mapping and ordered children. On the
// wire a node is a map carrying a "subtype" string key, its fields
// flattened, and an optional "children" array. Any decoded map with a string
// subtype is a node description.
//
// # Bases
//
// Key paths are resolved against a Base: "global" (the default) or "scene",
// or another root the device exposes.
package model
