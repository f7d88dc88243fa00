// Package keypath implements the key path addressing contract of the
// on-device bridge.
//
// A key path is a dot-separated list of segments. A segment is either an
// identifier (a field name, map key or node id) or an integer literal (an
// array or child index, negative counting from the end):
//
//	AuthManager.profiles.profile1.settings
//	arrayValue.-1.name
//	testTarget.1.subchild1
//
// The empty key path addresses the base root itself.
//
// # Resolution
//
// Resolution walks segments left to right. Only the first segment may
// search: when the context is a node and the segment names neither a field
// nor a direct child, the whole subtree is searched depth-first for a node
// with that id. Every later segment is strictly local to the current
// context. The walk stops at the first segment that does not resolve.
//
// # Assignment
//
// Assign resolves every segment but the last with the same rules and then
// writes the final one. Node descriptions (maps with a "subtype") are
// materialised as new nodes whose unset fields take the subtype defaults.
package keypath
