package wire

// Kind identifies the bridge operation a request asks for.
type Kind uint8

const (
	// KindGetValueAtKeyPath resolves one key path.
	KindGetValueAtKeyPath Kind = 1

	// KindGetValuesAtKeyPaths resolves several key paths in one request.
	KindGetValuesAtKeyPaths Kind = 2

	// KindSetValueAtKeyPath assigns a value at a key path.
	KindSetValueAtKeyPath Kind = 3

	// KindObserveField waits for a field change. The device may answer with
	// an event long after the request was sent.
	KindObserveField Kind = 4

	// KindCallFunc invokes a function on a node.
	KindCallFunc Kind = 5

	// KindReadRegistry reads registry sections.
	KindReadRegistry Kind = 6

	// KindWriteRegistry merges values into registry sections.
	KindWriteRegistry Kind = 7

	// KindDeleteRegistrySections removes whole sections.
	KindDeleteRegistrySections Kind = 8

	// KindDeleteEntireRegistry clears every section.
	KindDeleteEntireRegistry Kind = 9

	// KindGetFocusedNode returns the node that has focus.
	KindGetFocusedNode Kind = 10

	// KindHasFocus reports whether a node has focus.
	KindHasFocus Kind = 11

	// KindIsInFocusChain reports whether a node is on the focus chain.
	KindIsInFocusChain Kind = 12
)

var kindNames = map[Kind]string{
	KindGetValueAtKeyPath:      "getValueAtKeyPath",
	KindGetValuesAtKeyPaths:    "getValuesAtKeyPaths",
	KindSetValueAtKeyPath:      "setValueAtKeyPath",
	KindObserveField:           "observeField",
	KindCallFunc:               "callFunc",
	KindReadRegistry:           "readRegistry",
	KindWriteRegistry:          "writeRegistry",
	KindDeleteRegistrySections: "deleteRegistrySections",
	KindDeleteEntireRegistry:   "deleteEntireRegistry",
	KindGetFocusedNode:         "getFocusedNode",
	KindHasFocus:               "hasFocus",
	KindIsInFocusChain:         "isInFocusChain",
}

// String returns the operation name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsValid returns true if k names a bridge operation.
func (k Kind) IsValid() bool {
	return k >= KindGetValueAtKeyPath && k <= KindIsInFocusChain
}

// ParseKind returns the kind with the given operation name.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}
