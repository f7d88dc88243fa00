package wire

import "github.com/georgejecook/roku-test-automation/pkg/model"

// KeyPathArgs addresses one value.
//
// CBOR encoding:
//
//	{
//	  1: base,     // string: empty means global
//	  2: keyPath   // string
//	}
type KeyPathArgs struct {
	Base    model.Base `cbor:"1,keyasint,omitempty"`
	KeyPath string     `cbor:"2,keyasint"`
}

// GetValuesArgs is the payload of a getValuesAtKeyPaths request. Results are
// returned under the same names.
type GetValuesArgs struct {
	Requests map[string]KeyPathArgs `cbor:"1,keyasint"`
}

// SetValueArgs is the payload of a setValueAtKeyPath request.
type SetValueArgs struct {
	Base    model.Base  `cbor:"1,keyasint,omitempty"`
	KeyPath string      `cbor:"2,keyasint"`
	Value   model.Value `cbor:"3,keyasint"`
}

// Match is the condition an observation waits for. With an empty KeyPath
// the observed field itself is compared against Value; otherwise the field
// at Base/KeyPath is.
type Match struct {
	Base    model.Base  `cbor:"1,keyasint,omitempty"`
	KeyPath string      `cbor:"2,keyasint,omitempty"`
	Value   model.Value `cbor:"3,keyasint"`
}

// LiteralMatch returns a match comparing the observed field against v.
func LiteralMatch(v model.Value) *Match {
	return &Match{Value: v}
}

// FieldMatch returns a match comparing another field against v.
func FieldMatch(base model.Base, keyPath string, v model.Value) *Match {
	return &Match{Base: base, KeyPath: keyPath, Value: v}
}

// IsCrossField reports whether the match compares a field other than the
// observed one.
func (m *Match) IsCrossField() bool {
	return m != nil && m.KeyPath != ""
}

// ObserveFieldArgs is the payload of an observeField request.
//
// CBOR encoding:
//
//	{
//	  1: base,
//	  2: keyPath,
//	  3: match,         // Match (optional)
//	  4: retryTimeout   // uint32: milliseconds
//	}
type ObserveFieldArgs struct {
	Base         model.Base `cbor:"1,keyasint,omitempty"`
	KeyPath      string     `cbor:"2,keyasint"`
	Match        *Match     `cbor:"3,keyasint,omitempty"`
	RetryTimeout uint32     `cbor:"4,keyasint,omitempty"`
}

// CallFuncArgs is the payload of a callFunc request.
type CallFuncArgs struct {
	Base       model.Base    `cbor:"1,keyasint,omitempty"`
	KeyPath    string        `cbor:"2,keyasint"`
	FuncName   string        `cbor:"3,keyasint"`
	FuncParams []model.Value `cbor:"4,keyasint,omitempty"`
}

// ReadRegistryArgs is the payload of a readRegistry request. A nil Values
// reads everything; an empty key list reads a whole section.
type ReadRegistryArgs struct {
	Values map[string][]string `cbor:"1,keyasint,omitempty"`
}

// WriteRegistryArgs is the payload of a writeRegistry request. A nil value
// deletes its key.
type WriteRegistryArgs struct {
	Values map[string]map[string]*string `cbor:"1,keyasint"`
}

// DeleteRegistrySectionsArgs is the payload of a deleteRegistrySections request.
type DeleteRegistrySectionsArgs struct {
	Sections []string `cbor:"1,keyasint"`
}

// ValueResult is the result of a key path read.
type ValueResult struct {
	Found bool        `cbor:"1,keyasint"`
	Value model.Value `cbor:"2,keyasint"`
}

// ValuesResult is the result of a getValuesAtKeyPaths request.
type ValuesResult struct {
	Results map[string]ValueResult `cbor:"1,keyasint"`
}

// ObserveResult is the result of an observeField request.
type ObserveResult struct {
	ObserverFired bool        `cbor:"1,keyasint"`
	Value         model.Value `cbor:"2,keyasint"`
}

// CallFuncResult is the result of a callFunc request.
type CallFuncResult struct {
	Value model.Value `cbor:"1,keyasint"`
}

// RegistryResult is the result of a readRegistry request.
type RegistryResult struct {
	Values map[string]map[string]string `cbor:"1,keyasint"`
}

// BoolResult is the result of the focus queries.
type BoolResult struct {
	Value bool `cbor:"1,keyasint"`
}
