package model

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// cborUndefined is the encoded CBOR "undefined" simple value.
const cborUndefined = 0xf7

var (
	valueEncMode cbor.EncMode
	valueDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		ShortestFloat: cbor.ShortestFloat16,
	}
	valueEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create value CBOR encoder mode: %v", err))
	}

	// Field values only ever use string keys.
	decOpts := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		IndefLength:    cbor.IndefLengthAllowed,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	valueDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create value CBOR decoder mode: %v", err))
	}
}

// MarshalCBOR implements cbor.Marshaler.
func (v Value) MarshalCBOR() ([]byte, error) {
	if v.kind == KindUndefined {
		return []byte{cborUndefined}, nil
	}
	return valueEncMode.Marshal(v.ToAny())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (v *Value) UnmarshalCBOR(data []byte) error {
	if len(data) == 1 && data[0] == cborUndefined {
		*v = Undefined()
		return nil
	}
	var raw any
	if err := valueDecMode.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}
	decoded, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// MarshalJSON implements json.Marshaler. Undefined encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// ParseJSON parses a JSON literal into a Value.
func ParseJSON(s string) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON([]byte(s)); err != nil {
		return Value{}, fmt.Errorf("invalid JSON value %q: %w", s, err)
	}
	return v, nil
}
