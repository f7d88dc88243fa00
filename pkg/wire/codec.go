package wire

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for bridge messages.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for bridge messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient for forward compatibility: unknown keys are skipped and
	// duplicate keys keep the last value.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

type requestWire struct {
	Type MessageType     `cbor:"0,keyasint"`
	ID   uint64          `cbor:"1,keyasint"`
	Kind Kind            `cbor:"2,keyasint"`
	Args cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

type responseWire struct {
	Type      MessageType     `cbor:"0,keyasint"`
	ID        uint64          `cbor:"1,keyasint"`
	Success   bool            `cbor:"2,keyasint"`
	Result    cbor.RawMessage `cbor:"3,keyasint,omitempty"`
	Error     *Error          `cbor:"4,keyasint,omitempty"`
	TimeTaken uint32          `cbor:"5,keyasint,omitempty"`
}

// EncodeRequest encodes a request message to CBOR bytes.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(requestWire{
		Type: MessageTypeRequest,
		ID:   req.ID,
		Kind: req.Kind,
		Args: req.Args,
	})
}

// DecodeRequest decodes CBOR bytes into a request message.
func DecodeRequest(data []byte) (*Request, error) {
	var w requestWire
	if err := Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if w.Type != MessageTypeRequest {
		return nil, fmt.Errorf("not a request message: type=%s", w.Type)
	}
	req := &Request{ID: w.ID, Kind: w.Kind, Args: w.Args}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

// EncodeResponse encodes a response message to CBOR bytes.
func EncodeResponse(resp *Response) ([]byte, error) {
	return encodeReply(MessageTypeResponse, resp)
}

// EncodeEvent encodes resp as an event message.
func EncodeEvent(resp *Response) ([]byte, error) {
	return encodeReply(MessageTypeEvent, resp)
}

func encodeReply(t MessageType, resp *Response) ([]byte, error) {
	if resp.ID == ReservedID {
		return nil, fmt.Errorf("invalid %s: %w", t, ErrReservedID)
	}
	return Marshal(responseWire{
		Type:      t,
		ID:        resp.ID,
		Success:   resp.Success,
		Result:    resp.Result,
		Error:     resp.Error,
		TimeTaken: resp.TimeTaken,
	})
}

// DecodeResponse decodes CBOR bytes holding a response or an event. The
// returned type tells which it was.
func DecodeResponse(data []byte) (*Response, MessageType, error) {
	var w responseWire
	if err := Unmarshal(data, &w); err != nil {
		return nil, MessageTypeUnknown, fmt.Errorf("failed to decode response: %w", err)
	}
	if w.Type != MessageTypeResponse && w.Type != MessageTypeEvent {
		return nil, w.Type, fmt.Errorf("not a response message: type=%s", w.Type)
	}
	return &Response{
		ID:        w.ID,
		Success:   w.Success,
		Result:    w.Result,
		Error:     w.Error,
		TimeTaken: w.TimeTaken,
	}, w.Type, nil
}

// PeekMessageType examines CBOR data to determine the message type
// without fully decoding it.
func PeekMessageType(data []byte) (MessageType, error) {
	var peek struct {
		Type MessageType `cbor:"0,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return MessageTypeUnknown, fmt.Errorf("failed to peek message: %w", err)
	}
	switch peek.Type {
	case MessageTypeRequest, MessageTypeResponse, MessageTypeEvent:
		return peek.Type, nil
	}
	return MessageTypeUnknown, nil
}
