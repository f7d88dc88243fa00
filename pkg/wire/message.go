package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CBOR map keys shared by all messages.
const (
	KeyType = 0
	KeyID   = 1
)

// MessageType distinguishes the three bridge messages on the wire.
type MessageType uint8

const (
	MessageTypeUnknown  MessageType = 0
	MessageTypeRequest  MessageType = 1
	MessageTypeResponse MessageType = 2
	MessageTypeEvent    MessageType = 3
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageTypeRequest:
		return "request"
	case MessageTypeResponse:
		return "response"
	case MessageTypeEvent:
		return "event"
	default:
		return "unknown"
	}
}

// ReservedID is never assigned to a request.
const ReservedID uint64 = 0

// Validation errors.
var (
	ErrReservedID  = errors.New("id 0 is reserved")
	ErrInvalidKind = errors.New("invalid request kind")
)

// Request asks the device to perform one bridge operation.
//
// CBOR encoding:
//
//	{
//	  0: 1,       // message type
//	  1: id,      // uint64: correlation id, unique per connection
//	  2: kind,    // uint8: operation
//	  3: args     // kind-specific payload
//	}
type Request struct {
	ID   uint64          `cbor:"1,keyasint"`
	Kind Kind            `cbor:"2,keyasint"`
	Args cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

// NewRequest builds a request, encoding args into its payload. A nil args
// leaves the payload empty.
func NewRequest(id uint64, kind Kind, args any) (*Request, error) {
	req := &Request{ID: id, Kind: kind}
	if args != nil {
		data, err := Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode %s args: %w", kind, err)
		}
		req.Args = data
	}
	return req, nil
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.ID == ReservedID {
		return ErrReservedID
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidKind, r.Kind)
	}
	return nil
}

// DecodeArgs decodes the payload into v. An empty payload leaves v untouched.
func (r *Request) DecodeArgs(v any) error {
	if len(r.Args) == 0 {
		return nil
	}
	if err := Unmarshal(r.Args, v); err != nil {
		return fmt.Errorf("decode %s args: %w", r.Kind, err)
	}
	return nil
}

// Response answers one request. The same shape is used for events.
//
// CBOR encoding:
//
//	{
//	  0: 2 or 3,     // message type: response or event
//	  1: id,         // uint64: matches the request
//	  2: success,    // bool
//	  3: result,     // kind-specific payload (if success)
//	  4: error,      // Error (if not success)
//	  5: timeTaken   // uint32: device-side milliseconds
//	}
type Response struct {
	ID        uint64          `cbor:"1,keyasint"`
	Success   bool            `cbor:"2,keyasint"`
	Result    cbor.RawMessage `cbor:"3,keyasint,omitempty"`
	Error     *Error          `cbor:"4,keyasint,omitempty"`
	TimeTaken uint32          `cbor:"5,keyasint,omitempty"`
}

// NewResponse builds a successful response carrying result.
func NewResponse(id uint64, result any, elapsed time.Duration) (*Response, error) {
	resp := &Response{ID: id, Success: true}
	resp.SetElapsed(elapsed)
	if result != nil {
		data, err := Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		resp.Result = data
	}
	return resp, nil
}

// NewErrorResponse builds a failed response.
func NewErrorResponse(id uint64, kind ErrorKind, message string, elapsed time.Duration) *Response {
	resp := &Response{
		ID:    id,
		Error: &Error{Kind: kind, Message: message},
	}
	resp.SetElapsed(elapsed)
	return resp
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Success && r.Error == nil
}

// DecodeResult decodes the result payload into v. An empty payload leaves
// v untouched.
func (r *Response) DecodeResult(v any) error {
	if len(r.Result) == 0 {
		return nil
	}
	if err := Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Elapsed returns the device-reported time taken.
func (r *Response) Elapsed() time.Duration {
	return time.Duration(r.TimeTaken) * time.Millisecond
}

// SetElapsed records d as the time taken, rounded down to milliseconds.
func (r *Response) SetElapsed(d time.Duration) {
	if d < 0 {
		d = 0
	}
	r.TimeTaken = uint32(d / time.Millisecond)
}
