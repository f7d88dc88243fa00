package log

import (
	"time"

	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// Event is one protocol log record. Exactly one of the payload pointers
// is set. Fields use integer CBOR keys.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`
	LocalRole    Role      `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is host:port of the peer, when known.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction is the flow of an event relative to the logging side.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// Layer is where in the stack an event was captured.
type Layer uint8

const (
	// LayerTransport sees length-prefixed frames.
	LayerTransport Layer = 0
	// LayerWire sees decoded requests, responses and events.
	LayerWire Layer = 1
	// LayerDispatch sees correlation of replies to calls.
	LayerDispatch Layer = 2
)

// Category classifies an event by payload.
type Category uint8

// Value 1 is unused; logs written with it decode as UNKNOWN.
const (
	CategoryMessage Category = 0
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// Role is the end of the bridge that wrote an event.
type Role uint8

const (
	RoleDevice Role = 0
	RoleClient Role = 1
)

var (
	directionNames = []string{"IN", "OUT"}
	layerNames     = []string{"TRANSPORT", "WIRE", "DISPATCH"}
	categoryNames  = []string{"MESSAGE", "", "STATE", "ERROR"}
	roleNames      = []string{"DEVICE", "CLIENT"}
	entityNames    = []string{"CONNECTION", "OBSERVATION"}
)

func enumName(names []string, v uint8) string {
	if int(v) < len(names) && names[v] != "" {
		return names[v]
	}
	return "UNKNOWN"
}

func (d Direction) String() string   { return enumName(directionNames, uint8(d)) }
func (l Layer) String() string       { return enumName(layerNames, uint8(l)) }
func (c Category) String() string    { return enumName(categoryNames, uint8(c)) }
func (r Role) String() string        { return enumName(roleNames, uint8(r)) }
func (s StateEntity) String() string { return enumName(entityNames, uint8(s)) }

// FrameEvent describes one length-prefixed frame. Data holds at most
// the framer's capture limit; Size is always the full length.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// MessageEvent summarizes a decoded request, response or event. Kind is
// set for requests; Success, TimeTaken and ErrorKind for replies.
type MessageEvent struct {
	Type      wire.MessageType `cbor:"1,keyasint"`
	ID        uint64           `cbor:"2,keyasint"`
	Kind      *wire.Kind       `cbor:"3,keyasint,omitempty"`
	Success   *bool            `cbor:"4,keyasint,omitempty"`
	ErrorKind *wire.ErrorKind  `cbor:"5,keyasint,omitempty"`
	TimeTaken *time.Duration   `cbor:"6,keyasint,omitempty"`

	// Payload is the undecoded args or result.
	Payload []byte `cbor:"7,keyasint,omitempty"`
}

// RequestMessage builds the message event for req.
func RequestMessage(req *wire.Request) *MessageEvent {
	kind := req.Kind
	return &MessageEvent{
		Type:    wire.MessageTypeRequest,
		ID:      req.ID,
		Kind:    &kind,
		Payload: req.Args,
	}
}

// ResponseMessage builds the message event for a response or event.
func ResponseMessage(t wire.MessageType, resp *wire.Response) *MessageEvent {
	success := resp.IsSuccess()
	elapsed := resp.Elapsed()
	m := &MessageEvent{
		Type:      t,
		ID:        resp.ID,
		Success:   &success,
		TimeTaken: &elapsed,
		Payload:   resp.Result,
	}
	if resp.Error != nil {
		kind := resp.Error.Kind
		m.ErrorKind = &kind
	}
	return m
}

// StateChangeEvent records a connection moving between states, or an
// observation being registered and resolved.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

type StateEntity uint8

const (
	StateEntityConnection  StateEntity = 0
	StateEntityObservation StateEntity = 1
)

// ErrorEventData records a failure that did not surface as a response,
// such as a malformed frame or an unmatched reply.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Code    *int   `cbor:"3,keyasint,omitempty"`

	// Context names what was being handled, e.g. "id 9".
	Context string `cbor:"4,keyasint,omitempty"`
}
