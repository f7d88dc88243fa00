// Package wire defines the CBOR wire format of the on-device component
// bridge.
//
// Every message is a CBOR map with integer keys, sent as one length-prefixed
// frame. Key 0 carries the message type.
//
// # Message Types
//
// There are three message types:
//   - Request: client to device ({id, kind, args})
//   - Response: device to client, answering one request
//   - Event: device to client, answering a request that resolved after a
//     device-side change (field observation)
//
// Responses and events share one shape: {id, success, result?, error?,
// timeTaken?}. The id of an event is the id of the request it completes.
//
// # Undefined vs Null
//
// Values use the model.Value union. Undefined (a key path that did not
// resolve) is encoded as the CBOR simple value undefined (0xf7) and is kept
// distinct from null.
package wire
