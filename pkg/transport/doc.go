// Package transport moves bridge messages over TCP.
//
// Every message is one frame: a 4-byte big-endian length followed by a
// CBOR-encoded request or reply (see package wire). A Conn is the client
// end. Its single read loop hands responses and events to a Handler, and
// any goroutine may Send. A Server is the device end. It accepts
// connections and passes each decoded request to a RequestHandler along
// with the Replier for that connection.
//
// Frames that fail to decode are logged at the wire layer. On the device
// they are answered with an invalid-args response when a correlation id
// can be recovered.
//
// Nothing here retries. A failed Send or a read loop that returns leaves
// the decision to redial to the caller; package connection does that.
package transport
