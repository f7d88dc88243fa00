package wire

import "fmt"

// ErrorKind classifies a failed request.
type ErrorKind uint8

const (
	// ErrorKeyPathNotFound indicates a required key path segment did not resolve.
	ErrorKeyPathNotFound ErrorKind = 1

	// ErrorInvalidBase indicates an unknown resolution root.
	ErrorInvalidBase ErrorKind = 2

	// ErrorObserveInvalidKeyPath indicates the observed key path (or the
	// match key path) did not resolve.
	ErrorObserveInvalidKeyPath ErrorKind = 3

	// ErrorObserveTimeout indicates no satisfying change arrived in time.
	ErrorObserveTimeout ErrorKind = 4

	// ErrorFuncNotFound indicates the node has no function of that name.
	ErrorFuncNotFound ErrorKind = 5

	// ErrorRegistry indicates the device registry could not be read or written.
	ErrorRegistry ErrorKind = 6

	// ErrorInvalidArgs indicates the request arguments could not be decoded.
	ErrorInvalidArgs ErrorKind = 7

	// ErrorUnsupported indicates the device does not implement the operation.
	ErrorUnsupported ErrorKind = 8
)

// String returns the error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKeyPathNotFound:
		return "KEY_PATH_NOT_FOUND"
	case ErrorInvalidBase:
		return "INVALID_BASE"
	case ErrorObserveInvalidKeyPath:
		return "OBSERVE_INVALID_KEY_PATH"
	case ErrorObserveTimeout:
		return "OBSERVE_TIMEOUT"
	case ErrorFuncNotFound:
		return "FUNC_NOT_FOUND"
	case ErrorRegistry:
		return "REGISTRY_ERROR"
	case ErrorInvalidArgs:
		return "INVALID_ARGS"
	case ErrorUnsupported:
		return "UNSUPPORTED"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true if k is a known error kind.
func (k ErrorKind) IsValid() bool {
	return k >= ErrorKeyPathNotFound && k <= ErrorUnsupported
}

// Error is the error member of a failed response.
//
// CBOR encoding:
//
//	{
//	  1: kind,     // uint8
//	  2: message   // string
//	}
type Error struct {
	Kind    ErrorKind `cbor:"1,keyasint"`
	Message string    `cbor:"2,keyasint,omitempty"`
}

// String returns a human-readable form of the error.
func (e *Error) String() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
