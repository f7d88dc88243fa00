package interaction

import (
	"errors"
	"fmt"

	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout  = errors.New("request timed out")
	ErrClientClosed    = errors.New("client is closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// Device errors. A *RemoteError unwraps to the sentinel for its kind.
var (
	ErrKeyPathNotFound       = errors.New("key path not found")
	ErrInvalidBase           = errors.New("invalid base")
	ErrObserveInvalidKeyPath = errors.New("observe key path invalid")
	ErrObserveTimeout        = errors.New("observe timed out")
	ErrFuncNotFound          = errors.New("function not found")
	ErrRegistry              = errors.New("registry error")
	ErrInvalidArgs           = errors.New("invalid arguments")
	ErrUnsupported           = errors.New("unsupported operation")
)

var kindErrors = map[wire.ErrorKind]error{
	wire.ErrorKeyPathNotFound:       ErrKeyPathNotFound,
	wire.ErrorInvalidBase:           ErrInvalidBase,
	wire.ErrorObserveInvalidKeyPath: ErrObserveInvalidKeyPath,
	wire.ErrorObserveTimeout:        ErrObserveTimeout,
	wire.ErrorFuncNotFound:          ErrFuncNotFound,
	wire.ErrorRegistry:              ErrRegistry,
	wire.ErrorInvalidArgs:           ErrInvalidArgs,
	wire.ErrorUnsupported:           ErrUnsupported,
}

// RemoteError is a failure reported by the device.
type RemoteError struct {
	Kind    wire.ErrorKind
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

// Unwrap returns the sentinel error for the kind.
func (e *RemoteError) Unwrap() error {
	return kindErrors[e.Kind]
}

// remoteError converts a failed response to an error.
func remoteError(resp *wire.Response) error {
	if resp.Error == nil {
		return &RemoteError{Kind: wire.ErrorUnsupported, Message: "request failed without error detail"}
	}
	return &RemoteError{Kind: resp.Error.Kind, Message: resp.Error.Message}
}

// TransportError reports a failure of the channel to the device.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
