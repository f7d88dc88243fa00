package transport

import (
	"context"
	"net"

	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// ClientConnection is the client end of a bridge connection as seen by a
// session: requests go out through Send, replies come back through the
// Handler given to Run.
type ClientConnection interface {
	ConnID() string
	RemoteAddr() net.Addr
	Send(req *wire.Request) error
	Run(ctx context.Context, h Handler) error
	Close() error
}

var (
	_ ClientConnection = (*Conn)(nil)
	_ Replier          = (*ServerConn)(nil)
)
