package realtime

import (
	"errors"
	"fmt"
	"net"

	"github.com/gorilla/websocket"
)

var (
	// ErrChannelClosed means an internal queue's consumer has gone away,
	// i.e. the session it belonged to has already stopped.
	ErrChannelClosed = errors.New("realtime: channel closed")

	// ErrKeepaliveFailed ends a session whose keepalive pings could not be
	// queued for KeepaliveFailures consecutive ticks.
	ErrKeepaliveFailed = errors.New("realtime: keepalive failed")

	// ErrQueueFull is a single keepalive attempt that found the outbound
	// queue saturated.
	ErrQueueFull = errors.New("realtime: outbound queue full")

	// ErrClientClosed is returned by Connect after Close.
	ErrClientClosed = errors.New("realtime: client closed")
)

// TransportError wraps a websocket dial, read or write failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("realtime: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Closed reports whether the peer or the local side closed the connection
// cleanly, as opposed to a network fault.
func (e *TransportError) Closed() bool {
	return websocket.IsCloseError(e.Err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(e.Err, net.ErrClosed)
}

// ErrNotConnected is returned by Send when no session is live.
var ErrNotConnected = errors.New("realtime: not connected")
