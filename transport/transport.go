// Package transport supplies message-oriented channels between the demo
// client and its peer. Two media are supported: a UDP socket pair bound to
// fixed local and remote endpoints, and a spawned subprocess wired through
// its standard streams. Both deliver exactly one message per Send or
// Receive call; framing beyond that is the medium's concern.
package transport

import "errors"

// MaxMessageSize is the largest message either medium will carry. It is the
// Noise protocol's maximum message length.
const MaxMessageSize = 65535

var (
	// ErrMessageTooLarge indicates a message above MaxMessageSize.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	// ErrTransportClosed indicates use of a closed transport.
	ErrTransportClosed = errors.New("transport is closed")
)

// Transport moves whole messages between this process and the peer.
// Receive blocks until one full message is available; Send has no
// acknowledgment contract. Each channel is owned by exactly one loop: the
// write loop sends, the read loop receives.
type Transport interface {
	// Send transmits one message to the peer.
	Send(message []byte) error

	// Receive blocks until one full message has arrived.
	Receive() ([]byte, error)

	// CloseSend stops the sending side so in-flight messages can still be
	// received. After CloseSend, Send returns ErrTransportClosed.
	CloseSend() error

	// Close tears the transport down completely. Callers that run a
	// receive loop should CloseSend first and drain it before Close. A
	// blocked Receive returns an error once the transport is closed.
	Close() error
}
