package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

// SocketTransport exchanges one UDP datagram per message with a fixed peer.
// The socket is bound to the configured local endpoint and connected to the
// remote endpoint, so both sides of a session use mirrored four-tuples.
type SocketTransport struct {
	conn *net.UDPConn

	closeOnce sync.Once
	closeErr  error
}

// NewSocketTransport binds the local endpoint and connects it to the remote
// endpoint. All four parameters are required; partial socket configuration
// is rejected before any socket is opened.
func NewSocketTransport(localHost string, localPort int, remoteHost string, remotePort int) (*SocketTransport, error) {
	if localHost == "" || localPort == 0 || remoteHost == "" || remotePort == 0 {
		return nil, fmt.Errorf("socket mode requires local and remote host and port")
	}

	laddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(localHost, strconv.Itoa(localPort)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local endpoint: %w", err)
	}
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(remoteHost, strconv.Itoa(remotePort)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve remote endpoint: %w", err)
	}

	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewSocketTransport",
		"local":    conn.LocalAddr().String(),
		"remote":   conn.RemoteAddr().String(),
	}).Debug("Socket transport ready")

	return &SocketTransport{conn: conn}, nil
}

// Send transmits one message as a single datagram.
func (t *SocketTransport) Send(message []byte) error {
	if len(message) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	if _, err := t.conn.Write(message); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrTransportClosed
		}
		return fmt.Errorf("socket send failed: %w", err)
	}
	return nil
}

// Receive blocks until one datagram arrives and returns its payload.
func (t *SocketTransport) Receive() ([]byte, error) {
	buf := make([]byte, MaxMessageSize)
	n, err := t.conn.Read(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrTransportClosed
		}
		return nil, fmt.Errorf("socket receive failed: %w", err)
	}
	return buf[:n], nil
}

// LocalAddr returns the bound local address.
func (t *SocketTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// CloseSend closes the socket: a datagram socket has no half-close, and
// closing is the only way to unblock a pending Receive. Datagrams are never
// buffered past the socket, so there is nothing left to drain.
func (t *SocketTransport) CloseSend() error {
	return t.Close()
}

// Close shuts the socket down, unblocking any pending Receive.
func (t *SocketTransport) Close() error {
	t.closeOnce.Do(func() { t.closeErr = t.conn.Close() })
	return t.closeErr
}
