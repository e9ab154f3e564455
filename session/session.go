// Package session drives the interactive handshake and transport phases of
// the demo client. A session owns a three-state progress machine during the
// handshake; on completion the single handshake state is split into two
// one-directional ciphers, each owned by its own loop: the foreground write
// loop keeps reading operator input while a background read loop decrypts
// peer messages.
package session

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/0xflotus/cacophony/encoding"
	"github.com/0xflotus/cacophony/noise"
	"github.com/0xflotus/cacophony/transport"
)

// errEndOfInput signals clean termination: the operator ended input at a
// prompt. It never escapes Run.
var errEndOfInput = errors.New("end of input")

// Progress tracks whose turn it is to act during the handshake.
type Progress uint8

const (
	// AwaitingLocalInput means the next handshake message is ours to write.
	AwaitingLocalInput Progress = iota
	// AwaitingPeerMessage means we block until the peer's message arrives.
	AwaitingPeerMessage
	// Complete is terminal: the session never returns to the other states.
	Complete
)

// String describes the progress state for logs.
func (p Progress) String() string {
	switch p {
	case AwaitingLocalInput:
		return "awaiting local input"
	case AwaitingPeerMessage:
		return "awaiting peer message"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("progress(%d)", uint8(p))
}

// InitialProgress returns the starting progress for a role: the initiator
// speaks first, the responder listens first.
func InitialProgress(role noise.Role) Progress {
	if role == noise.Initiator {
		return AwaitingLocalInput
	}
	return AwaitingPeerMessage
}

// Session is one interactive run: a handshake followed by an encrypted
// message exchange.
type Session struct {
	role    noise.Role
	format  encoding.Format
	tr      transport.Transport
	scanner *bufio.Scanner

	out   io.Writer
	outMu sync.Mutex

	progress   Progress
	hs         *noise.HandshakeState
	seenStatic bool
}

// New creates a session around a prepared handshake state. Input is the
// operator's line-oriented console; output receives the session transcript.
func New(hs *noise.HandshakeState, role noise.Role, format encoding.Format, tr transport.Transport, input io.Reader, output io.Writer) *Session {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), transport.MaxMessageSize*2)
	return &Session{
		role:     role,
		format:   format,
		tr:       tr,
		scanner:  scanner,
		out:      output,
		progress: InitialProgress(role),
		hs:       hs,
	}
}

// Progress returns the current handshake progress.
func (s *Session) Progress() Progress {
	return s.progress
}

// SeenStatic reports whether the peer's static key has been disclosed and
// printed. It transitions false to true at most once per session.
func (s *Session) SeenStatic() bool {
	return s.seenStatic
}

// Run drives the session to its end: through the handshake, then through
// the dual-loop transport phase until the operator ends input. Ending input
// at any prompt is a clean termination, not an error.
func (s *Session) Run() error {
	if err := s.runHandshake(); err != nil {
		return err
	}
	if s.progress != Complete {
		// Operator abandoned the handshake; nothing to tear down beyond
		// the transport.
		return s.tr.Close()
	}

	send, recv, err := s.hs.Split()
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Run",
		"role":     s.role.String(),
	}).Debug("Handshake complete, starting transport loops")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readLoop(recv)
	}()

	writeErr := s.writeLoop(send)

	// Stop the sending side first: the read loop keeps draining messages
	// still in flight, then the full close bounds it to the write loop's
	// lifetime instead of leaking it until process exit.
	closeSendErr := s.tr.CloseSend()
	wg.Wait()
	closeErr := s.tr.Close()

	if writeErr != nil {
		return writeErr
	}
	if closeSendErr != nil {
		return closeSendErr
	}
	return closeErr
}

// runHandshake executes the handshake state machine until completion or
// clean termination.
func (s *Session) runHandshake() error {
	for s.progress != Complete {
		var err error
		switch s.progress {
		case AwaitingLocalInput:
			err = s.stepLocalInput()
		case AwaitingPeerMessage:
			err = s.stepPeerMessage()
		}
		if errors.Is(err, errEndOfInput) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// stepLocalInput reads one payload line, writes the next handshake message,
// and sends it to the peer.
func (s *Session) stepLocalInput() error {
	line, ok := s.readLine()
	if !ok {
		return errEndOfInput
	}
	payload, err := encoding.Decode(s.format, line)
	if err != nil {
		// Operator-entered debug data: malformed text is a fatal input
		// error, and nothing has touched the handshake state yet.
		return err
	}

	res := s.hs.WriteMessage(payload)
	if res.Kind == noise.ResultNeedPSK {
		res, err = s.pskLoop(res.State, pskWrite, payload)
		if err != nil {
			return err
		}
	}
	if res.Kind == noise.ResultFailure {
		// Fall back to listening for the peer rather than re-prompting.
		s.reportError("handshake write", res.Err)
		s.progress = AwaitingPeerMessage
		return nil
	}

	s.hs = res.State
	if err := s.tr.Send(res.Payload); err != nil {
		return err
	}
	s.printf("sent handshake message: %x\n", res.Payload)
	s.advance(AwaitingPeerMessage)
	return nil
}

// stepPeerMessage blocks for the peer's next handshake message and
// processes it.
func (s *Session) stepPeerMessage() error {
	message, err := s.tr.Receive()
	if err != nil {
		return err
	}
	s.printf("received handshake message: %x\n", message)

	res := s.hs.ReadMessage(message)
	if res.Kind == noise.ResultNeedPSK {
		var perr error
		res, perr = s.pskLoop(res.State, pskRead, message)
		if perr != nil {
			return perr
		}
	}
	if res.Kind == noise.ResultFailure {
		// Keep listening; the rejected message left the state intact.
		s.reportError("handshake read", res.Err)
		return nil
	}

	s.hs = res.State
	s.printf("received handshake payload: %s\n", encoding.Encode(s.format, res.Payload))
	s.observeRemoteStatic()
	s.advance(AwaitingLocalInput)
	return nil
}

// advance applies the completion check shared by both handshake steps.
func (s *Session) advance(next Progress) {
	if s.hs.IsComplete() {
		s.printf("handshake complete, transcript hash: %x\n", s.hs.TranscriptHash())
		s.progress = Complete
		return
	}
	s.progress = next
}

// observeRemoteStatic prints the peer's static key the first time the
// handshake discloses it.
func (s *Session) observeRemoteStatic() {
	if s.seenStatic {
		return
	}
	remote := s.hs.RemoteStaticKey()
	if remote == nil {
		return
	}
	s.printf("remote static key: %s\n", base64.StdEncoding.EncodeToString(remote))
	s.seenStatic = true
}

// pskOp distinguishes which pending operation a psk prompt belongs to.
type pskOp uint8

const (
	pskWrite pskOp = iota
	pskRead
)

// pskLoop prompts for a pre-shared key until the pending operation
// resolves. The original message argument is retained across retries. Empty
// input aborts the whole handshake attempt.
func (s *Session) pskLoop(hs *noise.HandshakeState, op pskOp, arg []byte) (*noise.Result, error) {
	for {
		s.printf("pre-shared key required (%s): ", s.format)
		line, ok := s.readLine()
		if !ok || line == "" {
			return nil, errEndOfInput
		}
		psk, err := encoding.Decode(s.format, line)
		if err != nil {
			return nil, err
		}

		next, err := hs.ProvidePresharedKey(psk)
		if err != nil {
			s.reportError("pre-shared key", err)
			continue
		}

		var res *noise.Result
		if op == pskWrite {
			res = next.WriteMessage(arg)
		} else {
			res = next.ReadMessage(arg)
		}
		switch res.Kind {
		case noise.ResultNeedPSK:
			hs = res.State
		case noise.ResultFailure:
			s.reportError("handshake with pre-shared key", res.Err)
		case noise.ResultMessage:
			return res, nil
		}
	}
}

// writeLoop encrypts operator input until end of input. Runs on the
// foreground execution context after the handshake completes.
func (s *Session) writeLoop(send *noise.CipherState) error {
	for {
		line, ok := s.readLine()
		if !ok {
			return nil
		}
		payload, err := encoding.Decode(s.format, line)
		if err != nil {
			return err
		}

		ciphertext, next, err := send.Encrypt(payload)
		if err != nil {
			s.reportError("message encrypt", err)
			continue
		}
		send = next

		if err := s.tr.Send(ciphertext); err != nil {
			return err
		}
		s.printf("sent message: %x\n", ciphertext)
	}
}

// readLoop decrypts peer messages until the transport closes. Runs on its
// own goroutine; it shares nothing with the write loop beyond the
// transport, so no locking of cipher state is needed.
func (s *Session) readLoop(recv *noise.CipherState) {
	for {
		message, err := s.tr.Receive()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    err,
			}).Debug("Receive loop ended")
			return
		}
		s.printf("received message: %x\n", message)

		plaintext, next, err := recv.Decrypt(message)
		if err != nil {
			// The message is dropped; the cipher state is unchanged.
			s.reportError("message decrypt", err)
			continue
		}
		recv = next
		s.printf("received payload: %s\n", encoding.Encode(s.format, plaintext))
	}
}

// readLine reads one line of operator input. ok is false at end of input.
func (s *Session) readLine() (string, bool) {
	if !s.scanner.Scan() {
		return "", false
	}
	return s.scanner.Text(), true
}

// printf writes to the session transcript. Both loops print, so the writer
// is guarded.
func (s *Session) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// reportError echoes a recoverable failure to the console and logs it.
func (s *Session) reportError(operation string, err error) {
	s.printf("%s: %v\n", operation, err)
	logrus.WithFields(logrus.Fields{
		"function":  "reportError",
		"operation": operation,
		"error":     err,
	}).Warn("Recoverable protocol failure")
}
