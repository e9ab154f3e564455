// Package noise adapts an external Noise handshake engine to the
// orchestration contract of the demo client: operations consume the current
// handshake state and return a successor, a failed operation leaves the
// previous state intact, and patterns with a psk modifier surface a
// NeedPSK result until the pre-shared key has been supplied.
//
// The engine itself (DH, ciphers, hashing, and the pattern state machine)
// is github.com/flynn/noise; nothing in this package implements
// cryptography.
package noise

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"

	"github.com/0xflotus/cacophony/crypto"
)

var (
	// ErrHandshakeNotComplete indicates the handshake is still in progress.
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates the handshake is already complete.
	ErrHandshakeComplete = errors.New("handshake already complete")
	// ErrMissingProtocol indicates a config without a parsed protocol.
	ErrMissingProtocol = errors.New("handshake config requires a protocol")
)

// Config collects the immutable material a handshake starts from.
type Config struct {
	Protocol   *Protocol
	Role       Role
	Prologue   []byte
	Static     *crypto.KeyPair // optional local static key pair
	Ephemeral  *crypto.KeyPair // optional local ephemeral key pair
	PeerStatic []byte          // optional remote static public key
	Random     io.Reader       // defaults to crypto/rand
}

// ResultKind discriminates the outcome of a handshake operation.
type ResultKind uint8

const (
	// ResultMessage carries a processed message and the successor state.
	ResultMessage ResultKind = iota
	// ResultNeedPSK means the pattern requires a pre-shared key before the
	// operation can complete.
	ResultNeedPSK
	// ResultFailure means the operation was rejected; the state it was
	// invoked on remains the live state.
	ResultFailure
)

// Result is the outcome of WriteMessage or ReadMessage.
type Result struct {
	Kind    ResultKind
	Payload []byte          // ciphertext for writes, plaintext for reads
	State   *HandshakeState // successor state; nil on failure
	Err     error           // set only for ResultFailure
}

// HandshakeState is one step of handshake progress. Operations never mutate
// the receiver's visible state: they return a successor inside the Result,
// and the old value must not be used again once a successor exists. On
// failure no successor is produced and the receiver stays live, so a retry
// with corrected input is safe.
type HandshakeState struct {
	cfg      Config
	psk      []byte
	hs       *noise.HandshakeState
	complete bool
	send     *noise.CipherState
	recv     *noise.CipherState
}

// NewHandshakeState prepares a handshake from the given config. For psk
// patterns the engine state is constructed lazily, because the engine takes
// the pre-shared key at construction time: the first operation will report
// NeedPSK until ProvidePresharedKey has been called.
func NewHandshakeState(cfg Config) (*HandshakeState, error) {
	if cfg.Protocol == nil {
		return nil, ErrMissingProtocol
	}

	s := &HandshakeState{cfg: cfg}
	if cfg.Protocol.RequiresPSK() {
		return s, nil
	}

	if err := s.buildEngine(); err != nil {
		return nil, err
	}
	return s, nil
}

// buildEngine constructs the underlying engine state. Called once, either
// eagerly from NewHandshakeState or lazily once the pre-shared key is known.
func (s *HandshakeState) buildEngine() error {
	random := s.cfg.Random
	if random == nil {
		random = rand.Reader
	}

	config := noise.Config{
		CipherSuite: s.cfg.Protocol.Suite,
		Random:      random,
		Pattern:     s.cfg.Protocol.Pattern,
		Initiator:   s.cfg.Role == Initiator,
		Prologue:    s.cfg.Prologue,
	}
	if s.cfg.Static != nil {
		config.StaticKeypair = dhKey(s.cfg.Static)
	}
	if s.cfg.Ephemeral != nil {
		config.EphemeralKeypair = dhKey(s.cfg.Ephemeral)
	}
	if s.cfg.PeerStatic != nil {
		config.PeerStatic = append([]byte(nil), s.cfg.PeerStatic...)
	}
	if s.psk != nil {
		config.PresharedKey = s.psk
		config.PresharedKeyPlacement = s.cfg.Protocol.PSKPlacement
	}

	hs, err := noise.NewHandshakeState(config)
	if err != nil {
		return fmt.Errorf("failed to create handshake state: %w", err)
	}
	s.hs = hs
	return nil
}

// dhKey converts a key pair into the engine's key representation.
func dhKey(kp *crypto.KeyPair) noise.DHKey {
	key := noise.DHKey{
		Private: make([]byte, crypto.KeySize),
		Public:  make([]byte, crypto.KeySize),
	}
	copy(key.Private, kp.Private[:])
	copy(key.Public, kp.Public[:])
	return key
}

// needPSK reports whether an operation must wait for a pre-shared key.
func (s *HandshakeState) needPSK() bool {
	return s.cfg.Protocol.RequiresPSK() && s.psk == nil
}

// ProvidePresharedKey returns a successor state carrying the pre-shared
// key. The pending operation can then be re-invoked on the successor with
// its original arguments.
func (s *HandshakeState) ProvidePresharedKey(psk []byte) (*HandshakeState, error) {
	if len(psk) != 32 {
		return nil, fmt.Errorf("pre-shared key must be 32 bytes, got %d", len(psk))
	}

	next := s.clone()
	next.psk = append([]byte(nil), psk...)
	return next, nil
}

// WriteMessage produces the next handshake message carrying payload.
func (s *HandshakeState) WriteMessage(payload []byte) *Result {
	if s.complete {
		return &Result{Kind: ResultFailure, Err: ErrHandshakeComplete}
	}
	if s.needPSK() {
		return &Result{Kind: ResultNeedPSK, State: s}
	}
	if s.hs == nil {
		if err := s.buildEngine(); err != nil {
			return &Result{Kind: ResultFailure, Err: err}
		}
	}

	message, cs0, cs1, err := s.hs.WriteMessage(nil, payload)
	if err != nil {
		return &Result{Kind: ResultFailure, Err: fmt.Errorf("handshake write failed: %w", err)}
	}

	next := s.clone()
	if cs0 != nil && cs1 != nil {
		// WriteMessage hands back (send, recv) on the final message.
		next.complete = true
		next.send, next.recv = cs0, cs1
	}
	return &Result{Kind: ResultMessage, Payload: message, State: next}
}

// ReadMessage consumes a received handshake message and returns its
// payload. On failure the engine rejects the message without advancing, so
// the receiver remains usable for a retry.
func (s *HandshakeState) ReadMessage(message []byte) *Result {
	if s.complete {
		return &Result{Kind: ResultFailure, Err: ErrHandshakeComplete}
	}
	if s.needPSK() {
		return &Result{Kind: ResultNeedPSK, State: s}
	}
	if s.hs == nil {
		if err := s.buildEngine(); err != nil {
			return &Result{Kind: ResultFailure, Err: err}
		}
	}

	payload, cs0, cs1, err := s.hs.ReadMessage(nil, message)
	if err != nil {
		return &Result{Kind: ResultFailure, Err: fmt.Errorf("handshake read failed: %w", err)}
	}

	next := s.clone()
	if cs0 != nil && cs1 != nil {
		// ReadMessage hands back (recv, send) on the final message.
		next.complete = true
		next.recv, next.send = cs0, cs1
	}
	return &Result{Kind: ResultMessage, Payload: payload, State: next}
}

// clone copies the facade bookkeeping for the successor state. The engine
// state is shared: the contract forbids reusing a superseded value.
func (s *HandshakeState) clone() *HandshakeState {
	next := *s
	return &next
}

// IsComplete returns true once the final handshake message has been
// processed and cipher states are available.
func (s *HandshakeState) IsComplete() bool {
	return s.complete
}

// RemoteStaticKey returns the peer's static public key, or nil if the
// pattern has not disclosed it yet.
func (s *HandshakeState) RemoteStaticKey() []byte {
	if s.hs == nil {
		return nil
	}
	remote := s.hs.PeerStatic()
	if len(remote) == 0 {
		return nil
	}
	key := make([]byte, len(remote))
	copy(key, remote)
	return key
}

// TranscriptHash returns the channel binding value: a cumulative hash over
// the handshake messages exchanged so far. Both sides of a completed
// handshake observe the same value.
func (s *HandshakeState) TranscriptHash() []byte {
	if s.hs == nil {
		return nil
	}
	return s.hs.ChannelBinding()
}

// Split yields the two independent one-directional cipher states derived
// from the completed handshake. The handshake state's authority ends here:
// after Split the caller works with the ciphers only.
func (s *HandshakeState) Split() (send, recv *CipherState, err error) {
	if !s.complete {
		return nil, nil, ErrHandshakeNotComplete
	}
	if s.send == nil || s.recv == nil {
		return nil, nil, errors.New("cipher states not available")
	}
	return &CipherState{cs: s.send}, &CipherState{cs: s.recv}, nil
}

// CipherState encrypts or decrypts one direction of the transport phase,
// advancing its key with every message. The two directions of a session
// never share a CipherState.
type CipherState struct {
	cs *noise.CipherState
}

// Encrypt encrypts plaintext and advances the cipher, returning the
// ciphertext and the successor state. On failure the receiver is unchanged
// and remains usable.
func (c *CipherState) Encrypt(plaintext []byte) ([]byte, *CipherState, error) {
	ciphertext, err := c.cs.Encrypt(nil, nil, plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("message encrypt failed: %w", err)
	}
	return ciphertext, &CipherState{cs: c.cs}, nil
}

// Decrypt decrypts ciphertext and advances the cipher, returning the
// plaintext and the successor state. A failed authentication leaves the
// receiver unchanged, so the message is dropped rather than poisoning the
// stream.
func (c *CipherState) Decrypt(ciphertext []byte) ([]byte, *CipherState, error) {
	plaintext, err := c.cs.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("message decrypt failed: %w", err)
	}
	return plaintext, &CipherState{cs: c.cs}, nil
}
