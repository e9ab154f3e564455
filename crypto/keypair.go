// Package crypto implements key-pair handling for the demo client.
//
// Keys are Curve25519 pairs as used by the Noise DH25519 function. Key
// generation uses crypto/rand; public-key derivation uses
// golang.org/x/crypto/curve25519.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Public key:", hex.EncodeToString(keys.Public[:]))
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the byte length of Curve25519 private and public keys.
const KeySize = 32

var (
	// ErrInvalidSecretKey indicates a private key that cannot produce a
	// valid key pair.
	ErrInvalidSecretKey = errors.New("invalid secret key: all zeros")
	// ErrInvalidKeyLength indicates key material of the wrong size.
	ErrInvalidKeyLength = errors.New("key material must be 32 bytes")
)

// KeyPair represents a Curve25519 key pair.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair creates a new random Curve25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	var private [KeySize]byte
	if _, err := rand.Read(private[:]); err != nil {
		return nil, fmt.Errorf("failed to read random key material: %w", err)
	}

	keyPair, err := FromSecretKey(private)
	ZeroBytes(private[:])
	if err != nil {
		return nil, err
	}
	return keyPair, nil
}

// FromSecretKey creates a key pair from an existing private key by deriving
// the matching public key.
func FromSecretKey(secretKey [KeySize]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, ErrInvalidSecretKey
	}

	public, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	keyPair := &KeyPair{Private: secretKey}
	copy(keyPair.Public[:], public)
	return keyPair, nil
}

// FromHex creates a key pair from a hex-encoded private key. Malformed hex
// or a wrong-length key is an error; callers treat that as fatal since
// externally supplied keys are startup configuration.
func FromHex(hexKey string) (*KeyPair, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("malformed hex key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidKeyLength, len(raw))
	}

	var secretKey [KeySize]byte
	copy(secretKey[:], raw)
	keyPair, err := FromSecretKey(secretKey)
	ZeroBytes(raw)
	ZeroBytes(secretKey[:])
	if err != nil {
		return nil, err
	}
	return keyPair, nil
}

// PublicFromHex parses a hex-encoded public key.
func PublicFromHex(hexKey string) ([]byte, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("malformed hex key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidKeyLength, len(raw))
	}
	return raw, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [KeySize]byte) bool {
	var result byte
	for _, b := range key {
		result |= b
	}
	return result == 0
}
