package noise

import (
	"fmt"

	"github.com/0xflotus/cacophony/crypto"
)

// DHGroup identifies the Diffie-Hellman group a vector key belongs to.
type DHGroup uint8

const (
	// Curve25519 is the DH25519 group, the only group the engine ships.
	Curve25519 DHGroup = iota
)

// KeyKind distinguishes the bundled demonstration keys.
type KeyKind uint8

const (
	// StaticKey is a long-lived identity key.
	StaticKey KeyKind = iota
	// EphemeralKey is a per-session key.
	EphemeralKey
)

type vectorKey struct {
	group DHGroup
	role  Role
	kind  KeyKind
}

type vectorEntry struct {
	private string
	public  string
}

// testVectors holds fixed demonstration keys for deterministic handshakes
// and interop testing. The static keys are the Curve25519 keys used by the
// published Noise test vectors; the ephemeral keys are the RFC 7748 test
// scalars. None of this material is secret.
var testVectors = map[vectorKey]vectorEntry{
	{Curve25519, Initiator, StaticKey}: {
		private: "e61ef9919cde45dd5f82166404bd08e38bceb5dfdfded0a34c8df7ed542214d1",
		public:  "6bc3822a2aa7f4e6981d6538692b3cdf3e6df9eea6ed269eb41d93c22757b75a",
	},
	{Curve25519, Responder, StaticKey}: {
		private: "4a3acbfdb163dec651dfa3194dece676d437029c62a408b4c5ea9114246e4893",
		public:  "31e0303fd6418d2f8c0e78b91f22e8caed0fbe48656dcf4767e4834f701b8f62",
	},
	{Curve25519, Initiator, EphemeralKey}: {
		private: "77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a",
		public:  "8520f0098930a754748b7ddcb43ef75a0dbf3a0d26381af4eba4a98eaa9b4e6a",
	},
	{Curve25519, Responder, EphemeralKey}: {
		private: "5dab087e624a8a4b79e17f8b83800ee66f3bb1292618b6fd1c2f8b27ff88e0eb",
		public:  "de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f",
	},
}

// VectorKey reconstructs the fixed demonstration key pair for the given
// group, role, and kind.
func VectorKey(group DHGroup, role Role, kind KeyKind) (*crypto.KeyPair, error) {
	entry, ok := testVectors[vectorKey{group, role, kind}]
	if !ok {
		return nil, fmt.Errorf("no test vector for group %d, role %v, kind %d", group, role, kind)
	}
	return crypto.FromHex(entry.private)
}

// VectorPublicHex returns the published public key hex for a vector entry,
// for verification against the reconstructed pair.
func VectorPublicHex(group DHGroup, role Role, kind KeyKind) (string, error) {
	entry, ok := testVectors[vectorKey{group, role, kind}]
	if !ok {
		return "", fmt.Errorf("no test vector for group %d, role %v, kind %d", group, role, kind)
	}
	return entry.public, nil
}
