package noise

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/flynn/noise"
)

// NoPSK marks a protocol whose pattern carries no psk modifier.
const NoPSK = -1

// ErrInvalidProtocolName indicates a protocol name that does not follow
// the Noise_<pattern>_<dh>_<cipher>_<hash> convention.
var ErrInvalidProtocolName = errors.New("invalid Noise protocol name")

// handshakePatterns maps pattern tokens to the engine's pattern tables.
var handshakePatterns = map[string]noise.HandshakePattern{
	"N":  noise.HandshakeN,
	"K":  noise.HandshakeK,
	"X":  noise.HandshakeX,
	"NN": noise.HandshakeNN,
	"NK": noise.HandshakeNK,
	"NX": noise.HandshakeNX,
	"XN": noise.HandshakeXN,
	"XK": noise.HandshakeXK,
	"XX": noise.HandshakeXX,
	"KN": noise.HandshakeKN,
	"KK": noise.HandshakeKK,
	"KX": noise.HandshakeKX,
	"IN": noise.HandshakeIN,
	"IK": noise.HandshakeIK,
	"IX": noise.HandshakeIX,
}

// Protocol is a parsed Noise protocol name such as
// "Noise_XXpsk2_25519_AESGCM_SHA256". It selects the handshake pattern,
// the optional pre-shared-key placement, and the cipher suite.
type Protocol struct {
	Name         string
	Pattern      noise.HandshakePattern
	Suite        noise.CipherSuite
	PSKPlacement int // NoPSK when the pattern has no psk modifier
}

// RequiresPSK reports whether the pattern mixes a pre-shared key.
func (p *Protocol) RequiresPSK() bool {
	return p.PSKPlacement != NoPSK
}

// ParseProtocol parses a full Noise protocol name.
func ParseProtocol(name string) (*Protocol, error) {
	parts := strings.Split(name, "_")
	if len(parts) != 5 || parts[0] != "Noise" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProtocolName, name)
	}

	pattern, placement, err := parsePatternToken(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidProtocolName, name, err)
	}

	dh, err := parseDHToken(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidProtocolName, name, err)
	}
	cipher, err := parseCipherToken(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidProtocolName, name, err)
	}
	hash, err := parseHashToken(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidProtocolName, name, err)
	}

	return &Protocol{
		Name:         name,
		Pattern:      pattern,
		Suite:        noise.NewCipherSuite(dh, cipher, hash),
		PSKPlacement: placement,
	}, nil
}

// parsePatternToken splits a pattern token such as "XX" or "NNpsk0" into
// the base pattern and the psk placement.
func parsePatternToken(token string) (noise.HandshakePattern, int, error) {
	base := token
	placement := NoPSK

	if i := strings.Index(token, "psk"); i >= 0 {
		base = token[:i]
		n, err := strconv.Atoi(token[i+len("psk"):])
		if err != nil || n < 0 {
			return noise.HandshakePattern{}, 0, fmt.Errorf("malformed psk modifier %q", token[i:])
		}
		placement = n
	}

	pattern, ok := handshakePatterns[base]
	if !ok {
		return noise.HandshakePattern{}, 0, fmt.Errorf("unknown handshake pattern %q", base)
	}
	// psk0 mixes the key before the first message, pskN at the end of
	// message N, so the deferred placements run up to the message count.
	if placement > len(pattern.Messages) {
		return noise.HandshakePattern{}, 0, fmt.Errorf("psk placement %d exceeds the %d messages of %s", placement, len(pattern.Messages), base)
	}
	return pattern, placement, nil
}

func parseDHToken(token string) (noise.DHFunc, error) {
	if token == "25519" {
		return noise.DH25519, nil
	}
	return nil, fmt.Errorf("unsupported DH function %q", token)
}

func parseCipherToken(token string) (noise.CipherFunc, error) {
	switch token {
	case "AESGCM":
		return noise.CipherAESGCM, nil
	case "ChaChaPoly":
		return noise.CipherChaChaPoly, nil
	}
	return nil, fmt.Errorf("unsupported cipher function %q", token)
}

func parseHashToken(token string) (noise.HashFunc, error) {
	switch token {
	case "SHA256":
		return noise.HashSHA256, nil
	case "SHA512":
		return noise.HashSHA512, nil
	case "BLAKE2s":
		return noise.HashBLAKE2s, nil
	case "BLAKE2b":
		return noise.HashBLAKE2b, nil
	}
	return nil, fmt.Errorf("unsupported hash function %q", token)
}
