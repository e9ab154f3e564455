package noise

import "testing"

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol("Noise_XX_25519_AESGCM_SHA256")
	if err != nil {
		t.Fatalf("ParseProtocol: %v", err)
	}
	if p.Name != "Noise_XX_25519_AESGCM_SHA256" {
		t.Errorf("unexpected name %q", p.Name)
	}
	if p.RequiresPSK() {
		t.Error("XX must not require a psk")
	}
	if p.Suite == nil {
		t.Error("expected a cipher suite")
	}
}

func TestParseProtocolPSK(t *testing.T) {
	p, err := ParseProtocol("Noise_NNpsk0_25519_ChaChaPoly_BLAKE2s")
	if err != nil {
		t.Fatalf("ParseProtocol: %v", err)
	}
	if !p.RequiresPSK() {
		t.Error("NNpsk0 must require a psk")
	}
	if p.PSKPlacement != 0 {
		t.Errorf("placement = %d, want 0", p.PSKPlacement)
	}

	p, err = ParseProtocol("Noise_XXpsk2_25519_AESGCM_SHA512")
	if err != nil {
		t.Fatalf("ParseProtocol: %v", err)
	}
	if p.PSKPlacement != 2 {
		t.Errorf("placement = %d, want 2", p.PSKPlacement)
	}
}

// Deferred placements are valid up to the pattern's message count: XX has
// three messages, so psk3 parses while psk4 does not.
func TestParseProtocolDeferredPSK(t *testing.T) {
	p, err := ParseProtocol("Noise_XXpsk3_25519_AESGCM_SHA256")
	if err != nil {
		t.Fatalf("ParseProtocol: %v", err)
	}
	if p.PSKPlacement != 3 {
		t.Errorf("placement = %d, want 3", p.PSKPlacement)
	}

	if _, err := ParseProtocol("Noise_XXpsk4_25519_AESGCM_SHA256"); err == nil {
		t.Error("expected error for psk4 on a three-message pattern")
	}
	if _, err := ParseProtocol("Noise_NNpsk3_25519_AESGCM_SHA256"); err == nil {
		t.Error("expected error for psk3 on a two-message pattern")
	}
}

func TestParseProtocolAllPatterns(t *testing.T) {
	for token := range handshakePatterns {
		name := "Noise_" + token + "_25519_ChaChaPoly_SHA256"
		if _, err := ParseProtocol(name); err != nil {
			t.Errorf("ParseProtocol(%q): %v", name, err)
		}
	}
}

func TestParseProtocolInvalid(t *testing.T) {
	cases := []string{
		"",
		"Noise_XX_25519_AESGCM",              // missing hash
		"Nose_XX_25519_AESGCM_SHA256",        // wrong prefix
		"Noise_ZZ_25519_AESGCM_SHA256",       // unknown pattern
		"Noise_XXpsk9_25519_AESGCM_SHA256",   // placement past the last message
		"Noise_XXpskX_25519_AESGCM_SHA256",   // malformed modifier
		"Noise_XXpsk-1_25519_AESGCM_SHA256",  // negative placement
		"Noise_XX_448_AESGCM_SHA256",         // unsupported DH
		"Noise_XX_25519_AESCBC_SHA256",       // unsupported cipher
		"Noise_XX_25519_AESGCM_MD5",          // unsupported hash
		"Noise_XX_25519_AESGCM_SHA256_extra", // too many parts
	}
	for _, name := range cases {
		if _, err := ParseProtocol(name); err == nil {
			t.Errorf("expected error for %q", name)
		}
	}
}
