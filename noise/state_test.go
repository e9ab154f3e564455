package noise

import (
	"bytes"
	"testing"

	"github.com/0xflotus/cacophony/crypto"
)

func newTestConfig(t *testing.T, protocol string, role Role, peerStatic []byte) Config {
	t.Helper()
	p, err := ParseProtocol(protocol)
	if err != nil {
		t.Fatal(err)
	}
	static, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return Config{
		Protocol:   p,
		Role:       role,
		Prologue:   []byte("test prologue"),
		Static:     static,
		PeerStatic: peerStatic,
	}
}

// message runs one operation and fails the test on anything but a Message
// result.
func message(t *testing.T, res *Result, op string) *Result {
	t.Helper()
	if res.Kind != ResultMessage {
		t.Fatalf("%s: kind %d, err %v", op, res.Kind, res.Err)
	}
	return res
}

// Full XX handshake between two facade states, no prior key knowledge on
// either side.
func TestXXHandshakeFlow(t *testing.T) {
	initCfg := newTestConfig(t, "Noise_XX_25519_AESGCM_SHA256", Initiator, nil)
	respCfg := newTestConfig(t, "Noise_XX_25519_AESGCM_SHA256", Responder, nil)

	init, err := NewHandshakeState(initCfg)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := NewHandshakeState(respCfg)
	if err != nil {
		t.Fatal(err)
	}
	if init.IsComplete() || resp.IsComplete() {
		t.Fatal("handshake complete before any message")
	}

	// -> e
	w1 := message(t, init.WriteMessage([]byte("msg one")), "init write 1")
	init = w1.State
	r1 := message(t, resp.ReadMessage(w1.Payload), "resp read 1")
	resp = r1.State
	if !bytes.Equal(r1.Payload, []byte("msg one")) {
		t.Errorf("payload 1 = %q", r1.Payload)
	}
	if resp.RemoteStaticKey() != nil {
		t.Error("responder learned static key from message 1 of XX")
	}

	// <- e, ee, s, es
	w2 := message(t, resp.WriteMessage([]byte("msg two")), "resp write 2")
	resp = w2.State
	r2 := message(t, init.ReadMessage(w2.Payload), "init read 2")
	init = r2.State
	if remote := init.RemoteStaticKey(); !bytes.Equal(remote, respCfg.Static.Public[:]) {
		t.Errorf("initiator saw remote static %x, want %x", remote, respCfg.Static.Public)
	}
	if init.IsComplete() {
		t.Error("initiator complete after message 2 of XX")
	}

	// -> s, se
	w3 := message(t, init.WriteMessage([]byte("msg three")), "init write 3")
	init = w3.State
	if !init.IsComplete() {
		t.Error("initiator not complete after final write")
	}
	r3 := message(t, resp.ReadMessage(w3.Payload), "resp read 3")
	resp = r3.State
	if !resp.IsComplete() {
		t.Error("responder not complete after final read")
	}
	if remote := resp.RemoteStaticKey(); !bytes.Equal(remote, initCfg.Static.Public[:]) {
		t.Errorf("responder saw remote static %x, want %x", remote, initCfg.Static.Public)
	}

	// Both sides must agree on the transcript.
	if !bytes.Equal(init.TranscriptHash(), resp.TranscriptHash()) {
		t.Error("transcript hashes differ between the two sides")
	}
	if len(init.TranscriptHash()) == 0 {
		t.Error("empty transcript hash after completion")
	}
}

// After completion the split ciphers carry transport messages in both
// directions, and the two directions evolve independently.
func TestSplitCipherStates(t *testing.T) {
	init, resp := completeXX(t)

	initSend, initRecv, err := init.Split()
	if err != nil {
		t.Fatal(err)
	}
	respSend, respRecv, err := resp.Split()
	if err != nil {
		t.Fatal(err)
	}

	// A burst in one direction decrypts in order.
	var cts [][]byte
	send := initSend
	for i := 0; i < 3; i++ {
		ct, next, err := send.Encrypt([]byte{byte(i)})
		if err != nil {
			t.Fatal(err)
		}
		send = next
		cts = append(cts, ct)
	}

	// Interleave traffic on the opposite direction; it must not disturb
	// the first direction's evolution.
	ct, _, err := respSend.Encrypt([]byte("reverse"))
	if err != nil {
		t.Fatal(err)
	}
	pt, _, err := initRecv.Decrypt(ct)
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != "reverse" {
		t.Errorf("reverse payload %q", pt)
	}

	recv := respRecv
	for i, ct := range cts {
		pt, next, err := recv.Decrypt(ct)
		if err != nil {
			t.Fatalf("decrypt %d: %v", i, err)
		}
		recv = next
		if len(pt) != 1 || pt[0] != byte(i) {
			t.Errorf("message %d decrypted to %x", i, pt)
		}
	}
}

// A failed decrypt leaves the cipher state usable for the next message.
func TestCipherFailureKeepsState(t *testing.T) {
	init, resp := completeXX(t)

	initSend, _, err := init.Split()
	if err != nil {
		t.Fatal(err)
	}
	_, respRecv, err := resp.Split()
	if err != nil {
		t.Fatal(err)
	}

	ct, initSend, err := initSend.Encrypt([]byte("first"))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := respRecv.Decrypt([]byte("garbage that is long enough")); err == nil {
		t.Fatal("expected decrypt failure for garbage")
	}

	// The dropped message does not poison the stream.
	pt, respRecv, err := respRecv.Decrypt(ct)
	if err != nil {
		t.Fatalf("decrypt after failure: %v", err)
	}
	if string(pt) != "first" {
		t.Errorf("payload %q", pt)
	}

	ct2, _, err := initSend.Encrypt([]byte("second"))
	if err != nil {
		t.Fatal(err)
	}
	pt2, _, err := respRecv.Decrypt(ct2)
	if err != nil {
		t.Fatal(err)
	}
	if string(pt2) != "second" {
		t.Errorf("payload %q", pt2)
	}
}

// A failed handshake read is rejected, not half-applied: the previous
// state retries successfully with the genuine message.
func TestHandshakeFailureKeepsState(t *testing.T) {
	initCfg := newTestConfig(t, "Noise_XX_25519_ChaChaPoly_SHA256", Initiator, nil)
	respCfg := newTestConfig(t, "Noise_XX_25519_ChaChaPoly_SHA256", Responder, nil)

	init, err := NewHandshakeState(initCfg)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := NewHandshakeState(respCfg)
	if err != nil {
		t.Fatal(err)
	}

	w1 := message(t, init.WriteMessage(nil), "init write 1")
	init = w1.State
	r1 := message(t, resp.ReadMessage(w1.Payload), "resp read 1")
	resp = r1.State
	w2 := message(t, resp.WriteMessage(nil), "resp write 2")
	resp = w2.State

	// Feed the initiator a corrupted copy of message 2.
	corrupted := append([]byte(nil), w2.Payload...)
	corrupted[len(corrupted)-1] ^= 0xff
	res := init.ReadMessage(corrupted)
	if res.Kind != ResultFailure {
		t.Fatal("expected failure for corrupted message")
	}
	if res.State != nil {
		t.Error("failure must not produce a successor state")
	}

	// Retry with the genuine message on the retained state.
	r2 := message(t, init.ReadMessage(w2.Payload), "init read 2 retry")
	init = r2.State

	w3 := message(t, init.WriteMessage(nil), "init write 3")
	message(t, resp.ReadMessage(w3.Payload), "resp read 3")
}

// Operations on a completed handshake are rejected.
func TestCompletedHandshakeRejectsOperations(t *testing.T) {
	init, _ := completeXX(t)

	if res := init.WriteMessage(nil); res.Kind != ResultFailure {
		t.Error("expected failure writing after completion")
	}
	if res := init.ReadMessage([]byte("x")); res.Kind != ResultFailure {
		t.Error("expected failure reading after completion")
	}
}

func TestSplitBeforeCompletion(t *testing.T) {
	cfg := newTestConfig(t, "Noise_XX_25519_AESGCM_SHA256", Initiator, nil)
	hs, err := NewHandshakeState(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := hs.Split(); err == nil {
		t.Error("expected error splitting an incomplete handshake")
	}
}

// psk patterns must surface NeedPSK until the key is supplied, then run to
// completion once both sides share it.
func TestPSKHandshake(t *testing.T) {
	psk := bytes.Repeat([]byte{0x42}, 32)

	initCfg := newTestConfig(t, "Noise_NNpsk0_25519_ChaChaPoly_SHA256", Initiator, nil)
	respCfg := newTestConfig(t, "Noise_NNpsk0_25519_ChaChaPoly_SHA256", Responder, nil)

	init, err := NewHandshakeState(initCfg)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := NewHandshakeState(respCfg)
	if err != nil {
		t.Fatal(err)
	}

	res := init.WriteMessage(nil)
	if res.Kind != ResultNeedPSK {
		t.Fatalf("expected NeedPSK, got kind %d err %v", res.Kind, res.Err)
	}

	// Wrong-length keys are rejected without advancing anything.
	if _, err := res.State.ProvidePresharedKey([]byte("short")); err == nil {
		t.Error("expected error for short psk")
	}

	init, err = res.State.ProvidePresharedKey(psk)
	if err != nil {
		t.Fatal(err)
	}
	w1 := message(t, init.WriteMessage(nil), "init write 1")
	init = w1.State

	res = resp.ReadMessage(w1.Payload)
	if res.Kind != ResultNeedPSK {
		t.Fatalf("expected NeedPSK on read, got kind %d err %v", res.Kind, res.Err)
	}
	resp, err = res.State.ProvidePresharedKey(psk)
	if err != nil {
		t.Fatal(err)
	}
	r1 := message(t, resp.ReadMessage(w1.Payload), "resp read 1")
	resp = r1.State

	w2 := message(t, resp.WriteMessage(nil), "resp write 2")
	resp = w2.State
	if !resp.IsComplete() {
		t.Error("responder not complete after NNpsk0 message 2")
	}
	r2 := message(t, init.ReadMessage(w2.Payload), "init read 2")
	init = r2.State
	if !init.IsComplete() {
		t.Error("initiator not complete after NNpsk0 message 2")
	}

	if !bytes.Equal(init.TranscriptHash(), resp.TranscriptHash()) {
		t.Error("transcript hashes differ")
	}
}

// XXpsk3 defers the key mix to the final message; the handshake must still
// run to completion once both sides hold the key.
func TestDeferredPSKHandshake(t *testing.T) {
	psk := bytes.Repeat([]byte{0x7e}, 32)

	initCfg := newTestConfig(t, "Noise_XXpsk3_25519_AESGCM_SHA256", Initiator, nil)
	respCfg := newTestConfig(t, "Noise_XXpsk3_25519_AESGCM_SHA256", Responder, nil)

	init, err := NewHandshakeState(initCfg)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := NewHandshakeState(respCfg)
	if err != nil {
		t.Fatal(err)
	}

	init, err = init.ProvidePresharedKey(psk)
	if err != nil {
		t.Fatal(err)
	}
	resp, err = resp.ProvidePresharedKey(psk)
	if err != nil {
		t.Fatal(err)
	}

	w1 := message(t, init.WriteMessage(nil), "init write 1")
	init = w1.State
	resp = message(t, resp.ReadMessage(w1.Payload), "resp read 1").State
	w2 := message(t, resp.WriteMessage(nil), "resp write 2")
	resp = w2.State
	init = message(t, init.ReadMessage(w2.Payload), "init read 2").State
	w3 := message(t, init.WriteMessage(nil), "init write 3")
	init = w3.State
	resp = message(t, resp.ReadMessage(w3.Payload), "resp read 3").State

	if !init.IsComplete() || !resp.IsComplete() {
		t.Fatal("XXpsk3 handshake did not complete on both sides")
	}
	if !bytes.Equal(init.TranscriptHash(), resp.TranscriptHash()) {
		t.Error("transcript hashes differ")
	}
}

// Mismatched pre-shared keys must fail the handshake, not complete it.
func TestPSKMismatch(t *testing.T) {
	initCfg := newTestConfig(t, "Noise_NNpsk0_25519_ChaChaPoly_SHA256", Initiator, nil)
	respCfg := newTestConfig(t, "Noise_NNpsk0_25519_ChaChaPoly_SHA256", Responder, nil)

	init, err := NewHandshakeState(initCfg)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := NewHandshakeState(respCfg)
	if err != nil {
		t.Fatal(err)
	}

	init, err = init.ProvidePresharedKey(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatal(err)
	}
	resp, err = resp.ProvidePresharedKey(bytes.Repeat([]byte{2}, 32))
	if err != nil {
		t.Fatal(err)
	}

	w1 := message(t, init.WriteMessage(nil), "init write 1")
	if res := resp.ReadMessage(w1.Payload); res.Kind != ResultFailure {
		t.Error("expected failure with mismatched psks")
	}
}

func TestNewHandshakeStateValidation(t *testing.T) {
	if _, err := NewHandshakeState(Config{}); err == nil {
		t.Error("expected error for config without protocol")
	}
}

// completeXX runs an XX handshake to completion and returns both final
// states.
func completeXX(t *testing.T) (*HandshakeState, *HandshakeState) {
	t.Helper()
	initCfg := newTestConfig(t, "Noise_XX_25519_AESGCM_SHA256", Initiator, nil)
	respCfg := newTestConfig(t, "Noise_XX_25519_AESGCM_SHA256", Responder, nil)

	init, err := NewHandshakeState(initCfg)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := NewHandshakeState(respCfg)
	if err != nil {
		t.Fatal(err)
	}

	w1 := message(t, init.WriteMessage(nil), "init write 1")
	init = w1.State
	resp = message(t, resp.ReadMessage(w1.Payload), "resp read 1").State
	w2 := message(t, resp.WriteMessage(nil), "resp write 2")
	resp = w2.State
	init = message(t, init.ReadMessage(w2.Payload), "init read 2").State
	w3 := message(t, init.WriteMessage(nil), "init write 3")
	init = w3.State
	resp = message(t, resp.ReadMessage(w3.Payload), "resp read 3").State

	return init, resp
}
