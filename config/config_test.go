package config

import (
	"errors"
	"testing"
)

func validOptions() *Options {
	return &Options{
		Protocol:    "Noise_XX_25519_AESGCM_SHA256",
		Role:        "initiator",
		Prologue:    "demo",
		Format:      "plain",
		PipeCommand: "cat",
	}
}

func TestValidate(t *testing.T) {
	if err := validOptions().Validate(); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}

	o := validOptions()
	o.Protocol = ""
	if !errors.Is(o.Validate(), ErrMissingProtocol) {
		t.Error("expected ErrMissingProtocol")
	}

	o = validOptions()
	o.Role = ""
	if !errors.Is(o.Validate(), ErrMissingRole) {
		t.Error("expected ErrMissingRole")
	}
}

// Neither a full socket four-tuple nor a pipe command: startup must fail
// before any handshake state exists.
func TestValidateNoTransport(t *testing.T) {
	o := validOptions()
	o.PipeCommand = ""
	if !errors.Is(o.Validate(), ErrNoTransport) {
		t.Error("expected ErrNoTransport")
	}

	// A partial socket config does not count as a transport.
	o.LocalHost = "127.0.0.1"
	o.LocalPort = 9000
	if !errors.Is(o.Validate(), ErrNoTransport) {
		t.Error("expected ErrNoTransport for partial socket config")
	}
}

func TestModeSelection(t *testing.T) {
	// Full socket parameters win over a pipe command.
	o := validOptions()
	o.LocalHost = "127.0.0.1"
	o.LocalPort = 9000
	o.RemoteHost = "127.0.0.1"
	o.RemotePort = 9001
	mode, err := o.Mode()
	if err != nil {
		t.Fatal(err)
	}
	if mode != SocketMode {
		t.Errorf("mode = %d, want SocketMode", mode)
	}

	// Pipe command alone selects pipe mode.
	o = validOptions()
	mode, err = o.Mode()
	if err != nil {
		t.Fatal(err)
	}
	if mode != PipeMode {
		t.Errorf("mode = %d, want PipeMode", mode)
	}
}

func TestOpenTransportPipe(t *testing.T) {
	o := validOptions()
	tr, err := o.OpenTransport()
	if err != nil {
		t.Fatalf("OpenTransport: %v", err)
	}
	defer tr.Close()

	if err := tr.Send([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	got, err := tr.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ping" {
		t.Errorf("received %q", got)
	}
}

func TestOpenTransportNone(t *testing.T) {
	o := validOptions()
	o.PipeCommand = ""
	if _, err := o.OpenTransport(); !errors.Is(err, ErrNoTransport) {
		t.Error("expected ErrNoTransport")
	}
}
