// Package config loads and validates the tool's runtime options. Values
// flow through viper, so every option can come from the command line, the
// environment, or an optional config file, with the command line winning.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/0xflotus/cacophony/transport"
)

var (
	// ErrNoTransport indicates that neither a full socket four-tuple nor a
	// pipe command was configured.
	ErrNoTransport = errors.New("no transport configured: need local/remote host and port, or a pipe command")
	// ErrMissingProtocol indicates a missing handshake protocol name.
	ErrMissingProtocol = errors.New("missing protocol name")
	// ErrMissingRole indicates a missing handshake role.
	ErrMissingRole = errors.New("missing role")
)

// TransportMode identifies which medium a configuration selects.
type TransportMode uint8

const (
	// SocketMode uses a bound and connected UDP socket pair.
	SocketMode TransportMode = iota
	// PipeMode uses a spawned subprocess.
	PipeMode
)

// Options is the full option set for one session.
type Options struct {
	Protocol string
	Role     string
	Prologue string
	Format   string

	// Hex-encoded key material; empty values mean "generate fresh" for
	// the local keys and "no prior knowledge" for the remote static.
	LocalStaticKey    string
	LocalEphemeralKey string
	RemoteStaticKey   string

	// Socket mode endpoints.
	LocalHost  string
	LocalPort  int
	RemoteHost string
	RemotePort int

	// Pipe mode command line.
	PipeCommand string

	// VectorKeys loads the bundled demonstration keys instead of
	// generating fresh ones.
	VectorKeys bool

	Verbose bool
}

// SetDefaults registers the option defaults with viper.
func SetDefaults() {
	viper.SetDefault("format", "plain")
	viper.SetDefault("local-host", "")
	viper.SetDefault("local-port", 0)
	viper.SetDefault("remote-host", "")
	viper.SetDefault("remote-port", 0)
	viper.SetDefault("pipe", "")
	viper.SetDefault("vector-keys", false)
	viper.SetDefault("verbose", false)
}

// FromViper builds an option set from the current viper state.
func FromViper() *Options {
	return &Options{
		Protocol:          viper.GetString("protocol"),
		Role:              viper.GetString("role"),
		Prologue:          viper.GetString("prologue"),
		Format:            viper.GetString("format"),
		LocalStaticKey:    viper.GetString("local-static"),
		LocalEphemeralKey: viper.GetString("local-ephemeral"),
		RemoteStaticKey:   viper.GetString("remote-static"),
		LocalHost:         viper.GetString("local-host"),
		LocalPort:         viper.GetInt("local-port"),
		RemoteHost:        viper.GetString("remote-host"),
		RemotePort:        viper.GetInt("remote-port"),
		PipeCommand:       viper.GetString("pipe"),
		VectorKeys:        viper.GetBool("vector-keys"),
		Verbose:           viper.GetBool("verbose"),
	}
}

// socketComplete reports whether all four socket parameters are present.
func (o *Options) socketComplete() bool {
	return o.LocalHost != "" && o.LocalPort != 0 && o.RemoteHost != "" && o.RemotePort != 0
}

// Mode returns the selected transport medium: a full socket four-tuple
// wins over a pipe command.
func (o *Options) Mode() (TransportMode, error) {
	if o.socketComplete() {
		return SocketMode, nil
	}
	if o.PipeCommand != "" {
		return PipeMode, nil
	}
	return SocketMode, ErrNoTransport
}

// Validate rejects configurations that must fail fatally before any
// cryptographic or network state is created.
func (o *Options) Validate() error {
	if o.Protocol == "" {
		return ErrMissingProtocol
	}
	if o.Role == "" {
		return ErrMissingRole
	}
	if _, err := o.Mode(); err != nil {
		return err
	}
	return nil
}

// OpenTransport builds the transport the options select. Transport
// construction failures are fatal: there is no retry or reconnect policy.
func (o *Options) OpenTransport() (transport.Transport, error) {
	mode, err := o.Mode()
	if err != nil {
		return nil, err
	}
	switch mode {
	case SocketMode:
		return transport.NewSocketTransport(o.LocalHost, o.LocalPort, o.RemoteHost, o.RemotePort)
	case PipeMode:
		return transport.NewPipeTransport(o.PipeCommand)
	}
	return nil, fmt.Errorf("unknown transport mode %d", mode)
}
