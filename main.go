// Command noise-repl is an interactive demonstration client for the Noise
// Protocol Framework. It drives a handshake against a peer over a UDP
// socket pair or a subprocess pipe, then keeps exchanging encrypted
// messages, printing the wire traffic for inspection.
package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/0xflotus/cacophony/config"
	"github.com/0xflotus/cacophony/crypto"
	"github.com/0xflotus/cacophony/encoding"
	"github.com/0xflotus/cacophony/noise"
	"github.com/0xflotus/cacophony/session"
)

const longDescription = `noise-repl drives a Noise handshake and encrypted message exchange
against a peer, over a UDP socket pair or a subprocess pipe, printing
the wire traffic for inspection. Handshake payloads and messages are
read line by line from standard input.`

var cfgFile string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("startup failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "noise-repl",
		Short:         "Interactive Noise protocol demonstration client",
		Long:          longDescription,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	flags := cmd.Flags()
	flags.String("protocol", "", "full Noise protocol name, e.g. Noise_XX_25519_AESGCM_SHA256")
	flags.String("role", "", "handshake role: initiator or responder")
	flags.String("prologue", "", "prologue string mixed into the handshake")
	flags.String("format", "plain", "payload text format: plain, hex, or base64")
	flags.String("local-static", "", "hex-encoded local static private key (generated if empty)")
	flags.String("local-ephemeral", "", "hex-encoded local ephemeral private key (generated if empty)")
	flags.String("remote-static", "", "hex-encoded remote static public key")
	flags.String("local-host", "", "socket mode: local bind host")
	flags.Int("local-port", 0, "socket mode: local bind port")
	flags.String("remote-host", "", "socket mode: remote peer host")
	flags.Int("remote-port", 0, "socket mode: remote peer port")
	flags.String("pipe", "", "pipe mode: subprocess command line")
	flags.Bool("vector-keys", false, "use the bundled demonstration test-vector keys")
	flags.Bool("verbose", false, "enable debug logging")
	flags.StringVar(&cfgFile, "config", "", "optional config file")

	for _, name := range []string{"protocol", "role", "prologue"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	config.SetDefaults()
	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	viper.SetEnvPrefix("cacophony")
	viper.AutomaticEnv()

	opts := config.FromViper()
	if opts.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	// Configuration must be sound before any cryptographic state exists.
	if err := opts.Validate(); err != nil {
		return err
	}

	role, err := noise.ParseRole(opts.Role)
	if err != nil {
		return err
	}
	format, err := encoding.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	protocol, err := noise.ParseProtocol(opts.Protocol)
	if err != nil {
		return err
	}

	static, ephemeral, peerStatic, err := buildKeys(opts, role)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "protocol: %s, role: %s\n", protocol.Name, role)
	fmt.Fprintf(out, "local static public key: %s\n", base64.StdEncoding.EncodeToString(static.Public[:]))
	fmt.Fprintf(out, "local ephemeral public key: %s\n", base64.StdEncoding.EncodeToString(ephemeral.Public[:]))
	if peerStatic != nil {
		fmt.Fprintf(out, "remote static public key: %s\n", base64.StdEncoding.EncodeToString(peerStatic))
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		Protocol:   protocol,
		Role:       role,
		Prologue:   []byte(opts.Prologue),
		Static:     static,
		Ephemeral:  ephemeral,
		PeerStatic: peerStatic,
	})
	if err != nil {
		return err
	}

	tr, err := opts.OpenTransport()
	if err != nil {
		return err
	}

	return session.New(hs, role, format, tr, cmd.InOrStdin(), out).Run()
}

// buildKeys resolves the session's key material: externally supplied hex
// keys, the bundled test vectors, or freshly generated pairs.
func buildKeys(opts *config.Options, role noise.Role) (static, ephemeral *crypto.KeyPair, peerStatic []byte, err error) {
	static, err = resolveKey(opts.LocalStaticKey, opts.VectorKeys, role, noise.StaticKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("local static key: %w", err)
	}
	ephemeral, err = resolveKey(opts.LocalEphemeralKey, opts.VectorKeys, role, noise.EphemeralKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("local ephemeral key: %w", err)
	}

	if opts.RemoteStaticKey != "" {
		peerStatic, err = crypto.PublicFromHex(opts.RemoteStaticKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("remote static key: %w", err)
		}
	}
	return static, ephemeral, peerStatic, nil
}

// resolveKey picks one local key pair: supplied hex wins, then vector
// keys, then fresh generation.
func resolveKey(hexKey string, vectorKeys bool, role noise.Role, kind noise.KeyKind) (*crypto.KeyPair, error) {
	if hexKey != "" {
		return crypto.FromHex(hexKey)
	}
	if vectorKeys {
		return noise.VectorKey(noise.Curve25519, role, kind)
	}
	return crypto.GenerateKeyPair()
}
