// Package encoding converts between operator-entered text and raw payload
// bytes. Payloads can be typed as plain text, hexadecimal, or base64; the
// same format is applied to every payload of a session.
package encoding

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrUnknownFormat indicates a format name outside plain/hex/base64.
var ErrUnknownFormat = errors.New("unknown payload format")

// Format identifies the textual representation of payload bytes.
type Format uint8

const (
	// Plain reinterprets text bytes as payload bytes unchanged.
	Plain Format = iota
	// Hex represents payload bytes as lowercase hexadecimal text.
	Hex
	// Base64 represents payload bytes as standard base64 text.
	Base64
)

// String returns the format name used on the command line.
func (f Format) String() string {
	switch f {
	case Plain:
		return "plain"
	case Hex:
		return "hex"
	case Base64:
		return "base64"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// ParseFormat maps a format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "plain":
		return Plain, nil
	case "hex":
		return Hex, nil
	case "base64":
		return Base64, nil
	}
	return Plain, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Decode converts text in the given format to raw payload bytes.
// Malformed hex or base64 is an error; the caller decides whether that is
// fatal (it is for operator input, which is debug data rather than protocol
// data).
func Decode(f Format, text string) ([]byte, error) {
	switch f {
	case Plain:
		return []byte(text), nil
	case Hex:
		data, err := hex.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("malformed hex payload: %w", err)
		}
		return data, nil
	case Base64:
		data, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("malformed base64 payload: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, uint8(f))
}

// Encode converts raw payload bytes to text in the given format. Encoding
// never fails: every byte string has a representation in each format.
func Encode(f Format, data []byte) string {
	switch f {
	case Hex:
		return hex.EncodeToString(data)
	case Base64:
		return base64.StdEncoding.EncodeToString(data)
	}
	return string(data)
}
