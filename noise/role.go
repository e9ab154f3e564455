package noise

import "fmt"

// Role defines whether we're initiating or responding to the handshake.
// It is fixed for the lifetime of a session and determines whose turn is
// first and which keys are local vs remote.
type Role uint8

const (
	// Initiator starts the handshake.
	Initiator Role = iota
	// Responder responds to handshake initiation.
	Responder
)

// String returns the role name used on the command line.
func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ParseRole maps a role name to a Role.
func ParseRole(name string) (Role, error) {
	switch name {
	case "initiator":
		return Initiator, nil
	case "responder":
		return Responder, nil
	}
	return Initiator, fmt.Errorf("unknown role %q (want initiator or responder)", name)
}
