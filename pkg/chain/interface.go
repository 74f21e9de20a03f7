package chain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// InterfaceID is a 4 byte capability identifier, the xor of the function selectors of an interface
type InterfaceID [4]byte

var (
	// IntrospectionInterfaceID - supportsInterface(bytes4), 0x01ffc9a7
	IntrospectionInterfaceID = Selector("supportsInterface(bytes4)")
	// InvalidInterfaceID must never be reported as supported
	InvalidInterfaceID = InterfaceID{0xff, 0xff, 0xff, 0xff}
)

// Introspector is implemented by contracts which advertise their capabilities
type Introspector interface {
	SupportsInterface(id InterfaceID) bool
}

// Selector returns first 4 bytes of keccak256 of a function signature
func Selector(signature string) InterfaceID {
	var id InterfaceID
	copy(id[:], Keccak256([]byte(signature)))
	return id
}

// InterfaceIDOf xors selectors of all given signatures
func InterfaceIDOf(signatures ...string) InterfaceID {
	var id InterfaceID
	for _, sig := range signatures {
		s := Selector(sig)
		for i := range id {
			id[i] ^= s[i]
		}
	}
	return id
}

func ParseInterfaceID(s string) (InterfaceID, error) {
	var id InterfaceID

	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != len(id)*2 {
		return id, fmt.Errorf("invalid interface id \"%s\"", s)
	}

	if _, err := hex.Decode(id[:], []byte(raw)); err != nil {
		return id, fmt.Errorf("invalid interface id \"%s\": %v", s, err)
	}

	return id, nil
}

func (id InterfaceID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id InterfaceID) String() string {
	return id.Hex()
}

// Supports probes an arbitrary contract. Plain accounts and contracts without
// introspection report nothing, and no contract may report InvalidInterfaceID.
func Supports(contract any, id InterfaceID) bool {
	in, ok := contract.(Introspector)
	if !ok {
		return false
	}

	if !in.SupportsInterface(IntrospectionInterfaceID) || in.SupportsInterface(InvalidInterfaceID) {
		return false
	}

	return in.SupportsInterface(id)
}
