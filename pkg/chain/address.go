package chain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const AddressLength = 20

// Address is a 20 byte account or contract identifier. The zero value means "none".
type Address [AddressLength]byte

var ZeroAddress Address

// Keccak256 returns the legacy keccak-256 digest of the concatenated data
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// BytesToAddress uses the last 20 bytes of b
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// DeriveAddress returns keccak256(label)[12:], used for named accounts
func DeriveAddress(label string) Address {
	return BytesToAddress(Keccak256([]byte(label)))
}

// HexToAddress parses a 0x prefixed 40 characters hex string. Checksum casing is not enforced.
func HexToAddress(s string) (Address, error) {
	var a Address

	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != AddressLength*2 {
		return a, fmt.Errorf("invalid address length %d in \"%s\"", len(raw), s)
	}

	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, fmt.Errorf("invalid address \"%s\": %v", s, err)
	}

	return a, nil
}

// MustHexToAddress panics on invalid input
func MustHexToAddress(s string) Address {
	a, err := HexToAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Hex returns EIP-55 checksummed representation
func (a Address) Hex() string {
	lower := hex.EncodeToString(a[:])
	hash := Keccak256([]byte(lower))

	buf := []byte(lower)
	for i, c := range buf {
		if c < 'a' {
			continue
		}

		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			buf[i] = c - 32
		}
	}

	return "0x" + string(buf)
}

func (a Address) String() string {
	return a.Hex()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := HexToAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
