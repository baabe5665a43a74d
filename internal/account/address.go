// Package account defines local account identifiers and resolves the raw
// receiver bytes carried in packets into them.
package account

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLength is the width of a local account identifier.
const AddressLength = 20

var ErrInvalidAddress = errors.New("account: invalid address")

// Address is a local account identifier.
type Address [AddressLength]byte

var (
	ZeroAddress Address
	// BurnAddress is the default sentinel credited when a receiver is unusable.
	BurnAddress = Address{18: 0xde, 19: 0xad}
)

// ParseAddress accepts 40 hex characters with or without a 0x prefix.
func ParseAddress(s string) (Address, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != AddressLength*2 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return BytesToAddress(b), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// BytesToAddress copies exactly AddressLength bytes; callers check the length.
func BytesToAddress(b []byte) Address {
	var a Address
	copy(a[:], b)
	return a
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
