package account

import (
	"bytes"
	"errors"
	"testing"
)

func TestResolveFallsBackToBurnOnWrongLength(t *testing.T) {
	r := NewResolver(ZeroAddress)
	for _, n := range []int{0, 1, 19, 21, 32} {
		addr, valid := r.Resolve(bytes.Repeat([]byte{0x42}, n))
		if valid {
			t.Fatalf("len=%d: expected invalid", n)
		}
		if addr != BurnAddress {
			t.Fatalf("len=%d: expected burn sentinel, got %s", n, addr)
		}
	}
}

func TestResolveZeroIdentifierUsesBurnSentinel(t *testing.T) {
	burn := MustParseAddress("0x000000000000000000000000000000000000beef")
	r := NewResolver(burn)
	addr, valid := r.Resolve(make([]byte, AddressLength))
	if valid {
		t.Fatalf("zero identifier must be reported as substituted")
	}
	if addr != burn {
		t.Fatalf("expected configured burn sentinel, got %s", addr)
	}
}

func TestResolveValidAddress(t *testing.T) {
	raw := bytes.Repeat([]byte{0x11}, AddressLength)
	addr, valid := Resolver{}.Resolve(raw)
	if !valid || !bytes.Equal(addr.Bytes(), raw) {
		t.Fatalf("unexpected resolution: %s valid=%v", addr, valid)
	}
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.String() != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("unexpected string: %s", a)
	}
	if _, err := ParseAddress("0x1234"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := ParseAddress("zz11111111111111111111111111111111111111"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress for non-hex, got %v", err)
	}

	var decoded Address
	if err := decoded.UnmarshalText([]byte(BurnAddress.String())); err != nil || decoded != BurnAddress {
		t.Fatalf("text round-trip failed: %s %v", decoded, err)
	}
}
