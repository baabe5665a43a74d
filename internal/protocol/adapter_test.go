package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestAdapterParamsV1RoundTrip(t *testing.T) {
	b := EncodeAdapterParamsV1(250_000)
	if len(b) != 34 {
		t.Fatalf("unexpected v1 length: %d", len(b))
	}
	p, err := DecodeAdapterParams(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Version != AdapterParamsV1 || p.Gas.Uint64() != 250_000 {
		t.Fatalf("unexpected params: %+v", p)
	}
}

func TestAdapterParamsV2RoundTrip(t *testing.T) {
	addr := bytes.Repeat([]byte{0x44}, 20)
	b := EncodeAdapterParamsV2(300_000, uint256.NewInt(5), addr)
	if len(b) != 86 {
		t.Fatalf("unexpected v2 length: %d", len(b))
	}
	p, err := DecodeAdapterParams(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Version != AdapterParamsV2 || p.Gas.Uint64() != 300_000 || p.NativeForDst.Uint64() != 5 {
		t.Fatalf("unexpected params: %+v", p)
	}
	if !bytes.Equal(p.NativeAddress, addr) {
		t.Fatalf("unexpected native address: %x", p.NativeAddress)
	}
}

func TestAdapterParamsMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":       nil,
		"short v1":    EncodeAdapterParamsV1(1)[:20],
		"v2 no addr":  EncodeAdapterParamsV2(1, nil, nil),
		"bad version": {0x00, 0x09, 0x00},
	}
	for name, b := range cases {
		if _, err := DecodeAdapterParams(b); !errors.Is(err, ErrInvalidAdapterParams) {
			t.Fatalf("%s: expected ErrInvalidAdapterParams, got %v", name, err)
		}
	}
}
