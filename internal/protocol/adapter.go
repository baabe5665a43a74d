package protocol

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Adapter parameter blob versions understood by the transport.
const (
	AdapterParamsV1 uint16 = 1
	AdapterParamsV2 uint16 = 2

	adapterV1Len     = 2 + 32
	adapterV2BaseLen = 2 + 32 + 32
)

// AdapterParams are the per-dispatch transport options supplied by the sender.
// Gas is the execution budget requested on the destination endpoint.
type AdapterParams struct {
	Version       uint16
	Gas           *uint256.Int
	NativeForDst  *uint256.Int
	NativeAddress []byte
}

// EncodeAdapterParamsV1 builds the default [u16 version][u256 gas] blob.
func EncodeAdapterParamsV1(gas uint64) []byte {
	w := NewWriter(adapterV1Len)
	w.Uint16(AdapterParamsV1)
	g := uint256.NewInt(gas).Bytes32()
	w.Fixed(g[:])
	return w.Bytes()
}

// EncodeAdapterParamsV2 adds an airdrop of native value to addr on the destination.
func EncodeAdapterParamsV2(gas uint64, nativeForDst *uint256.Int, addr []byte) []byte {
	w := NewWriter(adapterV2BaseLen + len(addr))
	w.Uint16(AdapterParamsV2)
	g := uint256.NewInt(gas).Bytes32()
	w.Fixed(g[:])
	if nativeForDst == nil {
		nativeForDst = new(uint256.Int)
	}
	n := nativeForDst.Bytes32()
	w.Fixed(n[:])
	w.Fixed(addr)
	return w.Bytes()
}

// DecodeAdapterParams parses a version 1 or version 2 blob.
func DecodeAdapterParams(b []byte) (AdapterParams, error) {
	r := NewReader(b)
	version := r.Uint16()
	if err := r.Err(); err != nil {
		return AdapterParams{}, fmt.Errorf("%w: %v", ErrInvalidAdapterParams, err)
	}
	switch version {
	case AdapterParamsV1:
		if len(b) != adapterV1Len {
			return AdapterParams{}, fmt.Errorf("%w: v1 length %d", ErrInvalidAdapterParams, len(b))
		}
		return AdapterParams{
			Version: version,
			Gas:     new(uint256.Int).SetBytes(r.Fixed(32)),
		}, nil
	case AdapterParamsV2:
		if len(b) <= adapterV2BaseLen {
			return AdapterParams{}, fmt.Errorf("%w: v2 length %d", ErrInvalidAdapterParams, len(b))
		}
		p := AdapterParams{
			Version:      version,
			Gas:          new(uint256.Int).SetBytes(r.Fixed(32)),
			NativeForDst: new(uint256.Int).SetBytes(r.Fixed(32)),
		}
		p.NativeAddress = r.Fixed(r.Remaining())
		return p, nil
	default:
		return AdapterParams{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidAdapterParams, version)
	}
}
