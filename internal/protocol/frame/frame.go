// Package frame wraps bridge packets in the envelope exchanged between endpoints.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic          uint32 = 0xB21D6E01
	Version        uint16 = 1
	FixedHeaderLen uint16 = 32
	FlagHasPath    uint32 = 0x01
	FlagRetry      uint32 = 0x02
)

var (
	ErrShortHeader       = errors.New("frame: short fixed header")
	ErrHeaderLenTooSmall = errors.New("frame: header_len smaller than fixed header")
	ErrHeaderLenMismatch = errors.New("frame: path flag set but header_len has no path bytes")
	ErrPayloadTooLarge   = errors.New("frame: payload too large")
	ErrPathTooLarge      = errors.New("frame: path too large")
	ErrInvalidMagic      = errors.New("frame: invalid magic")
	ErrUnsupported       = errors.New("frame: unsupported version")
)

// Header is the fixed wire header.
type Header struct {
	Magic       uint32
	Version     uint16
	HeaderLen   uint16
	Nonce       uint64
	SrcEndpoint uint16
	DstEndpoint uint16
	Flags       uint32
	PayloadLen  uint64
}

// Frame is one delivered packet. Path carries the source application address.
type Frame struct {
	Header  Header
	Path    []byte
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPathBytes    uint64
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPathBytes:    255,
		MaxPayloadBytes: 64 * 1024,
	}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Frame{}, ErrUnsupported
	}
	if h.HeaderLen < FixedHeaderLen {
		return Frame{}, ErrHeaderLenTooSmall
	}

	pathLen := uint64(h.HeaderLen - FixedHeaderLen)
	if h.Flags&FlagHasPath != 0 && pathLen == 0 {
		return Frame{}, ErrHeaderLenMismatch
	}
	if pathLen > limits.MaxPathBytes {
		return Frame{}, ErrPathTooLarge
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}

	path := make([]byte, pathLen)
	if pathLen > 0 {
		if _, err := io.ReadFull(r, path); err != nil {
			return Frame{}, err
		}
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}

	return Frame{Header: h, Path: path, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	pathLen := uint64(len(f.Path))
	payloadLen := uint64(len(f.Payload))
	if pathLen > limits.MaxPathBytes || pathLen > uint64(^uint16(0)-FixedHeaderLen) {
		return ErrPathTooLarge
	}
	if payloadLen > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}

	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.HeaderLen = FixedHeaderLen + uint16(pathLen)
	h.PayloadLen = payloadLen
	if pathLen > 0 {
		h.Flags |= FlagHasPath
	} else {
		h.Flags &^= FlagHasPath
	}

	hb := EncodeHeader(h)
	if _, err := w.Write(hb); err != nil {
		return err
	}
	if pathLen > 0 {
		if _, err := w.Write(f.Path); err != nil {
			return err
		}
	}
	if payloadLen > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint64(buf[8:16], h.Nonce)
	binary.BigEndian.PutUint16(buf[16:18], h.SrcEndpoint)
	binary.BigEndian.PutUint16(buf[18:20], h.DstEndpoint)
	binary.BigEndian.PutUint32(buf[20:24], h.Flags)
	binary.BigEndian.PutUint64(buf[24:32], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(FixedHeaderLen) {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:       binary.BigEndian.Uint32(b[0:4]),
		Version:     binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:   binary.BigEndian.Uint16(b[6:8]),
		Nonce:       binary.BigEndian.Uint64(b[8:16]),
		SrcEndpoint: binary.BigEndian.Uint16(b[16:18]),
		DstEndpoint: binary.BigEndian.Uint16(b[18:20]),
		Flags:       binary.BigEndian.Uint32(b[20:24]),
		PayloadLen:  binary.BigEndian.Uint64(b[24:32]),
	}, nil
}
