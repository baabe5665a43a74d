package protocol

import "errors"

var (
	ErrInvalidPacketKind    = errors.New("protocol: invalid packet kind")
	ErrTruncatedPacket      = errors.New("protocol: truncated packet")
	ErrTrailingBytes        = errors.New("protocol: trailing bytes after packet")
	ErrFieldTooLong         = errors.New("protocol: field exceeds 255 bytes")
	ErrInvalidAdapterParams = errors.New("protocol: invalid adapter params")
)
