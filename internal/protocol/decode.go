package protocol

import "fmt"

// PeekType returns the packet discriminant without decoding the body.
func PeekType(packet []byte) (PacketType, error) {
	if len(packet) == 0 {
		return 0, ErrTruncatedPacket
	}
	return PacketType(packet[0]), nil
}

// DecodeSend decodes a SEND packet.
func DecodeSend(packet []byte) (SendPacket, error) {
	r := NewReader(packet)
	if err := expectType(r, PTSend); err != nil {
		return SendPacket{}, err
	}
	p := SendPacket{
		To:       r.Bytes8(),
		AmountSD: r.Uint64(),
	}
	if err := finish(r); err != nil {
		return SendPacket{}, err
	}
	return p, nil
}

// DecodeSendAndCall decodes a SEND_AND_CALL packet.
func DecodeSendAndCall(packet []byte) (SendAndCallPacket, error) {
	r := NewReader(packet)
	if err := expectType(r, PTSendAndCall); err != nil {
		return SendAndCallPacket{}, err
	}
	var p SendAndCallPacket
	p.To = r.Bytes8()
	p.AmountSD = r.Uint64()
	p.From = r.Bytes8()
	p.Payload = r.Bytes8()
	p.DstGasForCall = r.Uint64()
	if err := finish(r); err != nil {
		return SendAndCallPacket{}, err
	}
	return p, nil
}

func expectType(r *Reader, want PacketType) error {
	got := PacketType(r.Uint8())
	if err := r.Err(); err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: got %s want %s", ErrInvalidPacketKind, got, want)
	}
	return nil
}

func finish(r *Reader) error {
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w at offset %d", err, r.Offset())
	}
	if n := r.Remaining(); n != 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingBytes, n)
	}
	return nil
}
