package protocol

import "fmt"

// EncodeSend builds a SEND packet:
// [type][len(to)][to][amountSD u64].
func EncodeSend(p SendPacket) ([]byte, error) {
	if err := checkFieldLen("to", p.To); err != nil {
		return nil, err
	}
	w := NewWriter(1 + 1 + len(p.To) + 8)
	w.Uint8(uint8(PTSend))
	w.Bytes8(p.To)
	w.Uint64(p.AmountSD)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// EncodeSendAndCall builds a SEND_AND_CALL packet:
// [type][len(to)][to][amountSD u64][len(from)][from][len(payload)][payload][dstGas u64].
func EncodeSendAndCall(p SendAndCallPacket) ([]byte, error) {
	if err := checkFieldLen("to", p.To); err != nil {
		return nil, err
	}
	if err := checkFieldLen("from", p.From); err != nil {
		return nil, err
	}
	if err := checkFieldLen("payload", p.Payload); err != nil {
		return nil, err
	}
	w := NewWriter(1 + 1 + len(p.To) + 8 + 1 + len(p.From) + 1 + len(p.Payload) + 8)
	w.Uint8(uint8(PTSendAndCall))
	w.Bytes8(p.To)
	w.Uint64(p.AmountSD)
	w.Bytes8(p.From)
	w.Bytes8(p.Payload)
	w.Uint64(p.DstGasForCall)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func checkFieldLen(name string, b []byte) error {
	if len(b) > MaxFieldLen {
		return fmt.Errorf("%w: %s is %d bytes", ErrFieldTooLong, name, len(b))
	}
	return nil
}
