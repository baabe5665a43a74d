package protocol

import "fmt"

// PacketType is the leading discriminant byte of every packet.
type PacketType uint8

const (
	PTSend        PacketType = 0
	PTSendAndCall PacketType = 1
)

// MaxFieldLen is the largest variable field a single length byte can describe.
const MaxFieldLen = 255

func (t PacketType) String() string {
	switch t {
	case PTSend:
		return "send"
	case PTSendAndCall:
		return "send_and_call"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// SendPacket credits To with AmountSD on the destination endpoint.
type SendPacket struct {
	To       []byte
	AmountSD uint64
}

// SendAndCallPacket credits the destination dispatcher and then notifies To.
// From is the direct caller on the source endpoint.
type SendAndCallPacket struct {
	From          []byte
	To            []byte
	AmountSD      uint64
	Payload       []byte
	DstGasForCall uint64
}
