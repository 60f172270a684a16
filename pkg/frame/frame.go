package frame

import "fmt"

type Type uint8

const (
	TypeData Type = iota
	TypeAck
	TypePing
	TypePong
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeAck:
		return "ACK"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

func (t Type) valid() bool {
	return t <= TypePong
}

type Flags uint8

const (
	// FlagEOP marks the last fragment of an upper-layer packet.
	FlagEOP Flags = 1 << iota
)

type Address uint8

const Broadcast Address = 0xff

// Type (4 bit) | Flags (4 bit) | Source (8 bit) | Destination (8 bit) | Seq (8 bit) | Length (8 bit)
type Header struct {
	Type   Type
	Flags  Flags
	Src    Address
	Dst    Address
	Seq    uint8
	Length uint8
}

const HeaderSize = 5

func (h Header) ToBytes() []byte {
	return []byte{
		byte(h.Type)<<4 | byte(h.Flags)&0x0f,
		byte(h.Src),
		byte(h.Dst),
		h.Seq,
		h.Length,
	}
}

func (h *Header) FromBytes(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: header needs %d bytes, got %d", ErrMalformed, HeaderSize, len(data))
	}
	h.Type = Type(data[0] >> 4)
	h.Flags = Flags(data[0] & 0x0f)
	h.Src = Address(data[1])
	h.Dst = Address(data[2])
	h.Seq = data[3]
	h.Length = data[4]
	if !h.Type.valid() {
		return fmt.Errorf("%w: unknown frame type %d", ErrMalformed, h.Type)
	}
	return nil
}

type Frame struct {
	Header
	Payload []byte
}

func (f Frame) IsLast() bool {
	return f.Flags&FlagEOP != 0
}

func (f Frame) String() string {
	return fmt.Sprintf("%s seq=%d %02x->%02x len=%d", f.Type, f.Seq, f.Src, f.Dst, len(f.Payload))
}
