// Package wire implements the node's framing: a fixed 10-byte header
// followed by a payload, little-endian throughout.
package wire

import (
	"encoding/binary"

	"github.com/bermi/rheia/internal/chainerr"
)

// Op is the packet's request/response/command discriminator.
type Op uint8

const (
	OpRequest  Op = 0
	OpResponse Op = 1
	OpCommand  Op = 2
)

// Tag names the packet's payload kind.
type Tag uint8

const (
	TagPing            Tag = 0
	TagPushTransaction Tag = 1
)

// HeaderSize is the fixed length of a Packet header: len:u32, nonce:u32,
// op:u8, tag:u8.
const HeaderSize = 4 + 4 + 1 + 1

// MaxPayload is the largest payload a packet may carry.
const MaxPayload = 65536

// Packet is one framed message: a header plus its payload bytes.
type Packet struct {
	Nonce   uint32
	Op      Op
	Tag     Tag
	Payload []byte
}

// Encode returns p's canonical wire form: len(payload):u32 || nonce:u32
// || op:u8 || tag:u8 || payload.
func Encode(p Packet) []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(p.Payload)))
	binary.LittleEndian.PutUint32(buf[4:8], p.Nonce)
	buf[8] = byte(p.Op)
	buf[9] = byte(p.Tag)
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// DecodeHeader parses a packet header from the front of b, returning the
// payload length it announces. Callers use this to know how many more
// bytes to read before calling Decode.
func DecodeHeader(b []byte) (payloadLen uint32, err error) {
	if len(b) < HeaderSize {
		return 0, chainerr.ErrMessageSizeTooSmall
	}
	payloadLen = binary.LittleEndian.Uint32(b[0:4])
	if payloadLen > MaxPayload {
		return 0, chainerr.ErrMessageSizeTooLarge
	}
	return payloadLen, nil
}

// Decode parses one complete packet (header plus payload) from b. b must
// contain at least HeaderSize+payloadLen bytes as announced by the
// header; callers read the header first via DecodeHeader to know how
// much more to buffer.
func Decode(b []byte) (Packet, int, error) {
	payloadLen, err := DecodeHeader(b)
	if err != nil {
		return Packet{}, 0, err
	}
	total := HeaderSize + int(payloadLen)
	if len(b) < total {
		return Packet{}, 0, chainerr.ErrEndOfStream
	}

	p := Packet{
		Nonce: binary.LittleEndian.Uint32(b[4:8]),
		Op:    Op(b[8]),
		Tag:   Tag(b[9]),
	}
	p.Payload = append([]byte(nil), b[HeaderSize:total]...)

	if err := validate(p); err != nil {
		return Packet{}, 0, err
	}
	return p, total, nil
}

// validate rejects op/tag combinations the protocol does not define.
func validate(p Packet) error {
	switch p.Tag {
	case TagPing:
		if p.Op != OpRequest && p.Op != OpResponse {
			return chainerr.ErrUnexpectedPacket
		}
	case TagPushTransaction:
		if p.Op != OpCommand {
			return chainerr.ErrUnexpectedPacket
		}
	default:
		return chainerr.ErrUnexpectedTag
	}
	return nil
}
