package wire

import "errors"

// SubmessageID identifies a submessage's kind, per spec.md §4.1.
type SubmessageID uint8

const (
	SubmessageIDPad        SubmessageID = 0x01
	SubmessageIDAckNack    SubmessageID = 0x06
	SubmessageIDHeartbeat  SubmessageID = 0x07
	SubmessageIDGap        SubmessageID = 0x08
	SubmessageIDInfoTS     SubmessageID = 0x09
	SubmessageIDInfoDst    SubmessageID = 0x0e
	SubmessageIDData       SubmessageID = 0x15
)

// flag bit 0 selects the submessage's own endianness, independent of the
// message header's.
const flagEndianness = 0x01

// ErrTruncatedSubmessage is returned when a submessage's declared length
// would run past the end of the containing datagram.
var ErrTruncatedSubmessage = errors.New("wire: truncated submessage")

// SubmessageHeader is the 4-byte envelope preceding every submessage's
// payload: id, flags, and a little-endian-per-submessage-flag length.
type SubmessageHeader struct {
	ID     SubmessageID
	Flags  uint8
	Length uint16 // 0 in the final submessage of a datagram means "to the end"
}

// LittleEndian reports the endianness flag.Flags declares for the
// submessage body that follows.
func (h SubmessageHeader) LittleEndian() bool { return h.Flags&flagEndianness != 0 }

// WriteSubmessageHeader appends a submessage envelope. The length field
// must already reflect the serialized body size (or 0 to mean "rest of
// datagram", only valid for the last submessage).
func WriteSubmessageHeader(b *Buffer, h SubmessageHeader) error {
	if err := b.WriteUint8(uint8(h.ID)); err != nil {
		return err
	}
	if err := b.WriteUint8(h.Flags); err != nil {
		return err
	}
	prevLE := b.LittleEndian()
	b.SetLittleEndian(h.LittleEndian())
	err := b.WriteUint16(h.Length)
	b.SetLittleEndian(prevLE)
	return err
}

// ReadSubmessageHeader parses a submessage envelope. The submessage
// header's own id/flags bytes are read in the containing message's
// endianness; the length field switches to the submessage's own
// endianness per flagEndianness, matching how RTPS lets INFO_TS/DATA
// submessages set their own byte order mid-datagram.
func ReadSubmessageHeader(b *Buffer) (SubmessageHeader, error) {
	var h SubmessageHeader
	id, err := b.ReadUint8()
	if err != nil {
		return h, err
	}
	h.ID = SubmessageID(id)
	if h.Flags, err = b.ReadUint8(); err != nil {
		return h, err
	}
	prevLE := b.LittleEndian()
	b.SetLittleEndian(h.LittleEndian())
	h.Length, err = b.ReadUint16()
	b.SetLittleEndian(prevLE)
	return h, err
}

// Submessage pairs a parsed envelope with its raw, still-encoded body
// bytes; callers re-wrap the body in a Buffer at the envelope's
// endianness to decode the specific command.
type Submessage struct {
	Header SubmessageHeader
	Body   []byte
}

// SplitSubmessages walks a datagram's body (the bytes following the fixed
// message Header) into its constituent submessage envelopes and raw
// bodies, applying the "length 0 in the last submessage means to the end
// of the datagram" rule of spec.md §4.1. A submessage with a malformed
// envelope or declared length running past the datagram aborts the walk
// and returns the submessages parsed so far alongside the error, per the
// receiver's "drop rest of datagram on parse error" semantics (§4.1,
// Edge cases).
func SplitSubmessages(data []byte, littleEndian bool) ([]Submessage, error) {
	b := NewReadBuffer(data, littleEndian)
	var out []Submessage
	for b.Remaining() > 0 {
		if b.Remaining() < 4 {
			return out, ErrTruncatedSubmessage
		}
		hdr, err := ReadSubmessageHeader(b)
		if err != nil {
			return out, err
		}
		length := int(hdr.Length)
		if length == 0 {
			length = b.Remaining()
		}
		if length > b.Remaining() {
			return out, ErrTruncatedSubmessage
		}
		body, err := b.ReadOctets(length)
		if err != nil {
			return out, err
		}
		out = append(out, Submessage{Header: hdr, Body: body})
	}
	return out, nil
}
