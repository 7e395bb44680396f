// Package wire implements bit-exact serialization and parsing of the RTPS
// 2.1 framing: the fixed message header, the submessage envelope, CDR
// primitives, and parameter lists. Grounded on original_source's
// CDRMessage_t.h (a mutable buffer with position/length/max and
// endianness); the higher-level submessage builders/parsers follow the
// teacher's commands.Command dispatch shape from client2/connection.go.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/katzenpost/rtps/types"
)

// ErrBufferOverrun is returned by any read that would run past the
// buffer's declared length, or by any write that would exceed its max.
var ErrBufferOverrun = errors.New("wire: buffer overrun")

// Buffer is a mutable byte buffer with a read/write cursor, a declared
// length, a maximum capacity, and an endianness that governs how
// multi-byte integers are packed/unpacked. It is the basis of every
// serialization step in this package.
type Buffer struct {
	data          []byte
	pos           int
	max           int
	littleEndian  bool
}

// NewWriteBuffer allocates a Buffer for building a message, growing up to
// maxSize bytes.
func NewWriteBuffer(maxSize int, littleEndian bool) *Buffer {
	return &Buffer{data: make([]byte, 0, maxSize), max: maxSize, littleEndian: littleEndian}
}

// NewReadBuffer wraps an already-received byte slice for parsing. Reads
// past len(data) fail with ErrBufferOverrun.
func NewReadBuffer(data []byte, littleEndian bool) *Buffer {
	return &Buffer{data: data, max: len(data), littleEndian: littleEndian}
}

// SetLittleEndian switches the endianness used by subsequent integer
// reads/writes, e.g. when a submessage's endianness flag differs from the
// message header's.
func (b *Buffer) SetLittleEndian(v bool) { b.littleEndian = v }

// LittleEndian reports the buffer's current endianness.
func (b *Buffer) LittleEndian() bool { return b.littleEndian }

// Pos returns the current cursor position.
func (b *Buffer) Pos() int { return b.pos }

// SetPos repositions the cursor, e.g. to backpatch a length field.
func (b *Buffer) SetPos(p int) { b.pos = p }

// Len returns the number of bytes written/available so far.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes returns the underlying byte slice.
func (b *Buffer) Bytes() []byte { return b.data }

// Remaining reports how many bytes remain to be read.
func (b *Buffer) Remaining() int { return len(b.data) - b.pos }

func (b *Buffer) order() binary.ByteOrder {
	if b.littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (b *Buffer) ensure(n int) {
	if b.pos+n > len(b.data) {
		grown := make([]byte, b.pos+n)
		copy(grown, b.data)
		b.data = grown
	}
}

// WriteUint8 appends one byte.
func (b *Buffer) WriteUint8(v uint8) error {
	if b.max > 0 && b.pos+1 > b.max {
		return ErrBufferOverrun
	}
	b.ensure(1)
	b.data[b.pos] = v
	b.pos++
	return nil
}

// ReadUint8 reads one byte.
func (b *Buffer) ReadUint8() (uint8, error) {
	if b.pos+1 > len(b.data) {
		return 0, ErrBufferOverrun
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

// WriteUint16 appends a 2-byte integer in the buffer's endianness.
func (b *Buffer) WriteUint16(v uint16) error {
	if b.max > 0 && b.pos+2 > b.max {
		return ErrBufferOverrun
	}
	b.ensure(2)
	b.order().PutUint16(b.data[b.pos:], v)
	b.pos += 2
	return nil
}

// ReadUint16 reads a 2-byte integer in the buffer's endianness.
func (b *Buffer) ReadUint16() (uint16, error) {
	if b.pos+2 > len(b.data) {
		return 0, ErrBufferOverrun
	}
	v := b.order().Uint16(b.data[b.pos:])
	b.pos += 2
	return v, nil
}

// WriteUint32 appends a 4-byte integer in the buffer's endianness.
func (b *Buffer) WriteUint32(v uint32) error {
	if b.max > 0 && b.pos+4 > b.max {
		return ErrBufferOverrun
	}
	b.ensure(4)
	b.order().PutUint32(b.data[b.pos:], v)
	b.pos += 4
	return nil
}

// ReadUint32 reads a 4-byte integer in the buffer's endianness.
func (b *Buffer) ReadUint32() (uint32, error) {
	if b.pos+4 > len(b.data) {
		return 0, ErrBufferOverrun
	}
	v := b.order().Uint32(b.data[b.pos:])
	b.pos += 4
	return v, nil
}

// WriteInt32 appends a signed 4-byte integer.
func (b *Buffer) WriteInt32(v int32) error { return b.WriteUint32(uint32(v)) }

// ReadInt32 reads a signed 4-byte integer.
func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

// WriteUint64 appends an 8-byte integer in the buffer's endianness.
func (b *Buffer) WriteUint64(v uint64) error {
	if b.max > 0 && b.pos+8 > b.max {
		return ErrBufferOverrun
	}
	b.ensure(8)
	b.order().PutUint64(b.data[b.pos:], v)
	b.pos += 8
	return nil
}

// ReadUint64 reads an 8-byte integer in the buffer's endianness.
func (b *Buffer) ReadUint64() (uint64, error) {
	if b.pos+8 > len(b.data) {
		return 0, ErrBufferOverrun
	}
	v := b.order().Uint64(b.data[b.pos:])
	b.pos += 8
	return v, nil
}

// WriteOctets appends a raw byte slice verbatim, no length prefix.
func (b *Buffer) WriteOctets(v []byte) error {
	if b.max > 0 && b.pos+len(v) > b.max {
		return ErrBufferOverrun
	}
	b.ensure(len(v))
	copy(b.data[b.pos:], v)
	b.pos += len(v)
	return nil
}

// ReadOctets reads n raw bytes verbatim.
func (b *Buffer) ReadOctets(n int) ([]byte, error) {
	if b.pos+n > len(b.data) {
		return nil, ErrBufferOverrun
	}
	v := append([]byte{}, b.data[b.pos:b.pos+n]...)
	b.pos += n
	return v, nil
}

// align pads the cursor up to the next multiple of n bytes (CDR requires
// 4-byte alignment for strings and sequences).
func (b *Buffer) align(n int) error {
	pad := (n - (b.pos % n)) % n
	for i := 0; i < pad; i++ {
		if err := b.WriteUint8(0); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) skipAlign(n int) error {
	pad := (n - (b.pos % n)) % n
	if pad == 0 {
		return nil
	}
	_, err := b.ReadOctets(pad)
	return err
}

// WriteString appends a CDR string: a 4-byte length (including the null
// terminator) followed by the UTF-8 bytes and terminator, padded to a
// 4-byte boundary.
func (b *Buffer) WriteString(s string) error {
	if err := b.align(4); err != nil {
		return err
	}
	raw := []byte(s)
	if err := b.WriteUint32(uint32(len(raw) + 1)); err != nil {
		return err
	}
	if err := b.WriteOctets(raw); err != nil {
		return err
	}
	if err := b.WriteUint8(0); err != nil {
		return err
	}
	return b.align(4)
}

// ReadString reads a CDR string written by WriteString.
func (b *Buffer) ReadString() (string, error) {
	if err := b.skipAlign(4); err != nil {
		return "", err
	}
	n, err := b.ReadUint32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	raw, err := b.ReadOctets(int(n))
	if err != nil {
		return "", err
	}
	if err := b.skipAlign(4); err != nil {
		return "", err
	}
	// Strip the null terminator CDR includes in the length.
	if len(raw) > 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
	}
	return string(raw), nil
}

// WriteSequenceNumber appends a SequenceNumber as (high int32, low uint32).
func (b *Buffer) WriteSequenceNumber(s types.SequenceNumber) error {
	if err := b.WriteInt32(s.High()); err != nil {
		return err
	}
	return b.WriteUint32(s.Low())
}

// ReadSequenceNumber reads a SequenceNumber written by WriteSequenceNumber.
func (b *Buffer) ReadSequenceNumber() (types.SequenceNumber, error) {
	high, err := b.ReadInt32()
	if err != nil {
		return 0, err
	}
	low, err := b.ReadUint32()
	if err != nil {
		return 0, err
	}
	return types.SequenceNumberFromParts(high, low), nil
}
