package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/rtps/types"
)

func mustUDPAddr(t *testing.T, s string) *net.UDPAddr {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", s)
	require.NoError(t, err)
	return addr
}

func TestBufferPrimitivesRoundTrip(t *testing.T) {
	b := NewWriteBuffer(64, false)
	require.NoError(t, b.WriteUint8(0x7f))
	require.NoError(t, b.WriteUint16(0x1234))
	require.NoError(t, b.WriteUint32(0xdeadbeef))
	require.NoError(t, b.WriteInt32(-7))
	require.NoError(t, b.WriteUint64(0x0102030405060708))

	r := NewReadBuffer(b.Bytes(), false)
	v8, err := r.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(0x7f), v8)

	v16, err := r.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), v16)

	v32, err := r.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v32)

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(-7), i32)

	v64, err := r.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), v64)
}

func TestBufferEndiannessDiffers(t *testing.T) {
	le := NewWriteBuffer(4, true)
	require.NoError(t, le.WriteUint32(1))
	be := NewWriteBuffer(4, false)
	require.NoError(t, be.WriteUint32(1))
	require.NotEqual(t, le.Bytes(), be.Bytes())

	r := NewReadBuffer(le.Bytes(), true)
	v, err := r.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)
}

func TestBufferOverrun(t *testing.T) {
	b := NewWriteBuffer(2, false)
	require.NoError(t, b.WriteUint8(1))
	require.NoError(t, b.WriteUint8(2))
	require.ErrorIs(t, b.WriteUint8(3), ErrBufferOverrun)

	r := NewReadBuffer([]byte{1}, false)
	_, err := r.ReadUint16()
	require.ErrorIs(t, err, ErrBufferOverrun)
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "rt/publisher", "this is a longer topic name"} {
		b := NewWriteBuffer(128, false)
		require.NoError(t, b.WriteString(s))
		require.Zero(t, b.Len()%4)

		r := NewReadBuffer(b.Bytes(), false)
		got, err := r.ReadString()
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
}

func TestSequenceNumberRoundTrip(t *testing.T) {
	for _, sn := range []types.SequenceNumber{0, 1, 42, 1 << 40, -1} {
		b := NewWriteBuffer(8, false)
		require.NoError(t, b.WriteSequenceNumber(sn))
		r := NewReadBuffer(b.Bytes(), false)
		got, err := r.ReadSequenceNumber()
		require.NoError(t, err)
		require.Equal(t, sn, got)
	}
}

func TestSequenceNumberSetRoundTrip(t *testing.T) {
	base := types.SequenceNumber(5)
	bits := []bool{true, false, true, true, false, false, false, true, true}

	b := NewWriteBuffer(64, false)
	require.NoError(t, b.WriteSequenceNumberSet(base, bits))

	r := NewReadBuffer(b.Bytes(), false)
	gotBase, gotBits, err := r.ReadSequenceNumberSet()
	require.NoError(t, err)
	require.Equal(t, base, gotBase)
	require.Equal(t, bits, gotBits)
}

func TestGuidPrefixEntityIDLocatorRoundTrip(t *testing.T) {
	prefix := types.GuidPrefix{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	entity := types.EntityID{Key: [3]byte{0xAA, 0xBB, 0xCC}, Kind: 0x03}
	loc := types.LocatorFromUDPAddr(mustUDPAddr(t, "10.0.0.5:7400"))

	b := NewWriteBuffer(64, false)
	require.NoError(t, b.WriteGuidPrefix(prefix))
	require.NoError(t, b.WriteEntityID(entity))
	require.NoError(t, b.WriteLocator(loc))

	r := NewReadBuffer(b.Bytes(), false)
	gotPrefix, err := r.ReadGuidPrefix()
	require.NoError(t, err)
	require.Equal(t, prefix, gotPrefix)

	gotEntity, err := r.ReadEntityID()
	require.NoError(t, err)
	require.Equal(t, entity, gotEntity)

	gotLoc, err := r.ReadLocator()
	require.NoError(t, err)
	require.Equal(t, loc, gotLoc)
}
