package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitSubmessagesExplicitLength(t *testing.T) {
	b := NewWriteBuffer(32, false)
	require.NoError(t, WriteSubmessageHeader(b, SubmessageHeader{ID: SubmessageIDInfoTS, Flags: 0, Length: 4}))
	require.NoError(t, b.WriteUint32(0xcafebabe))
	require.NoError(t, WriteSubmessageHeader(b, SubmessageHeader{ID: SubmessageIDGap, Flags: 0, Length: 0}))
	require.NoError(t, b.WriteUint16(0x1111))

	subs, err := SplitSubmessages(b.Bytes(), false)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, SubmessageIDInfoTS, subs[0].Header.ID)
	require.Len(t, subs[0].Body, 4)
	require.Equal(t, SubmessageIDGap, subs[1].Header.ID)
	require.Len(t, subs[1].Body, 2) // length 0 means "rest of datagram"
}

func TestSplitSubmessagesTruncated(t *testing.T) {
	b := NewWriteBuffer(16, false)
	require.NoError(t, WriteSubmessageHeader(b, SubmessageHeader{ID: SubmessageIDData, Flags: 0, Length: 100}))
	require.NoError(t, b.WriteUint32(1))

	_, err := SplitSubmessages(b.Bytes(), false)
	require.ErrorIs(t, err, ErrTruncatedSubmessage)
}

func TestSubmessageHeaderEndiannessFlag(t *testing.T) {
	b := NewWriteBuffer(8, false)
	require.NoError(t, WriteSubmessageHeader(b, SubmessageHeader{ID: SubmessageIDHeartbeat, Flags: flagEndianness, Length: 0x0102}))

	r := NewReadBuffer(b.Bytes(), false)
	hdr, err := ReadSubmessageHeader(r)
	require.NoError(t, err)
	require.True(t, hdr.LittleEndian())
	require.Equal(t, uint16(0x0102), hdr.Length)
}
