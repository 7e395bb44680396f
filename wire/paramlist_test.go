package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParameterListRoundTrip(t *testing.T) {
	topicParam, err := ParameterFromString(PIDTopicName, "rt/chat")
	require.NoError(t, err)
	typeParam, err := ParameterFromString(PIDTypeName, "std_msgs/String")
	require.NoError(t, err)
	params := []Parameter{
		topicParam,
		typeParam,
		{ID: PIDStatusInfo, Value: []byte{0, 0, 0, 1}},
	}

	b := NewWriteBuffer(256, false)
	require.NoError(t, WriteParameterList(b, params))

	r := NewReadBuffer(b.Bytes(), false)
	got, err := ReadParameterList(r)
	require.NoError(t, err)
	require.Equal(t, params, got)

	topic, err := ParameterAsString(got[0])
	require.NoError(t, err)
	require.Equal(t, "rt/chat", topic)
}

func TestParameterListOddLengthValuePadded(t *testing.T) {
	params := []Parameter{{ID: PIDKeyHash, Value: []byte{1, 2, 3}}}

	b := NewWriteBuffer(64, false)
	require.NoError(t, WriteParameterList(b, params))
	require.Zero(t, (b.Len()-4)%4) // pid+length header is 4 bytes; remainder is 4-aligned

	r := NewReadBuffer(b.Bytes(), false)
	got, err := ReadParameterList(r)
	require.NoError(t, err)
	require.Equal(t, params, got)
}

func TestParameterListEmpty(t *testing.T) {
	b := NewWriteBuffer(16, false)
	require.NoError(t, WriteParameterList(b, nil))

	r := NewReadBuffer(b.Bytes(), false)
	got, err := ReadParameterList(r)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParameterListSkipsUnknownPIDs(t *testing.T) {
	params := []Parameter{
		{ID: ParameterID(0x9999), Value: []byte{1, 2, 3, 4}},
		{ID: PIDTopicName, Value: []byte("rt/x")},
	}
	b := NewWriteBuffer(64, false)
	require.NoError(t, WriteParameterList(b, params))

	r := NewReadBuffer(b.Bytes(), false)
	got, err := ReadParameterList(r)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, ParameterID(0x9999), got[0].ID)
}
