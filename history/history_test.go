package history

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/rtps/change"
	"github.com/katzenpost/rtps/types"
)

func mkChange(writer byte, seq types.SequenceNumber, instance byte) *change.CacheChange {
	c := &change.CacheChange{
		Kind:           types.ChangeKindAlive,
		SequenceNumber: seq,
	}
	c.WriterGUID.Prefix[0] = writer
	c.InstanceHandle[0] = instance
	return c
}

func TestKeepLastEvictsOldest(t *testing.T) {
	h := New(Policy{Kind: types.HistoryKeepLast, Depth: 2})

	c1 := mkChange(1, 1, 0)
	c2 := mkChange(1, 2, 0)
	c3 := mkChange(1, 3, 0)

	_, err := h.Add(c1)
	require.NoError(t, err)
	_, err = h.Add(c2)
	require.NoError(t, err)

	evicted, err := h.Add(c3)
	require.NoError(t, err)
	require.Same(t, c1, evicted)
	require.Equal(t, 2, h.Len())

	_, ok := h.Get(c1.WriterGUID, c1.SequenceNumber)
	require.False(t, ok)
}

func TestKeepAllRespectsMaxSamples(t *testing.T) {
	h := New(Policy{Kind: types.HistoryKeepAll, Limits: ResourceLimits{MaxSamples: 1}})
	_, err := h.Add(mkChange(1, 1, 0))
	require.NoError(t, err)
	_, err = h.Add(mkChange(1, 2, 1))
	require.ErrorIs(t, err, ErrResourceLimit)
}

func TestDuplicateSequenceNumberRejected(t *testing.T) {
	h := New(Policy{Kind: types.HistoryKeepAll})
	c := mkChange(1, 1, 0)
	_, err := h.Add(c)
	require.NoError(t, err)
	_, err = h.Add(mkChange(1, 1, 0))
	require.ErrorIs(t, err, ErrDuplicateSequenceNumber)
}

func TestMinMaxTracksRemoval(t *testing.T) {
	h := New(Policy{Kind: types.HistoryKeepAll})
	c1 := mkChange(1, 1, 0)
	c2 := mkChange(1, 2, 1)
	c3 := mkChange(1, 3, 2)
	for _, c := range []*change.CacheChange{c1, c2, c3} {
		_, err := h.Add(c)
		require.NoError(t, err)
	}

	min, max, ok := h.MinMax()
	require.True(t, ok)
	require.Equal(t, types.SequenceNumber(1), min)
	require.Equal(t, types.SequenceNumber(3), max)

	h.Remove(c1)
	min, max, ok = h.MinMax()
	require.True(t, ok)
	require.Equal(t, types.SequenceNumber(2), min)
	require.Equal(t, types.SequenceNumber(3), max)

	h.Remove(c2)
	h.Remove(c3)
	_, _, ok = h.MinMax()
	require.False(t, ok)
}

func TestChangesOrderedBySequenceNumber(t *testing.T) {
	h := New(Policy{Kind: types.HistoryKeepAll})
	_, err := h.Add(mkChange(1, 3, 2))
	require.NoError(t, err)
	_, err = h.Add(mkChange(1, 1, 0))
	require.NoError(t, err)
	_, err = h.Add(mkChange(1, 2, 1))
	require.NoError(t, err)

	changes := h.Changes()
	require.Len(t, changes, 3)
	require.Equal(t, types.SequenceNumber(1), changes[0].SequenceNumber)
	require.Equal(t, types.SequenceNumber(2), changes[1].SequenceNumber)
	require.Equal(t, types.SequenceNumber(3), changes[2].SequenceNumber)
}
