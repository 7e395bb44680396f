package change

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolReserveRelease(t *testing.T) {
	p := NewPool(MemoryPolicyPreallocated, 1, 2, 16)
	require.Equal(t, 0, p.Len())

	c1, err := p.Reserve(8)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())
	require.Len(t, c1.Payload.Data, 8)

	c2, err := p.Reserve(16)
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())

	_, err = p.Reserve(1)
	require.ErrorIs(t, err, ErrPoolExhausted)

	p.Release(c1)
	require.Equal(t, 1, p.Len())

	c3, err := p.Reserve(4)
	require.NoError(t, err)
	require.NotSame(t, c2, c3)
}

func TestPoolPreallocatedRejectsOversizePayload(t *testing.T) {
	p := NewPool(MemoryPolicyPreallocated, 1, 4, 8)
	_, err := p.Reserve(9)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestPoolDynamicGrowsUnbounded(t *testing.T) {
	p := NewPool(MemoryPolicyDynamic, 0, 0, 0)
	c, err := p.Reserve(4096)
	require.NoError(t, err)
	require.Len(t, c.Payload.Data, 4096)
}

func TestPoolReleaseReusesSlot(t *testing.T) {
	p := NewPool(MemoryPolicyPreallocated, 1, 1, 32)
	c1, err := p.Reserve(8)
	require.NoError(t, err)
	p.Release(c1)

	c2, err := p.Reserve(8)
	require.NoError(t, err)
	require.Same(t, c1, c2)
}
