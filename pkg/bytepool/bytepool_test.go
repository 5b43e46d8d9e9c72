package bytepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSize(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrBadSize)
}

func TestAllocAndFree(t *testing.T) {
	p, err := New(64)
	require.NoError(t, err)

	a := p.Alloc(10)
	require.Len(t, a, 10)
	assert.Equal(t, 12, cap(a))
	b := p.Alloc(52)
	require.NotNil(t, b)
	assert.Nil(t, p.Alloc(1), "arena should be exhausted")
	assert.Equal(t, uint64(1), p.Stats().Failures)

	require.NoError(t, p.Free(a))
	assert.ErrorIs(t, p.Free(a), ErrNotOwned)
	require.NoError(t, p.Free(b))

	st := p.Stats()
	assert.Equal(t, 0, st.InUse)
	assert.Equal(t, uint64(2), st.Allocs)
	assert.Equal(t, uint64(2), st.Frees)
	assert.Equal(t, 64, p.Largest(), "free extents should coalesce")
}

func TestFreeCoalescesOutOfOrder(t *testing.T) {
	p, err := New(48)
	require.NoError(t, err)
	blocks := [][]byte{p.Alloc(16), p.Alloc(16), p.Alloc(16)}
	for _, b := range blocks {
		require.NotNil(t, b)
	}
	require.NoError(t, p.Free(blocks[0]))
	require.NoError(t, p.Free(blocks[2]))
	assert.Equal(t, 16, p.Largest())
	require.NoError(t, p.Free(blocks[1]))
	assert.Equal(t, 48, p.Largest())
}

func TestCalloc(t *testing.T) {
	p, err := New(32)
	require.NoError(t, err)

	b := p.Alloc(16)
	for i := range b {
		b[i] = 0xff
	}
	require.NoError(t, p.Free(b))

	z := p.Calloc(4, 4)
	require.Len(t, z, 16)
	assert.Equal(t, make([]byte, 16), z)
	assert.Nil(t, p.Calloc(0, 4))
	assert.Nil(t, p.Alloc(0))
}

func TestFreeForeign(t *testing.T) {
	p, err := New(16)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Free(make([]byte, 4)), ErrNotOwned)
	assert.NoError(t, p.Free(nil))
}
