package iobuf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimAndClone(t *testing.T) {
	b := CopyBuffer([]byte("0123456789"))
	b.TrimStart(2)
	b.TrimEnd(3)
	assert.Equal(t, []byte("23456"), b.Bytes())

	c := b.PartialClone(1, 3)
	assert.Equal(t, []byte("345"), c.Bytes())
	assert.True(t, c.SharesWith(b))
	assert.Equal(t, 2, b.RefCount())

	// Writes through one window are visible through the other.
	c.Bytes()[0] = 'x'
	assert.Equal(t, []byte("2x456"), b.Bytes())

	c.Release()
	assert.Equal(t, 1, b.RefCount())
	assert.Equal(t, 0, c.Len())
}

func TestTrimOutOfRangePanics(t *testing.T) {
	b := New(4)
	assert.Panics(t, func() { b.TrimStart(5) })
	assert.Panics(t, func() { b.TrimEnd(-1) })
	assert.Panics(t, func() { b.PartialClone(2, 3) })
}

func TestManagedness(t *testing.T) {
	assert.True(t, New(1).IsManagedOne())
	assert.True(t, CopyBuffer([]byte{1}).IsManagedOne())
	assert.False(t, Wrap([]byte{1}).IsManagedOne())
	assert.True(t, TakeOwnership([]byte{1}, nil).IsManagedOne())
}

func TestTakeOwnershipReleasesOnce(t *testing.T) {
	freed := 0
	b := TakeOwnership(make([]byte, 8), func() { freed++ })
	c := b.CloneOne()

	b.Release()
	assert.Equal(t, 0, freed, "block still referenced by clone")

	c.Release()
	assert.Equal(t, 1, freed)

	// Releasing an already released buffer is a no-op.
	c.Release()
	assert.Equal(t, 1, freed)
}

func TestQueueChunksPushedBytes(t *testing.T) {
	q := NewQueue(4)
	q.Push([]byte("abcdefghij"))
	q.Push([]byte("k"))

	chain := q.Move()
	require.Len(t, chain, 3)
	for _, b := range chain {
		assert.LessOrEqual(t, cap(b.blk.data), 4)
	}
	assert.Equal(t, 11, chain.Len())
	assert.Equal(t, []byte("abcdefghijk"), chain.Bytes())
	assert.Equal(t, 0, q.Len())
}

func TestQueueInsertKeepsIdentity(t *testing.T) {
	src := New(16)
	copy(src.Bytes(), "ABCDEFGHIJKLMNOP")

	q := NewQueue(8)
	q.Push([]byte("xy"))
	q.Insert(src.PartialClone(4, 8))
	q.Push([]byte("z"))

	chain := q.Move()
	require.Len(t, chain, 3)
	assert.True(t, chain[1].SharesWith(src))
	assert.Equal(t, []byte("xyEFGHIJKLz"), chain.Bytes())

	var out bytes.Buffer
	n, err := chain.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, "xyEFGHIJKLz", out.String())

	chain.Release()
	assert.Equal(t, 1, src.RefCount())
}

func TestLinearize(t *testing.T) {
	one := Chain{CopyBuffer([]byte("abc"))}
	lin := one.Linearize()
	assert.True(t, lin.SharesWith(one[0]), "single segment is cloned, not copied")

	two := Chain{CopyBuffer([]byte("ab")), CopyBuffer([]byte("cd"))}
	lin = two.Linearize()
	assert.False(t, lin.SharesWith(two[0]))
	assert.Equal(t, []byte("abcd"), lin.Bytes())

	assert.Equal(t, 0, Chain(nil).Linearize().Len())
}
