// Package iobuf provides reference-counted byte segments that can be
// trimmed, shallow-cloned and chained without copying the bytes they view.
//
// A Buf views a window [off, off+n) of a shared block. Cloning a Buf
// shares the block and bumps its reference count; the block's release
// action runs when the last Buf viewing it is released. A block is
// "managed" when its lifetime is governed by that count (it was allocated
// here, or ownership was handed over with TakeOwnership). Blocks created
// by Wrap only borrow caller memory and are never managed.
package iobuf

import (
	"fmt"
	"sync/atomic"
)

type block struct {
	data    []byte
	refs    atomic.Int32
	managed bool
	free    func()
}

func newBlock(data []byte, managed bool, free func()) *block {
	blk := &block{data: data, managed: managed, free: free}
	blk.refs.Store(1)
	return blk
}

func (blk *block) retain() {
	blk.refs.Add(1)
}

func (blk *block) release() {
	refs := blk.refs.Add(-1)
	if refs < 0 {
		panic("iobuf: block released more times than retained")
	}
	if refs == 0 {
		if blk.free != nil {
			blk.free()
		}
		blk.data = nil
	}
}

// Buf is a window onto a shared, reference-counted block of bytes.
type Buf struct {
	blk *block
	off int
	n   int
}

// New allocates a managed buffer of size bytes.
func New(size int) *Buf {
	return &Buf{blk: newBlock(make([]byte, size), true, nil), n: size}
}

// CopyBuffer returns a managed buffer holding a copy of p.
func CopyBuffer(p []byte) *Buf {
	b := New(len(p))
	copy(b.Bytes(), p)
	return b
}

// Wrap views p without copying and without taking ownership of it.
// The caller must keep p valid for as long as the buffer (or any of its
// clones) is in use.
func Wrap(p []byte) *Buf {
	return &Buf{blk: newBlock(p, false, nil), n: len(p)}
}

// WrapWithRelease is Wrap with a hook: release runs once, when the last
// buffer sharing p is released. The block stays unmanaged; the hook only
// lets the caller drop whatever keeps p valid.
func WrapWithRelease(p []byte, release func()) *Buf {
	return &Buf{blk: newBlock(p, false, release), n: len(p)}
}

// TakeOwnership views p without copying; free runs once, when the last
// buffer sharing p is released.
func TakeOwnership(p []byte, free func()) *Buf {
	return &Buf{blk: newBlock(p, true, free), n: len(p)}
}

// Bytes returns the viewed bytes. The slice aliases the block.
func (b *Buf) Bytes() []byte {
	if b == nil || b.blk == nil {
		return nil
	}
	return b.blk.data[b.off : b.off+b.n : b.off+b.n]
}

// Len returns the number of viewed bytes.
func (b *Buf) Len() int {
	if b == nil {
		return 0
	}
	return b.n
}

// TrimStart drops n bytes from the front of the window.
func (b *Buf) TrimStart(n int) {
	if n < 0 || n > b.n {
		panic(fmt.Sprintf("iobuf: TrimStart(%d) on buffer of length %d", n, b.n))
	}
	b.off += n
	b.n -= n
}

// TrimEnd drops n bytes from the back of the window.
func (b *Buf) TrimEnd(n int) {
	if n < 0 || n > b.n {
		panic(fmt.Sprintf("iobuf: TrimEnd(%d) on buffer of length %d", n, b.n))
	}
	b.n -= n
}

// CloneOne returns a new buffer viewing the same bytes. The block stays
// alive until both buffers are released.
func (b *Buf) CloneOne() *Buf {
	b.blk.retain()
	return &Buf{blk: b.blk, off: b.off, n: b.n}
}

// PartialClone clones the window [offset, offset+length) of b.
func (b *Buf) PartialClone(offset, length int) *Buf {
	if offset < 0 || length < 0 || offset+length > b.n {
		panic(fmt.Sprintf("iobuf: clone [%d, %d) out of buffer of length %d", offset, offset+length, b.n))
	}
	c := b.CloneOne()
	c.TrimStart(offset)
	c.TrimEnd(c.n - length)
	return c
}

// IsManagedOne reports whether the block's lifetime is governed by its
// reference count rather than borrowed from the caller.
func (b *Buf) IsManagedOne() bool {
	return b.blk != nil && b.blk.managed
}

// RefCount returns the number of buffers sharing this buffer's block.
func (b *Buf) RefCount() int {
	if b.blk == nil {
		return 0
	}
	return int(b.blk.refs.Load())
}

// SharesWith reports whether b and other view the same block.
func (b *Buf) SharesWith(other *Buf) bool {
	return b != nil && other != nil && b.blk != nil && b.blk == other.blk
}

// Release drops this buffer's reference to its block. The buffer is empty
// afterwards; releasing it again is a no-op.
func (b *Buf) Release() {
	if b == nil || b.blk == nil {
		return
	}
	blk := b.blk
	b.blk = nil
	b.off, b.n = 0, 0
	blk.release()
}
