package iobuf

import "io"

// DefaultBlockSize is used by NewQueue when no block size is given.
const DefaultBlockSize = 4 << 10

// Chain is an ordered sequence of buffers read as one logical byte string.
type Chain []*Buf

// Len returns the total number of bytes in the chain.
func (c Chain) Len() int {
	n := 0
	for _, b := range c {
		n += b.Len()
	}
	return n
}

// Linearize returns a single buffer with the chain's bytes. A one-segment
// chain is cloned rather than copied.
func (c Chain) Linearize() *Buf {
	switch len(c) {
	case 0:
		return New(0)
	case 1:
		return c[0].CloneOne()
	}
	out := New(c.Len())
	dst := out.Bytes()
	for _, b := range c {
		dst = dst[copy(dst, b.Bytes()):]
	}
	return out
}

// Bytes returns the chain's bytes, copying only when it has more than one
// segment.
func (c Chain) Bytes() []byte {
	switch len(c) {
	case 0:
		return nil
	case 1:
		return c[0].Bytes()
	}
	out := make([]byte, 0, c.Len())
	for _, b := range c {
		out = append(out, b.Bytes()...)
	}
	return out
}

// WriteTo writes every segment to w in order.
func (c Chain) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, b := range c {
		n, err := w.Write(b.Bytes())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Release releases every segment.
func (c Chain) Release() {
	for _, b := range c {
		b.Release()
	}
}

// Queue accumulates a Chain. Bytes pushed are copied into queue-owned
// blocks of at most blockSize bytes; inserted buffers are appended as-is.
type Queue struct {
	chain     Chain
	tail      *Buf // writable block owned by the queue, also last in chain
	blockSize int
}

// NewQueue returns a queue whose copy blocks hold at most blockSize bytes.
func NewQueue(blockSize int) *Queue {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Queue{blockSize: blockSize}
}

// Push copies p to the end of the queue.
func (q *Queue) Push(p []byte) {
	for len(p) > 0 {
		if q.tail == nil || q.tail.off+q.tail.n == len(q.tail.blk.data) {
			q.tail = &Buf{blk: newBlock(make([]byte, q.blockSize), true, nil)}
			q.chain = append(q.chain, q.tail)
		}
		end := q.tail.off + q.tail.n
		k := copy(q.tail.blk.data[end:], p)
		q.tail.n += k
		p = p[k:]
	}
}

// Insert appends b to the queue, taking over the caller's reference.
func (q *Queue) Insert(b *Buf) {
	q.chain = append(q.chain, b)
	q.tail = nil
}

// Len returns the number of bytes queued.
func (q *Queue) Len() int {
	return q.chain.Len()
}

// Move returns the queued chain and empties the queue.
func (q *Queue) Move() Chain {
	c := q.chain
	q.chain = nil
	q.tail = nil
	return c
}
