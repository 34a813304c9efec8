// Package storage provides the flat, reference-counted element buffers
// that back tensor views.
package storage

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/thpp/internal/iobuf"
)

// ErrAllocation is returned when storage memory cannot be obtained.
var ErrAllocation = errors.New("storage allocation failed")

// maxBytes caps a single storage allocation; 0 means no cap.
var maxBytes atomic.Int64

// SetMaxBytes caps the size of any single storage allocation. Requests
// above the cap fail with ErrAllocation. Zero removes the cap.
func SetMaxBytes(n int64) {
	maxBytes.Store(n)
}

// Storage is a flat buffer of elements of one fixed size. Its lifetime
// is governed by an atomic reference count starting at 1.
//
// Element bytes may be read and written concurrently through any number of
// aliasing views; Resize is not synchronized against such access.
type Storage struct {
	data     []byte
	elemSize int
	refs     atomic.Int32
	mu       sync.Mutex // guards release of data
	free     func()     // release action for the wrapped buffer, run at zero refs
	managed  bool       // false when data is borrowed caller memory
}

// New allocates storage for n elements of elemSize bytes each.
func New(n, elemSize int) (*Storage, error) {
	if elemSize <= 0 {
		panic(fmt.Sprintf("storage: invalid element size %d", elemSize))
	}
	data, err := allocate(n, elemSize, 0)
	if err != nil {
		return nil, err
	}
	s := &Storage{data: data, elemSize: elemSize, managed: true}
	s.refs.Store(1)
	return s, nil
}

// Wrap adopts buf without copying. release, if non-nil, runs once when the
// reference count reaches zero. Growth past buf moves the elements into a
// fresh allocation but keeps buf until then, since segments returned by
// IOBuf before the move still point into it. Without a release action buf
// is treated as borrowed caller memory.
func Wrap(buf []byte, elemSize int, release func()) *Storage {
	return wrap(buf, elemSize, release, release != nil)
}

// WrapBuf adopts the bytes of b, taking over the caller's reference to it.
// The storage is managed exactly when b is.
func WrapBuf(b *iobuf.Buf, elemSize int) *Storage {
	return wrap(b.Bytes(), elemSize, b.Release, b.IsManagedOne())
}

func wrap(buf []byte, elemSize int, release func(), managed bool) *Storage {
	if elemSize <= 0 {
		panic(fmt.Sprintf("storage: invalid element size %d", elemSize))
	}
	n := len(buf) / elemSize
	s := &Storage{data: buf[: n*elemSize : n*elemSize], elemSize: elemSize, free: release, managed: managed}
	s.refs.Store(1)
	return s
}

// allocate returns a zeroed buffer of n elements with at least minCap
// bytes of capacity. A runtime refusal to make the slice is reported as
// ErrAllocation instead of crashing the process.
func allocate(n, elemSize, minCap int) (data []byte, err error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative element count %d", ErrAllocation, n)
	}
	size := int64(n) * int64(elemSize)
	if n != 0 && size/int64(n) != int64(elemSize) {
		return nil, fmt.Errorf("%w: %d elements of %d bytes overflows", ErrAllocation, n, elemSize)
	}
	if limit := maxBytes.Load(); limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrAllocation, size, limit)
	}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); !ok {
				panic(r)
			}
			data, err = nil, fmt.Errorf("%w: %d bytes: %v", ErrAllocation, size, r)
		}
	}()
	return make([]byte, int(size), max(int(size), minCap)), nil
}

// Len returns the number of elements.
func (s *Storage) Len() int {
	return len(s.data) / s.elemSize
}

// ElemSize returns the size of one element in bytes.
func (s *Storage) ElemSize() int {
	return s.elemSize
}

// Bytes returns the raw element bytes. No bounds are enforced beyond the
// slice itself; tensor views are responsible for staying in range.
func (s *Storage) Bytes() []byte {
	return s.data
}

// Resize changes the element count. Shrinking never reallocates. Growing
// within the current capacity reslices; otherwise a new buffer is
// allocated and the first min(old, new) elements are carried over. A
// wrapped buffer's release action still waits for the last reference. On
// failure the storage is left untouched.
func (s *Storage) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: negative element count %d", ErrAllocation, n)
	}
	size := n * s.elemSize
	if size <= cap(s.data) && s.free == nil {
		s.data = s.data[:size]
		return nil
	}
	if size <= len(s.data) {
		s.data = s.data[:size]
		return nil
	}
	data, err := allocate(n, s.elemSize, 0)
	if err != nil {
		return err
	}
	copy(data, s.data)
	s.mu.Lock()
	s.data = data
	s.managed = true
	s.mu.Unlock()
	return nil
}

// Retain adds a reference.
func (s *Storage) Retain() {
	s.refs.Add(1)
}

// Release drops a reference. The buffer is dropped (and a wrapped buffer's
// release action run) when the count reaches zero.
func (s *Storage) Release() {
	refs := s.refs.Add(-1)
	if refs < 0 {
		panic("storage: released more times than retained")
	}
	if refs > 0 {
		return
	}
	s.mu.Lock()
	free := s.free
	s.free = nil
	s.data = nil
	s.mu.Unlock()
	if free != nil {
		free()
	}
}

// RefCount returns the current number of references.
func (s *Storage) RefCount() int {
	return int(s.refs.Load())
}

// IsUnique reports whether exactly one reference is held.
func (s *Storage) IsUnique() bool {
	return s.refs.Load() == 1
}

// IsManaged reports whether the storage owns its bytes, as opposed to
// viewing caller memory it was handed without a release action.
func (s *Storage) IsManaged() bool {
	return s.managed
}

// IOBuf returns a byte segment over the storage starting at offset bytes.
// The segment holds a storage reference until released, so clones of it
// keep the elements alive independently of any tensor. The segment is
// managed exactly when the storage is.
func (s *Storage) IOBuf(offset int) *iobuf.Buf {
	s.Retain()
	var buf *iobuf.Buf
	if s.managed {
		buf = iobuf.TakeOwnership(s.data, s.Release)
	} else {
		buf = iobuf.WrapWithRelease(s.data, s.Release)
	}
	buf.TrimStart(offset)
	return buf
}

// Elements reinterprets the storage bytes as a slice of T. T must have
// the storage's element size.
func Elements[T any](s *Storage) []T {
	var zero T
	if int(unsafe.Sizeof(zero)) != s.elemSize {
		panic(fmt.Sprintf("storage: element size %d does not match %T", s.elemSize, zero))
	}
	n := s.Len()
	if n == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounded by Len()
	return unsafe.Slice((*T)(unsafe.Pointer(&s.data[0])), n)
}

// Aligned reports whether buf can be reinterpreted as elements of
// elemSize bytes in place.
func Aligned(buf []byte, elemSize int) bool {
	if len(buf) == 0 || elemSize <= 1 {
		return true
	}
	//nolint:gosec // address inspection only
	return uintptr(unsafe.Pointer(&buf[0]))%uintptr(elemSize) == 0
}
