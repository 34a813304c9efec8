package tensor

import (
	"fmt"

	"github.com/born-ml/thpp/internal/storage"
)

// Mode is a set of layout properties a tensor can be forced into.
type Mode uint

// Tensor modes.
const (
	// ModeUnique: the tensor does not share storage with any other tensor.
	ModeUnique Mode = 1 << 0
	// ModeContiguous: the tensor is laid out in row-major order.
	ModeContiguous Mode = 1 << 1
)

// Tensor is a strided view over reference-counted storage.
//
// A tensor is in one of three states: empty (no storage, zero
// dimensions), a view aliasing storage that other tensors may share, or
// the contiguous sole owner of its storage. Views derived from a tensor
// share its storage and never copy element data.
//
// Example:
//
//	t, _ := tensor.New[float32]([]int{2, 3}, nil)
//	row, _ := t.Select(0, 1)   // shares t's storage
//	row.Set(7, 2)              // visible through t.At(1, 2)
type Tensor[T Element] struct {
	storage *storage.Storage
	sizes   []int
	strides []int
	offset  int
	backend Backend
}

// Empty returns a tensor with no dimensions and no storage.
func Empty[T Element]() *Tensor[T] {
	return &Tensor[T]{}
}

// New creates a tensor with fresh storage. If strides is nil, row-major
// strides are computed from sizes. Storage is sized to cover every
// element reachable through the strides.
func New[T Element](sizes, strides []int) (*Tensor[T], error) {
	sizes = Shape(sizes).Clone()
	if strides == nil {
		strides = Shape(sizes).ComputeStrides()
	} else {
		strides = append([]int(nil), strides...)
	}
	if err := validateLayout(sizes, strides); err != nil {
		return nil, err
	}

	s, err := storage.New(Extent(sizes, strides), elemSize[T]())
	if err != nil {
		return nil, err
	}
	return &Tensor[T]{storage: s, sizes: sizes, strides: strides}, nil
}

// FromSlice creates a contiguous tensor holding a copy of data.
func FromSlice[T Element](data []T, sizes []int) (*Tensor[T], error) {
	if n := Shape(sizes).NumElements(); n != len(data) {
		return nil, fmt.Errorf("%w: shape %v requires %d elements, but got %d", ErrShapeMismatch, sizes, n, len(data))
	}
	t, err := New[T](sizes, nil)
	if err != nil {
		return nil, err
	}
	copy(t.Data(), data)
	return t, nil
}

// NewWithStorage creates a view over existing storage, taking a new
// reference to it. If strides is nil, row-major strides are used.
func NewWithStorage[T Element](s *storage.Storage, offset int, sizes, strides []int) (*Tensor[T], error) {
	if want := elemSize[T](); s.ElemSize() != want {
		return nil, fmt.Errorf("%w: storage element size %d, want %d", ErrShapeMismatch, s.ElemSize(), want)
	}
	sizes = Shape(sizes).Clone()
	if strides == nil {
		strides = Shape(sizes).ComputeStrides()
	} else {
		strides = append([]int(nil), strides...)
	}
	if err := validateLayout(sizes, strides); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative storage offset %d", ErrIndex, offset)
	}
	if extent := Extent(sizes, strides); extent > 0 && offset+extent > s.Len() {
		return nil, fmt.Errorf("%w: view needs %d elements at offset %d, storage has %d",
			ErrIndex, extent, offset, s.Len())
	}
	s.Retain()
	return &Tensor[T]{storage: s, sizes: sizes, strides: strides, offset: offset}, nil
}

// WithBackend attaches the compute backend used by the math methods. Views
// derived from t inherit it.
func (t *Tensor[T]) WithBackend(b Backend) *Tensor[T] {
	t.backend = b
	return t
}

// Backend returns the attached compute backend, if any.
func (t *Tensor[T]) Backend() Backend {
	return t.backend
}

// DType returns the tensor's data type.
func (t *Tensor[T]) DType() DataType {
	return DataTypeOf[T]()
}

// Dims returns the number of dimensions.
func (t *Tensor[T]) Dims() int {
	return len(t.sizes)
}

// Sizes returns the size of every dimension. The slice must not be modified.
func (t *Tensor[T]) Sizes() Shape {
	return t.sizes
}

// Strides returns the stride of every dimension, in elements. The slice
// must not be modified.
func (t *Tensor[T]) Strides() []int {
	return t.strides
}

// SizeAt returns the size of dimension dim.
func (t *Tensor[T]) SizeAt(dim int) int {
	return t.sizes[dim]
}

// StrideAt returns the stride of dimension dim.
func (t *Tensor[T]) StrideAt(dim int) int {
	return t.strides[dim]
}

// StorageOffset returns the element offset of the view into its storage.
func (t *Tensor[T]) StorageOffset() int {
	return t.offset
}

// Storage returns the backing storage, nil for an empty tensor.
func (t *Tensor[T]) Storage() *storage.Storage {
	return t.storage
}

// Size returns the number of elements: 0 for an empty tensor, 1 for a
// zero-dimensional one.
func (t *Tensor[T]) Size() int {
	if t.storage == nil {
		return 0
	}
	return Shape(t.sizes).NumElements()
}

// IsEmpty reports whether the tensor has no storage.
func (t *Tensor[T]) IsEmpty() bool {
	return t.storage == nil
}

// IsScalar reports whether the tensor holds exactly one element.
func (t *Tensor[T]) IsScalar() bool {
	return t.Size() == 1
}

// IsContiguous reports whether the view is laid out in row-major order.
func (t *Tensor[T]) IsContiguous() bool {
	return IsContiguous(t.sizes, t.strides)
}

// IsUnique reports whether no other tensor shares this tensor's storage.
func (t *Tensor[T]) IsUnique() bool {
	return t.storage == nil || t.storage.IsUnique()
}

// Mode returns the layout properties the tensor currently has.
func (t *Tensor[T]) Mode() Mode {
	var m Mode
	if t.IsUnique() {
		m |= ModeUnique
	}
	if t.IsContiguous() {
		m |= ModeContiguous
	}
	return m
}

// Data returns the storage elements starting at the view's offset. For a
// non-contiguous view, elements must be addressed through the strides.
//
// WARNING: The slice aliases storage shared with every other view.
func (t *Tensor[T]) Data() []T {
	if t.storage == nil {
		return nil
	}
	data := storage.Elements[T](t.storage)
	if t.offset >= len(data) {
		return nil
	}
	return data[t.offset:]
}

// Front returns the first element of the view.
func (t *Tensor[T]) Front() T {
	return t.Data()[0]
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor[T]) At(indices ...int) T {
	return storage.Elements[T](t.storage)[t.offsetOf(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor[T]) Set(value T, indices ...int) {
	storage.Elements[T](t.storage)[t.offsetOf(indices)] = value
}

func (t *Tensor[T]) offsetOf(indices []int) int {
	if len(indices) != len(t.sizes) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.sizes), len(indices)))
	}
	off := t.offset
	for i, idx := range indices {
		if idx < 0 || idx >= t.sizes[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.sizes[i]))
		}
		off += idx * t.strides[i]
	}
	return off
}

// Values returns a copy of the elements in row-major order.
func (t *Tensor[T]) Values() []T {
	out := make([]T, 0, t.Size())
	if t.storage == nil {
		return out
	}
	data := storage.Elements[T](t.storage)
	WalkOffsets(t.sizes, t.strides, t.offset, func(off int) {
		out = append(out, data[off])
	})
	return out
}

// Retain returns another handle to the same view. Both handles must be
// released independently.
func (t *Tensor[T]) Retain() *Tensor[T] {
	return t.view(Shape(t.sizes).Clone(), append([]int(nil), t.strides...), t.offset)
}

// Release drops the tensor's storage reference and leaves it empty.
func (t *Tensor[T]) Release() {
	t.Clear()
}

// Clear resets the tensor to the empty state.
func (t *Tensor[T]) Clear() {
	if t.storage != nil {
		t.storage.Release()
	}
	t.storage = nil
	t.sizes = nil
	t.strides = nil
	t.offset = 0
}

// String returns a short description of the tensor.
func (t *Tensor[T]) String() string {
	return fmt.Sprintf("Tensor[%s]%v", t.DType(), []int(t.sizes))
}

// view returns a header sharing t's storage.
func (t *Tensor[T]) view(sizes, strides []int, offset int) *Tensor[T] {
	if t.storage != nil {
		t.storage.Retain()
	}
	return &Tensor[T]{
		storage: t.storage,
		sizes:   sizes,
		strides: strides,
		offset:  offset,
		backend: t.backend,
	}
}

func elemSize[T Element]() int {
	return DataTypeOf[T]().Size()
}
