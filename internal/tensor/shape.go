package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
// A zero-dimensional shape describes one element.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that no dimension is negative.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("%w: dimension %d has size %d", ErrInvalidShape, i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// IsContiguous reports whether strides lay out sizes in row-major order
// with no gaps. Dimensions of size 1 are ignored, since their stride is
// never used to address an element.
func IsContiguous(sizes, strides []int) bool {
	expected := 1
	for i := len(sizes) - 1; i >= 0; i-- {
		if sizes[i] == 1 {
			continue
		}
		if strides[i] != expected {
			return false
		}
		expected *= sizes[i]
	}
	return true
}

// Extent returns the number of storage elements spanned by a view with
// the given sizes and strides: one past the largest reachable offset.
func Extent(sizes, strides []int) int {
	extent := 1
	for i, size := range sizes {
		if size == 0 {
			return 0
		}
		extent += (size - 1) * strides[i]
	}
	return extent
}

// WalkOffsets calls fn with the storage offset of every element of the
// view, in row-major order.
func WalkOffsets(sizes, strides []int, offset int, fn func(off int)) {
	if Shape(sizes).NumElements() == 0 {
		return
	}
	d := len(sizes)
	counter := make([]int, d)
	off := offset
	for {
		fn(off)
		i := d - 1
		for ; i >= 0; i-- {
			counter[i]++
			off += strides[i]
			if counter[i] < sizes[i] {
				break
			}
			off -= strides[i] * sizes[i]
			counter[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

func validateLayout(sizes, strides []int) error {
	if err := Shape(sizes).Validate(); err != nil {
		return err
	}
	if len(strides) != len(sizes) {
		return fmt.Errorf("%w: %d strides for %d dimensions", ErrShapeMismatch, len(strides), len(sizes))
	}
	for i, stride := range strides {
		if stride < 0 {
			return fmt.Errorf("%w: dimension %d has negative stride %d", ErrInvalidShape, i, stride)
		}
	}
	return nil
}
