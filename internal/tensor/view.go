package tensor

import "fmt"

func (t *Tensor[T]) checkDim(op string, dim int) error {
	if dim < 0 || dim >= len(t.sizes) {
		return fmt.Errorf("%s: %w: dimension %d of %d-dimensional tensor", op, ErrIndex, dim, len(t.sizes))
	}
	return nil
}

// Narrow returns a view restricted to [start, start+length) along dim.
//
// Example:
//
//	t, _ := tensor.New[float32]([]int{2, 3}, nil)
//	n, _ := t.Narrow(0, 1, 1) // sizes [1 3], strides [3 1], offset 3
func (t *Tensor[T]) Narrow(dim, start, length int) (*Tensor[T], error) {
	if err := t.checkDim("narrow", dim); err != nil {
		return nil, err
	}
	if start < 0 || length < 0 || start+length > t.sizes[dim] {
		return nil, fmt.Errorf("narrow: %w: [%d, %d) outside dimension %d of size %d",
			ErrIndex, start, start+length, dim, t.sizes[dim])
	}
	sizes := Shape(t.sizes).Clone()
	sizes[dim] = length
	return t.view(sizes, append([]int(nil), t.strides...), t.offset+start*t.strides[dim]), nil
}

// Select returns the slice at index along dim; the result has one
// dimension fewer.
func (t *Tensor[T]) Select(dim, index int) (*Tensor[T], error) {
	if err := t.checkDim("select", dim); err != nil {
		return nil, err
	}
	if index < 0 || index >= t.sizes[dim] {
		return nil, fmt.Errorf("select: %w: index %d outside dimension %d of size %d",
			ErrIndex, index, dim, t.sizes[dim])
	}
	sizes, strides := removeDim(t.sizes, t.strides, dim)
	return t.view(sizes, strides, t.offset+index*t.strides[dim]), nil
}

// Transpose returns a view with dimensions dim1 and dim2 swapped.
func (t *Tensor[T]) Transpose(dim1, dim2 int) (*Tensor[T], error) {
	if err := t.checkDim("transpose", dim1); err != nil {
		return nil, err
	}
	if err := t.checkDim("transpose", dim2); err != nil {
		return nil, err
	}
	sizes := Shape(t.sizes).Clone()
	strides := append([]int(nil), t.strides...)
	sizes[dim1], sizes[dim2] = sizes[dim2], sizes[dim1]
	strides[dim1], strides[dim2] = strides[dim2], strides[dim1]
	return t.view(sizes, strides, t.offset), nil
}

// TransposeAll returns a view with the order of all dimensions reversed.
func (t *Tensor[T]) TransposeAll() *Tensor[T] {
	d := len(t.sizes)
	sizes := make([]int, d)
	strides := make([]int, d)
	for i := range d {
		sizes[i] = t.sizes[d-1-i]
		strides[i] = t.strides[d-1-i]
	}
	return t.view(sizes, strides, t.offset)
}

// Unfold returns a view of all slices of length size along dim, taken
// every step elements. Slices are indexed by dim and run along a new last
// dimension; consecutive slices overlap when step < size.
//
// Example:
//
//	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5}, []int{5})
//	w, _ := x.Unfold(0, 2, 1) // [[1 2] [2 3] [3 4] [4 5]]
func (t *Tensor[T]) Unfold(dim, size, step int) (*Tensor[T], error) {
	if err := t.checkDim("unfold", dim); err != nil {
		return nil, err
	}
	if size < 0 || size > t.sizes[dim] {
		return nil, fmt.Errorf("unfold: %w: slice size %d exceeds dimension %d of size %d",
			ErrIndex, size, dim, t.sizes[dim])
	}
	if step <= 0 {
		return nil, fmt.Errorf("unfold: %w: step must be positive, got %d", ErrIndex, step)
	}
	sizes := append(Shape(t.sizes).Clone(), size)
	strides := append(append([]int(nil), t.strides...), t.strides[dim])
	sizes[dim] = (t.sizes[dim]-size)/step + 1
	strides[dim] *= step
	return t.view(sizes, strides, t.offset), nil
}

// Squeeze returns a view with every dimension of size 1 removed.
func (t *Tensor[T]) Squeeze() *Tensor[T] {
	sizes := make([]int, 0, len(t.sizes))
	strides := make([]int, 0, len(t.sizes))
	for i, size := range t.sizes {
		if size != 1 {
			sizes = append(sizes, size)
			strides = append(strides, t.strides[i])
		}
	}
	return t.view(sizes, strides, t.offset)
}

// SqueezeDim returns a view with dimension dim removed if its size is 1,
// and an unchanged view otherwise.
func (t *Tensor[T]) SqueezeDim(dim int) (*Tensor[T], error) {
	if err := t.checkDim("squeeze", dim); err != nil {
		return nil, err
	}
	if t.sizes[dim] != 1 {
		return t.Retain(), nil
	}
	sizes, strides := removeDim(t.sizes, t.strides, dim)
	return t.view(sizes, strides, t.offset), nil
}

// Index selects index along the first dimension.
func (t *Tensor[T]) Index(index int) (*Tensor[T], error) {
	return t.Select(0, index)
}

// IndexN indexes the leading dimensions at once. An index of -1 keeps
// the corresponding dimension.
//
// Example: for a 5-dimensional tensor foo, foo.IndexN(-1, 2, -1, 2, 1)
// returns the 2-dimensional hyperplane with d1=2, d3=2, d4=1.
func (t *Tensor[T]) IndexN(indices ...int) (*Tensor[T], error) {
	if len(indices) > len(t.sizes) {
		return nil, fmt.Errorf("index: %w: %d indices for %d-dimensional tensor", ErrIndex, len(indices), len(t.sizes))
	}
	sizes := make([]int, 0, len(t.sizes))
	strides := make([]int, 0, len(t.sizes))
	offset := t.offset
	for i := range t.sizes {
		if i < len(indices) && indices[i] != -1 {
			idx := indices[i]
			if idx < 0 || idx >= t.sizes[i] {
				return nil, fmt.Errorf("index: %w: index %d outside dimension %d of size %d",
					ErrIndex, idx, i, t.sizes[i])
			}
			offset += idx * t.strides[i]
			continue
		}
		sizes = append(sizes, t.sizes[i])
		strides = append(strides, t.strides[i])
	}
	return t.view(sizes, strides, offset), nil
}

func removeDim(sizes, strides []int, dim int) ([]int, []int) {
	outSizes := make([]int, 0, len(sizes)-1)
	outStrides := make([]int, 0, len(sizes)-1)
	outSizes = append(append(outSizes, sizes[:dim]...), sizes[dim+1:]...)
	outStrides = append(append(outStrides, strides[:dim]...), strides[dim+1:]...)
	return outSizes, outStrides
}
