package tensor

import (
	"fmt"

	"github.com/born-ml/thpp/internal/storage"
)

// Fill sets every element of the view to value.
func (t *Tensor[T]) Fill(value T) {
	if t.Size() == 0 {
		return
	}
	data := storage.Elements[T](t.storage)
	WalkOffsets(t.sizes, t.strides, t.offset, func(off int) {
		data[off] = value
	})
}

// Zero sets every element of the view to zero.
func (t *Tensor[T]) Zero() {
	var zero T
	t.Fill(zero)
}

// maskOffsets returns, in row-major order, the storage offsets of t whose
// mask element is non-zero.
func (t *Tensor[T]) maskOffsets(op string, mask *Tensor[uint8]) ([]int, error) {
	if !Shape(t.sizes).Equal(mask.sizes) {
		return nil, fmt.Errorf("%s: %w: mask %v for tensor %v", op, ErrShapeMismatch, []int(mask.sizes), []int(t.sizes))
	}
	if t.Size() == 0 {
		return nil, nil
	}
	offsets := make([]int, 0, t.Size())
	WalkOffsets(t.sizes, t.strides, t.offset, func(off int) {
		offsets = append(offsets, off)
	})
	selected := offsets[:0]
	for i, m := range mask.Values() {
		if m != 0 {
			selected = append(selected, offsets[i])
		}
	}
	return selected, nil
}

// MaskedFill sets the elements whose mask entry is non-zero to value. mask
// must have the same sizes as t.
func (t *Tensor[T]) MaskedFill(mask *Tensor[uint8], value T) error {
	offsets, err := t.maskOffsets("masked fill", mask)
	if err != nil {
		return err
	}
	if len(offsets) == 0 {
		return nil
	}
	data := storage.Elements[T](t.storage)
	for _, off := range offsets {
		data[off] = value
	}
	return nil
}

// MaskedCopy copies consecutive elements of src, in row-major order, into
// the positions whose mask entry is non-zero.
func (t *Tensor[T]) MaskedCopy(mask *Tensor[uint8], src *Tensor[T]) error {
	offsets, err := t.maskOffsets("masked copy", mask)
	if err != nil {
		return err
	}
	if len(offsets) > src.Size() {
		return fmt.Errorf("masked copy: %w: mask selects %d elements, source has %d",
			ErrShapeMismatch, len(offsets), src.Size())
	}
	if len(offsets) == 0 {
		return nil
	}
	values := src.Values()
	data := storage.Elements[T](t.storage)
	for i, off := range offsets {
		data[off] = values[i]
	}
	return nil
}

// MaskedSelect returns a new 1-dimensional tensor holding the elements
// whose mask entry is non-zero.
func (t *Tensor[T]) MaskedSelect(mask *Tensor[uint8]) (*Tensor[T], error) {
	offsets, err := t.maskOffsets("masked select", mask)
	if err != nil {
		return nil, err
	}
	out, err := New[T]([]int{len(offsets)}, nil)
	if err != nil {
		return nil, err
	}
	if len(offsets) > 0 {
		src := storage.Elements[T](t.storage)
		dst := out.Data()
		for i, off := range offsets {
			dst[i] = src[off]
		}
	}
	return out.WithBackend(t.backend), nil
}

func (t *Tensor[T]) checkIndex(op string, dim int, index *Tensor[int64]) ([]int64, error) {
	if err := t.checkDim(op, dim); err != nil {
		return nil, err
	}
	if index.Dims() != 1 {
		return nil, fmt.Errorf("%s: %w: index must be 1-dimensional, got %v", op, ErrShapeMismatch, []int(index.sizes))
	}
	idx := index.Values()
	for _, i := range idx {
		if i < 0 || i >= int64(t.sizes[dim]) {
			return nil, fmt.Errorf("%s: %w: index %d outside dimension %d of size %d", op, ErrIndex, i, dim, t.sizes[dim])
		}
	}
	return idx, nil
}

// IndexSelect returns a new tensor holding the slices of t along dim
// listed in index, in that order.
func (t *Tensor[T]) IndexSelect(dim int, index *Tensor[int64]) (*Tensor[T], error) {
	idx, err := t.checkIndex("index select", dim, index)
	if err != nil {
		return nil, err
	}
	sizes := Shape(t.sizes).Clone()
	sizes[dim] = len(idx)
	out, err := New[T](sizes, nil)
	if err != nil {
		return nil, err
	}
	out.backend = t.backend
	for k, i := range idx {
		src, _ := t.Select(dim, int(i))
		dst, _ := out.Select(dim, k)
		err := dst.CopyFrom(src)
		src.Release()
		dst.Release()
		if err != nil {
			out.Release()
			return nil, err
		}
	}
	return out, nil
}

// IndexFill sets the slices of t along dim listed in index to value.
func (t *Tensor[T]) IndexFill(dim int, index *Tensor[int64], value T) error {
	idx, err := t.checkIndex("index fill", dim, index)
	if err != nil {
		return err
	}
	for _, i := range idx {
		slice, _ := t.Select(dim, int(i))
		slice.Fill(value)
		slice.Release()
	}
	return nil
}
