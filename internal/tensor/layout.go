package tensor

import (
	"fmt"

	"github.com/born-ml/thpp/internal/storage"
)

// Resize changes the tensor's sizes and strides in place. If strides is
// nil, row-major strides are used. Storage is grown when the new layout
// reaches past its end; elements beyond the old extent are unspecified.
// On error the tensor is unchanged.
func (t *Tensor[T]) Resize(sizes, strides []int) error {
	sizes = Shape(sizes).Clone()
	if strides == nil {
		strides = Shape(sizes).ComputeStrides()
	} else {
		strides = append([]int(nil), strides...)
	}
	if err := validateLayout(sizes, strides); err != nil {
		return fmt.Errorf("resize: %w", err)
	}

	needed := t.offset + Extent(sizes, strides)
	switch {
	case t.storage == nil:
		s, err := storage.New(needed, elemSize[T]())
		if err != nil {
			return fmt.Errorf("resize: %w", err)
		}
		t.storage = s
	case needed > t.storage.Len():
		if err := t.storage.Resize(needed); err != nil {
			return fmt.Errorf("resize: %w", err)
		}
	}
	t.sizes = sizes
	t.strides = strides
	return nil
}

// ResizeAs resizes t to the sizes of other, with row-major strides.
func (t *Tensor[T]) ResizeAs(other *Tensor[T]) error {
	return t.Resize(other.sizes, nil)
}

// Force gives the tensor the requested mode, copying data if needed.
//
// ModeUnique detaches a tensor whose storage is shared: the elements are
// copied into fresh storage that only t references, and other views of
// the old storage are unaffected. ModeContiguous re-lays a non-contiguous
// tensor out in row-major order. Either way at most one copy is made, and
// a tensor that already has the requested mode is left as is.
func (t *Tensor[T]) Force(mode Mode) error {
	if t.storage == nil {
		return nil
	}
	need := (mode&ModeUnique != 0 && !t.IsUnique()) ||
		(mode&ModeContiguous != 0 && !t.IsContiguous())
	if !need {
		return nil
	}
	s, err := t.materialize()
	if err != nil {
		return fmt.Errorf("force: %w", err)
	}
	t.storage.Release()
	t.storage = s
	t.strides = Shape(t.sizes).ComputeStrides()
	t.offset = 0
	return nil
}

// Clone returns a contiguous deep copy that shares nothing with t.
func (t *Tensor[T]) Clone() (*Tensor[T], error) {
	if t.storage == nil {
		return &Tensor[T]{backend: t.backend}, nil
	}
	s, err := t.materialize()
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	return &Tensor[T]{
		storage: s,
		sizes:   Shape(t.sizes).Clone(),
		strides: Shape(t.sizes).ComputeStrides(),
		backend: t.backend,
	}, nil
}

// Contiguous returns t itself as a new view if it is contiguous, and a
// contiguous copy otherwise.
func (t *Tensor[T]) Contiguous() (*Tensor[T], error) {
	if t.IsContiguous() {
		return t.Retain(), nil
	}
	return t.Clone()
}

// CopyFrom copies src's elements into t in row-major order. Both tensors
// must hold the same number of elements; their shapes may differ. src may
// alias t.
func (t *Tensor[T]) CopyFrom(src *Tensor[T]) error {
	if t.Size() != src.Size() {
		return fmt.Errorf("copy: %w: %d elements into %d", ErrShapeMismatch, src.Size(), t.Size())
	}
	if t.Size() == 0 {
		return nil
	}
	values := src.Values()
	data := storage.Elements[T](t.storage)
	i := 0
	WalkOffsets(t.sizes, t.strides, t.offset, func(off int) {
		data[off] = values[i]
		i++
	})
	return nil
}

// materialize copies the view's elements into fresh row-major storage.
func (t *Tensor[T]) materialize() (*storage.Storage, error) {
	s, err := storage.New(t.Size(), elemSize[T]())
	if err != nil {
		return nil, err
	}
	src := storage.Elements[T](t.storage)
	dst := storage.Elements[T](s)
	i := 0
	WalkOffsets(t.sizes, t.strides, t.offset, func(off int) {
		dst[i] = src[off]
		i++
	})
	return s, nil
}
