package serialization

import (
	"fmt"
	"math"

	"github.com/born-ml/thpp/internal/iobuf"
	"github.com/born-ml/thpp/internal/storage"
	"github.com/born-ml/thpp/internal/tensor"
)

// Decode builds a contiguous tensor from w. When the payload is a single
// element-aligned segment and sharing permits, the tensor's storage
// references that segment; otherwise the payload is copied into fresh
// storage. w keeps its own references either way and should still be
// released by the caller.
func Decode[T tensor.Element](w *Wire, sharing SharingMode) (*tensor.Tensor[T], error) {
	dtype := tensor.DataTypeOf[T]()
	if w.DataType != dtype {
		return nil, fmt.Errorf("%w: wire holds %s, want %s", ErrDataType, w.DataType, dtype)
	}
	if w.Endianness != Native && w.Endianness != HostEndianness {
		return nil, fmt.Errorf("%w: %s payload on a %s-endian host", ErrUnsupportedEndianness, w.Endianness, HostEndianness)
	}
	sizes, err := intSizes(w.Sizes)
	if err != nil {
		return nil, err
	}

	elemSize := dtype.Size()
	want := tensor.Shape(sizes).NumElements() * elemSize
	got := w.Data.Len()
	if got != want {
		// An empty tensor travels as no sizes and no payload.
		if len(sizes) == 0 && got == 0 {
			return tensor.Empty[T](), nil
		}
		return nil, fmt.Errorf("%w: %d payload bytes for sizes %v (%d bytes)",
			tensor.ErrShapeMismatch, got, sizes, want)
	}

	s, err := adoptPayload(w.Data, elemSize, sharing)
	if err != nil {
		return nil, err
	}
	defer s.Release()
	return tensor.NewWithStorage[T](s, 0, sizes, nil)
}

// adoptPayload returns storage holding the payload bytes, referencing
// the payload's only segment when sharing allows it.
func adoptPayload(chain iobuf.Chain, elemSize int, sharing SharingMode) (*storage.Storage, error) {
	if len(chain) == 1 && sharing.ShouldShare(chain[0]) && storage.Aligned(chain[0].Bytes(), elemSize) {
		return storage.WrapBuf(chain[0].CloneOne(), elemSize), nil
	}
	s, err := storage.New(chain.Len()/elemSize, elemSize)
	if err != nil {
		return nil, err
	}
	dst := s.Bytes()
	for _, seg := range chain {
		dst = dst[copy(dst, seg.Bytes()):]
	}
	return s, nil
}

func intSizes(sizes []int64) ([]int, error) {
	out := make([]int, len(sizes))
	total := int64(1)
	for i, s := range sizes {
		if s < 0 || s > math.MaxInt {
			return nil, fmt.Errorf("%w: invalid size %d in dimension %d", ErrCorrupt, s, i)
		}
		if s != 0 && total > math.MaxInt/s {
			return nil, fmt.Errorf("%w: sizes %v overflow", ErrCorrupt, sizes)
		}
		total *= s
		out[i] = int(s)
	}
	return out, nil
}
