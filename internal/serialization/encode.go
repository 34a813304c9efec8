package serialization

import (
	"context"
	"log/slog"

	"github.com/born-ml/thpp/internal/iobuf"
	"github.com/born-ml/thpp/internal/tensor"
)

// FirstContiguousDim returns the smallest dim such that dimensions
// [dim, len(sizes)) are laid out contiguously in row-major order, and the
// number of elements those dimensions span. Size-1 dimensions are not
// skipped. Nil strides describe a contiguous layout.
func FirstContiguousDim(sizes, strides []int) (dim, contiguousSize int) {
	if strides == nil {
		return 0, tensor.Shape(sizes).NumElements()
	}
	contiguousSize = 1
	dim = len(sizes) - 1
	for ; dim >= 0; dim-- {
		if strides[dim] != contiguousSize {
			break
		}
		contiguousSize *= sizes[dim]
	}
	return dim + 1, contiguousSize
}

// Encode serializes t. Payload segments may reference t's storage,
// keeping it alive until the wire is released; writes through t after
// encoding are then visible in the payload.
func Encode[T tensor.Element](t *tensor.Tensor[T], opts Options) (*Wire, error) {
	endianness, err := opts.Endianness.resolve()
	if err != nil {
		return nil, err
	}
	sizes := t.Sizes()
	w := &Wire{
		DataType:   t.DType(),
		Endianness: endianness,
		Sizes:      make([]int64, len(sizes)),
	}
	for i, s := range sizes {
		w.Sizes[i] = int64(s)
	}
	if t.Size() == 0 {
		return w, nil
	}

	elemSize := w.DataType.Size()
	src := t.Storage().IOBuf(t.StorageOffset() * elemSize)
	defer src.Release()
	w.Data = encodeRuns(sizes, t.Strides(), elemSize, src, opts)
	return w, nil
}

// encodeRuns emits the elements viewed by sizes and strides over src in
// row-major order.
func encodeRuns(sizes, strides []int, elemSize int, src *iobuf.Buf, opts Options) iobuf.Chain {
	log := opts.logger()
	dim, contiguousSize := FirstContiguousDim(sizes, strides)
	dataSize := tensor.Shape(sizes).NumElements() * elemSize

	if dim == 0 {
		buf := opts.Sharing.share(src.PartialClone(0, dataSize))
		log.LogAttrs(context.Background(), slog.LevelDebug, "encoded contiguous tensor",
			slog.Int("bytes", dataSize),
			slog.Bool("shared", buf.SharesWith(src)))
		return iobuf.Chain{buf}
	}

	runSize := contiguousSize * elemSize
	mayShare := runSize >= opts.minCloneSize() && opts.Sharing.ShouldShare(src)
	q := iobuf.NewQueue(min(dataSize, opts.maxBlockSize()))

	// Odometer over the leading non-contiguous dimensions; pos is the
	// byte position in src of the current run.
	counter := make([]int, dim)
	pos := 0
	runs := 0
	for idx := dim; idx >= 0; {
		if idx == dim {
			if mayShare {
				q.Insert(src.PartialClone(pos, runSize))
			} else {
				q.Push(src.Bytes()[pos : pos+runSize])
			}
			runs++
			idx--
			continue
		}
		pos += strides[idx] * elemSize
		counter[idx]++
		if counter[idx] == sizes[idx] {
			pos -= sizes[idx] * strides[idx] * elemSize
			counter[idx] = 0
			idx--
		} else {
			idx = dim
		}
	}

	log.LogAttrs(context.Background(), slog.LevelDebug, "encoded strided tensor",
		slog.Int("first_contiguous_dim", dim),
		slog.Int("runs", runs),
		slog.Int("run_bytes", runSize),
		slog.Bool("shared", mayShare))
	return q.Move()
}
