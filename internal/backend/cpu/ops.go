package cpu

import (
	"errors"
	"unsafe"

	"github.com/born-ml/thpp/internal/parallel"
	"github.com/born-ml/thpp/internal/tensor"
)

// ErrEmptyReduction is returned by min/max over zero elements.
var ErrEmptyReduction = errors.New("reduction over empty tensor")

// kernelSet holds the kernels instantiated for one element type.
type kernelSet struct {
	addScalar func(cfg parallel.Config, dst, src tensor.Operand, value float64)
	mulScalar func(cfg parallel.Config, dst, src tensor.Operand, value float64)
	cadd      func(cfg parallel.Config, dst, a tensor.Operand, value float64, b tensor.Operand)
	cmul      func(cfg parallel.Config, dst, a, b tensor.Operand)
	sum       func(src tensor.Operand) float64
	dot       func(a, b tensor.Operand) float64
	extreme   func(src tensor.Operand, lowest bool) float64
}

var kernelTable = map[tensor.DataType]kernelSet{
	tensor.Byte:   kernelsFor[uint8](),
	tensor.Char:   kernelsFor[int8](),
	tensor.Short:  kernelsFor[int16](),
	tensor.Int:    kernelsFor[int32](),
	tensor.Long:   kernelsFor[int64](),
	tensor.Float:  kernelsFor[float32](),
	tensor.Double: kernelsFor[float64](),
}

func kernelsFor[T tensor.Element]() kernelSet {
	return kernelSet{
		addScalar: func(cfg parallel.Config, dst, src tensor.Operand, value float64) {
			v := T(value)
			mapUnary(cfg, dst, src, func(x T) T { return x + v })
		},
		mulScalar: func(cfg parallel.Config, dst, src tensor.Operand, value float64) {
			v := T(value)
			mapUnary(cfg, dst, src, func(x T) T { return x * v })
		},
		cadd: func(cfg parallel.Config, dst, a tensor.Operand, value float64, b tensor.Operand) {
			v := T(value)
			mapBinary(cfg, dst, a, b, func(x, y T) T { return x + v*y })
		},
		cmul: func(cfg parallel.Config, dst, a, b tensor.Operand) {
			mapBinary(cfg, dst, a, b, func(x, y T) T { return x * y })
		},
		sum: func(src tensor.Operand) float64 {
			var acc float64
			for _, x := range gather[T](src) {
				acc += float64(x)
			}
			return acc
		},
		dot: func(a, b tensor.Operand) float64 {
			xs, ys := gather[T](a), gather[T](b)
			var acc float64
			for i := range xs {
				acc += float64(xs[i]) * float64(ys[i])
			}
			return acc
		},
		extreme: func(src tensor.Operand, lowest bool) float64 {
			xs := gather[T](src)
			best := xs[0]
			for _, x := range xs[1:] {
				if (lowest && x < best) || (!lowest && x > best) {
					best = x
				}
			}
			return float64(best)
		},
	}
}

// elements reinterprets the operand's storage bytes as []T.
func elements[T tensor.Element](op tensor.Operand) []T {
	var zero T
	n := len(op.Data) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounded by len(Data)
	return unsafe.Slice((*T)(unsafe.Pointer(&op.Data[0])), n)
}

// span returns the operand's elements as one dense slice when it is
// contiguous.
func span[T tensor.Element](op tensor.Operand) ([]T, bool) {
	if !tensor.IsContiguous(op.Sizes, op.Strides) {
		return nil, false
	}
	n := op.NumElements()
	if n == 0 {
		return nil, true
	}
	return elements[T](op)[op.Offset : op.Offset+n], true
}

// gather copies the operand's elements in row-major order.
func gather[T tensor.Element](op tensor.Operand) []T {
	if s, ok := span[T](op); ok {
		return append([]T(nil), s...)
	}
	data := elements[T](op)
	out := make([]T, 0, op.NumElements())
	tensor.WalkOffsets(op.Sizes, op.Strides, op.Offset, func(off int) {
		out = append(out, data[off])
	})
	return out
}

func mapUnary[T tensor.Element](cfg parallel.Config, dst, src tensor.Operand, f func(T) T) {
	d, dok := span[T](dst)
	s, sok := span[T](src)
	if dok && sok {
		parallel.ForRange(len(d), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				d[i] = f(s[i])
			}
		}, cfg)
		return
	}
	values := gather[T](src)
	data := elements[T](dst)
	i := 0
	tensor.WalkOffsets(dst.Sizes, dst.Strides, dst.Offset, func(off int) {
		data[off] = f(values[i])
		i++
	})
}

func mapBinary[T tensor.Element](cfg parallel.Config, dst, a, b tensor.Operand, f func(x, y T) T) {
	d, dok := span[T](dst)
	x, aok := span[T](a)
	y, bok := span[T](b)
	if dok && aok && bok {
		parallel.ForRange(len(d), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				d[i] = f(x[i], y[i])
			}
		}, cfg)
		return
	}
	xs, ys := gather[T](a), gather[T](b)
	data := elements[T](dst)
	i := 0
	tensor.WalkOffsets(dst.Sizes, dst.Strides, dst.Offset, func(off int) {
		data[off] = f(xs[i], ys[i])
		i++
	})
}
