// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/thpp/internal/backend/cpu"
	"github.com/born-ml/thpp/internal/tensor"
)

// Element is the constraint satisfied by every supported element type.
type Element = tensor.Element

// DataType identifies an element type on the wire.
type DataType = tensor.DataType

// Data types.
const (
	Byte   = tensor.Byte
	Char   = tensor.Char
	Short  = tensor.Short
	Int    = tensor.Int
	Long   = tensor.Long
	Float  = tensor.Float
	Double = tensor.Double
)

// Shape is a list of dimension sizes.
type Shape = tensor.Shape

// Tensor is a strided view over reference-counted storage.
//
// Tensors created by this package have the CPU backend attached, so the
// math methods (Add, Mul, CAdd, CMul, Sum, Dot, MinAll, MaxAll) work out of
// the box. Views inherit the backend of the tensor they were taken from.
type Tensor[T Element] = tensor.Tensor[T]

// Mode is a set of layout properties a tensor can be forced into.
type Mode = tensor.Mode

// Tensor modes.
const (
	ModeUnique     = tensor.ModeUnique
	ModeContiguous = tensor.ModeContiguous
)

// Backend performs numeric kernels over strided operands.
type Backend = tensor.Backend

// Operand is what a backend sees of a tensor.
type Operand = tensor.Operand

// Errors.
var (
	ErrIndex         = tensor.ErrIndex
	ErrShapeMismatch = tensor.ErrShapeMismatch
	ErrInvalidShape  = tensor.ErrInvalidShape
	ErrNoBackend     = tensor.ErrNoBackend
)

var defaultBackend Backend = cpu.New()

// DefaultBackend returns the backend attached by the constructors.
func DefaultBackend() Backend {
	return defaultBackend
}

// Empty returns a tensor with no dimensions and no storage.
func Empty[T Element]() *Tensor[T] {
	return tensor.Empty[T]().WithBackend(defaultBackend)
}

// New creates a zero-filled tensor. If strides is nil the tensor is
// row-major; otherwise storage is sized to cover every reachable element.
//
// Example:
//
//	x, _ := tensor.New[float64](tensor.Shape{2, 3}, nil)
//	y, _ := tensor.New[float64](tensor.Shape{2, 3}, []int{1, 2}) // column-major
func New[T Element](sizes Shape, strides []int) (*Tensor[T], error) {
	return attach(tensor.New[T](sizes, strides))
}

// FromSlice creates a contiguous tensor holding a copy of data.
//
// Example:
//
//	x, _ := tensor.FromSlice([]int32{1, 2, 3, 4}, tensor.Shape{2, 2})
func FromSlice[T Element](data []T, sizes Shape) (*Tensor[T], error) {
	return attach(tensor.FromSlice(data, sizes))
}

// DataTypeOf returns the data type of element type T.
func DataTypeOf[T Element]() DataType {
	return tensor.DataTypeOf[T]()
}

// ParseDataType parses a data type name such as "float32" or "int64".
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// IsContiguous reports whether sizes and strides describe a row-major
// layout. Dimensions of size 1 are ignored.
func IsContiguous(sizes, strides []int) bool {
	return tensor.IsContiguous(sizes, strides)
}

// Zeros creates a contiguous tensor filled with zeros.
//
// Example:
//
//	x, _ := tensor.Zeros[float32](tensor.Shape{2, 3})
func Zeros[T Element](shape Shape) (*Tensor[T], error) {
	return attach(tensor.Zeros[T](shape))
}

// Ones creates a contiguous tensor filled with ones.
func Ones[T Element](shape Shape) (*Tensor[T], error) {
	return attach(tensor.Ones[T](shape))
}

// Full creates a contiguous tensor filled with value.
//
// Example:
//
//	x, _ := tensor.Full[float64](tensor.Shape{3, 3}, 3.14)
func Full[T Element](shape Shape, value T) (*Tensor[T], error) {
	return attach(tensor.Full(shape, value))
}

// Arange creates a 1-D tensor with values from start to end (exclusive).
//
// Example:
//
//	x, _ := tensor.Arange[int32](0, 10) // [0, 1, 2, ..., 9]
func Arange[T Element](start, end T) (*Tensor[T], error) {
	return attach(tensor.Arange(start, end))
}

func attach[T Element](t *tensor.Tensor[T], err error) (*tensor.Tensor[T], error) {
	if err != nil {
		return nil, err
	}
	return t.WithBackend(defaultBackend), nil
}
