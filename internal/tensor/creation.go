package tensor

import "fmt"

// Zeros creates a contiguous tensor filled with zeros.
//
// Example:
//
//	t, _ := tensor.Zeros[float32](Shape{3, 4})
func Zeros[T Element](shape Shape) (*Tensor[T], error) {
	return New[T](shape, nil)
}

// Ones creates a contiguous tensor filled with ones.
func Ones[T Element](shape Shape) (*Tensor[T], error) {
	return Full[T](shape, 1)
}

// Full creates a contiguous tensor filled with value.
//
// Example:
//
//	t, _ := tensor.Full[float64](Shape{3, 3}, 3.14)
func Full[T Element](shape Shape, value T) (*Tensor[T], error) {
	t, err := New[T](shape, nil)
	if err != nil {
		return nil, err
	}
	t.Fill(value)
	return t, nil
}

// Arange creates a 1-D tensor with values from start to end (exclusive)
// in increments of one.
//
// Example:
//
//	t, _ := tensor.Arange[int32](0, 10) // [0, 1, 2, ..., 9]
func Arange[T Element](start, end T) (*Tensor[T], error) {
	if end < start {
		return nil, fmt.Errorf("%w: arange end %v before start %v", ErrInvalidShape, end, start)
	}
	n := int(float64(end) - float64(start))
	if float64(start)+float64(n) < float64(end) {
		n++ // fractional float ranges include the last partial step
	}
	t, err := New[T](Shape{n}, nil)
	if err != nil {
		return nil, err
	}
	data := t.Data()
	for i := range data {
		data[i] = start + T(i)
	}
	return t, nil
}
