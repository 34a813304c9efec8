package tensor

import "fmt"

// Operand is what a compute backend sees of a tensor: its layout and the
// raw bytes of the storage it views. Offset and Strides are in elements.
type Operand struct {
	DType   DataType
	Sizes   []int
	Strides []int
	Offset  int
	Data    []byte
}

// NumElements returns the number of elements the operand addresses.
func (o Operand) NumElements() int {
	return Shape(o.Sizes).NumElements()
}

// Backend performs numeric kernels over strided operands. Destination
// operands are written in place. Operands passed to one call have equal
// sizes and data type; implementations need not re-check.
//
// Implementations:
//   - internal/backend/cpu: reference Go implementation
type Backend interface {
	// Name identifies the backend.
	Name() string

	AddScalar(dst, src Operand, value float64) error // dst = src + value
	MulScalar(dst, src Operand, value float64) error // dst = src * value
	CAdd(dst, a Operand, value float64, b Operand) error // dst = a + value * b
	CMul(dst, a, b Operand) error                        // dst = a .* b

	Sum(src Operand) (float64, error)
	Dot(a, b Operand) (float64, error)
	MinAll(src Operand) (float64, error)
	MaxAll(src Operand) (float64, error)
}

// Operand describes t for a backend call.
func (t *Tensor[T]) Operand() Operand {
	var data []byte
	if t.storage != nil {
		data = t.storage.Bytes()
	}
	return Operand{
		DType:   t.DType(),
		Sizes:   t.sizes,
		Strides: t.strides,
		Offset:  t.offset,
		Data:    data,
	}
}

func (t *Tensor[T]) requireBackend(op string) (Backend, error) {
	if t.backend == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoBackend)
	}
	return t.backend, nil
}

func (t *Tensor[T]) requireSameShape(op string, others ...*Tensor[T]) error {
	for _, o := range others {
		if !Shape(t.sizes).Equal(o.sizes) {
			return fmt.Errorf("%s: %w: %v vs %v", op, ErrShapeMismatch, []int(t.sizes), []int(o.sizes))
		}
	}
	return nil
}

// Add adds value to every element in place.
func (t *Tensor[T]) Add(value T) error {
	b, err := t.requireBackend("add")
	if err != nil {
		return err
	}
	op := t.Operand()
	return b.AddScalar(op, op, float64(value))
}

// Mul multiplies every element by value in place.
func (t *Tensor[T]) Mul(value T) error {
	b, err := t.requireBackend("mul")
	if err != nil {
		return err
	}
	op := t.Operand()
	return b.MulScalar(op, op, float64(value))
}

// CAdd computes t = t + value * other.
func (t *Tensor[T]) CAdd(value T, other *Tensor[T]) error {
	b, err := t.requireBackend("cadd")
	if err != nil {
		return err
	}
	if err := t.requireSameShape("cadd", other); err != nil {
		return err
	}
	op := t.Operand()
	return b.CAdd(op, op, float64(value), other.Operand())
}

// CMul computes t = t .* other.
func (t *Tensor[T]) CMul(other *Tensor[T]) error {
	b, err := t.requireBackend("cmul")
	if err != nil {
		return err
	}
	if err := t.requireSameShape("cmul", other); err != nil {
		return err
	}
	op := t.Operand()
	return b.CMul(op, op, other.Operand())
}

// Sum returns the sum of all elements, accumulated in float64.
func (t *Tensor[T]) Sum() (float64, error) {
	b, err := t.requireBackend("sum")
	if err != nil {
		return 0, err
	}
	return b.Sum(t.Operand())
}

// Dot returns the inner product of t and other viewed as flat vectors.
func (t *Tensor[T]) Dot(other *Tensor[T]) (float64, error) {
	b, err := t.requireBackend("dot")
	if err != nil {
		return 0, err
	}
	if err := t.requireSameShape("dot", other); err != nil {
		return 0, err
	}
	return b.Dot(t.Operand(), other.Operand())
}

// MinAll returns the smallest element.
func (t *Tensor[T]) MinAll() (T, error) {
	b, err := t.requireBackend("minall")
	if err != nil {
		return 0, err
	}
	v, err := b.MinAll(t.Operand())
	return T(v), err
}

// MaxAll returns the largest element.
func (t *Tensor[T]) MaxAll() (T, error) {
	b, err := t.requireBackend("maxall")
	if err != nil {
		return 0, err
	}
	v, err := b.MaxAll(t.Operand())
	return T(v), err
}
