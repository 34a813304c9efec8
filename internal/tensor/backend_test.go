package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBackend records the operands it receives and returns fixed
// results.
type recordingBackend struct {
	calls    []string
	operands []Operand
	scalar   float64
}

func (r *recordingBackend) Name() string { return "recording" }

func (r *recordingBackend) record(name string, ops ...Operand) {
	r.calls = append(r.calls, name)
	r.operands = append(r.operands, ops...)
}

func (r *recordingBackend) AddScalar(dst, src Operand, value float64) error {
	r.record("add", dst, src)
	r.scalar = value
	return nil
}

func (r *recordingBackend) MulScalar(dst, src Operand, value float64) error {
	r.record("mul", dst, src)
	r.scalar = value
	return nil
}

func (r *recordingBackend) CAdd(dst, a Operand, value float64, b Operand) error {
	r.record("cadd", dst, a, b)
	r.scalar = value
	return nil
}

func (r *recordingBackend) CMul(dst, a, b Operand) error {
	r.record("cmul", dst, a, b)
	return nil
}

func (r *recordingBackend) Sum(src Operand) (float64, error) {
	r.record("sum", src)
	return 42, nil
}

func (r *recordingBackend) Dot(a, b Operand) (float64, error) {
	r.record("dot", a, b)
	return 7, nil
}

func (r *recordingBackend) MinAll(src Operand) (float64, error) {
	r.record("min", src)
	return -3, nil
}

func (r *recordingBackend) MaxAll(src Operand) (float64, error) {
	r.record("max", src)
	return 3, nil
}

func TestMathRequiresBackend(t *testing.T) {
	x := arange[float32](t, 2)
	assert.ErrorIs(t, x.Add(1), ErrNoBackend)
	_, err := x.Sum()
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestMathPassesLayoutThrough(t *testing.T) {
	rb := &recordingBackend{}
	x := arange[float32](t, 2, 3).WithBackend(rb)
	tr, err := x.Transpose(0, 1)
	require.NoError(t, err)
	assert.Same(t, rb, tr.Backend(), "views inherit the backend")

	require.NoError(t, tr.Add(2))
	require.Len(t, rb.operands, 2)
	op := rb.operands[0]
	assert.Equal(t, Float, op.DType)
	assert.Equal(t, []int{3, 2}, op.Sizes)
	assert.Equal(t, []int{1, 3}, op.Strides)
	assert.Equal(t, 0, op.Offset)
	assert.Len(t, op.Data, 24)
	assert.Equal(t, 6, op.NumElements())
	assert.Equal(t, 2.0, rb.scalar)

	sum, err := tr.Sum()
	require.NoError(t, err)
	assert.Equal(t, 42.0, sum)

	lo, err := tr.MinAll()
	require.NoError(t, err)
	assert.Equal(t, float32(-3), lo)
	hi, err := tr.MaxAll()
	require.NoError(t, err)
	assert.Equal(t, float32(3), hi)

	require.NoError(t, x.Mul(3))
	assert.Equal(t, []string{"add", "sum", "min", "max", "mul"}, rb.calls)
}

func TestBinaryMathChecksShapes(t *testing.T) {
	rb := &recordingBackend{}
	x := arange[int64](t, 2, 3).WithBackend(rb)
	y := arange[int64](t, 3, 2)

	assert.ErrorIs(t, x.CAdd(1, y), ErrShapeMismatch)
	assert.ErrorIs(t, x.CMul(y), ErrShapeMismatch)
	_, err := x.Dot(y)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Empty(t, rb.calls)

	z := arange[int64](t, 2, 3)
	require.NoError(t, x.CAdd(2, z))
	require.NoError(t, x.CMul(z))
	d, err := x.Dot(z)
	require.NoError(t, err)
	assert.Equal(t, 7.0, d)
	assert.Equal(t, []string{"cadd", "cmul", "dot"}, rb.calls)
}
