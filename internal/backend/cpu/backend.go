// Package cpu implements the reference CPU compute backend over strided
// tensor operands.
package cpu

import (
	"fmt"

	"github.com/born-ml/thpp/internal/parallel"
	"github.com/born-ml/thpp/internal/tensor"
)

// CPUBackend implements tensor.Backend in pure Go. Contiguous operands are
// processed in parallel chunks; strided ones are walked sequentially.
type CPUBackend struct {
	parallel parallel.Config
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{parallel: parallel.DefaultConfig()}
}

// NewWithConfig creates a CPU backend with an explicit parallelism config.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{parallel: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

func (cpu *CPUBackend) kernels(op string, dt tensor.DataType) (kernelSet, error) {
	k, ok := kernelTable[dt]
	if !ok {
		return kernelSet{}, fmt.Errorf("%s: unsupported dtype %s", op, dt)
	}
	return k, nil
}

// AddScalar computes dst = src + value.
func (cpu *CPUBackend) AddScalar(dst, src tensor.Operand, value float64) error {
	k, err := cpu.kernels("add", dst.DType)
	if err != nil {
		return err
	}
	k.addScalar(cpu.parallel, dst, src, value)
	return nil
}

// MulScalar computes dst = src * value.
func (cpu *CPUBackend) MulScalar(dst, src tensor.Operand, value float64) error {
	k, err := cpu.kernels("mul", dst.DType)
	if err != nil {
		return err
	}
	k.mulScalar(cpu.parallel, dst, src, value)
	return nil
}

// CAdd computes dst = a + value * b.
func (cpu *CPUBackend) CAdd(dst, a tensor.Operand, value float64, b tensor.Operand) error {
	k, err := cpu.kernels("cadd", dst.DType)
	if err != nil {
		return err
	}
	k.cadd(cpu.parallel, dst, a, value, b)
	return nil
}

// CMul computes dst = a .* b.
func (cpu *CPUBackend) CMul(dst, a, b tensor.Operand) error {
	k, err := cpu.kernels("cmul", dst.DType)
	if err != nil {
		return err
	}
	k.cmul(cpu.parallel, dst, a, b)
	return nil
}

// Sum returns the sum of all elements.
func (cpu *CPUBackend) Sum(src tensor.Operand) (float64, error) {
	k, err := cpu.kernels("sum", src.DType)
	if err != nil {
		return 0, err
	}
	return k.sum(src), nil
}

// Dot returns the inner product of a and b.
func (cpu *CPUBackend) Dot(a, b tensor.Operand) (float64, error) {
	k, err := cpu.kernels("dot", a.DType)
	if err != nil {
		return 0, err
	}
	return k.dot(a, b), nil
}

// MinAll returns the smallest element.
func (cpu *CPUBackend) MinAll(src tensor.Operand) (float64, error) {
	k, err := cpu.kernels("minall", src.DType)
	if err != nil {
		return 0, err
	}
	if src.NumElements() == 0 {
		return 0, fmt.Errorf("minall: %w", ErrEmptyReduction)
	}
	return k.extreme(src, true), nil
}

// MaxAll returns the largest element.
func (cpu *CPUBackend) MaxAll(src tensor.Operand) (float64, error) {
	k, err := cpu.kernels("maxall", src.DType)
	if err != nil {
		return 0, err
	}
	if src.NumElements() == 0 {
		return 0, fmt.Errorf("maxall: %w", ErrEmptyReduction)
	}
	return k.extreme(src, false), nil
}
