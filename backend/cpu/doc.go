// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// The backend runs the tensor math kernels (scalar add and multiply,
// CAdd, CMul, Sum, Dot, MinAll, MaxAll) over strided operands:
//   - Pure Go implementation (no CGO)
//   - Contiguous operands split across goroutines
//   - Arbitrary strides walked element by element
//   - All seven element types
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/thpp/backend/cpu"
//	    "github.com/born-ml/thpp/tensor"
//	)
//
//	func main() {
//	    x, _ := tensor.FromSlice([]float64{1, 2, 3}, tensor.Shape{3})
//	    x.WithBackend(cpu.NewSequential())
//	    sum, _ := x.Sum()
//	}
//
// Tensors built by package tensor already carry a parallel CPU backend;
// this package is for choosing a different configuration.
package cpu
