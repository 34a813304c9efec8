// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/thpp/internal/backend/cpu"
	"github.com/born-ml/thpp/internal/parallel"
	"github.com/born-ml/thpp/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend that splits large contiguous operands
// across all available cores.
//
// Example:
//
//	import (
//	    "github.com/born-ml/thpp/backend/cpu"
//	    "github.com/born-ml/thpp/tensor"
//	)
//
//	func main() {
//	    x, _ := tensor.New[float32](tensor.Shape{2, 3}, nil)
//	    x.WithBackend(cpu.New())
//	}
func New() *Backend {
	return internalcpu.New()
}

// NewSequential creates a CPU backend that runs every kernel on the
// calling goroutine.
func NewSequential() *Backend {
	return internalcpu.NewWithConfig(parallel.Sequential())
}

// NewWithWorkers creates a CPU backend that uses at most workers
// goroutines per kernel and only parallelizes operands of at least
// minChunk elements per worker.
func NewWithWorkers(workers, minChunk int) *Backend {
	cfg := parallel.DefaultConfig()
	if workers > 0 {
		cfg.NumWorkers = workers
	}
	if minChunk > 0 {
		cfg.MinChunkSize = minChunk
	}
	cfg.Enabled = cfg.NumWorkers > 1
	return internalcpu.NewWithConfig(cfg)
}
