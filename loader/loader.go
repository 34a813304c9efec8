// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader reads tensors from foreign weight formats.
//
// This package wraps the internal loader implementation and exports a
// clean public API. SafeTensors is the supported format.
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/thpp/loader"
//	    "github.com/born-ml/thpp/tensor"
//	)
//
//	r, err := loader.OpenSafeTensors("path/to/model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	w, err := loader.Load[float32](r, "model.embed_tokens.weight", tensor.ShareIOBufManaged)
package loader

import (
	"github.com/born-ml/thpp/internal/loader"
	"github.com/born-ml/thpp/tensor"
)

// SafeTensorsReader reads a SafeTensors file held in memory.
type SafeTensorsReader = loader.SafeTensorsReader

// SafeTensorInfo describes a tensor in SafeTensors format.
type SafeTensorInfo = loader.SafeTensorInfo

// SafeTensorsDType represents a SafeTensors data type.
type SafeTensorsDType = loader.SafeTensorsDType

// ErrUnsupportedDType is returned for SafeTensors dtypes with no matching
// element type (F16, BF16 and others).
var ErrUnsupportedDType = loader.ErrUnsupportedDType

// OpenSafeTensors reads the SafeTensors file at path.
func OpenSafeTensors(path string) (*SafeTensorsReader, error) {
	return loader.OpenSafeTensors(path)
}

// Load decodes the tensor stored under name and attaches the default
// backend. Under ShareIOBufManaged or ShareAll an aligned tensor references
// the file contents instead of copying them.
func Load[T tensor.Element](r *SafeTensorsReader, name string, sharing tensor.SharingMode) (*tensor.Tensor[T], error) {
	t, err := loader.Load[T](r, name, sharing)
	if err != nil {
		return nil, err
	}
	return t.WithBackend(tensor.DefaultBackend()), nil
}
