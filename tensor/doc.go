// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides strided tensors over reference-counted storage
// and their serialized form.
//
// # Overview
//
// A Tensor[T] is a view: sizes, strides and an offset into a Storage block
// that other tensors may share. Narrow, Select, Transpose, Unfold and
// Squeeze return new views without copying element data.
//
// # Basic Usage
//
//	import "github.com/born-ml/thpp/tensor"
//
//	func main() {
//	    x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	    col, _ := x.Select(1, 2)   // [3 6], shares x's storage
//	    _ = col.Mul(10)           // x is now [[1 2 30] [4 5 60]]
//	    sum, _ := x.Sum()
//	}
//
// # Supported Data Types
//
// Element types map one-to-one to wire data types:
//   - uint8 (Byte), int8 (Char)
//   - int16 (Short), int32 (Int), int64 (Long)
//   - float32 (Float), float64 (Double)
//
// # Serialization
//
// Serialize encodes a tensor into a self-describing frame. Contiguous runs
// of at least DefaultMinCloneSize bytes are referenced rather than copied
// while the frame is built, and Deserialize can alias an aligned
// uncompressed payload instead of copying it:
//
//	frame, _ := tensor.Serialize(x, tensor.SerializeOptions{Compression: tensor.CompressionZstd})
//	y, _ := tensor.Deserialize[float32](frame, tensor.ShareAll)
//
// # Memory Management
//
// Storage is reference-counted. Views and decoded tensors hold references;
// Release drops one. Go's garbage collector reclaims memory regardless, so
// Release matters only where a release hook must run (for example an
// unmapped archive file).
package tensor
