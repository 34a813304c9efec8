// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/born-ml/thpp/internal/serialization"
)

// SharingMode decides when serialized payloads may alias tensor storage.
type SharingMode = serialization.SharingMode

// Sharing modes.
const (
	// ShareNone always copies.
	ShareNone = serialization.ShareNone
	// ShareIOBufManaged aliases storage whose lifetime is reference-counted.
	ShareIOBufManaged = serialization.ShareIOBufManaged
	// ShareAll aliases any storage, including borrowed memory.
	ShareAll = serialization.ShareAll
)

// Compression is a payload compression algorithm.
type Compression = serialization.Compression

// Compression algorithms.
const (
	CompressionNone       = serialization.CompressionNone
	CompressionLZ4        = serialization.CompressionLZ4
	CompressionZstd       = serialization.CompressionZstd
	CompressionSnappy     = serialization.CompressionSnappy
	CompressionShuffleLZ4 = serialization.CompressionShuffleLZ4
)

// Endianness is the byte order of a serialized payload.
type Endianness = serialization.Endianness

// Byte orders.
const (
	Native = serialization.Native
	Little = serialization.Little
	Big    = serialization.Big
)

// HostEndianness is the byte order of the running machine.
var HostEndianness = serialization.HostEndianness

// Serialization defaults.
const (
	DefaultMinCloneSize = serialization.DefaultMinCloneSize
	DefaultMaxBlockSize = serialization.DefaultMaxBlockSize
)

// Serialization errors.
var (
	ErrUnsupportedEndianness  = serialization.ErrUnsupportedEndianness
	ErrDataType               = serialization.ErrDataType
	ErrChecksumMismatch       = serialization.ErrChecksumMismatch
	ErrUnsupportedCompression = serialization.ErrUnsupportedCompression
	ErrCorrupt                = serialization.ErrCorrupt
)

// ParseSharingMode parses "none", "iobuf_managed" or "all".
func ParseSharingMode(s string) (SharingMode, error) {
	return serialization.ParseSharingMode(s)
}

// ParseCompression parses a compression name such as "zstd".
func ParseCompression(s string) (Compression, error) {
	return serialization.ParseCompression(s)
}

// SerializeOptions configures Serialize and WriteTo.
type SerializeOptions struct {
	// Endianness of the payload; only Native and the host order are supported.
	Endianness Endianness
	// Sharing decides whether the frame may reference the tensor's storage
	// while it is being built. The zero value copies.
	Sharing SharingMode
	// MinCloneSize is the smallest run, in bytes, emitted by reference;
	// 0 means DefaultMinCloneSize.
	MinCloneSize int
	// MaxBlockSize bounds the blocks copied runs are packed into;
	// 0 means DefaultMaxBlockSize.
	MaxBlockSize int
	// Compression is tried on the payload; incompressible payloads are
	// stored as-is.
	Compression Compression
	// SkipDigest omits the payload checksum.
	SkipDigest bool
	// Logger receives debug records; nil discards them.
	Logger *slog.Logger
}

func (o SerializeOptions) encode() serialization.Options {
	return serialization.Options{
		Endianness:   o.Endianness,
		Sharing:      o.Sharing,
		MinCloneSize: o.MinCloneSize,
		MaxBlockSize: o.MaxBlockSize,
		Logger:       o.Logger,
	}
}

func (o SerializeOptions) frame() serialization.FrameOptions {
	return serialization.FrameOptions{Compression: o.Compression, SkipDigest: o.SkipDigest}
}

// Serialize encodes t into a self-describing frame.
//
// Example:
//
//	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	frame, err := tensor.Serialize(x, tensor.SerializeOptions{})
func Serialize[T Element](t *Tensor[T], opts SerializeOptions) ([]byte, error) {
	w, err := serialization.Encode(t, opts.encode())
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	defer w.Release()
	return serialization.Marshal(w, opts.frame())
}

// WriteTo encodes t as a frame onto dst. With a sharing mode that permits
// it, large contiguous runs are written straight from t's storage.
func WriteTo[T Element](dst io.Writer, t *Tensor[T], opts SerializeOptions) (int64, error) {
	w, err := serialization.Encode(t, opts.encode())
	if err != nil {
		return 0, fmt.Errorf("serialize: %w", err)
	}
	defer w.Release()
	return serialization.WriteFrame(dst, w, opts.frame())
}

// Deserialize decodes a frame produced by Serialize. Under ShareAll an
// aligned uncompressed payload is aliased, so frame must outlive the
// returned tensor and must not be reused; other modes copy.
//
// Example:
//
//	y, err := tensor.Deserialize[float32](frame, tensor.ShareNone)
func Deserialize[T Element](frame []byte, sharing SharingMode) (*Tensor[T], error) {
	w, err := serialization.Unmarshal(frame)
	if err != nil {
		return nil, fmt.Errorf("deserialize: %w", err)
	}
	defer w.Release()
	t, err := serialization.Decode[T](w, sharing)
	if err != nil {
		return nil, fmt.Errorf("deserialize: %w", err)
	}
	return t.WithBackend(defaultBackend), nil
}
