// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package archive stores named tensors in a single file.
//
// An archive is a fixed prefix, a CBOR header listing every tensor, and
// the payloads at aligned offsets. Readers may memory-map the file, in
// which case loaded tensors reference the mapping directly and keep it
// alive after the reader is closed.
//
// Example:
//
//	w, _ := archive.Create("model.thpp", archive.WriterOptions{Compression: tensor.CompressionZstd})
//	_ = archive.Add(w, "weight", weight)
//	_ = w.Close()
//
//	r, _ := archive.Open("model.thpp", archive.ReaderOptions{Mmap: true, Sharing: tensor.ShareAll})
//	defer r.Close()
//	weight, _ := archive.Load[float32](r, "weight")
package archive

import (
	"github.com/born-ml/thpp/internal/archive"
	"github.com/born-ml/thpp/tensor"
)

// Writer collects tensors and writes them to a file on Close.
type Writer = archive.Writer

// WriterOptions configures a Writer.
type WriterOptions = archive.WriterOptions

// Reader reads tensors from an archive file.
type Reader = archive.Reader

// ReaderOptions configures a Reader.
type ReaderOptions = archive.ReaderOptions

// Entry describes one stored tensor.
type Entry = archive.Entry

// Header is the archive header.
type Header = archive.Header

// ValidationLevel controls how thoroughly Open checks the header.
type ValidationLevel = archive.ValidationLevel

// Validation levels.
const (
	ValidationStrict = archive.ValidationStrict
	ValidationNormal = archive.ValidationNormal
	ValidationNone   = archive.ValidationNone
)

// Errors.
var (
	ErrInvalidMagic       = archive.ErrInvalidMagic
	ErrUnsupportedVersion = archive.ErrUnsupportedVersion
	ErrHeaderTooLarge     = archive.ErrHeaderTooLarge
	ErrOutOfBounds        = archive.ErrOutOfBounds
	ErrTensorNotFound     = archive.ErrTensorNotFound
	ErrDuplicateTensor    = archive.ErrDuplicateTensor
	ErrClosed             = archive.ErrClosed
)

// Create creates the file at path and returns a writer for it.
func Create(path string, opts WriterOptions) (*Writer, error) {
	return archive.Create(path, opts)
}

// Open opens and validates the archive at path.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	return archive.Open(path, opts)
}

// Add encodes t and adds it to w under name. t is referenced, not copied,
// until w is closed.
func Add[T tensor.Element](w *Writer, name string, t *tensor.Tensor[T]) error {
	return archive.Add(w, name, t)
}

// Load decodes the tensor stored under name and attaches the default
// backend.
func Load[T tensor.Element](r *Reader, name string) (*tensor.Tensor[T], error) {
	t, err := archive.Load[T](r, name)
	if err != nil {
		return nil, err
	}
	return t.WithBackend(tensor.DefaultBackend()), nil
}
