package archive

import (
	"time"

	"github.com/born-ml/thpp/internal/serialization"
	"github.com/born-ml/thpp/internal/tensor"
)

// Format constants.
const (
	MagicBytes       = "THPP"
	FormatVersion    = 1
	DefaultAlignment = 64 // payload alignment, enough for any element type
	prefixSize       = 4 + 4 + 4 + 8
)

// Flags for the archive format.
const (
	FlagCompressed  uint32 = 1 << 0 // at least one payload is compressed
	FlagHasMetadata uint32 = 1 << 1 // custom metadata included
)

// Header is the CBOR header of an archive file.
type Header struct {
	Version   int               `cbor:"version"`
	Alignment int               `cbor:"alignment"`
	Created   time.Time         `cbor:"created"`
	Metadata  map[string]string `cbor:"metadata,omitempty"`
	Tensors   []Entry           `cbor:"tensors"`
}

// Entry describes one stored tensor. Offset is relative to the start of
// the data section; Size is the decoded payload length and Stored the
// number of bytes in the file.
type Entry struct {
	Name        string                    `cbor:"name"`
	DataType    tensor.DataType           `cbor:"dtype"`
	Endianness  serialization.Endianness  `cbor:"endian"`
	Sizes       []int64                   `cbor:"sizes"`
	Offset      int64                     `cbor:"offset"`
	Size        int64                     `cbor:"size"`
	Stored      int64                     `cbor:"stored"`
	Compression serialization.Compression `cbor:"comp"`
	Digest      []byte                    `cbor:"sum,omitempty"`
}

// NumElements returns the element count implied by the entry's sizes.
func (e *Entry) NumElements() int64 {
	n := int64(1)
	for _, s := range e.Sizes {
		n *= s
	}
	return n
}

// alignUp rounds n up to a multiple of align.
func alignUp(n, align int64) int64 {
	return (n + align - 1) / align * align
}
