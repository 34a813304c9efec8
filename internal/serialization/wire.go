package serialization

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/born-ml/thpp/internal/iobuf"
	"github.com/born-ml/thpp/internal/tensor"
)

// Codec defaults.
const (
	// DefaultMinCloneSize is the smallest run emitted by reference.
	DefaultMinCloneSize = 4 << 10
	// DefaultMaxBlockSize bounds the blocks that copied runs are packed into.
	DefaultMaxBlockSize = 2 << 20
)

// Endianness is the byte order of a wire payload. The numeric values are
// wire constants.
type Endianness int

// Byte orders.
const (
	Native Endianness = 0
	Little Endianness = 1
	Big    Endianness = 2
)

// HostEndianness is the byte order of the running machine.
var HostEndianness = func() Endianness {
	if binary.NativeEndian.Uint16([]byte{1, 0}) == 1 {
		return Little
	}
	return Big
}()

// String returns the name of the byte order.
func (e Endianness) String() string {
	switch e {
	case Native:
		return "native"
	case Little:
		return "little"
	case Big:
		return "big"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// resolve maps Native to the host order and rejects any other order.
func (e Endianness) resolve() (Endianness, error) {
	switch e {
	case Native, HostEndianness:
		return HostEndianness, nil
	case Little, Big:
		return 0, fmt.Errorf("%w: %s on a %s-endian host", ErrUnsupportedEndianness, e, HostEndianness)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedEndianness, e)
	}
}

// Wire is the serialized form of a tensor. Data holds the payload in
// row-major element order; its segments may alias the storage of the
// tensor it was encoded from.
type Wire struct {
	DataType   tensor.DataType
	Endianness Endianness
	Sizes      []int64
	Data       iobuf.Chain
}

// PayloadLen returns the payload length in bytes of a tensor of dt with
// the given sizes. An empty tensor also travels with no sizes, but with
// no payload; callers accept that pair separately.
func PayloadLen(dt tensor.DataType, sizes []int64) (int64, error) {
	n := int64(dt.Size())
	for i, s := range sizes {
		if s < 0 {
			return 0, fmt.Errorf("%w: invalid size %d in dimension %d", ErrCorrupt, s, i)
		}
		if s != 0 && n > math.MaxInt64/s {
			return 0, fmt.Errorf("%w: sizes %v overflow", ErrCorrupt, sizes)
		}
		n *= s
	}
	return n, nil
}

// Len returns the payload length in bytes.
func (w *Wire) Len() int {
	return w.Data.Len()
}

// WriteTo writes the payload segments to dst without linearizing them.
func (w *Wire) WriteTo(dst io.Writer) (int64, error) {
	return w.Data.WriteTo(dst)
}

// Release drops the payload segments, letting aliased storage go.
func (w *Wire) Release() {
	w.Data.Release()
	w.Data = nil
}

// Options configures Encode.
type Options struct {
	// Endianness is the requested payload byte order. Only Native and the
	// host order are supported.
	Endianness Endianness
	// Sharing decides whether payload segments may alias tensor storage.
	Sharing SharingMode
	// MinCloneSize is the smallest run, in bytes, that may be emitted by
	// reference when the tensor is not fully contiguous.
	MinCloneSize int
	// MaxBlockSize bounds each block that copied runs are packed into.
	MaxBlockSize int
	// Logger receives debug records; nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Endianness:   Native,
		Sharing:      ShareIOBufManaged,
		MinCloneSize: DefaultMinCloneSize,
		MaxBlockSize: DefaultMaxBlockSize,
	}
}

func (o Options) minCloneSize() int {
	if o.MinCloneSize <= 0 {
		return DefaultMinCloneSize
	}
	return o.MinCloneSize
}

func (o Options) maxBlockSize() int {
	if o.MaxBlockSize <= 0 {
		return DefaultMaxBlockSize
	}
	return o.MaxBlockSize
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}
