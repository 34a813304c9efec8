package serialization

import (
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a frame payload is stored. The numeric
// values are wire constants.
type Compression uint8

// Compression algorithms.
const (
	// CompressionNone stores the payload as is. Unmarshalled payloads then
	// reference the input bytes.
	CompressionNone Compression = 0
	// CompressionLZ4 is LZ4 block compression.
	CompressionLZ4 Compression = 1
	// CompressionZstd is zstd at the default level.
	CompressionZstd Compression = 2
	// CompressionSnappy is snappy block compression.
	CompressionSnappy Compression = 3
	// CompressionShuffleLZ4 groups the payload by byte position within
	// each element before LZ4. Neighbouring floats tend to share their
	// high-order bytes, which then compress well.
	CompressionShuffleLZ4 Compression = 4
)

// String returns the configuration name of the algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionSnappy:
		return "snappy"
	case CompressionShuffleLZ4:
		return "shuffle_lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression is the inverse of Compression.String.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "snappy":
		return CompressionSnappy, nil
	case "shuffle_lz4":
		return CompressionShuffleLZ4, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCompression, name)
	}
}

// errIncompressible is returned when compressed output would not be
// smaller than its input. Callers fall back to CompressionNone.
var errIncompressible = errors.New("data is incompressible")

// Compress compresses data with c. elemSize is the element width used by
// CompressionShuffleLZ4. For CompressionNone data is returned unchanged.
func Compress(data []byte, c Compression, elemSize int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	case CompressionSnappy:
		return compressSnappy(data)
	case CompressionShuffleLZ4:
		return compressLZ4(shuffle(data, elemSize))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, c)
	}
}

// Upper bounds on how far one stored byte can expand. A declared size
// beyond them is rejected before any output is allocated.
const (
	// An LZ4 length extension byte adds at most 255 bytes of output.
	maxLZ4Expansion = 255
	// A three byte snappy copy emits at most 64 bytes.
	maxSnappyExpansion = 22
)

// Decompress reverses Compress. The result must be exactly size bytes.
func Decompress(stored []byte, c Compression, elemSize, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative payload size %d", ErrCorrupt, size)
	}
	switch c {
	case CompressionNone:
		if len(stored) != size {
			return nil, fmt.Errorf("%w: stored %d bytes, expected %d", ErrCorrupt, len(stored), size)
		}
		return stored, nil
	case CompressionLZ4:
		return decompressLZ4(stored, size)
	case CompressionZstd:
		return decompressZstd(stored, size)
	case CompressionSnappy:
		return decompressSnappy(stored, size)
	case CompressionShuffleLZ4:
		shuffled, err := decompressLZ4(stored, size)
		if err != nil {
			return nil, err
		}
		return unshuffle(shuffled, elemSize), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, c)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock reports 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return dst[:written], nil
}

func decompressLZ4(stored []byte, size int) ([]byte, error) {
	if err := checkExpansion("lz4", stored, size, maxLZ4Expansion); err != nil {
		return nil, err
	}
	dst := make([]byte, size)
	read, err := lz4.UncompressBlock(stored, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4 decompress: %v", ErrCorrupt, err)
	}
	if read != size {
		return nil, fmt.Errorf("%w: lz4 decompress: got %d bytes, expected %d", ErrCorrupt, read, size)
	}
	return dst, nil
}

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("serialization: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("serialization: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

// decompressZstd trusts size for preallocation only when the frame header
// declares the same content size. Without one, output grows as decoded.
func decompressZstd(stored []byte, size int) ([]byte, error) {
	var hdr zstd.Header
	if err := hdr.Decode(stored); err != nil {
		return nil, fmt.Errorf("%w: zstd header: %v", ErrCorrupt, err)
	}
	var dst []byte
	if hdr.HasFCS {
		if hdr.FrameContentSize != uint64(size) {
			return nil, fmt.Errorf("%w: zstd frame holds %d bytes, expected %d", ErrCorrupt, hdr.FrameContentSize, size)
		}
		dst = make([]byte, 0, size)
	}
	result, err := zstdDecoder.DecodeAll(stored, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decompress: %v", ErrCorrupt, err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("%w: zstd decompress: got %d bytes, expected %d", ErrCorrupt, len(result), size)
	}
	return result, nil
}

func compressSnappy(data []byte) ([]byte, error) {
	compressed := snappy.Encode(nil, data)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressSnappy(stored []byte, size int) ([]byte, error) {
	n, err := snappy.DecodedLen(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: snappy decompress: %v", ErrCorrupt, err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: snappy decompress: got %d bytes, expected %d", ErrCorrupt, n, size)
	}
	if err := checkExpansion("snappy", stored, size, maxSnappyExpansion); err != nil {
		return nil, err
	}
	result, err := snappy.Decode(make([]byte, size), stored)
	if err != nil {
		return nil, fmt.Errorf("%w: snappy decompress: %v", ErrCorrupt, err)
	}
	return result, nil
}

func checkExpansion(name string, stored []byte, size, ratio int) error {
	if int64(size) > int64(len(stored))*int64(ratio)+int64(ratio) {
		return fmt.Errorf("%w: %s: %d stored bytes cannot hold %d bytes", ErrCorrupt, name, len(stored), size)
	}
	return nil
}

// shuffle rearranges data so that byte 0 of every element comes first,
// then byte 1, and so on. Trailing bytes that do not form a whole element
// are appended unchanged.
func shuffle(data []byte, elemSize int) []byte {
	if elemSize <= 1 {
		return data
	}
	groups := len(data) / elemSize
	out := make([]byte, len(data))
	for i := 0; i < groups; i++ {
		for b := 0; b < elemSize; b++ {
			out[b*groups+i] = data[i*elemSize+b]
		}
	}
	copy(out[groups*elemSize:], data[groups*elemSize:])
	return out
}

func unshuffle(data []byte, elemSize int) []byte {
	if elemSize <= 1 {
		return data
	}
	groups := len(data) / elemSize
	out := make([]byte, len(data))
	for i := 0; i < groups; i++ {
		for b := 0; b < elemSize; b++ {
			out[i*elemSize+b] = data[b*groups+i]
		}
	}
	copy(out[groups*elemSize:], data[groups*elemSize:])
	return out
}
