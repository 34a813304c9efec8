package serialization

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/born-ml/thpp/internal/iobuf"
	"github.com/born-ml/thpp/internal/tensor"
)

// FrameVersion is the frame header version written by Marshal.
const FrameVersion = 1

// FrameOptions configures Marshal.
type FrameOptions struct {
	// Compression is tried on the payload; incompressible payloads are
	// stored as is.
	Compression Compression
	// SkipDigest omits the payload digest.
	SkipDigest bool
}

// frameHeader precedes the stored payload bytes in a frame. Length is the
// payload size after decompression, Stored its size in the frame.
type frameHeader struct {
	Version     int             `cbor:"v"`
	DataType    tensor.DataType `cbor:"dtype"`
	Endianness  Endianness      `cbor:"endian"`
	Sizes       []int64         `cbor:"sizes"`
	Compression Compression     `cbor:"comp"`
	Length      int64           `cbor:"len"`
	Stored      int64           `cbor:"stored"`
	Digest      []byte          `cbor:"sum,omitempty"`
}

// CBOR modes: Core Deterministic Encoding so equal wires produce equal
// frames; unknown header fields are ignored on decode.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("serialization: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("serialization: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalCBOR encodes v with the package's deterministic CBOR mode.
func MarshalCBOR(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// UnmarshalFirstCBOR decodes the first CBOR item of data into v and
// returns the bytes that follow it.
func UnmarshalFirstCBOR(data []byte, v any) ([]byte, error) {
	return decMode.UnmarshalFirst(data, v)
}

// Digest returns the BLAKE3-256 digest of the chain's bytes.
func Digest(c iobuf.Chain) [32]byte {
	h := blake3.New()
	for _, seg := range c {
		_, _ = h.Write(seg.Bytes())
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// Pack compresses and digests the payload of w. The returned chain holds
// the stored bytes; for CompressionNone it references w's segments.
// The compression actually applied is returned, which is
// CompressionNone when the payload did not shrink.
func Pack(w *Wire, opts FrameOptions) (stored iobuf.Chain, comp Compression, digest []byte, err error) {
	if !opts.SkipDigest {
		sum := Digest(w.Data)
		digest = sum[:]
	}
	comp = opts.Compression
	if comp == CompressionNone || w.Len() == 0 {
		return cloneChain(w.Data), CompressionNone, digest, nil
	}
	packed, err := Compress(w.Data.Bytes(), comp, w.DataType.Size())
	if err != nil {
		if err == errIncompressible {
			return cloneChain(w.Data), CompressionNone, digest, nil
		}
		return nil, 0, nil, err
	}
	return iobuf.Chain{iobuf.TakeOwnership(packed, nil)}, comp, digest, nil
}

// Unpack reverses Pack: it decompresses stored into a payload of length
// bytes and verifies digest when one is present. For CompressionNone the
// payload references stored.
func Unpack(stored *iobuf.Buf, comp Compression, elemSize, length int, digest []byte) (iobuf.Chain, error) {
	var payload iobuf.Chain
	if comp == CompressionNone {
		if stored.Len() != length {
			return nil, fmt.Errorf("%w: stored %d bytes, expected %d", ErrCorrupt, stored.Len(), length)
		}
		payload = iobuf.Chain{stored.CloneOne()}
	} else {
		raw, err := Decompress(stored.Bytes(), comp, elemSize, length)
		if err != nil {
			return nil, err
		}
		payload = iobuf.Chain{iobuf.TakeOwnership(raw, nil)}
	}
	if len(digest) > 0 {
		sum := Digest(payload)
		if !bytes.Equal(sum[:], digest) {
			payload.Release()
			return nil, ErrChecksumMismatch
		}
	}
	return payload, nil
}

func cloneChain(c iobuf.Chain) iobuf.Chain {
	out := make(iobuf.Chain, len(c))
	for i, seg := range c {
		out[i] = seg.CloneOne()
	}
	return out
}

// MarshalChain frames w as a header segment followed by the stored
// payload segments. Uncompressed payload segments reference w's.
func MarshalChain(w *Wire, opts FrameOptions) (iobuf.Chain, error) {
	stored, comp, digest, err := Pack(w, opts)
	if err != nil {
		return nil, err
	}
	hdr, err := encMode.Marshal(frameHeader{
		Version:     FrameVersion,
		DataType:    w.DataType,
		Endianness:  w.Endianness,
		Sizes:       w.Sizes,
		Compression: comp,
		Length:      int64(w.Len()),
		Stored:      int64(stored.Len()),
		Digest:      digest,
	})
	if err != nil {
		stored.Release()
		return nil, fmt.Errorf("marshal frame header: %w", err)
	}
	return append(iobuf.Chain{iobuf.TakeOwnership(hdr, nil)}, stored...), nil
}

// Marshal frames w into a single byte slice.
func Marshal(w *Wire, opts FrameOptions) ([]byte, error) {
	c, err := MarshalChain(w, opts)
	if err != nil {
		return nil, err
	}
	defer c.Release()
	return c.Bytes(), nil
}

// WriteFrame frames w onto dst without linearizing the payload.
func WriteFrame(dst io.Writer, w *Wire, opts FrameOptions) (int64, error) {
	c, err := MarshalChain(w, opts)
	if err != nil {
		return 0, err
	}
	defer c.Release()
	return c.WriteTo(dst)
}

// Unmarshal parses a frame. An uncompressed payload references b, which
// must stay valid and unmodified while the wire or any tensor decoded
// from it under ShareAll is in use.
func Unmarshal(b []byte) (*Wire, error) {
	buf := iobuf.Wrap(b)
	defer buf.Release()
	return UnmarshalBuf(buf)
}

// UnmarshalBuf parses a frame held in buf. An uncompressed payload
// references buf's block.
func UnmarshalBuf(buf *iobuf.Buf) (*Wire, error) {
	var hdr frameHeader
	rest, err := decMode.UnmarshalFirst(buf.Bytes(), &hdr)
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if hdr.Version != FrameVersion {
		return nil, fmt.Errorf("%w: frame version %d", ErrCorrupt, hdr.Version)
	}
	if !hdr.DataType.Valid() {
		return nil, fmt.Errorf("%w: unknown data type %d", ErrDataType, int(hdr.DataType))
	}
	if hdr.Length < 0 || hdr.Stored < 0 || hdr.Stored != int64(len(rest)) {
		return nil, fmt.Errorf("%w: header declares %d stored bytes, frame has %d", ErrCorrupt, hdr.Stored, len(rest))
	}
	want, err := PayloadLen(hdr.DataType, hdr.Sizes)
	if err != nil {
		return nil, err
	}
	empty := len(hdr.Sizes) == 0 && hdr.Length == 0
	if (hdr.Length != want && !empty) || want > math.MaxInt {
		return nil, fmt.Errorf("%w: header declares %d payload bytes for sizes %v (%d bytes)",
			ErrCorrupt, hdr.Length, hdr.Sizes, want)
	}

	stored := buf.PartialClone(buf.Len()-len(rest), len(rest))
	defer stored.Release()
	payload, err := Unpack(stored, hdr.Compression, hdr.DataType.Size(), int(hdr.Length), hdr.Digest)
	if err != nil {
		return nil, err
	}
	return &Wire{
		DataType:   hdr.DataType,
		Endianness: hdr.Endianness,
		Sizes:      hdr.Sizes,
		Data:       payload,
	}, nil
}
