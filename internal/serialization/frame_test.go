package serialization

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/thpp/internal/iobuf"
	"github.com/born-ml/thpp/internal/tensor"
)

// smooth returns values whose bytes compress well under every algorithm.
func smooth(t *testing.T, n int) *tensor.Tensor[float32] {
	t.Helper()
	x, err := tensor.New[float32]([]int{n}, nil)
	require.NoError(t, err)
	for i := range x.Data() {
		x.Data()[i] = float32(i / 64)
	}
	return x
}

func TestFrameRoundTrip(t *testing.T) {
	compressions := []Compression{
		CompressionNone, CompressionLZ4, CompressionZstd, CompressionSnappy, CompressionShuffleLZ4,
	}
	x := smooth(t, 4096)
	xt, err := x.Unfold(0, 64, 64)
	require.NoError(t, err)
	view := xt.TransposeAll()

	for _, c := range compressions {
		t.Run(c.String(), func(t *testing.T) {
			w, err := Encode(view, DefaultOptions())
			require.NoError(t, err)
			defer w.Release()

			frame, err := Marshal(w, FrameOptions{Compression: c})
			require.NoError(t, err)
			if c != CompressionNone {
				assert.Less(t, len(frame), w.Len(), "payload compressed")
			}

			got, err := Unmarshal(frame)
			require.NoError(t, err)
			defer got.Release()
			assert.Equal(t, w.Sizes, got.Sizes)
			assert.Equal(t, tensor.Float, got.DataType)

			y, err := Decode[float32](got, ShareNone)
			require.NoError(t, err)
			assert.True(t, y.IsExactlyEqual(view))
		})
	}
}

func TestFrameIncompressibleFallsBackToNone(t *testing.T) {
	x, err := tensor.FromSlice([]uint8{7, 1, 200, 13}, []int{4})
	require.NoError(t, err)
	w, err := Encode(x, DefaultOptions())
	require.NoError(t, err)
	defer w.Release()

	stored, comp, digest, err := Pack(w, FrameOptions{Compression: CompressionZstd})
	require.NoError(t, err)
	defer stored.Release()
	assert.Equal(t, CompressionNone, comp)
	assert.Len(t, digest, 32)
	assert.True(t, stored[0].SharesWith(w.Data[0]), "uncompressed payload is referenced, not copied")
}

func TestUnmarshalAliasesUncompressedPayload(t *testing.T) {
	x, err := tensor.FromSlice([]int64{1, 2, 3, 4}, []int{2, 2})
	require.NoError(t, err)
	w, err := Encode(x, DefaultOptions())
	require.NoError(t, err)
	defer w.Release()

	var buf bytes.Buffer
	n, err := WriteFrame(&buf, w, FrameOptions{SkipDigest: true})
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	// Reallocate so the payload is 8-byte aligned at the tail of the frame.
	frame := buf.Bytes()
	pad := (8 - (len(frame)-32)%8) % 8
	raw := make([]byte, pad+len(frame))
	copy(raw[pad:], frame)
	frame = raw[pad:]

	got, err := Unmarshal(frame)
	require.NoError(t, err)
	defer got.Release()
	y, err := Decode[int64](got, ShareAll)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, y.Values())

	// The decoded tensor views the frame bytes.
	y.Set(99, 0, 0)
	z, err := Unmarshal(frame)
	require.NoError(t, err)
	defer z.Release()
	again, err := Decode[int64](z, ShareNone)
	require.NoError(t, err)
	assert.Equal(t, int64(99), again.Front())

	// Borrowed frame memory is copied under ShareIOBufManaged.
	copied, err := Decode[int64](z, ShareIOBufManaged)
	require.NoError(t, err)
	copied.Set(5, 0, 0)
	assert.Equal(t, int64(99), y.Front())
}

func TestUnmarshalDetectsCorruption(t *testing.T) {
	x := smooth(t, 256)
	w, err := Encode(x, DefaultOptions())
	require.NoError(t, err)
	defer w.Release()

	frame, err := Marshal(w, FrameOptions{})
	require.NoError(t, err)

	t.Run("payload bit flip", func(t *testing.T) {
		bad := append([]byte(nil), frame...)
		bad[len(bad)-1] ^= 1
		_, err := Unmarshal(bad)
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Unmarshal(frame[:len(frame)-4])
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := Unmarshal([]byte{0xff, 0x00, 0x13})
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("compressed payload bit flip", func(t *testing.T) {
		compressed, err := Marshal(w, FrameOptions{Compression: CompressionLZ4})
		require.NoError(t, err)
		compressed[len(compressed)-2] ^= 0x40
		_, err = Unmarshal(compressed)
		assert.Error(t, err)
	})
}

// rawFrame builds a frame from a hand-written header and stored bytes.
func rawFrame(t *testing.T, hdr frameHeader, stored []byte) []byte {
	t.Helper()
	hdr.Version = FrameVersion
	hdr.Stored = int64(len(stored))
	b, err := MarshalCBOR(hdr)
	require.NoError(t, err)
	return append(b, stored...)
}

func TestUnmarshalRejectsImplausibleLength(t *testing.T) {
	x := smooth(t, 4096)
	packed, err := Compress(x.Storage().Bytes(), CompressionZstd, 4)
	require.NoError(t, err)
	huge := []int64{1 << 40}

	tests := []struct {
		name   string
		hdr    frameHeader
		stored []byte
	}{
		{
			name:   "zstd tiny stream",
			hdr:    frameHeader{DataType: tensor.Float, Sizes: huge, Compression: CompressionZstd, Length: 4 << 40},
			stored: []byte{1, 2, 3, 4},
		},
		{
			name:   "zstd content size disagrees",
			hdr:    frameHeader{DataType: tensor.Float, Sizes: []int64{1 << 30}, Compression: CompressionZstd, Length: 4 << 30},
			stored: packed,
		},
		{
			name:   "lz4",
			hdr:    frameHeader{DataType: tensor.Float, Sizes: huge, Compression: CompressionLZ4, Length: 4 << 40},
			stored: []byte{0xff, 0xff, 0xff, 0xff},
		},
		{
			name:   "shuffle lz4",
			hdr:    frameHeader{DataType: tensor.Double, Sizes: huge, Compression: CompressionShuffleLZ4, Length: 8 << 40},
			stored: []byte{0x1f, 0, 0, 0},
		},
		{
			name:   "snappy",
			hdr:    frameHeader{DataType: tensor.Byte, Sizes: []int64{1 << 31}, Compression: CompressionSnappy, Length: 1 << 31},
			stored: []byte{0x80, 0x80, 0x80, 0x80, 0x08},
		},
		{
			name:   "length disagrees with sizes",
			hdr:    frameHeader{DataType: tensor.Float, Sizes: []int64{4}, Compression: CompressionZstd, Length: 4 << 40},
			stored: []byte{1, 2, 3, 4},
		},
		{
			name:   "overflowing sizes",
			hdr:    frameHeader{DataType: tensor.Long, Sizes: []int64{1 << 40, 1 << 40}, Compression: CompressionLZ4, Length: 0},
			stored: []byte{0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(rawFrame(t, tt.hdr, tt.stored))
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestDecompressBoundsExpansion(t *testing.T) {
	_, err := Decompress([]byte{0x00}, CompressionLZ4, 1, 1<<30)
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = Decompress(nil, CompressionZstd, 1, 16)
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = Decompress([]byte{1}, CompressionSnappy, 1, -1)
	assert.ErrorIs(t, err, ErrCorrupt)

	data := bytes.Repeat([]byte{9}, 1<<16)
	for _, c := range []Compression{CompressionLZ4, CompressionZstd, CompressionSnappy} {
		packed, err := Compress(data, c, 1)
		require.NoError(t, err, c.String())
		got, err := Decompress(packed, c, 1, len(data))
		require.NoError(t, err, c.String())
		assert.Equal(t, data, got, c.String())
	}
}

func TestUnmarshalBufKeepsBlockAlive(t *testing.T) {
	x := smooth(t, 16)
	w, err := Encode(x, DefaultOptions())
	require.NoError(t, err)
	frame, err := Marshal(w, FrameOptions{})
	require.NoError(t, err)
	w.Release()

	freed := false
	buf := iobuf.TakeOwnership(frame, func() { freed = true })
	got, err := UnmarshalBuf(buf)
	require.NoError(t, err)
	buf.Release()
	assert.False(t, freed, "payload segment holds the frame block")

	got.Release()
	assert.True(t, freed)
}

func TestCompressionNames(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd, CompressionSnappy, CompressionShuffleLZ4} {
		parsed, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrUnsupportedCompression)

	_, err = Decompress([]byte{1}, Compression(42), 1, 1)
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestShuffle(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	shuffled := shuffle(data, 4)
	assert.Equal(t, []byte{1, 5, 2, 6, 3, 7, 4, 8, 9, 10, 11}, shuffled)
	assert.Equal(t, data, unshuffle(shuffled, 4))
}

func TestSharingModeNames(t *testing.T) {
	for _, m := range []SharingMode{ShareNone, ShareIOBufManaged, ShareAll} {
		parsed, err := ParseSharingMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseSharingMode("sometimes")
	assert.Error(t, err)

	managed := iobuf.New(8)
	borrowed := iobuf.Wrap(make([]byte, 8))
	assert.False(t, ShareNone.ShouldShare(managed))
	assert.True(t, ShareIOBufManaged.ShouldShare(managed))
	assert.False(t, ShareIOBufManaged.ShouldShare(borrowed))
	assert.True(t, ShareAll.ShouldShare(borrowed))
}
