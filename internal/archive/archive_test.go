package archive

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/thpp/internal/serialization"
	"github.com/born-ml/thpp/internal/tensor"
)

func arange[T tensor.Element](t *testing.T, sizes ...int) *tensor.Tensor[T] {
	t.Helper()
	x, err := tensor.New[T](sizes, nil)
	require.NoError(t, err)
	for i := range x.Data() {
		x.Data()[i] = T(i % 100)
	}
	return x
}

// writeTestArchive writes weight (float32 3x4), a transposed int64 view
// and a scalar to a new archive.
func writeTestArchive(t *testing.T, opts WriterOptions) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.thpp")
	w, err := Create(path, opts)
	require.NoError(t, err)

	weight := arange[float32](t, 3, 4)
	require.NoError(t, Add(w, "weight", weight))

	ids := arange[int64](t, 2, 5)
	idsT, err := ids.Transpose(0, 1)
	require.NoError(t, err)
	require.NoError(t, Add(w, "ids_t", idsT))

	scalar, err := tensor.New[float64](nil, nil)
	require.NoError(t, err)
	scalar.Data()[0] = 2.5
	require.NoError(t, Add(w, "scale", scalar))

	w.SetMetadata("model", "test")
	require.NoError(t, w.Close())
	return path
}

func TestWriteAndRead(t *testing.T) {
	for _, useMmap := range []bool{false, true} {
		t.Run(map[bool]string{false: "buffered", true: "mmap"}[useMmap], func(t *testing.T) {
			path := writeTestArchive(t, WriterOptions{})
			r, err := Open(path, ReaderOptions{Mmap: useMmap, Sharing: serialization.ShareAll})
			require.NoError(t, err)
			defer r.Close()

			if runtime.GOOS != "windows" {
				assert.Equal(t, useMmap, r.Mapped())
			}
			assert.Equal(t, []string{"weight", "ids_t", "scale"}, r.Names())
			assert.Equal(t, map[string]string{"model": "test"}, r.Metadata())
			assert.Equal(t, FlagHasMetadata, r.Flags())

			info, err := r.Info("ids_t")
			require.NoError(t, err)
			assert.Equal(t, tensor.Long, info.DataType)
			assert.Equal(t, []int64{5, 2}, info.Sizes)
			assert.Equal(t, int64(80), info.Size)
			assert.Zero(t, info.Offset%DefaultAlignment)
			assert.Len(t, info.Digest, 32)

			weight, err := Load[float32](r, "weight")
			require.NoError(t, err)
			assert.True(t, weight.IsExactlyEqual(arange[float32](t, 3, 4)))

			ids, err := Load[int64](r, "ids_t")
			require.NoError(t, err)
			assert.Equal(t, []int64{0, 5, 1, 6, 2, 7, 3, 8, 4, 9}, ids.Values())

			scale, err := Load[float64](r, "scale")
			require.NoError(t, err)
			assert.Equal(t, 0, scale.Dims())
			assert.Equal(t, 2.5, scale.Front())

			require.NoError(t, r.Verify())
		})
	}
}

func TestLoadedTensorOutlivesReader(t *testing.T) {
	path := writeTestArchive(t, WriterOptions{})
	r, err := Open(path, ReaderOptions{Mmap: true, Sharing: serialization.ShareAll})
	require.NoError(t, err)

	weight, err := Load[float32](r, "weight")
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "closing twice is a no-op")

	// The tensor still references the file contents.
	assert.Equal(t, float32(11), weight.At(2, 3))
	weight.Set(-1, 0, 0)
	assert.Equal(t, float32(-1), weight.Front())

	_, err = r.Wire("weight")
	assert.ErrorIs(t, err, ErrClosed)

	// Writes went to a private mapping or a private copy, never the file.
	r2, err := Open(path, ReaderOptions{})
	require.NoError(t, err)
	defer r2.Close()
	again, err := Load[float32](r2, "weight")
	require.NoError(t, err)
	assert.Equal(t, float32(0), again.Front())
}

func TestWireSurvivesGrowthOfMappedTensor(t *testing.T) {
	path := writeTestArchive(t, WriterOptions{})
	r, err := Open(path, ReaderOptions{Mmap: true, Sharing: serialization.ShareAll})
	require.NoError(t, err)

	weight, err := Load[float32](r, "weight")
	require.NoError(t, err)
	wire, err := serialization.Encode(weight, serialization.Options{Sharing: serialization.ShareAll})
	require.NoError(t, err)
	defer wire.Release()
	want := append([]byte(nil), wire.Data.Bytes()...)
	require.NoError(t, r.Close())

	require.NoError(t, weight.Resize([]int{1 << 20}, nil))
	assert.Equal(t, float32(1), weight.At(1), "growth carries the elements over")

	// The wire still references the file contents.
	assert.Equal(t, want, wire.Data.Bytes())
}

func TestLoadWithShareNoneCopies(t *testing.T) {
	path := writeTestArchive(t, WriterOptions{})
	r, err := Open(path, ReaderOptions{Sharing: serialization.ShareNone})
	require.NoError(t, err)
	defer r.Close()

	a, err := Load[float32](r, "weight")
	require.NoError(t, err)
	a.Set(42, 0, 0)
	b, err := Load[float32](r, "weight")
	require.NoError(t, err)
	assert.Equal(t, float32(0), b.Front())
}

func TestCompressedArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zstd.thpp")
	w, err := Create(path, WriterOptions{Compression: serialization.CompressionZstd})
	require.NoError(t, err)
	big, err := tensor.New[float32]([]int{64, 64}, nil)
	require.NoError(t, err)
	require.NoError(t, Add(w, "zeros", big))
	require.NoError(t, w.Close())

	r, err := Open(path, ReaderOptions{Sharing: serialization.ShareAll})
	require.NoError(t, err)
	defer r.Close()

	info, err := r.Info("zeros")
	require.NoError(t, err)
	assert.Equal(t, serialization.CompressionZstd, info.Compression)
	assert.Less(t, info.Stored, info.Size)
	assert.Equal(t, FlagCompressed, r.Flags()&FlagCompressed)

	got, err := Load[float32](r, "zeros")
	require.NoError(t, err)
	assert.True(t, got.IsExactlyEqual(big))
}

func TestWriterErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.thpp")
	w, err := Create(path, WriterOptions{})
	require.NoError(t, err)
	x := arange[uint8](t, 4)

	require.NoError(t, Add(w, "x", x))
	assert.ErrorIs(t, Add(w, "x", x), ErrDuplicateTensor)

	var verr *ValidationError
	assert.ErrorAs(t, Add(w, "../escape", x), &verr)
	assert.Equal(t, 1, w.Len())

	assert.Equal(t, 2, x.Storage().RefCount(), "writer references the payload until Close")
	require.NoError(t, w.Close())
	assert.Equal(t, 1, x.Storage().RefCount())
	assert.ErrorIs(t, Add(w, "y", x), ErrClosed)
}

func TestReaderErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("not found", func(t *testing.T) {
		r, err := Open(writeTestArchive(t, WriterOptions{}), ReaderOptions{})
		require.NoError(t, err)
		defer r.Close()
		_, err = Load[float32](r, "missing")
		assert.ErrorIs(t, err, ErrTensorNotFound)
		_, err = Load[int32](r, "weight")
		assert.ErrorIs(t, err, serialization.ErrDataType)
	})

	t.Run("bad magic", func(t *testing.T) {
		path := filepath.Join(dir, "magic.thpp")
		require.NoError(t, os.WriteFile(path, []byte("NOPE0000000000000000000"), 0o600))
		_, err := Open(path, ReaderOptions{})
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("bad version", func(t *testing.T) {
		data := make([]byte, prefixSize)
		copy(data, MagicBytes)
		binary.LittleEndian.PutUint32(data[4:], 9)
		path := filepath.Join(dir, "version.thpp")
		require.NoError(t, os.WriteFile(path, data, 0o600))
		_, err := Open(path, ReaderOptions{Mmap: true})
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("header too large", func(t *testing.T) {
		data := make([]byte, prefixSize)
		copy(data, MagicBytes)
		binary.LittleEndian.PutUint32(data[4:], FormatVersion)
		binary.LittleEndian.PutUint64(data[12:], MaxHeaderSize+1)
		path := filepath.Join(dir, "huge.thpp")
		require.NoError(t, os.WriteFile(path, data, 0o600))
		_, err := Open(path, ReaderOptions{})
		assert.ErrorIs(t, err, ErrHeaderTooLarge)
	})

	t.Run("truncated data", func(t *testing.T) {
		path := writeTestArchive(t, WriterOptions{})
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data[:len(data)-4], 0o600))

		_, err = Open(path, ReaderOptions{})
		assert.ErrorIs(t, err, ErrOutOfBounds)

		r, err := Open(path, ReaderOptions{Validation: ValidationNormal})
		require.NoError(t, err)
		defer r.Close()
		_, err = r.Wire("scale")
		assert.ErrorIs(t, err, ErrOutOfBounds)
	})

	t.Run("corrupted payload", func(t *testing.T) {
		path := writeTestArchive(t, WriterOptions{})
		r, err := Open(path, ReaderOptions{})
		require.NoError(t, err)
		info, err := r.Info("weight")
		require.NoError(t, err)
		start := r.dataOffset + info.Offset
		require.NoError(t, r.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		data[start] ^= 0xff
		require.NoError(t, os.WriteFile(path, data, 0o600))

		r, err = Open(path, ReaderOptions{})
		require.NoError(t, err)
		defer r.Close()
		_, err = Load[float32](r, "weight")
		assert.ErrorIs(t, err, serialization.ErrChecksumMismatch)
		assert.ErrorIs(t, r.Verify(), serialization.ErrChecksumMismatch)

		r2, err := Open(path, ReaderOptions{SkipDigests: true})
		require.NoError(t, err)
		defer r2.Close()
		_, err = Load[float32](r2, "weight")
		assert.NoError(t, err)
	})
}

func TestEmptyArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.thpp")
	w, err := Create(path, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, Add(w, "nothing", tensor.Empty[int16]()))
	require.NoError(t, w.Close())

	r, err := Open(path, ReaderOptions{Mmap: true})
	require.NoError(t, err)
	defer r.Close()
	got, err := Load[int16](r, "nothing")
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}
