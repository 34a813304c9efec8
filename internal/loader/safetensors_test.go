package loader

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/thpp/internal/iobuf"
	"github.com/born-ml/thpp/internal/serialization"
	"github.com/born-ml/thpp/internal/tensor"
)

// buildSafeTensors returns a SafeTensors file holding weight (F32 [2,3]),
// bias (F32 [3]) and ids (I64 [2]). The header is padded so the data
// section starts 8-byte aligned.
func buildSafeTensors(t *testing.T) []byte {
	t.Helper()
	headerMap := map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"weight":       SafeTensorInfo{DType: SafeTensorsF32, Shape: []int64{2, 3}, DataOffsets: [2]int64{0, 24}},
		"bias":         SafeTensorInfo{DType: SafeTensorsF32, Shape: []int64{3}, DataOffsets: [2]int64{24, 36}},
		"ids":          SafeTensorInfo{DType: SafeTensorsI64, Shape: []int64{2}, DataOffsets: [2]int64{40, 56}},
	}
	headerJSON, err := json.Marshal(headerMap)
	require.NoError(t, err)
	for (8+len(headerJSON))%8 != 0 {
		headerJSON = append(headerJSON, ' ')
	}

	file := binary.LittleEndian.AppendUint64(nil, uint64(len(headerJSON)))
	file = append(file, headerJSON...)
	for _, v := range []float32{1, 2, 3, 4, 5, 6, 0.1, 0.2, 0.3} {
		file = binary.LittleEndian.AppendUint32(file, math.Float32bits(v))
	}
	file = append(file, 0, 0, 0, 0)
	for _, v := range []int64{7, -9} {
		file = binary.LittleEndian.AppendUint64(file, uint64(v))
	}
	return file
}

func openTestFile(t *testing.T) *SafeTensorsReader {
	t.Helper()
	if serialization.HostEndianness != serialization.Little {
		t.Skip("safetensors payloads are little-endian")
	}
	path := filepath.Join(t.TempDir(), "test.safetensors")
	require.NoError(t, os.WriteFile(path, buildSafeTensors(t), 0o600))
	r, err := OpenSafeTensors(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestOpenSafeTensors(t *testing.T) {
	r := openTestFile(t)
	assert.Equal(t, map[string]string{"format": "pt"}, r.Metadata())
	assert.Equal(t, []string{"weight", "bias", "ids"}, r.TensorNames())

	info, err := r.TensorInfo("weight")
	require.NoError(t, err)
	assert.Equal(t, SafeTensorsF32, info.DType)
	assert.Equal(t, []int64{2, 3}, info.Shape)

	_, err = r.TensorInfo("nonexistent")
	assert.Error(t, err)
}

func TestSafeTensorsLoad(t *testing.T) {
	r := openTestFile(t)

	weight, err := Load[float32](r, "weight", serialization.ShareIOBufManaged)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, weight.Sizes())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, weight.Values())
	assert.True(t, weight.Storage().IsManaged(), "aligned payload references the file buffer")

	bias, err := Load[float32](r, "bias", serialization.ShareNone)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, bias.Values(), 1e-6)

	ids, err := Load[int64](r, "ids", serialization.ShareAll)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, -9}, ids.Values())

	_, err = Load[float64](r, "ids", serialization.ShareAll)
	assert.ErrorIs(t, err, serialization.ErrDataType)
}

func TestSafeTensorsWireReferencesFile(t *testing.T) {
	file := buildSafeTensors(t)
	freed := false
	buf := iobuf.TakeOwnership(file, func() { freed = true })
	r, err := ParseSafeTensors(buf)
	require.NoError(t, err)
	buf.Release()

	w, err := r.Wire("weight")
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.False(t, freed, "wire holds the file buffer")
	assert.Equal(t, serialization.Little, w.Endianness)
	assert.Equal(t, 24, w.Len())

	w.Release()
	assert.True(t, freed)

	_, err = r.Wire("weight")
	assert.Error(t, err)
}

func TestParseSafeTensorsErrors(t *testing.T) {
	good := buildSafeTensors(t)
	headerLen := binary.LittleEndian.Uint64(good)

	tests := []struct {
		name string
		data []byte
	}{
		{"too small", []byte{1, 2, 3}},
		{"huge header", binary.LittleEndian.AppendUint64(nil, MaxSafeTensorsHeaderSize+1)},
		{"header past end", binary.LittleEndian.AppendUint64(nil, 64)},
		{"bad json", append(binary.LittleEndian.AppendUint64(nil, 2), '{', '[')},
		{"truncated data", good[:8+headerLen+30]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := iobuf.Wrap(tt.data)
			defer buf.Release()
			_, err := ParseSafeTensors(buf)
			assert.Error(t, err)
		})
	}
}

func TestSafeTensorsDType(t *testing.T) {
	tests := []struct {
		in   SafeTensorsDType
		want tensor.DataType
	}{
		{SafeTensorsU8, tensor.Byte},
		{SafeTensorsBool, tensor.Byte},
		{SafeTensorsI8, tensor.Char},
		{SafeTensorsI16, tensor.Short},
		{SafeTensorsI32, tensor.Int},
		{SafeTensorsI64, tensor.Long},
		{SafeTensorsF32, tensor.Float},
		{SafeTensorsF64, tensor.Double},
	}
	for _, tt := range tests {
		got, err := tt.in.DataType()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
	for _, d := range []SafeTensorsDType{SafeTensorsF16, SafeTensorsBF16, "C64"} {
		_, err := d.DataType()
		assert.ErrorIs(t, err, ErrUnsupportedDType)
	}
}
