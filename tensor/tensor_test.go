// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/thpp/tensor"
)

func TestConstructorsAttachBackend(t *testing.T) {
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	require.NotNil(t, x.Backend())
	assert.Equal(t, "CPU", x.Backend().Name())

	col, err := x.Select(1, 2)
	require.NoError(t, err)
	require.NoError(t, col.Mul(10))
	assert.Equal(t, []float32{1, 2, 30, 4, 5, 60}, x.Values())

	sum, err := x.Sum()
	require.NoError(t, err)
	assert.InDelta(t, 102.0, sum, 1e-9)

	y, err := tensor.New[int64](tensor.Shape{2, 2}, []int{1, 2})
	require.NoError(t, err)
	assert.False(t, y.IsContiguous())
	require.NoError(t, y.Add(3))
	maxv, err := y.MaxAll()
	require.NoError(t, err)
	assert.Equal(t, int64(3), maxv)

	assert.Same(t, tensor.DefaultBackend(), tensor.Empty[int8]().Backend())
}

func TestFromSliceShapeMismatch(t *testing.T) {
	_, err := tensor.FromSlice([]int32{1, 2, 3}, tensor.Shape{2, 2})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestDataTypes(t *testing.T) {
	assert.Equal(t, tensor.Float, tensor.DataTypeOf[float32]())
	assert.Equal(t, tensor.Long, tensor.DataTypeOf[int64]())
	dt, err := tensor.ParseDataType("int16")
	require.NoError(t, err)
	assert.Equal(t, tensor.Short, dt)
	assert.True(t, tensor.IsContiguous([]int{2, 1, 3}, []int{3, 99, 1}))
}

func TestSerializeRoundTrip(t *testing.T) {
	x, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	xt, err := x.Transpose(0, 1)
	require.NoError(t, err)

	for _, c := range []tensor.Compression{tensor.CompressionNone, tensor.CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			frame, err := tensor.Serialize(xt, tensor.SerializeOptions{Compression: c})
			require.NoError(t, err)

			y, err := tensor.Deserialize[float64](frame, tensor.ShareNone)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{3, 2}, y.Sizes())
			assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, y.Values())
			assert.NotNil(t, y.Backend())

			_, err = tensor.Deserialize[float32](frame, tensor.ShareNone)
			assert.ErrorIs(t, err, tensor.ErrDataType)
		})
	}
}

func TestWriteToMatchesSerialize(t *testing.T) {
	x, err := tensor.New[int32](tensor.Shape{64, 64}, nil)
	require.NoError(t, err)
	x.Fill(7)
	opts := tensor.SerializeOptions{Sharing: tensor.ShareIOBufManaged}

	var buf bytes.Buffer
	n, err := tensor.WriteTo(&buf, x, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	frame, err := tensor.Serialize(x, opts)
	require.NoError(t, err)
	assert.Equal(t, frame, buf.Bytes())
	assert.Equal(t, 1, x.Storage().RefCount(), "frame references are released")
}

func TestSerializeRejectsForeignEndianness(t *testing.T) {
	x, err := tensor.FromSlice([]int16{1, 2}, tensor.Shape{2})
	require.NoError(t, err)
	foreign := tensor.Big
	if tensor.HostEndianness == tensor.Big {
		foreign = tensor.Little
	}
	_, err = tensor.Serialize(x, tensor.SerializeOptions{Endianness: foreign})
	assert.ErrorIs(t, err, tensor.ErrUnsupportedEndianness)
}

func TestDeserializeCorrupt(t *testing.T) {
	_, err := tensor.Deserialize[uint8]([]byte{0x01, 0x02}, tensor.ShareAll)
	assert.ErrorIs(t, err, tensor.ErrCorrupt)
}

func TestParseNames(t *testing.T) {
	m, err := tensor.ParseSharingMode("all")
	require.NoError(t, err)
	assert.Equal(t, tensor.ShareAll, m)
	c, err := tensor.ParseCompression("lz4")
	require.NoError(t, err)
	assert.Equal(t, tensor.CompressionLZ4, c)
}

func TestCreation(t *testing.T) {
	a, err := tensor.Arange[int64](0, 6)
	require.NoError(t, err)
	sum, err := a.Sum()
	require.NoError(t, err)
	assert.Equal(t, 15.0, sum)

	f, err := tensor.Full[float32](tensor.Shape{2, 2}, 0.5)
	require.NoError(t, err)
	o, err := tensor.Ones[float32](tensor.Shape{2, 2})
	require.NoError(t, err)
	require.NoError(t, f.CAdd(2, o))
	assert.Equal(t, []float32{2.5, 2.5, 2.5, 2.5}, f.Values())

	z, err := tensor.Zeros[uint8](tensor.Shape{3})
	require.NoError(t, err)
	assert.NotNil(t, z.Backend())
}
