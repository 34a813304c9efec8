package loader

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/born-ml/thpp/internal/iobuf"
	"github.com/born-ml/thpp/internal/serialization"
	"github.com/born-ml/thpp/internal/tensor"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

// MaxSafeTensorsHeaderSize bounds the JSON header.
const MaxSafeTensorsHeaderSize = 100 << 20

// ErrUnsupportedDType is returned for SafeTensors dtypes with no matching
// element type.
var ErrUnsupportedDType = errors.New("unsupported safetensors dtype")

// SafeTensorsDType represents a SafeTensors data type.
type SafeTensorsDType string

// SafeTensors dtypes.
const (
	SafeTensorsF16  SafeTensorsDType = "F16"
	SafeTensorsBF16 SafeTensorsDType = "BF16"
	SafeTensorsF32  SafeTensorsDType = "F32"
	SafeTensorsF64  SafeTensorsDType = "F64"
	SafeTensorsI8   SafeTensorsDType = "I8"
	SafeTensorsI16  SafeTensorsDType = "I16"
	SafeTensorsI32  SafeTensorsDType = "I32"
	SafeTensorsI64  SafeTensorsDType = "I64"
	SafeTensorsU8   SafeTensorsDType = "U8"
	SafeTensorsBool SafeTensorsDType = "BOOL"
)

// DataType returns the element type d is stored as. BOOL is read as Byte.
func (d SafeTensorsDType) DataType() (tensor.DataType, error) {
	switch d {
	case SafeTensorsU8, SafeTensorsBool:
		return tensor.Byte, nil
	case SafeTensorsI8:
		return tensor.Char, nil
	case SafeTensorsI16:
		return tensor.Short, nil
	case SafeTensorsI32:
		return tensor.Int, nil
	case SafeTensorsI64:
		return tensor.Long, nil
	case SafeTensorsF32:
		return tensor.Float, nil
	case SafeTensorsF64:
		return tensor.Double, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, d)
	}
}

// SafeTensorInfo describes a tensor in SafeTensors format.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int64          `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end)
}

// SafeTensorsHeader is the JSON header in SafeTensors format.
type SafeTensorsHeader struct {
	Metadata map[string]string
	Tensors  map[string]SafeTensorInfo
}

// UnmarshalJSON splits the "__metadata__" key from the tensor entries.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		delete(rawMap, "__metadata__")
	}

	h.Tensors = make(map[string]SafeTensorInfo, len(rawMap))
	for key, value := range rawMap {
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// SafeTensorsReader reads a SafeTensors file held in memory.
type SafeTensorsReader struct {
	base       *iobuf.Buf
	header     SafeTensorsHeader
	names      []string // ordered by data offset
	dataOffset int
}

// OpenSafeTensors reads the file at path.
func OpenSafeTensors(path string) (*SafeTensorsReader, error) {
	//nolint:gosec // G304: path is chosen by the caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	buf := iobuf.TakeOwnership(data, nil)
	defer buf.Release()
	return ParseSafeTensors(buf)
}

// ParseSafeTensors parses a SafeTensors file held in buf. The reader
// takes its own reference to buf.
func ParseSafeTensors(buf *iobuf.Buf) (*SafeTensorsReader, error) {
	data := buf.Bytes()
	if len(data) < 8 {
		return nil, fmt.Errorf("file too small: %d bytes", len(data))
	}
	headerSize := binary.LittleEndian.Uint64(data[:8])
	if headerSize > MaxSafeTensorsHeaderSize {
		return nil, fmt.Errorf("invalid header size: %d (too large)", headerSize)
	}
	if 8+headerSize > uint64(len(data)) {
		return nil, fmt.Errorf("header extends beyond file: %d > %d", 8+headerSize, len(data))
	}

	var header SafeTensorsHeader
	if err := json.Unmarshal(data[8:8+headerSize], &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	r := &SafeTensorsReader{
		header:     header,
		dataOffset: 8 + int(headerSize),
	}
	dataSize := int64(len(data) - r.dataOffset)
	for name, info := range header.Tensors {
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start || end > dataSize {
			return nil, fmt.Errorf("tensor %s: data offsets [%d, %d] outside data section of %d bytes",
				name, start, end, dataSize)
		}
		r.names = append(r.names, name)
	}
	slices.SortFunc(r.names, func(a, b string) int {
		return cmp.Compare(header.Tensors[a].DataOffsets[0], header.Tensors[b].DataOffsets[0])
	})

	r.base = buf.CloneOne()
	return r, nil
}

// Close drops the reader's reference to the file contents.
func (r *SafeTensorsReader) Close() error {
	if r.base != nil {
		r.base.Release()
		r.base = nil
	}
	return nil
}

// Metadata returns the metadata map from the header.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the tensor names in file order.
func (r *SafeTensorsReader) TensorNames() []string {
	return slices.Clone(r.names)
}

// TensorInfo returns information about a specific tensor.
func (r *SafeTensorsReader) TensorInfo(name string) (*SafeTensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	return &info, nil
}

// Wire returns name as an encoded tensor whose payload references the
// file contents.
func (r *SafeTensorsReader) Wire(name string) (*serialization.Wire, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	if r.base == nil {
		return nil, fmt.Errorf("tensor %s: reader is closed", name)
	}
	dtype, err := info.DType.DataType()
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	n := int64(1)
	for _, s := range info.Shape {
		if s < 0 {
			return nil, fmt.Errorf("tensor %s: negative dimension in shape %v", name, info.Shape)
		}
		n *= s
	}
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if want := n * int64(dtype.Size()); end-start != want {
		return nil, fmt.Errorf("tensor %s: shape %v needs %d bytes, data offsets span %d",
			name, info.Shape, want, end-start)
	}

	w := &serialization.Wire{
		DataType:   dtype,
		Endianness: serialization.Little,
		Sizes:      slices.Clone(info.Shape),
	}
	if end > start {
		w.Data = iobuf.Chain{r.base.PartialClone(r.dataOffset+int(start), int(end-start))}
	}
	return w, nil
}

// Load decodes name. The file bytes are managed, so under
// ShareIOBufManaged or ShareAll an aligned tensor references them.
func Load[T tensor.Element](r *SafeTensorsReader, name string, sharing serialization.SharingMode) (*tensor.Tensor[T], error) {
	w, err := r.Wire(name)
	if err != nil {
		return nil, err
	}
	defer w.Release()
	t, err := serialization.Decode[T](w, sharing)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return t, nil
}
