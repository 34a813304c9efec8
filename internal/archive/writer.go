package archive

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/born-ml/thpp/internal/iobuf"
	"github.com/born-ml/thpp/internal/serialization"
	"github.com/born-ml/thpp/internal/tensor"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Compression is tried on every payload.
	Compression serialization.Compression
	// Alignment of each payload in the file; 0 means DefaultAlignment.
	Alignment int
	// SkipDigest omits payload digests.
	SkipDigest bool
	// Metadata is stored in the header.
	Metadata map[string]string
	// Logger receives debug records; nil discards them.
	Logger *slog.Logger
}

// Writer collects tensors and writes them to a file on Close.
//
// Added tensors are referenced, not copied: their payloads are read when
// Close runs, so they must not be modified in between.
type Writer struct {
	file    *os.File
	opts    WriterOptions
	log     *slog.Logger
	entries []Entry
	stored  []iobuf.Chain
	names   map[string]struct{}
	next    int64 // next free offset in the data section
	closed  bool
}

// Create creates the file at path and returns a writer for it.
func Create(path string, opts WriterOptions) (*Writer, error) {
	if opts.Alignment <= 0 {
		opts.Alignment = DefaultAlignment
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	//nolint:gosec // G304: path is chosen by the caller
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &Writer{
		file:  file,
		opts:  opts,
		log:   log.With("archive", path),
		names: make(map[string]struct{}),
	}, nil
}

// Add encodes t and adds it under name.
func Add[T tensor.Element](w *Writer, name string, t *tensor.Tensor[T]) error {
	wire, err := serialization.Encode(t, serialization.Options{
		Sharing: serialization.ShareAll,
		Logger:  w.log,
	})
	if err != nil {
		return fmt.Errorf("encode %q: %w", name, err)
	}
	defer wire.Release()
	return w.AddWire(name, wire)
}

// AddWire adds an encoded tensor under name. The writer takes its own
// references to the payload; the caller still owns wire.
func (w *Writer) AddWire(name string, wire *serialization.Wire) error {
	if w.closed {
		return ErrClosed
	}
	if err := ValidateTensorName(name); err != nil {
		return err
	}
	if _, dup := w.names[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateTensor, name)
	}
	if wire.Endianness != serialization.Native && wire.Endianness != serialization.HostEndianness {
		return fmt.Errorf("add %q: %w", name, serialization.ErrUnsupportedEndianness)
	}

	stored, comp, digest, err := serialization.Pack(wire, serialization.FrameOptions{
		Compression: w.opts.Compression,
		SkipDigest:  w.opts.SkipDigest,
	})
	if err != nil {
		return fmt.Errorf("pack %q: %w", name, err)
	}

	offset := alignUp(w.next, int64(w.opts.Alignment))
	e := Entry{
		Name:        name,
		DataType:    wire.DataType,
		Endianness:  serialization.HostEndianness,
		Sizes:       append([]int64(nil), wire.Sizes...),
		Offset:      offset,
		Size:        int64(wire.Len()),
		Stored:      int64(stored.Len()),
		Compression: comp,
		Digest:      digest,
	}
	w.entries = append(w.entries, e)
	w.stored = append(w.stored, stored)
	w.names[name] = struct{}{}
	w.next = offset + e.Stored

	w.log.Debug("added tensor",
		"name", name,
		"dtype", e.DataType,
		"sizes", e.Sizes,
		"bytes", e.Size,
		"stored", e.Stored,
		"compression", comp)
	return nil
}

// SetMetadata adds a key to the header metadata.
func (w *Writer) SetMetadata(key, value string) {
	if w.opts.Metadata == nil {
		w.opts.Metadata = make(map[string]string)
	}
	w.opts.Metadata[key] = value
}

// Len returns the number of tensors added so far.
func (w *Writer) Len() int {
	return len(w.entries)
}

// Close writes the file and closes it. The writer's payload references
// are released whether or not writing succeeds.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer func() {
		for _, c := range w.stored {
			c.Release()
		}
		w.stored = nil
	}()

	err := w.write()
	if closeErr := w.file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close file: %w", closeErr)
	}
	return err
}

//nolint:gocyclo,cyclop // Sequential binary layout
func (w *Writer) write() error {
	header := Header{
		Version:   FormatVersion,
		Alignment: w.opts.Alignment,
		Created:   time.Now().UTC(),
		Metadata:  w.opts.Metadata,
		Tensors:   w.entries,
	}
	if header.Tensors == nil {
		header.Tensors = []Entry{}
	}
	headerCBOR, err := serialization.MarshalCBOR(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	flags := uint32(0)
	if len(w.opts.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	for _, e := range w.entries {
		if e.Compression != serialization.CompressionNone {
			flags |= FlagCompressed
			break
		}
	}

	bw := bufio.NewWriter(w.file)
	var prefix [prefixSize]byte
	copy(prefix[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(prefix[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(prefix[8:12], flags)
	binary.LittleEndian.PutUint64(prefix[12:20], uint64(len(headerCBOR)))
	if _, err := bw.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write prefix: %w", err)
	}
	if _, err := bw.Write(headerCBOR); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	align := int64(w.opts.Alignment)
	headerEnd := int64(prefixSize + len(headerCBOR))
	if err := writePadding(bw, alignUp(headerEnd, align)-headerEnd); err != nil {
		return err
	}

	var pos int64
	for i, e := range w.entries {
		if err := writePadding(bw, e.Offset-pos); err != nil {
			return err
		}
		n, err := w.stored[i].WriteTo(bw)
		if err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", e.Name, err)
		}
		pos = e.Offset + n
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	w.log.Debug("wrote archive",
		"tensors", len(w.entries),
		"header_bytes", len(headerCBOR),
		"data_bytes", pos)
	return nil
}

var zeros [DefaultAlignment]byte

func writePadding(bw *bufio.Writer, n int64) error {
	for n > 0 {
		k := min(n, int64(len(zeros)))
		if _, err := bw.Write(zeros[:k]); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
		n -= k
	}
	return nil
}
