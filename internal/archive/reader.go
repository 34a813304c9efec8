package archive

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/born-ml/thpp/internal/iobuf"
	"github.com/born-ml/thpp/internal/serialization"
	"github.com/born-ml/thpp/internal/tensor"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Mmap maps the file instead of reading it into memory. Falls back to
	// reading where mapping is unsupported.
	Mmap bool
	// Sharing is the policy Load decodes with. Under ShareAll (or
	// ShareIOBufManaged, since the file bytes are managed) uncompressed
	// tensors reference the file contents without copying.
	Sharing serialization.SharingMode
	// Validation controls header checks; the zero value is strict.
	Validation ValidationLevel
	// SkipDigests disables payload digest verification.
	SkipDigests bool
	// Logger receives debug records; nil discards them.
	Logger *slog.Logger
}

// Reader reads tensors from an archive file.
type Reader struct {
	mu         sync.Mutex
	base       *iobuf.Buf // whole file, nil once closed
	header     Header
	index      map[string]int
	flags      uint32
	dataOffset int64
	mapped     bool
	opts       ReaderOptions
	log        *slog.Logger
}

// Open opens and validates the archive at path.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("archive", path)

	base, mapped, err := load(path, opts.Mmap, log)
	if err != nil {
		return nil, err
	}
	r := &Reader{base: base, mapped: mapped, opts: opts, log: log}
	if err := r.parse(); err != nil {
		base.Release()
		return nil, fmt.Errorf("failed to parse archive: %w", err)
	}

	log.Debug("opened archive",
		"tensors", len(r.header.Tensors),
		"bytes", base.Len(),
		"mmap", mapped)
	return r, nil
}

// load returns the file contents as a managed buffer. A mapping is
// removed when the last buffer sharing it is released.
func load(path string, useMmap bool, log *slog.Logger) (*iobuf.Buf, bool, error) {
	if !useMmap {
		//nolint:gosec // G304: path is chosen by the caller
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read file: %w", err)
		}
		return iobuf.TakeOwnership(data, nil), false, nil
	}

	//nolint:gosec // G304: path is chosen by the caller
	file, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size() < prefixSize {
		return nil, false, fmt.Errorf("file too small: %d bytes (minimum %d bytes required)", stat.Size(), prefixSize)
	}
	data, err := mapFile(file, int(stat.Size()))
	if err != nil {
		log.Debug("mmap unavailable, reading file", "error", err)
		return load(path, false, log)
	}
	return iobuf.TakeOwnership(data, func() {
		if err := unmapFile(data); err != nil {
			log.Warn("munmap failed", "error", err)
		}
	}), true, nil
}

func (r *Reader) parse() error {
	data := r.base.Bytes()
	if len(data) < prefixSize {
		return fmt.Errorf("file too small: %d bytes (minimum %d bytes required)", len(data), prefixSize)
	}
	if string(data[0:4]) != MagicBytes {
		return ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != FormatVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	r.flags = binary.LittleEndian.Uint32(data[8:12])

	headerSize := binary.LittleEndian.Uint64(data[12:20])
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	headerEnd := int64(prefixSize) + int64(headerSize)
	if headerEnd > int64(len(data)) {
		return fmt.Errorf("header extends beyond file: header_end=%d, file_size=%d", headerEnd, len(data))
	}
	rest, err := serialization.UnmarshalFirstCBOR(data[prefixSize:headerEnd], &r.header)
	if err != nil {
		return fmt.Errorf("failed to parse header: %w", err)
	}
	if len(rest) != 0 {
		return fmt.Errorf("%d trailing bytes after header", len(rest))
	}
	if r.header.Alignment <= 0 {
		r.header.Alignment = DefaultAlignment
	}

	r.dataOffset = min(alignUp(headerEnd, int64(r.header.Alignment)), int64(len(data)))
	dataSize := int64(len(data)) - r.dataOffset
	if err := ValidateHeader(&r.header, dataSize, r.opts.Validation); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	r.index = make(map[string]int, len(r.header.Tensors))
	for i, e := range r.header.Tensors {
		r.index[e.Name] = i
	}
	return nil
}

// Header returns the file header.
func (r *Reader) Header() Header {
	return r.header
}

// Flags returns the header flags.
func (r *Reader) Flags() uint32 {
	return r.flags
}

// Mapped reports whether the file is memory-mapped.
func (r *Reader) Mapped() bool {
	return r.mapped
}

// Metadata returns the metadata map from the header.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// Names returns the tensor names in file order.
func (r *Reader) Names() []string {
	names := make([]string, len(r.header.Tensors))
	for i, e := range r.header.Tensors {
		names[i] = e.Name
	}
	return names
}

// Info returns the entry for name.
func (r *Reader) Info(name string) (Entry, error) {
	i, ok := r.index[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
	}
	return r.header.Tensors[i], nil
}

// Stored returns the bytes of name as stored in the file, before
// decompression. The buffer references the file contents.
func (r *Reader) Stored(name string) (*iobuf.Buf, error) {
	e, err := r.Info(name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.base == nil {
		return nil, ErrClosed
	}
	start := r.dataOffset + e.Offset
	if e.Offset < 0 || e.Stored < 0 || start+e.Stored > int64(r.base.Len()) {
		return nil, fmt.Errorf("%w: tensor %q: offset %d + stored %d > file_size %d",
			ErrOutOfBounds, name, start, e.Stored, r.base.Len())
	}
	return r.base.PartialClone(int(start), int(e.Stored)), nil
}

// Wire returns the encoded form of name, verifying its digest unless
// disabled. Uncompressed payloads reference the file contents.
func (r *Reader) Wire(name string) (*serialization.Wire, error) {
	e, err := r.Info(name)
	if err != nil {
		return nil, err
	}
	stored, err := r.Stored(name)
	if err != nil {
		return nil, err
	}
	defer stored.Release()

	digest := e.Digest
	if r.opts.SkipDigests {
		digest = nil
	}
	payload, err := serialization.Unpack(stored, e.Compression, e.DataType.Size(), int(e.Size), digest)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	return &serialization.Wire{
		DataType:   e.DataType,
		Endianness: e.Endianness,
		Sizes:      append([]int64(nil), e.Sizes...),
		Data:       payload,
	}, nil
}

// Verify checks the digest of every tensor.
func (r *Reader) Verify() error {
	for _, e := range r.header.Tensors {
		if len(e.Digest) == 0 {
			continue
		}
		stored, err := r.Stored(e.Name)
		if err != nil {
			return err
		}
		payload, err := serialization.Unpack(stored, e.Compression, e.DataType.Size(), int(e.Size), e.Digest)
		stored.Release()
		if err != nil {
			return fmt.Errorf("tensor %q: %w", e.Name, err)
		}
		payload.Release()
	}
	return nil
}

// Load decodes the tensor stored under name using the reader's sharing
// policy. A tensor that references the file keeps it loaded (or mapped)
// after the reader is closed.
func Load[T tensor.Element](r *Reader, name string) (*tensor.Tensor[T], error) {
	w, err := r.Wire(name)
	if err != nil {
		return nil, err
	}
	defer w.Release()
	t, err := serialization.Decode[T](w, r.opts.Sharing)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	return t, nil
}

// Close drops the reader's reference to the file contents.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.base == nil {
		return nil
	}
	refs := r.base.RefCount()
	r.base.Release()
	r.base = nil
	r.log.Debug("closed archive", "outstanding_refs", refs-1)
	return nil
}
