package archive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/thpp/internal/serialization"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
)

// ValidationLevel controls the strictness of validation.
type ValidationLevel int

const (
	// ValidationStrict performs all validation checks (default).
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks names and entry consistency but not the
	// placement of payloads relative to each other.
	ValidationNormal
	// ValidationNone skips validation. Use only with trusted input.
	ValidationNone
)

// ValidateEntryOffsets checks for overlapping payloads and payloads
// outside the data section.
func ValidateEntryOffsets(entries []Entry, dataSize int64) error {
	if len(entries) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(entries), MaxTensorCount),
		}
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, e := range sorted {
		if e.Offset < 0 || e.Stored < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  e.Name,
				Details: fmt.Sprintf("offset=%d, stored=%d (negative values not allowed)", e.Offset, e.Stored),
			}
		}
		if e.Offset > dataSize || e.Stored > dataSize-e.Offset {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  e.Name,
				Details: fmt.Sprintf("offset %d + stored %d > data_size %d", e.Offset, e.Stored, dataSize),
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if e.Offset+e.Stored > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Tensor:  e.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						e.Offset, e.Offset+e.Stored, next.Offset, next.Offset+next.Stored),
				}
			}
		}
	}
	return nil
}

// ValidateTensorName rejects names that could escape a directory when
// tensors are exported to files, and names with embedded NULs.
func ValidateTensorName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty tensor name"}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}
	if strings.Contains(name, "..") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains '..' (path traversal attempt)",
		}
	}
	if strings.ContainsAny(name, "/\\") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains path separator (/ or \\)",
		}
	}
	if strings.Contains(name, "\x00") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains null byte",
		}
	}
	return nil
}

// ValidateEntry checks that an entry's type, sizes and payload length
// agree with each other.
func ValidateEntry(e *Entry) error {
	if !e.DataType.Valid() {
		return &ValidationError{
			Type:    "invalid_dtype",
			Tensor:  e.Name,
			Details: fmt.Sprintf("unknown data type %d", int(e.DataType)),
		}
	}
	want, err := serialization.PayloadLen(e.DataType, e.Sizes)
	if err != nil {
		return &ValidationError{
			Type:    "invalid_sizes",
			Tensor:  e.Name,
			Details: fmt.Sprintf("sizes %v", e.Sizes),
		}
	}
	// An empty tensor has no sizes and no payload.
	if e.Size != want && (len(e.Sizes) != 0 || e.Size != 0) {
		return &ValidationError{
			Type:    "size_mismatch",
			Tensor:  e.Name,
			Details: fmt.Sprintf("payload of %d bytes for sizes %v (%d bytes)", e.Size, e.Sizes, want),
		}
	}
	return nil
}

// ValidateHeader performs header validation at the given level.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}
	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount),
		}
	}

	seen := make(map[string]struct{}, len(h.Tensors))
	for i := range h.Tensors {
		e := &h.Tensors[i]
		if err := ValidateTensorName(e.Name); err != nil {
			return err
		}
		if _, dup := seen[e.Name]; dup {
			return &ValidationError{Type: "duplicate_name", Tensor: e.Name, Details: "name appears more than once"}
		}
		seen[e.Name] = struct{}{}
		if err := ValidateEntry(e); err != nil {
			return err
		}
	}

	if level == ValidationStrict {
		if err := ValidateEntryOffsets(h.Tensors, dataSize); err != nil {
			return err
		}
	}
	return nil
}
